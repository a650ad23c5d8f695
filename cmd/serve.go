package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/meshmeet/meshmeet/internal/hub"
)

var (
	flagAddr      string
	flagJWTSecret string
	flagRedis     string
	flagRedisPass string
	flagRedisDB   int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the signaling hub",
	Long: `Run the meeting hub: the REST API for meeting metadata and the
websocket endpoint that relays WebRTC signaling between participants.
Participant records are kept in Redis when --redis is set, otherwise in
process memory.

Examples:
  meshmeet serve --addr :8080 --redis localhost:6379
  MESHMEET_JWT_SECRET=... meshmeet serve`,
	RunE: func(cmd *cobra.Command, args []string) error {
		secret := flagJWTSecret
		if secret == "" {
			secret = os.Getenv("MESHMEET_JWT_SECRET")
		}
		if secret == "" {
			return fmt.Errorf("no JWT secret configured: set --jwt-secret or MESHMEET_JWT_SECRET")
		}

		var store hub.Store = hub.NewMemoryStore()
		if flagRedis != "" {
			rs, err := hub.NewRedisStore(flagRedis, flagRedisPass, flagRedisDB)
			if err != nil {
				return err
			}
			store = rs
		}
		defer store.Close()

		return hub.NewServer(store, secret).Run(flagAddr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&flagAddr, "addr", ":8080", "Listen address")
	serveCmd.Flags().StringVar(&flagJWTSecret, "jwt-secret", "", "HMAC secret for bearer tokens")
	serveCmd.Flags().StringVar(&flagRedis, "redis", "", "Redis address (empty runs on the in-memory store)")
	serveCmd.Flags().StringVar(&flagRedisPass, "redis-password", "", "Redis password")
	serveCmd.Flags().IntVar(&flagRedisDB, "redis-db", 0, "Redis database number")

	rootCmd.AddCommand(serveCmd)
}
