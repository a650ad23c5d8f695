package cmd

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/meshmeet/meshmeet/internal/config"
	"github.com/meshmeet/meshmeet/internal/session"
	"github.com/meshmeet/meshmeet/internal/ui"
	"github.com/meshmeet/meshmeet/internal/utils"
)

var (
	flagDomain   string
	flagAPIURL   string
	flagToken    string
	flagName     string
	flagSTUN     string
	flagTURN     string
	flagTURNUser string
	flagTURNPass string
	flagRelay    bool
)

var joinCmd = &cobra.Command{
	Use:     "join <meeting-id>",
	Aliases: []string{"j"},
	Short:   "Join a meeting",
	Long: `Join a multi-party meeting. Audio and video flow directly between
participants over WebRTC; the hub only brokers the introductions.

Examples:
  meshmeet join kitten-waffle-stardust
  meshmeet join --name "Ada" --domain meet.example.com kitten-waffle-stardust
  meshmeet join --relay kitten-waffle-stardust`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return joinMeeting(args[0])
	},
}

func joinMeeting(meetingID string) error {
	cfg, err := config.Load(config.Options{
		Domain:      flagDomain,
		APIBaseURL:  flagAPIURL,
		Token:       flagToken,
		DisplayName: flagName,
		STUNServer:  flagSTUN,
		TURNServer:  flagTURN,
		TURNUser:    flagTURNUser,
		TURNPass:    flagTURNPass,
		ForceRelay:  flagRelay,
	})
	if err != nil {
		return err
	}

	sess := session.New(cfg, meetingID, nil)

	sp := ui.NewConnectionSpinner("Joining meeting...")
	sp.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := sess.Join(ctx); err != nil {
		sp.Error("Could not join")
		return err
	}

	local, _ := sess.Local()
	sp.Success(fmt.Sprintf("Joined %s as %s (%s)", meetingID, local.DisplayName, local.Role))

	start := time.Now()
	model := ui.NewMeetingModel(sess)
	if _, err := tea.NewProgram(model).Run(); err != nil {
		sess.Leave()
		return err
	}

	sess.Leave()

	if reason := model.EndReason(); reason != "" {
		ui.PrintWarning(reason)
	}

	fmt.Println()
	ui.RenderMeetingSummary(ui.IconMeeting+" Meeting Summary", ui.MeetingSummary{
		MeetingID:    meetingID,
		Duration:     utils.FormatTimeDuration(time.Since(start)),
		Participants: sess.Registry().Len(),
		Streams:      sess.Streams().Len(),
	})

	return nil
}

func init() {
	joinCmd.Flags().StringVar(&flagDomain, "domain", "", "Meeting backend domain")
	joinCmd.Flags().StringVar(&flagAPIURL, "api", "", "REST API base URL (overrides domain)")
	joinCmd.Flags().StringVarP(&flagToken, "token", "t", "", "Bearer token (or MESHMEET_TOKEN)")
	joinCmd.Flags().StringVarP(&flagName, "name", "n", "", "Display name")
	joinCmd.Flags().StringVar(&flagSTUN, "stun", "", "STUN server URL")
	joinCmd.Flags().StringVar(&flagTURN, "turn", "", "TURN server URL")
	joinCmd.Flags().StringVar(&flagTURNUser, "turn-user", "", "TURN username")
	joinCmd.Flags().StringVar(&flagTURNPass, "turn-pass", "", "TURN password")
	joinCmd.Flags().BoolVar(&flagRelay, "relay", false, "Force relayed media (TURN only)")

	rootCmd.AddCommand(joinCmd)
}
