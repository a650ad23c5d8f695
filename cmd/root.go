package cmd

import (
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/meshmeet/meshmeet/internal/ui"
	"github.com/meshmeet/meshmeet/internal/version"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "meshmeet",
	Short:   "Terminal client for mesh video meetings over WebRTC",
	Long:    `MeshMeet joins multi-party video meetings from the terminal. Every participant connects directly to every other over WebRTC; a lightweight signaling hub brokers the introductions and nothing else touches the media.`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go func() {
		<-sig
		os.Exit(0)
	}()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}
