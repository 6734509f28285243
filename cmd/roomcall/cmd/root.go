package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/mindmesh/roomcall/internal/ui"
	"github.com/mindmesh/roomcall/internal/version"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "roomcall",
	Short:   "Peer-to-peer group video calls from the terminal",
	Long:    `Roomcall joins a named room on a signaling server and negotiates direct WebRTC media links with every other participant in it. Media flows peer to peer; the server only introduces participants and relays their negotiation payloads.`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}
