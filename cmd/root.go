package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "meetsignal",
	Short: "meetsignal is a signaling server for peer-to-peer meeting rooms.",
	Long: `meetsignal keeps room membership and relays offers, answers and ICE
candidates between participants so they can build a full mesh of direct
WebRTC connections. Without a subcommand it runs the server, configured
from the environment.`,
	Run: func(cmd *cobra.Command, args []string) {
		runApp()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
