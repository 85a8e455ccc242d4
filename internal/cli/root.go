package cli

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/KafClaw/wagateway/internal/cli.version=1.2.3"
	version = "0.1.0"
	logo    = "\n" +
		" __      ____ _  __ _  __ _| |_ _____      ____ _ _   _\n" +
		" \\ \\ /\\ / / _` |/ _` |/ _` | __/ _ \\ \\ /\\ / / _` | | | |\n" +
		"  \\ V  V / (_| | (_| | (_| | ||  __/\\ V  V / (_| | |_| |\n" +
		"   \\_/\\_/ \\__,_|\\__, |\\__,_|\\__\\___| \\_/\\_/ \\__,_|\\__, |\n" +
		"                |___/                             |___/\n"
)

var rootCmd = &cobra.Command{
	Use:   "wagateway",
	Short: "wagateway - WhatsApp HTTP gateway",
	Long:  color.CyanString(logo) + "\nA small HTTP control shell around a WhatsApp client.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(gatewayCmd)
	rootCmd.AddCommand(timelineCmd)
	rootCmd.AddCommand(doctorCmd)
}
