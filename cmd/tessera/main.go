package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tessera-wm/tessera/internal/corelog"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "tessera",
	Short: "tessera - a WASM plugin host for window manager event handling",
	Long: `tessera loads compiled WASM plugins and dispatches X11 window
and key events to them, giving plugins a safe, subscription-scoped view
of window manager activity and a narrow set of host-calls to react with.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"tessera version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(pluginsCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version, commit and build time",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("tessera version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime)
	},
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	corelog.Init(corelog.Config{
		Level:      corelog.Level(logLevel),
		JSONOutput: logJSON,
	})
}
