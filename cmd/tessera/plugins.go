package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tessera-wm/tessera/internal/plugin"
	"github.com/tessera-wm/tessera/internal/plugindir"
	"github.com/tessera-wm/tessera/internal/queue"
	"github.com/tessera-wm/tessera/internal/subscription"
	"github.com/tessera-wm/tessera/internal/windowsystem"
	"github.com/tessera-wm/tessera/internal/windowsystem/noop"
)

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "Inspect plugins without starting the dispatch loop",
}

var pluginsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Compile and load plugins from a directory and print their resolved IDs",
	RunE:  listPlugins,
}

func init() {
	pluginsListCmd.Flags().String("plugin-dir", "", "Plugin directory to scan (default: XDG-resolved)")
	pluginsCmd.AddCommand(pluginsListCmd)
}

func listPlugins(cmd *cobra.Command, args []string) error {
	pluginDir, _ := cmd.Flags().GetString("plugin-dir")
	if pluginDir == "" {
		resolved, err := plugindir.Resolve()
		if err != nil {
			return fmt.Errorf("resolve plugin directory: %w", err)
		}
		pluginDir = resolved
	}

	ctx := context.Background()
	idx := subscription.New(make(chan windowsystem.Command, windowsystem.CommandChannelCapacity))
	host, err := plugin.NewHost(ctx, idx, queue.New(0), noop.NewSink(), nil)
	if err != nil {
		return fmt.Errorf("create plugin host: %w", err)
	}
	defer host.Close(ctx)

	if err := host.LoadDir(ctx, pluginDir); err != nil {
		return fmt.Errorf("load plugins from %s: %w", pluginDir, err)
	}

	for _, id := range host.Loaded() {
		fmt.Println(id)
	}
	return nil
}
