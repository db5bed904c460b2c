package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tessera-wm/tessera/internal/audit"
	"github.com/tessera-wm/tessera/internal/corelog"
	"github.com/tessera-wm/tessera/internal/metrics"
	"github.com/tessera-wm/tessera/internal/plugin"
	"github.com/tessera-wm/tessera/internal/plugindir"
	"github.com/tessera-wm/tessera/internal/queue"
	"github.com/tessera-wm/tessera/internal/subscription"
	"github.com/tessera-wm/tessera/internal/windowsystem"
	"github.com/tessera-wm/tessera/internal/windowsystem/noop"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Load plugins and dispatch window manager events to them",
	RunE:  runHost,
}

func init() {
	runCmd.Flags().String("plugin-dir", "", "Plugin directory to scan (default: XDG-resolved)")
	runCmd.Flags().String("data-dir", ".", "Directory for the audit database")
	runCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address to serve /metrics on")
	runCmd.Flags().Int("queue-capacity", queue.DefaultCapacity, "Per-plugin event queue capacity")
}

func runHost(cmd *cobra.Command, args []string) error {
	log := corelog.WithComponent("cmd.tessera")

	pluginDir, _ := cmd.Flags().GetString("plugin-dir")
	if pluginDir == "" {
		resolved, err := plugindir.Resolve()
		if err != nil {
			return fmt.Errorf("resolve plugin directory: %w", err)
		}
		pluginDir = resolved
	}

	dataDir, _ := cmd.Flags().GetString("data-dir")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	queueCapacity, _ := cmd.Flags().GetInt("queue-capacity")

	auditLog, err := audit.Open(dataDir)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer auditLog.Close()

	sink := newAuditingSink(noop.NewSink(), auditLog)

	idx := subscription.New(sink.Commands())
	queues := queue.New(queueCapacity)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	host, err := plugin.NewHost(ctx, idx, queues, sink, auditLog)
	if err != nil {
		return fmt.Errorf("create plugin host: %w", err)
	}
	defer host.Close(ctx)

	if err := host.LoadDir(ctx, pluginDir); err != nil {
		return fmt.Errorf("load plugins from %s: %w", pluginDir, err)
	}
	log.Info().Strs("plugins", host.Loaded()).Msg("plugins loaded")

	go func() {
		http.Handle("/metrics", metrics.Handler())
		if err := http.ListenAndServe(metricsAddr, nil); err != nil {
			log.Error().Err(err).Msg("metrics server stopped")
		}
	}()
	log.Info().Str("addr", metricsAddr).Msg("metrics endpoint listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("shutdown signal received")
		cancel()
	}()

	source := noop.NewSource()
	if err := host.Run(ctx, source); err != nil && ctx.Err() == nil {
		return fmt.Errorf("dispatch loop stopped: %w", err)
	}
	return nil
}

// auditingSink decorates a CommandSink so Subscribe/Unsubscribe/ConfigureWindow
// transitions are appended to the audit log before being forwarded to the
// underlying sink. ConfigureWindow/FocusWindow/CloseWindow/WindowGeometry are
// promoted straight through from the embedded sink.
type auditingSink struct {
	windowsystem.CommandSink
	commands chan windowsystem.Command
}

func newAuditingSink(inner windowsystem.CommandSink, log *audit.Log) *auditingSink {
	s := &auditingSink{
		CommandSink: inner,
		commands:    make(chan windowsystem.Command, windowsystem.CommandChannelCapacity),
	}
	go s.drain(inner, log)
	return s
}

func (s *auditingSink) drain(inner windowsystem.CommandSink, log *audit.Log) {
	for cmd := range s.commands {
		if err := log.RecordCommand(cmd); err != nil {
			corelog.WithComponent("cmd.tessera").Warn().Err(err).Msg("failed to audit command")
		}
		inner.Commands() <- cmd
	}
}

func (s *auditingSink) Commands() chan<- windowsystem.Command { return s.commands }
