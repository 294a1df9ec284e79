package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/veritas-kanban/core/internal/agentconfig"
	"github.com/veritas-kanban/core/internal/alerts"
	"github.com/veritas-kanban/core/internal/attemptlog"
	"github.com/veritas-kanban/core/internal/eventbus"
	"github.com/veritas-kanban/core/internal/fileutil"
	"github.com/veritas-kanban/core/internal/metrics"
	"github.com/veritas-kanban/core/internal/model"
	"github.com/veritas-kanban/core/internal/notify"
	"github.com/veritas-kanban/core/internal/supervisor"
	"github.com/veritas-kanban/core/internal/taskstore"
	"github.com/veritas-kanban/core/internal/telemetry"
	"github.com/veritas-kanban/core/internal/telemetrylog"
	"github.com/veritas-kanban/core/internal/trace"
)

// retentionSweepInterval is how often the telemetry retention/compression
// sweep runs while the daemon is up.
const retentionSweepInterval = 6 * time.Hour

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the server core",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

// runServe wires every component (C1-C9) together with explicit
// dependency injection, per spec.md §9's "carry them as explicit
// dependencies" design note — no package-level singletons. Exit codes
// follow spec.md §6: 0 on normal shutdown, 2 on unrecoverable init
// error.
func runServe() error {
	cfg, err := loadAndValidateConfig(configPath)
	if err != nil {
		red.Fprintln(os.Stderr, "config invalid, exiting")
		os.Exit(2)
	}

	if err := fileutil.EnsureDir(cfg.LogRoot); err != nil {
		red.Fprintf(os.Stderr, "creating log root: %s\n", err)
		os.Exit(2)
	}
	if err := fileutil.EnsureDir(cfg.TraceRoot); err != nil {
		red.Fprintf(os.Stderr, "creating trace root: %s\n", err)
		os.Exit(2)
	}

	tel := telemetry.New(dataRoot, cfg.Telemetry)
	if err := tel.Init(); err != nil {
		red.Fprintf(os.Stderr, "telemetry init failed: %s\n", err)
		os.Exit(2)
	}
	defer tel.Close()

	logs := attemptlog.New(cfg.LogRoot)
	defer logs.Close()

	traces := trace.New(cfg.TraceRoot, cfg.Telemetry.Traces)
	bus := eventbus.New()
	tasks := taskstore.NewInMemoryStore()
	agents := &agentconfig.StaticConfig{Cfg: &cfg.Agents}

	webhookSink := notify.RecordingSink{}
	pipe := alerts.New(&webhookSink, tasks, func() bool { return cfg.Notifications.OnAgentFailure })
	tel.OnEmit(func(ev model.TelemetryEvent) {
		pipe.Notify(context.Background(), ev)
	})

	sup := supervisor.New(tasks, agents, logs, tel, traces, bus)
	agg := metrics.New(tel, tasks)

	stop := make(chan struct{})
	go tel.RunRetentionLoop(retentionSweepInterval, stop)
	go runStatusTicker(stop, agg)

	cyan.Printf("veritasd %s listening on :%d\n", Version, cfg.Port)
	telemetrylog.Infof("supervisor ready, default agent %q", cfg.Agents.DefaultAgent)
	_ = sup // handed off to the outer HTTP/websocket layer, outside this module's scope

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("shutting down")
	close(stop)
	tel.Flush()
	return nil
}

// runStatusTicker periodically logs a one-line task summary, exercising
// C7's taskMetrics and the CLI's colorized status symbols without
// requiring an outer HTTP layer.
func runStatusTicker(stop <-chan struct{}, agg *metrics.Aggregator) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			tm, err := agg.TaskMetrics(context.Background(), "")
			if err != nil {
				telemetrylog.Warnf("status tick: %s", err)
				continue
			}
			for status, count := range tm.ByStatus {
				symbol, c := taskStateDisplay(status)
				c.Printf("%s %s: %d\n", symbol, status, count)
			}
		}
	}
}

// dataRoot is where telemetry.New lays out its own "telemetry"
// subdirectory (spec.md §4.2); log and trace roots are configured
// independently via cfg.LogRoot/cfg.TraceRoot.
const dataRoot = ".veritas-kanban"
