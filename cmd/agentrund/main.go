// Command agentrund is the long-running daemon: it polls a run store,
// reconciles crashed runs, and dispatches created runs to a bounded worker
// pool via the engine adapter registry.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/silver2dream/agentrun/internal/adapter"
	"github.com/silver2dream/agentrun/internal/buildinfo"
	"github.com/silver2dream/agentrun/internal/config"
	"github.com/silver2dream/agentrun/internal/daemon"
	"github.com/silver2dream/agentrun/internal/obslog"
	"github.com/silver2dream/agentrun/internal/reconciler"
	"github.com/silver2dream/agentrun/internal/runner"
	"github.com/silver2dream/agentrun/internal/runstore"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) >= 1 && (args[0] == "--version" || args[0] == "-v") {
		fmt.Println(buildinfo.Version)
		return 0
	}

	fs := flag.NewFlagSet("agentrund", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to agentrund.yaml (defaults are used if absent)")
	runsRoot := fs.String("runs-root", "", "override config's run store root")
	workers := fs.Int("workers", 0, "override config's worker concurrency")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "agentrund: load config:", err)
		return 1
	}
	if *runsRoot != "" {
		cfg.RunRoot = *runsRoot
	}
	if *workers > 0 {
		cfg.Workers = *workers
	}

	log := obslog.New(obslog.FromEnv())
	log = obslog.WithComponent(log, "daemon")

	store := runstore.New(cfg.RunRoot)
	registry := adapter.DefaultRegistry()

	d := daemon.New(daemon.Config{
		Store:        store,
		Runner:       runner.New(store, registry, log),
		Reconciler:   reconciler.New(store, log),
		PollInterval: cfg.PollInterval,
		Workers:      cfg.Workers,
		Log:          log,
	})

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("received signal, stopping", "signal", sig.String())
		cancel()
		d.Stop(10 * time.Second)
	}()

	log.Info("agentrund starting", "runs_root", cfg.RunRoot, "workers", cfg.Workers, "poll_interval", cfg.PollInterval)
	d.Run(ctx)
	log.Info("agentrund stopped")
	return 0
}
