package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cascade/pkg/bottleneck"
	"cascade/pkg/config"
	"cascade/pkg/graph"
	"cascade/pkg/notify"
	"cascade/pkg/rules"
	"cascade/pkg/scheduler"
	"cascade/pkg/store"
	"cascade/pkg/timeline"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

// rulesReloadFallback is the safety-net reload interval used when file
// watching misses an event.
const rulesReloadFallback = 60 * time.Second

// newServeCmd creates the "cascade serve" subcommand.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduling engine",
		Long:  "Loads the rule set, rebuilds the dependency graph, and runs the\nevent workers and periodic scans until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, s, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			edges, err := s.Edges(ctx)
			if err != nil {
				return fmt.Errorf("load dependencies: %w", err)
			}
			g, err := graph.NewFromEdges(edges)
			if err != nil {
				return fmt.Errorf("rebuild dependency graph: %w", err)
			}

			tl := timeline.New(g, s)
			analyzer := bottleneck.New(g, s, s)
			sink := notify.New(cfg.ChatWebhookURL, s)

			eng := rules.New(rules.Deps{
				Rules:       s,
				Tasks:       s,
				Users:       s,
				Notify:      s,
				Messaging:   sink,
				Graph:       g,
				Timeline:    tl,
				Executions:  s,
				Escalations: s,
				Events:      s,
			})

			if err := reloadRules(ctx, cfg, s, eng); err != nil {
				return err
			}
			go watchRules(ctx, cfg, s, eng)

			sched := scheduler.New(cfg.SchedulerConfig(), scheduler.Deps{
				Engine:   eng,
				Tasks:    s,
				Graph:    g,
				Timeline: tl,
				Analyzer: analyzer,
				Edges:    s,
				Events:   s,
			})

			// Catch up on anything that went overdue or stale while the
			// engine was down. The queued events drain once Run starts.
			sched.RunScans(ctx)

			fmt.Fprintf(cmd.OutOrStdout(), "cascade engine running (db=%s rules=%s)\n", cfg.DBPath, cfg.RulesDir)
			return sched.Run(ctx)
		},
	}
}

// reloadRules loads the rules directory into the store. A missing directory
// is not an error; the engine runs with whatever the store already holds.
func reloadRules(ctx context.Context, cfg config.Config, s *store.Store, reg rules.Registry) error {
	if _, err := os.Stat(cfg.RulesDir); os.IsNotExist(err) {
		return nil
	}
	loaded, err := rules.LoadDir(cfg.RulesDir, reg)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	if err := s.ReplaceRules(ctx, loaded); err != nil {
		return fmt.Errorf("store rules: %w", err)
	}
	_ = s.LogEvent(ctx, "rules_loaded", "serve", "", "", fmt.Sprintf("%d rules", len(loaded)))
	return nil
}

// watchRules hot-reloads the rule set when the rules directory changes,
// with a fallback reload ticker as a safety net. A reload that fails leaves
// the previous rule set in place.
func watchRules(ctx context.Context, cfg config.Config, s *store.Store, reg rules.Registry) {
	reload := func() {
		if err := reloadRules(ctx, cfg, s, reg); err != nil {
			_ = s.LogEvent(ctx, "rules_reload_failed", "serve", "", "", err.Error())
		}
	}

	fallback := time.NewTicker(rulesReloadFallback)
	defer fallback.Stop()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		// Fallback to pure polling if fsnotify fails.
		for {
			select {
			case <-ctx.Done():
				return
			case <-fallback.C:
				reload()
			}
		}
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(cfg.RulesDir); err != nil {
		_ = s.LogEvent(ctx, "rules_watch_failed", "serve", "", "", err.Error())
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-watcher.Events:
			reload()
		case err := <-watcher.Errors:
			if err != nil {
				_ = s.LogEvent(ctx, "watcher_error", "serve", "", "", err.Error())
			}
		case <-fallback.C:
			reload()
		}
	}
}
