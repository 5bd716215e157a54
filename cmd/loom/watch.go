// Copyright 2026 © The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"

	"github.com/loomlabs/loom/pkg/skills"
	"github.com/loomlabs/loom/pkg/telemetry"
)

// runWatch keeps the process alive, reloading the catalog whenever a skill
// directory changes. This is the one long-running CLI mode, so it also
// initializes the telemetry exporters.
func runWatch(ctx context.Context, app *app, args []string) {
	cmd := flag.NewFlagSet("watch", flag.ExitOnError)
	interval := cmd.Duration("interval", app.cfg.Skills.WatchEvery, "Poll interval")
	if err := cmd.Parse(args); err != nil {
		fatal(err)
	}

	shutdown, err := telemetry.InitWithConfig("loom", "dev", telemetry.Config{
		Exporter:     app.cfg.Telemetry.Exporter,
		OTLPEndpoint: app.cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: app.cfg.Telemetry.OTLPInsecure,
	})
	if err != nil {
		fatal(err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			slog.Warn("telemetry shutdown", "error", err)
		}
	}()

	registry := app.loadRegistry()
	watcher := skills.NewWatcher(registry,
		skills.WithWatchInterval(*interval),
		skills.WithWatchLogger(slog.Default()),
	)
	watcher.OnReload(func(r *skills.Registry) {
		fmt.Printf("catalog reloaded: %d skills\n", r.Len())
	})

	fmt.Printf("watching %s (%d skills, every %s)\n",
		app.cfg.Skills.Root, registry.Len(), *interval)
	watcher.Start(ctx)
	<-ctx.Done()
	watcher.Stop()
}
