// Copyright 2026 © The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/loomlabs/loom/pkg/config"
	"github.com/loomlabs/loom/pkg/core"
	"github.com/loomlabs/loom/pkg/mcp"
	"github.com/loomlabs/loom/pkg/orchestrator"
	"github.com/loomlabs/loom/pkg/refstore"
	"github.com/loomlabs/loom/pkg/refstore/ollama"
	"github.com/loomlabs/loom/pkg/refstore/qdrant"
	"github.com/loomlabs/loom/pkg/skills"
	"github.com/loomlabs/loom/pkg/telemetry"
)

// app wires CLI commands to the Loom components. Components are built
// lazily so commands only pay for what they touch: catalog never opens the
// chunk store, search never dials MCP servers.
type app struct {
	cfg    *config.Config
	global globalFlags

	registry *skills.Registry
	router   *skills.Router
	store    *refstore.Store
	source   *mcp.Source
	metrics  *telemetry.CoreMetrics
}

func newApp(cfg *config.Config, global globalFlags) *app {
	return &app{cfg: cfg, global: global}
}

func configureLogging(cfg *config.Config) {
	logger := telemetry.ConfigureSlog(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)
}

// loadMetrics builds the metric instruments on the global meter. Before
// telemetry init the global meter is a no-op, so short-lived commands pay
// nothing.
func (a *app) loadMetrics() *telemetry.CoreMetrics {
	if a.metrics == nil {
		metrics, err := telemetry.NewCoreMetrics()
		if err != nil {
			fatal(err)
		}
		a.metrics = metrics
	}
	return a.metrics
}

func (a *app) loadRegistry() *skills.Registry {
	if a.registry == nil {
		registry, err := skills.NewRegistry(a.cfg.Skills.Root)
		if err != nil {
			NewSkillsError(err, a.cfg.Skills.Root).PrintError(a.global.JSON)
			os.Exit(1)
		}
		a.registry = registry
	}
	return a.registry
}

func (a *app) loadRouter() *skills.Router {
	if a.router == nil {
		a.router = skills.NewRouter(a.loadRegistry(), skills.Weights{
			ExactTerm: a.cfg.Router.ExactWeight,
			Tag:       a.cfg.Router.TagWeight,
			Partial:   a.cfg.Router.PartialWeight,
		})
	}
	return a.router
}

// loadOrchestrator assembles the context builder. Baseline instructions come
// from the configured file when present; MCP servers are connected only when
// the config names any.
func (a *app) loadOrchestrator(ctx context.Context) *orchestrator.Orchestrator {
	baseline := orchestrator.Baseline{}
	if path := a.cfg.Skills.BaselinePath; path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			NewConfigError(err, path).PrintError(a.global.JSON)
			os.Exit(1)
		}
		baseline.Instructions = string(content)
	}

	opts := []orchestrator.Option{orchestrator.WithMetrics(a.loadMetrics())}
	if source := a.loadToolSource(ctx); source != nil {
		opts = append(opts, orchestrator.WithToolSource(source))
	}
	return orchestrator.New(a.loadRegistry(), a.loadRouter(), baseline, opts...)
}

func (a *app) loadToolSource(ctx context.Context) core.ToolSource {
	if len(a.cfg.MCP.Servers) == 0 {
		return nil
	}
	if a.source == nil {
		source := mcp.NewSource()
		for _, server := range a.cfg.MCP.Servers {
			client, err := connectMCP(server)
			if err != nil {
				NewMCPError(err, server.Name).PrintError(a.global.JSON)
				os.Exit(1)
			}
			source.Add(client)
		}
		a.source = source
	}
	return a.source
}

func connectMCP(server config.MCPServerConfig) (*mcp.Client, error) {
	if server.Transport == "http" {
		return mcp.NewClientWithStreamableHTTP(server.URL)
	}
	return mcp.NewClientWithStdio(server.Command, server.Args)
}

// loadStore opens the chunk store with the configured embedder, attaching
// the qdrant mirror when enabled.
func (a *app) loadStore(ctx context.Context) *refstore.Store {
	if a.store != nil {
		return a.store
	}

	embedder := ollama.NewEmbedder(
		a.cfg.Embedder.BaseURL,
		a.cfg.Embedder.Model,
		a.cfg.Embedder.Dimension,
		a.cfg.Embedder.Timeout,
	)

	opts := []refstore.Option{refstore.WithMetrics(a.loadMetrics())}
	if a.cfg.Qdrant.Enabled {
		index, err := qdrant.New(a.cfg.Qdrant.Addr, a.cfg.Qdrant.Collection)
		if err != nil {
			NewRefStoreError(err).PrintError(a.global.JSON)
			os.Exit(1)
		}
		if err := index.EnsureCollection(ctx, uint64(a.cfg.Embedder.Dimension)); err != nil {
			NewRefStoreError(err).PrintError(a.global.JSON)
			os.Exit(1)
		}
		opts = append(opts, refstore.WithVectorIndex(index))
	}

	store, err := refstore.Open(a.cfg.RefStore.Path, embedder, opts...)
	if err != nil {
		NewRefStoreError(err).PrintError(a.global.JSON)
		os.Exit(1)
	}
	a.store = store
	return store
}
