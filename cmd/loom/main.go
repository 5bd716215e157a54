// Copyright 2026 © The Loom Authors
// SPDX-License-Identifier: Apache-2.0

// Package main implements the Loom CLI.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/loomlabs/loom/pkg/config"
)

type globalFlags struct {
	ConfigPath string
	Timeout    time.Duration
	JSON       bool
	Help       bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	global, args, err := parseGlobalFlags(os.Args[1:])
	if err != nil {
		fatal(err)
	}
	if global.Help || len(args) == 0 {
		printUsage()
		return
	}

	configPath := global.ConfigPath
	if configPath == "" {
		configPath = getenv("LOOM_CONFIG", "")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		NewConfigError(err, configPath).PrintError(global.JSON)
		os.Exit(1)
	}
	configureLogging(cfg)

	app := newApp(cfg, global)

	switch args[0] {
	case "catalog":
		runCatalog(app, args[1:])
	case "route":
		runRoute(ctx, app, args[1:])
	case "build":
		runBuild(ctx, app, args[1:])
	case "index":
		runIndex(ctx, app, args[1:])
	case "search":
		runSearch(ctx, app, args[1:])
	case "status":
		runStatus(ctx, app, args[1:])
	case "validate":
		runValidate(ctx, app, args[1:])
	case "new-skill":
		runNewSkill(app, args[1:])
	case "watch":
		runWatch(ctx, app, args[1:])
	case "help":
		printUsage()
	case "version":
		printVersion()
	default:
		fatal(fmt.Errorf("unknown command %q", args[0]))
	}
}

func parseGlobalFlags(args []string) (globalFlags, []string, error) {
	flags := globalFlags{Timeout: 30 * time.Second}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			return flags, args[i+1:], nil
		}
		if !strings.HasPrefix(arg, "-") {
			return flags, args[i:], nil
		}
		switch {
		case arg == "-h" || arg == "--help":
			flags.Help = true
			return flags, nil, nil
		case arg == "--json":
			flags.JSON = true
		case arg == "--config":
			if i+1 >= len(args) {
				return flags, nil, fmt.Errorf("missing value for --config")
			}
			flags.ConfigPath = args[i+1]
			i++
		case strings.HasPrefix(arg, "--config="):
			flags.ConfigPath = strings.TrimPrefix(arg, "--config=")
		case arg == "--timeout":
			if i+1 >= len(args) {
				return flags, nil, fmt.Errorf("missing value for --timeout")
			}
			value, err := time.ParseDuration(args[i+1])
			if err != nil {
				return flags, nil, fmt.Errorf("invalid --timeout: %w", err)
			}
			flags.Timeout = value
			i++
		case strings.HasPrefix(arg, "--timeout="):
			value, err := time.ParseDuration(strings.TrimPrefix(arg, "--timeout="))
			if err != nil {
				return flags, nil, fmt.Errorf("invalid --timeout: %w", err)
			}
			flags.Timeout = value
		default:
			return flags, nil, fmt.Errorf("unknown global flag %q", arg)
		}
	}
	return flags, nil, nil
}

func printJSON(value any) {
	payload, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		fatal(err)
	}
	fmt.Println(string(payload))
}

func newTabWriter() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
}

func writeRow(writer *tabwriter.Writer, cols ...string) {
	for i, col := range cols {
		cols[i] = normalizeCell(col)
	}
	fmt.Fprintln(writer, strings.Join(cols, "\t"))
}

func normalizeCell(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "-"
	}
	return strings.Join(strings.Fields(value), " ")
}

func truncateCell(value string, limit int) string {
	value = normalizeCell(value)
	if limit <= 0 || len(value) <= limit {
		return value
	}
	if limit <= 3 {
		return value[:limit]
	}
	return value[:limit-3] + "..."
}

func printVersion() {
	fmt.Println("dev")
}

func printUsage() {
	fmt.Println(`Loom CLI

Usage:
  loom [global flags] <command> [args]

Global flags:
  --config <path>      Path to config.yaml (or LOOM_CONFIG)
  --timeout <dur>      Request timeout (default 30s)
  --json               JSON output

Commands:
  catalog                                  List registered skills
  route -m <message> [--limit N] [--min-score S] [--tag T]
  build [-m <message> | -s <skill,...>] [--extra <text>]
  index -s <skill> [--all]                 Chunk and embed skill references
  search -q <query> [-s <skill>] [--vector] [--limit N]
  status [-s <skill>]                      Reference store counts
  validate --schema <file> --input <file> [--plausibility]
  new-skill <id> [--name <text>] [--description <text>] [--tag T]
  watch                                    Reload the catalog on skill changes
  version`)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func getenv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

type multiFlag []string

func (m *multiFlag) String() string {
	return strings.Join(*m, ",")
}

func (m *multiFlag) Set(value string) error {
	*m = append(*m, value)
	return nil
}
