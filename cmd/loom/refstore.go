// Copyright 2026 © The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/loomlabs/loom/pkg/refstore"
	"github.com/loomlabs/loom/pkg/skills"
)

type indexResult struct {
	SkillID  string                  `json:"skill_id"`
	Indexed  int                     `json:"indexed"`
	Skipped  int                     `json:"skipped"`
	Failed   int                     `json:"failed"`
	Failures []refstore.ChunkFailure `json:"failures,omitempty"`
}

func runIndex(ctx context.Context, app *app, args []string) {
	cmd := flag.NewFlagSet("index", flag.ExitOnError)
	skillID := cmd.String("s", "", "Skill id to index")
	all := cmd.Bool("all", false, "Index every skill in the catalog")
	if err := cmd.Parse(args); err != nil {
		fatal(err)
	}
	if *skillID == "" && !*all {
		fatal(fmt.Errorf("usage: loom index -s <skill> | loom index --all"))
	}

	registry := app.loadRegistry()
	var targets []*skills.Descriptor
	if *all {
		targets = registry.List()
	} else {
		d, err := registry.Get(*skillID)
		if err != nil {
			NewSkillsError(err, app.cfg.Skills.Root).PrintError(app.global.JSON)
			os.Exit(1)
		}
		targets = []*skills.Descriptor{d}
	}

	ctx, cancel := context.WithTimeout(ctx, app.global.Timeout)
	defer cancel()
	store := app.loadStore(ctx)

	var results []indexResult
	for _, d := range targets {
		report, err := store.EmbedReferences(ctx, d.ID, d.References,
			app.cfg.RefStore.ChunkSize, app.cfg.RefStore.ChunkOverlap)
		if err != nil {
			NewRefStoreError(err).PrintError(app.global.JSON)
			os.Exit(1)
		}
		results = append(results, indexResult{
			SkillID:  d.ID,
			Indexed:  report.Indexed,
			Skipped:  report.Skipped,
			Failed:   report.Failed,
			Failures: report.Failures,
		})
	}

	if app.global.JSON {
		printJSON(results)
		return
	}
	writer := newTabWriter()
	writeRow(writer, "SKILL", "INDEXED", "SKIPPED", "FAILED")
	for _, r := range results {
		writeRow(writer, r.SkillID,
			strconv.Itoa(r.Indexed), strconv.Itoa(r.Skipped), strconv.Itoa(r.Failed))
	}
	_ = writer.Flush()
	for _, r := range results {
		for _, f := range r.Failures {
			fmt.Printf("failed: %s %s[%d]: %s\n", r.SkillID, f.SourcePath, f.Index, f.Reason)
		}
	}
}

type searchEntry struct {
	SkillID    string  `json:"skill_id"`
	SourcePath string  `json:"source_path"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float64 `json:"score"`
	Mode       string  `json:"mode"`
	Content    string  `json:"content"`
}

func runSearch(ctx context.Context, app *app, args []string) {
	cmd := flag.NewFlagSet("search", flag.ExitOnError)
	query := cmd.String("q", "", "Search query (required)")
	skillID := cmd.String("s", "", "Restrict to one skill")
	vector := cmd.Bool("vector", false, "Use embedding similarity instead of keywords")
	limit := cmd.Int("limit", 5, "Max results")
	if err := cmd.Parse(args); err != nil {
		fatal(err)
	}
	if strings.TrimSpace(*query) == "" {
		fatal(fmt.Errorf("usage: loom search -q <query> [-s <skill>] [--vector]"))
	}

	mode := refstore.ModeKeyword
	if *vector {
		mode = refstore.ModeVector
	}

	ctx, cancel := context.WithTimeout(ctx, app.global.Timeout)
	defer cancel()

	results, err := app.loadStore(ctx).Search(ctx, *query, refstore.SearchOptions{
		SkillID: *skillID,
		Limit:   *limit,
		Mode:    mode,
	})
	if err != nil {
		NewRefStoreError(err).PrintError(app.global.JSON)
		os.Exit(1)
	}

	if app.global.JSON {
		entries := make([]searchEntry, 0, len(results))
		for _, r := range results {
			entries = append(entries, searchEntry{
				SkillID:    r.Chunk.SkillID,
				SourcePath: r.Chunk.SourcePath,
				ChunkIndex: r.Chunk.Index,
				Score:      r.Score,
				Mode:       string(r.Mode),
				Content:    r.Chunk.Content,
			})
		}
		printJSON(entries)
		return
	}

	if len(results) == 0 {
		fmt.Println("no matching chunks")
		return
	}
	writer := newTabWriter()
	writeRow(writer, "SKILL", "SOURCE", "CHUNK", "SCORE", "CONTENT")
	for _, r := range results {
		writeRow(writer,
			r.Chunk.SkillID,
			r.Chunk.SourcePath,
			strconv.Itoa(r.Chunk.Index),
			fmt.Sprintf("%.3f", r.Score),
			truncateCell(r.Chunk.Content, 80),
		)
	}
	_ = writer.Flush()
}

func runStatus(ctx context.Context, app *app, args []string) {
	cmd := flag.NewFlagSet("status", flag.ExitOnError)
	skillID := cmd.String("s", "", "Skill id (empty for all skills)")
	if err := cmd.Parse(args); err != nil {
		fatal(err)
	}

	ctx, cancel := context.WithTimeout(ctx, app.global.Timeout)
	defer cancel()

	var targets []string
	if *skillID != "" {
		targets = []string{*skillID}
	} else {
		for _, d := range app.loadRegistry().List() {
			targets = append(targets, d.ID)
		}
	}

	store := app.loadStore(ctx)
	var statuses []refstore.Status
	for _, id := range targets {
		status, err := store.StatusFor(ctx, id)
		if err != nil {
			NewRefStoreError(err).PrintError(app.global.JSON)
			os.Exit(1)
		}
		statuses = append(statuses, status)
	}

	if app.global.JSON {
		printJSON(statuses)
		return
	}
	writer := newTabWriter()
	writeRow(writer, "SKILL", "SOURCES", "CHUNKS", "EMBEDDED")
	for _, s := range statuses {
		writeRow(writer, s.SkillID,
			strconv.Itoa(s.Sources), strconv.Itoa(s.Chunks), strconv.Itoa(s.Embedded))
	}
	_ = writer.Flush()
}
