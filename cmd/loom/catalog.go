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

	"github.com/loomlabs/loom/pkg/orchestrator"
	"github.com/loomlabs/loom/pkg/skills"
)

type catalogEntry struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Version     string   `json:"version,omitempty"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
	Tools       []string `json:"tools,omitempty"`
	References  int      `json:"references"`
}

func runCatalog(app *app, args []string) {
	cmd := flag.NewFlagSet("catalog", flag.ExitOnError)
	if err := cmd.Parse(args); err != nil {
		fatal(err)
	}

	catalog := app.loadRegistry().List()

	if app.global.JSON {
		entries := make([]catalogEntry, 0, len(catalog))
		for _, d := range catalog {
			entries = append(entries, catalogEntry{
				ID:          d.ID,
				Name:        d.Name,
				Version:     d.Version,
				Description: d.Description,
				Tags:        d.Tags,
				Tools:       d.Tools,
				References:  len(d.References),
			})
		}
		printJSON(entries)
		return
	}

	writer := newTabWriter()
	writeRow(writer, "ID", "VERSION", "TAGS", "TOOLS", "REFS", "DESCRIPTION")
	for _, d := range catalog {
		writeRow(writer,
			d.ID,
			d.Version,
			strings.Join(d.Tags, ","),
			strings.Join(d.Tools, ","),
			strconv.Itoa(len(d.References)),
			truncateCell(d.Description, 60),
		)
	}
	_ = writer.Flush()
}

type routeEntry struct {
	SkillID      string   `json:"skill_id"`
	Score        float64  `json:"score"`
	MatchedTerms []string `json:"matched_terms,omitempty"`
	MatchedTags  []string `json:"matched_tags,omitempty"`
}

func runRoute(ctx context.Context, app *app, args []string) {
	cmd := flag.NewFlagSet("route", flag.ExitOnError)
	message := cmd.String("m", "", "Message to route (required)")
	limit := cmd.Int("limit", 0, "Max candidates (default from config)")
	minScore := cmd.Float64("min-score", -1, "Score floor (default from config)")
	var tags multiFlag
	cmd.Var(&tags, "tag", "Hard tag filter (repeatable)")
	if err := cmd.Parse(args); err != nil {
		fatal(err)
	}
	if strings.TrimSpace(*message) == "" {
		fatal(fmt.Errorf("usage: loom route -m <message>"))
	}

	opts := skills.RouteOptions{
		Limit:    app.cfg.Router.Limit,
		MinScore: app.cfg.Router.MinScore,
		Tags:     tags,
	}
	if *limit > 0 {
		opts.Limit = *limit
	}
	if *minScore >= 0 {
		opts.MinScore = *minScore
	}

	candidates := app.loadRouter().Route(*message, opts)

	if app.global.JSON {
		entries := make([]routeEntry, 0, len(candidates))
		for _, c := range candidates {
			entries = append(entries, routeEntry{
				SkillID:      c.Skill.ID,
				Score:        c.Score,
				MatchedTerms: c.MatchedTerms,
				MatchedTags:  c.MatchedTags,
			})
		}
		printJSON(entries)
		return
	}

	if len(candidates) == 0 {
		fmt.Println("no matching skills")
		return
	}
	writer := newTabWriter()
	writeRow(writer, "SKILL", "SCORE", "TERMS", "TAGS")
	for _, c := range candidates {
		writeRow(writer,
			c.Skill.ID,
			fmt.Sprintf("%.2f", c.Score),
			strings.Join(c.MatchedTerms, ","),
			strings.Join(c.MatchedTags, ","),
		)
	}
	_ = writer.Flush()
}

type buildResult struct {
	Skills       []string     `json:"skills"`
	Tools        []string     `json:"tools"`
	References   []string     `json:"references"`
	Candidates   []routeEntry `json:"candidates,omitempty"`
	Instructions string       `json:"instructions"`
}

func runBuild(ctx context.Context, app *app, args []string) {
	cmd := flag.NewFlagSet("build", flag.ExitOnError)
	message := cmd.String("m", "", "Message to route skills for")
	skillIDs := cmd.String("s", "", "Comma-separated skill ids (bypasses routing)")
	extra := cmd.String("extra", "", "Extra instructions appended last")
	limit := cmd.Int("limit", 0, "Max routed candidates (default from config)")
	if err := cmd.Parse(args); err != nil {
		fatal(err)
	}
	if *message == "" && *skillIDs == "" {
		fatal(fmt.Errorf("usage: loom build [-m <message> | -s <skill,...>]"))
	}

	req := orchestratorRequest(app, *message, *skillIDs, *extra, *limit)

	ctx, cancel := context.WithTimeout(ctx, app.global.Timeout)
	defer cancel()

	ec, err := app.loadOrchestrator(ctx).Build(ctx, req)
	if err != nil {
		NewSkillsError(err, app.cfg.Skills.Root).PrintError(app.global.JSON)
		os.Exit(1)
	}

	result := buildResult{Instructions: ec.Instructions, References: ec.References}
	for _, d := range ec.Skills {
		result.Skills = append(result.Skills, d.ID)
	}
	for _, tool := range ec.Tools {
		result.Tools = append(result.Tools, tool.Name())
	}
	for _, c := range ec.Candidates {
		result.Candidates = append(result.Candidates, routeEntry{
			SkillID: c.Skill.ID,
			Score:   c.Score,
		})
	}

	if app.global.JSON {
		printJSON(result)
		return
	}

	fmt.Printf("skills: %s\n", strings.Join(result.Skills, ", "))
	fmt.Printf("tools: %s\n", strings.Join(result.Tools, ", "))
	fmt.Printf("references: %d\n", len(result.References))
	fmt.Println("--- instructions ---")
	fmt.Println(ec.Instructions)
}

func orchestratorRequest(app *app, message, skillIDs, extra string, limit int) orchestrator.BuildRequest {
	req := orchestrator.BuildRequest{
		Message:  message,
		Extra:    extra,
		Limit:    app.cfg.Router.Limit,
		MinScore: app.cfg.Router.MinScore,
	}
	if limit > 0 {
		req.Limit = limit
	}
	if skillIDs != "" {
		for _, id := range strings.Split(skillIDs, ",") {
			id = strings.TrimSpace(id)
			if id != "" {
				req.SkillIDs = append(req.SkillIDs, id)
			}
		}
	}
	return req
}
