package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/loomlabs/loom/pkg/core"
	"github.com/loomlabs/loom/pkg/errors"
	"github.com/loomlabs/loom/pkg/skills"
)

func writeSkill(t *testing.T, root, id, manifest, instructions string, refs map[string]string) {
	t.Helper()
	dir := filepath.Join(root, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "skill.yaml"), []byte(manifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte(instructions), 0o644); err != nil {
		t.Fatalf("write instructions: %v", err)
	}
	for name, content := range refs {
		path := filepath.Join(dir, "refs", name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir refs: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write ref: %v", err)
		}
	}
}

func newFixtureOrchestrator(t *testing.T, baseline Baseline, opts ...Option) *Orchestrator {
	t.Helper()
	root := t.TempDir()
	writeSkill(t, root, "finance-research", `
id: finance-research
description: Analyze company financials and earnings.
tags: [finance]
match_terms: [earnings, valuation]
tools: [fetch-filings, summarize]
`, "Use primary filings before commentary.", map[string]string{
		"valuation.md": "discounted cash flow notes",
	})
	writeSkill(t, root, "web-search", `
id: web-search
description: Search the public web for current information.
tags: [research]
match_terms: [search, news]
tools: [summarize, http-get]
`, "Prefer recent sources and cite URLs.", nil)
	writeSkill(t, root, "plain-notes", `
id: plain-notes
description: Append notes to the scratchpad.
match_terms: [notes]
`, "Keep notes short.", nil)

	registry, err := skills.NewRegistry(root)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	router := skills.NewRouter(registry, skills.DefaultWeights())
	return New(registry, router, baseline, opts...)
}

// mapToolSource resolves from a fixed map and counts resolutions per name.
type mapToolSource struct {
	tools    map[string]core.Tool
	resolved map[string]int
}

func newMapToolSource(names ...string) *mapToolSource {
	src := &mapToolSource{tools: make(map[string]core.Tool), resolved: make(map[string]int)}
	for _, name := range names {
		name := name
		src.tools[name] = core.ToolFunc{ToolName: name, Fn: func(ctx context.Context, input any) (any, error) {
			return name, nil
		}}
	}
	return src
}

func (s *mapToolSource) Resolve(_ context.Context, name string) (core.Tool, error) {
	s.resolved[name]++
	tool, ok := s.tools[name]
	if !ok {
		return nil, fmt.Errorf("no such tool %q", name)
	}
	return tool, nil
}

func toolNames(tools []core.Tool) []string {
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name()
	}
	return names
}

func TestBuildExplicitSelection(t *testing.T) {
	src := newMapToolSource("fetch-filings", "summarize", "http-get")
	o := newFixtureOrchestrator(t, Baseline{Instructions: "You are a careful analyst."}, WithToolSource(src))

	ec, err := o.Build(context.Background(), BuildRequest{
		SkillIDs: []string{"web-search", "finance-research"},
		Extra:    "Answer in one paragraph.",
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if len(ec.Skills) != 2 || ec.Skills[0].ID != "web-search" || ec.Skills[1].ID != "finance-research" {
		t.Fatalf("selection order not preserved: %v", ec.Skills)
	}
	want := "You are a careful analyst.\n\n" +
		"Prefer recent sources and cite URLs.\n\n" +
		"Use primary filings before commentary.\n\n" +
		"Answer in one paragraph."
	if ec.Instructions != want {
		t.Fatalf("instructions composed wrong:\n%q", ec.Instructions)
	}
	if len(ec.Candidates) != 0 {
		t.Fatalf("explicit selection should carry no candidates: %v", ec.Candidates)
	}
	if len(ec.References) != 1 || filepath.Base(ec.References[0]) != "valuation.md" {
		t.Fatalf("unexpected references: %v", ec.References)
	}
}

func TestBuildUnknownSkill(t *testing.T) {
	o := newFixtureOrchestrator(t, Baseline{})
	_, err := o.Build(context.Background(), BuildRequest{SkillIDs: []string{"no-such-skill"}})
	if !errors.HasCode(err, errors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestBuildRouted(t *testing.T) {
	src := newMapToolSource("fetch-filings", "summarize", "http-get")
	o := newFixtureOrchestrator(t, Baseline{Instructions: "Baseline."}, WithToolSource(src))

	ec, err := o.Build(context.Background(), BuildRequest{
		Message: "walk me through the earnings valuation",
		Limit:   3,
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(ec.Skills) != 1 || ec.Skills[0].ID != "finance-research" {
		t.Fatalf("expected routed selection of finance-research, got %v", ec.Skills)
	}
	if len(ec.Candidates) != 1 || ec.Candidates[0].Score <= 0 {
		t.Fatalf("candidates not carried: %v", ec.Candidates)
	}
	if !strings.Contains(ec.Instructions, "primary filings") {
		t.Fatalf("skill instructions missing:\n%q", ec.Instructions)
	}
}

func TestBuildNoMatchYieldsBaseline(t *testing.T) {
	shared := core.ToolFunc{ToolName: "scratchpad", Fn: func(ctx context.Context, input any) (any, error) { return nil, nil }}
	o := newFixtureOrchestrator(t, Baseline{Instructions: "Baseline only.", Tools: []core.Tool{shared}})

	ec, err := o.Build(context.Background(), BuildRequest{Message: "completely unrelated request", Limit: 3})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(ec.Skills) != 0 {
		t.Fatalf("expected no skills, got %v", ec.Skills)
	}
	if ec.Instructions != "Baseline only." {
		t.Fatalf("expected baseline instructions, got %q", ec.Instructions)
	}
	if names := toolNames(ec.Tools); len(names) != 1 || names[0] != "scratchpad" {
		t.Fatalf("expected baseline tools only, got %v", names)
	}
}

func TestBuildDeduplicatesSharedTools(t *testing.T) {
	src := newMapToolSource("fetch-filings", "summarize", "http-get")
	o := newFixtureOrchestrator(t, Baseline{}, WithToolSource(src))

	// Both skills declare "summarize"; it must appear once and be resolved once.
	ec, err := o.Build(context.Background(), BuildRequest{
		SkillIDs: []string{"finance-research", "web-search"},
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	names := toolNames(ec.Tools)
	wantNames := []string{"fetch-filings", "summarize", "http-get"}
	if len(names) != len(wantNames) {
		t.Fatalf("expected %v, got %v", wantNames, names)
	}
	for i := range wantNames {
		if names[i] != wantNames[i] {
			t.Fatalf("expected %v, got %v", wantNames, names)
		}
	}
	if src.resolved["summarize"] != 1 {
		t.Fatalf("shared tool resolved %d times", src.resolved["summarize"])
	}
}

func TestBuildBaselineToolShadowsSkillTool(t *testing.T) {
	baseline := core.ToolFunc{ToolName: "summarize", Fn: func(ctx context.Context, input any) (any, error) { return "baseline", nil }}
	src := newMapToolSource("fetch-filings", "summarize")
	o := newFixtureOrchestrator(t, Baseline{Tools: []core.Tool{baseline}}, WithToolSource(src))

	ec, err := o.Build(context.Background(), BuildRequest{SkillIDs: []string{"finance-research"}})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if src.resolved["summarize"] != 0 {
		t.Fatalf("baseline tool should shadow the skill's declaration")
	}
	got, _ := ec.Tools[0].Call(context.Background(), nil)
	if got != "baseline" {
		t.Fatalf("first occurrence must win, got %v", got)
	}
}

func TestBuildUnresolvableTool(t *testing.T) {
	src := newMapToolSource("summarize") // fetch-filings missing
	o := newFixtureOrchestrator(t, Baseline{}, WithToolSource(src))

	_, err := o.Build(context.Background(), BuildRequest{SkillIDs: []string{"finance-research"}})
	if !errors.HasCode(err, errors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND for unresolvable tool, got %v", err)
	}
}

func TestBuildToolsWithoutSource(t *testing.T) {
	o := newFixtureOrchestrator(t, Baseline{})

	// plain-notes declares no tools, so a nil source is fine.
	if _, err := o.Build(context.Background(), BuildRequest{SkillIDs: []string{"plain-notes"}}); err != nil {
		t.Fatalf("build without tools: %v", err)
	}
	// finance-research declares tools; without a source that is an error.
	_, err := o.Build(context.Background(), BuildRequest{SkillIDs: []string{"finance-research"}})
	if !errors.HasCode(err, errors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND without a tool source, got %v", err)
	}
}

func TestCatalog(t *testing.T) {
	o := newFixtureOrchestrator(t, Baseline{})
	catalog := o.Catalog()
	if len(catalog) != 3 {
		t.Fatalf("expected 3 skills, got %d", len(catalog))
	}
	if catalog[0].ID != "finance-research" {
		t.Fatalf("catalog order should follow registration, got %s first", catalog[0].ID)
	}
}
