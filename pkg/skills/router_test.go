package skills

import (
	"testing"
)

func routerFixture(t *testing.T) (*Registry, *Router) {
	t.Helper()
	root := t.TempDir()
	writeSkill(t, root, "finance-research", `
id: finance-research
description: Research stocks and company fundamentals.
tags: [finance, stocks]
match_terms: [nvidia, earnings, stock]
`, "body")
	writeSkill(t, root, "market-news", `
id: market-news
description: Summarize market headlines.
tags: [earnings, news]
match_terms: [headline]
`, "body")
	writeSkill(t, root, "web-search", `
id: web-search
description: General web lookups.
tags: [web]
match_terms: [search, lookup]
`, "body")

	reg, err := NewRegistry(root)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return reg, NewRouter(reg, DefaultWeights())
}

func TestRouteNvidiaEarningsScenario(t *testing.T) {
	_, router := routerFixture(t)

	got := router.Route("Show me NVIDIA earnings", RouteOptions{Limit: 5, MinScore: 0.5})
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d: %+v", len(got), got)
	}
	// Two exact term hits at weight 1.0 each.
	if got[0].Skill.ID != "finance-research" || got[0].Score < 1.0 {
		t.Fatalf("expected finance-research with score >= 1.0 first, got %s (%.2f)",
			got[0].Skill.ID, got[0].Score)
	}
	// market-news matches only its "earnings" tag.
	if got[1].Skill.ID != "market-news" || got[1].Score >= got[0].Score {
		t.Fatalf("expected market-news ranked below, got %s (%.2f)",
			got[1].Skill.ID, got[1].Score)
	}
	if len(got[0].MatchedTerms) != 2 {
		t.Fatalf("expected matched terms [nvidia earnings], got %v", got[0].MatchedTerms)
	}
}

func TestRouteScoresNonIncreasing(t *testing.T) {
	_, router := routerFixture(t)

	got := router.Route("nvidia earnings stock headline search", RouteOptions{Limit: 10})
	for i := 1; i < len(got); i++ {
		if got[i].Score > got[i-1].Score {
			t.Fatalf("scores not non-increasing at %d: %+v", i, got)
		}
	}
}

func TestRouteMinScoreExcludes(t *testing.T) {
	_, router := routerFixture(t)

	got := router.Route("Show me NVIDIA earnings", RouteOptions{Limit: 5, MinScore: 1.0})
	if len(got) != 1 || got[0].Skill.ID != "finance-research" {
		t.Fatalf("expected only finance-research above 1.0, got %+v", got)
	}
	for _, c := range got {
		if c.Score < 1.0 {
			t.Fatalf("candidate below min_score returned: %+v", c)
		}
	}
}

func TestRouteTagFilterIsHard(t *testing.T) {
	_, router := routerFixture(t)

	got := router.Route("nvidia earnings search", RouteOptions{Limit: 10, Tags: []string{"web"}})
	if len(got) != 1 || got[0].Skill.ID != "web-search" {
		t.Fatalf("expected only web-tagged skills, got %+v", got)
	}
}

func TestRoutePartialMatchCredit(t *testing.T) {
	_, router := routerFixture(t)

	// "stocks" is not an exact hit for term "stock" but contains it.
	got := router.Route("comparing stocks", RouteOptions{Limit: 5, MinScore: 0.1})
	found := false
	for _, c := range got {
		if c.Skill.ID == "finance-research" {
			found = true
			// One partial term hit plus one tag hit ("stocks").
			want := DefaultWeights().Partial + DefaultWeights().Tag
			if diff := c.Score - want; diff > 1e-9 || diff < -1e-9 {
				t.Fatalf("expected score %.2f, got %.2f", want, c.Score)
			}
		}
	}
	if !found {
		t.Fatalf("expected partial match for finance-research, got %+v", got)
	}
}

func TestRouteEdgeCases(t *testing.T) {
	_, router := routerFixture(t)

	if got := router.Route("", RouteOptions{Limit: 5}); got != nil {
		t.Fatalf("empty message should route nowhere, got %+v", got)
	}
	if got := router.Route("nvidia", RouteOptions{Limit: 0}); got != nil {
		t.Fatalf("limit 0 should return nothing, got %+v", got)
	}
	if got := router.Route("nvidia", RouteOptions{Limit: -1}); got != nil {
		t.Fatalf("negative limit should return nothing, got %+v", got)
	}
	if got := router.Route("quantum entanglement", RouteOptions{Limit: 5}); len(got) != 0 {
		t.Fatalf("zero-score skills must be excluded, got %+v", got)
	}
}

func TestRouteEmptyRegistry(t *testing.T) {
	reg, err := NewRegistry(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	router := NewRouter(reg, DefaultWeights())
	if got := router.Route("nvidia", RouteOptions{Limit: 5}); len(got) != 0 {
		t.Fatalf("expected no candidates from empty registry, got %+v", got)
	}
}

func TestRouteTieBreakRegistrationOrder(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "aaa-skill", "id: aaa-skill\ndescription: d\nmatch_terms: [shared]\n", "body")
	writeSkill(t, root, "bbb-skill", "id: bbb-skill\ndescription: d\nmatch_terms: [shared]\n", "body")

	reg, err := NewRegistry(root)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	router := NewRouter(reg, DefaultWeights())

	got := router.Route("shared", RouteOptions{Limit: 5})
	if len(got) != 2 || got[0].Skill.ID != "aaa-skill" || got[1].Skill.ID != "bbb-skill" {
		t.Fatalf("expected registration-order tie break, got %+v", got)
	}
}

func TestRouteLimitTruncates(t *testing.T) {
	_, router := routerFixture(t)

	got := router.Route("nvidia earnings headline search", RouteOptions{Limit: 1})
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(got))
	}
	if got[0].Skill.ID != "finance-research" {
		t.Fatalf("expected top candidate to survive truncation, got %s", got[0].Skill.ID)
	}
}
