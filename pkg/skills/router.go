// Copyright 2026 © The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package skills

import (
	"regexp"
	"sort"
	"strings"
)

// Weights controls the router's scoring heuristic. The values are tunable
// configuration, not a contract; the defaults favor exact keyword hits over
// tag overlap over partial matches.
type Weights struct {
	ExactTerm float64
	Tag       float64
	Partial   float64
}

// DefaultWeights are the stock router weights.
func DefaultWeights() Weights {
	return Weights{ExactTerm: 1.0, Tag: 0.5, Partial: 0.25}
}

// RouteOptions bounds a routing call.
type RouteOptions struct {
	// Limit caps the number of candidates returned. Zero or negative means
	// no candidates.
	Limit int

	// MinScore excludes skills scoring below it. Zero-score skills are
	// excluded regardless.
	MinScore float64

	// Tags, when non-empty, is a hard pre-filter: only skills whose tag set
	// intersects it are scored at all.
	Tags []string
}

// Candidate pairs a descriptor with its relevance score for one message.
type Candidate struct {
	Skill        *Descriptor
	Score        float64
	MatchedTerms []string
	MatchedTags  []string
}

// Router scores registry skills against incoming messages. It never mutates
// the registry and operates on a single catalog snapshot per call, so it is
// safe to use concurrently with reloads.
type Router struct {
	registry *Registry
	weights  Weights
}

// NewRouter creates a router over the registry with the given weights.
func NewRouter(registry *Registry, weights Weights) *Router {
	if weights == (Weights{}) {
		weights = DefaultWeights()
	}
	return &Router{registry: registry, weights: weights}
}

// Route returns up to opts.Limit candidates ordered by descending score.
// Ties keep registration order. An empty message, an empty registry, or a
// non-positive limit yield no candidates.
func (r *Router) Route(message string, opts RouteOptions) []Candidate {
	if strings.TrimSpace(message) == "" || opts.Limit <= 0 {
		return nil
	}

	normalized := strings.ToLower(message)
	tokens := tokenize(normalized)
	if len(tokens) == 0 {
		return nil
	}
	tokenSet := make(map[string]bool, len(tokens))
	for _, tok := range tokens {
		tokenSet[tok] = true
	}

	var filter map[string]bool
	if len(opts.Tags) > 0 {
		filter = make(map[string]bool, len(opts.Tags))
		for _, tag := range opts.Tags {
			filter[strings.ToLower(strings.TrimSpace(tag))] = true
		}
	}

	snap := r.registry.current()
	candidates := make([]Candidate, 0, len(snap.ordered))
	for _, d := range snap.ordered {
		if filter != nil && !tagsIntersect(d.Tags, filter) {
			continue
		}
		c := r.score(d, normalized, tokenSet)
		if c.Score <= 0 || c.Score < opts.MinScore {
			continue
		}
		candidates = append(candidates, c)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if len(candidates) > opts.Limit {
		candidates = candidates[:opts.Limit]
	}
	return candidates
}

func (r *Router) score(d *Descriptor, normalized string, tokenSet map[string]bool) Candidate {
	c := Candidate{Skill: d}

	for _, term := range d.MatchTerms {
		switch {
		case tokenSet[term]:
			c.Score += r.weights.ExactTerm
			c.MatchedTerms = append(c.MatchedTerms, term)
		case strings.Contains(term, " ") && strings.Contains(normalized, term):
			// Multi-word terms match as message substrings.
			c.Score += r.weights.ExactTerm
			c.MatchedTerms = append(c.MatchedTerms, term)
		case partialMatch(term, tokenSet):
			c.Score += r.weights.Partial
			c.MatchedTerms = append(c.MatchedTerms, term)
		}
	}

	for _, tag := range d.Tags {
		if tokenSet[strings.ToLower(tag)] {
			c.Score += r.weights.Tag
			c.MatchedTags = append(c.MatchedTags, tag)
		}
	}

	return c
}

// partialMatch grants credit when a match term appears as a substring of a
// message token (inflections, compounds). Very short terms are skipped to
// avoid noise.
func partialMatch(term string, tokenSet map[string]bool) bool {
	if len(term) < 3 {
		return false
	}
	for tok := range tokenSet {
		if len(tok) > len(term) && strings.Contains(tok, term) {
			return true
		}
	}
	return false
}

func tagsIntersect(tags []string, filter map[string]bool) bool {
	for _, tag := range tags {
		if filter[strings.ToLower(tag)] {
			return true
		}
	}
	return false
}

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}-]+`)

// tokenize splits on non-alphanumeric boundaries, keeping hyphens inside
// tokens.
func tokenize(text string) []string {
	return tokenPattern.FindAllString(text, -1)
}
