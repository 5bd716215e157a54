// Copyright 2026 © The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// PlausibilityStatus tags the outcome of the heuristic content check.
type PlausibilityStatus string

const (
	PlausibilityValid         PlausibilityStatus = "valid"
	PlausibilitySuspect       PlausibilityStatus = "suspect"
	PlausibilityContradictory PlausibilityStatus = "contradictory"
	PlausibilityUnverified    PlausibilityStatus = "unverified"
)

// PlausibilityReport scores a response's content plausibility. It is
// advisory only: callers report it alongside the validation outcome, and it
// never changes the loop's terminal state.
type PlausibilityReport struct {
	Status     PlausibilityStatus `json:"status"`
	Confidence float64            `json:"confidence"`
	Indicators []string           `json:"indicators,omitempty"`
}

var (
	percentPattern  = regexp.MustCompile(`\d+(\.\d+)?%`)
	yearPattern     = regexp.MustCompile(`\b\d{4}\b`)
	preciseNumber   = regexp.MustCompile(`\d{3,}(?:,\d{3})*(?:\.\d+)?`)
	citationPattern = regexp.MustCompile(`\(.*?\s+et al\.?,?\s+\d{4}\)`)
	urlPattern      = regexp.MustCompile(`https?://\S+|www\.\S+`)
)

var hedgingWords = []string{"may", "might", "possibly", "likely", "probably", "appears"}

// Plausibility runs fast pattern heuristics over response text: unsourced
// statistics, date and number density, citation formats, conflicting
// absolutes, missing hedging, and embedded URLs. The confidence lands in
// [0,1]; more indicators mean less confidence.
func Plausibility(text string) PlausibilityReport {
	lower := strings.ToLower(text)
	var indicators []string
	conflicting := false

	if percentPattern.MatchString(text) && !strings.Contains(lower, "according to") {
		indicators = append(indicators, "unsourced statistics")
	}
	if len(yearPattern.FindAllString(text, -1)) > 3 {
		indicators = append(indicators, "multiple specific dates without clear sourcing")
	}
	if len(preciseNumber.FindAllString(text, -1)) > 2 && !strings.Contains(lower, "approximately") {
		indicators = append(indicators, "overly precise numbers without qualification")
	}
	if citationPattern.MatchString(text) {
		indicators = append(indicators, "academic citation format needs verification")
	}

	words := strings.Fields(lower)
	wordSet := make(map[string]bool, len(words))
	for _, w := range words {
		wordSet[strings.Trim(w, ".,;:!?")] = true
	}
	if wordSet["always"] && wordSet["never"] {
		conflicting = true
		indicators = append(indicators, "conflicting absolute statements")
	}

	hedged := false
	for _, h := range hedgingWords {
		if wordSet[h] {
			hedged = true
			break
		}
	}
	if !hedged && len(words) > 50 {
		indicators = append(indicators, "lacks hedging language for uncertain statements")
	}

	if urls := urlPattern.FindAllString(text, -1); len(urls) > 0 {
		indicators = append(indicators, fmt.Sprintf("contains %d URL(s) needing verification", len(urls)))
	}

	sourced := strings.Contains(lower, "according to")

	report := PlausibilityReport{Indicators: indicators}
	switch {
	case conflicting:
		report.Status = PlausibilityContradictory
		report.Confidence = 0.3
	case len(indicators) >= 3:
		report.Status = PlausibilitySuspect
		report.Confidence = 0.3
	case len(indicators) >= 1:
		report.Status = PlausibilitySuspect
		report.Confidence = 0.6
	case hedged || sourced:
		report.Status = PlausibilityValid
		report.Confidence = 0.85
	default:
		report.Status = PlausibilityUnverified
		report.Confidence = 0.7
	}
	return report
}
