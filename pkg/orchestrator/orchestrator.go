// Copyright 2026 © The Loom Authors
// SPDX-License-Identifier: Apache-2.0

// Package orchestrator assembles execution contexts from skill selections.
//
// An execution context is everything an agent turn needs from the catalog:
// composed instructions, the deduplicated tool set, and the reference
// document paths of the selected skills. Skills are selected either
// explicitly by id or by routing a user message through the skill router.
package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/loomlabs/loom/pkg/core"
	"github.com/loomlabs/loom/pkg/errors"
	"github.com/loomlabs/loom/pkg/skills"
	"github.com/loomlabs/loom/pkg/telemetry"
)

// Baseline is the skill-independent part of every execution context: shared
// instructions prepended to skill instructions, and tools available to every
// turn regardless of selection.
type Baseline struct {
	Instructions string
	Tools        []core.Tool
}

// BuildRequest selects skills for one context. When SkillIDs is non-empty
// the selection is explicit and Message is ignored; otherwise Message is
// routed. Extra, when set, is appended after all skill instructions.
type BuildRequest struct {
	SkillIDs []string
	Message  string
	Limit    int
	MinScore float64
	Tags     []string
	Extra    string
}

// ExecutionContext is the assembled result. It is a value: callers may hold
// it for the duration of a turn without synchronization, and the
// orchestrator never mutates one after returning it.
type ExecutionContext struct {
	// Skills, in selection order.
	Skills []*skills.Descriptor

	// Instructions is the composed text: baseline, then each skill's
	// instructions in selection order, then Extra, separated by blank lines.
	Instructions string

	// Tools is the deduplicated tool set. Baseline tools come first; for a
	// name claimed more than once, the first occurrence wins.
	Tools []core.Tool

	// References holds the selected skills' reference document paths in
	// selection order. Paths only; content stays on disk until a search
	// pulls the relevant chunks in.
	References []string

	// Candidates carries the router's scoring when the selection was
	// routed, for display and audit. Empty for explicit selections.
	Candidates []skills.Candidate
}

// Orchestrator builds execution contexts over a skill registry. A nil tool
// source is allowed as long as no selected skill declares tools.
type Orchestrator struct {
	registry *skills.Registry
	router   *skills.Router
	baseline Baseline
	tools    core.ToolSource
	tracer   trace.Tracer
	metrics  *telemetry.CoreMetrics
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithToolSource lets skills declare tools by name; the source resolves them
// at build time. A declared name the source cannot resolve fails the build.
func WithToolSource(source core.ToolSource) Option {
	return func(o *Orchestrator) { o.tools = source }
}

// WithMetrics records routing outcomes on the given instruments.
func WithMetrics(m *telemetry.CoreMetrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// New creates an orchestrator over the registry and router.
func New(registry *skills.Registry, router *skills.Router, baseline Baseline, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry: registry,
		router:   router,
		baseline: baseline,
		tracer:   otel.Tracer("loom/orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Catalog returns the registry's current skill list, in registration order.
func (o *Orchestrator) Catalog() []*skills.Descriptor {
	return o.registry.List()
}

// Build assembles an execution context for the request. An explicit
// selection naming an unknown skill fails with NOT_FOUND; a routed request
// that matches nothing yields a baseline-only context, which is valid.
func (o *Orchestrator) Build(ctx context.Context, req BuildRequest) (ExecutionContext, error) {
	ctx, span := o.tracer.Start(ctx, "Orchestrator.Build")
	defer span.End()

	var ec ExecutionContext

	if len(req.SkillIDs) > 0 {
		for _, id := range req.SkillIDs {
			d, err := o.registry.Get(id)
			if err != nil {
				return ExecutionContext{}, err
			}
			span.AddEvent("skill.selected", trace.WithAttributes(telemetry.SkillAttrs(d.ID, d.Version)...))
			ec.Skills = append(ec.Skills, d)
		}
	} else {
		candidates := o.router.Route(req.Message, skills.RouteOptions{
			Limit:    req.Limit,
			MinScore: req.MinScore,
			Tags:     req.Tags,
		})
		topScore := 0.0
		if len(candidates) > 0 {
			topScore = candidates[0].Score
		}
		span.SetAttributes(telemetry.RouteAttrs(len(req.Message), req.Limit, len(candidates), topScore)...)
		o.metrics.RecordRoute(ctx, len(candidates))
		ec.Candidates = candidates
		for _, c := range candidates {
			ec.Skills = append(ec.Skills, c.Skill)
		}
	}
	span.SetAttributes(attribute.Int(telemetry.AttrSkillCount, len(ec.Skills)))

	ec.Instructions = o.composeInstructions(ec.Skills, req.Extra)

	tools, err := o.collectTools(ctx, ec.Skills)
	if err != nil {
		return ExecutionContext{}, err
	}
	ec.Tools = tools

	for _, d := range ec.Skills {
		ec.References = append(ec.References, d.References...)
	}
	return ec, nil
}

func (o *Orchestrator) composeInstructions(selected []*skills.Descriptor, extra string) string {
	sections := make([]string, 0, len(selected)+2)
	if s := strings.TrimSpace(o.baseline.Instructions); s != "" {
		sections = append(sections, s)
	}
	for _, d := range selected {
		if d.Instructions != "" {
			sections = append(sections, d.Instructions)
		}
	}
	if s := strings.TrimSpace(extra); s != "" {
		sections = append(sections, s)
	}
	return strings.Join(sections, "\n\n")
}

// collectTools merges baseline tools with each selected skill's declared
// tools, resolved through the tool source. Duplicate names keep the first
// occurrence.
func (o *Orchestrator) collectTools(ctx context.Context, selected []*skills.Descriptor) ([]core.Tool, error) {
	seen := make(map[string]bool, len(o.baseline.Tools))
	var out []core.Tool
	for _, t := range o.baseline.Tools {
		if seen[t.Name()] {
			continue
		}
		seen[t.Name()] = true
		out = append(out, t)
	}

	for _, d := range selected {
		for _, name := range d.Tools {
			if seen[name] {
				continue
			}
			if o.tools == nil {
				return nil, errors.Newf(errors.CodeNotFound,
					"skill %q declares tool %q but no tool source is configured", d.ID, name)
			}
			tool, err := o.tools.Resolve(ctx, name)
			if err != nil {
				return nil, errors.New(errors.CodeNotFound,
					fmt.Sprintf("skill %q: resolve tool %q", d.ID, name), err)
			}
			seen[name] = true
			out = append(out, tool)
		}
	}
	return out, nil
}
