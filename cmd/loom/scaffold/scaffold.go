// Copyright 2026 © The Loom Authors
// SPDX-License-Identifier: Apache-2.0

// Package scaffold generates skill directory skeletons.
package scaffold

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"text/template"
)

// Options configures skill generation.
type Options struct {
	ID          string
	Name        string
	Description string
	Tags        []string
	MatchTerms  []string
}

var idPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Generate creates a new skill directory at dir: the manifest, an
// instructions file, and an empty refs/ tree. An existing directory is
// never overwritten.
func Generate(dir string, opts Options) error {
	if !idPattern.MatchString(opts.ID) {
		return fmt.Errorf("skill id %q must be lowercase words separated by hyphens", opts.ID)
	}
	if opts.Name == "" {
		opts.Name = opts.ID
	}
	if opts.Description == "" {
		opts.Description = "Describe what this skill does."
	}

	if _, err := os.Stat(dir); err == nil {
		return fmt.Errorf("directory %s already exists", dir)
	}
	if err := os.MkdirAll(filepath.Join(dir, "refs"), 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	files := []fileSpec{
		{"skill.yaml", manifestTemplate},
		{"SKILL.md", instructionsTemplate},
		{filepath.Join("refs", "README.md"), refsReadmeTemplate},
	}
	for _, f := range files {
		if err := generateFile(dir, f, opts); err != nil {
			return fmt.Errorf("generating %s: %w", f.Path, err)
		}
		fmt.Printf("  Created: %s\n", filepath.Join(dir, f.Path))
	}
	return nil
}

type fileSpec struct {
	Path     string
	Template string
}

func generateFile(dir string, spec fileSpec, opts Options) error {
	tmpl, err := template.New(spec.Path).Parse(spec.Template)
	if err != nil {
		return fmt.Errorf("parsing template: %w", err)
	}

	f, err := os.Create(filepath.Join(dir, spec.Path))
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()

	return tmpl.Execute(f, opts)
}

const manifestTemplate = `id: {{.ID}}
name: {{.Name}}
description: {{.Description}}
version: 0.1.0
{{- if .Tags}}
tags:
{{- range .Tags}}
  - {{.}}
{{- end}}
{{- end}}
{{- if .MatchTerms}}
match_terms:
{{- range .MatchTerms}}
  - {{.}}
{{- end}}
{{- end}}
`

const instructionsTemplate = `# {{.Name}}

{{.Description}}

## Instructions

Write the guidance an agent should follow when this skill is selected:
the approach to take, tools to prefer, and output expectations.
`

const refsReadmeTemplate = `Reference documents for the {{.ID}} skill.

Files placed here are chunked and embedded by ` + "`loom index -s {{.ID}}`" + `
and become searchable with ` + "`loom search`" + `.
`
