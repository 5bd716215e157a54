// Copyright 2026 © The Loom Authors
// SPDX-License-Identifier: Apache-2.0

// Package skills loads skill definitions from disk and routes messages to
// the most relevant ones.
//
// A skill is a directory containing a skill.yaml manifest, an instructions
// markdown file (SKILL.md by default), and an optional refs/ tree of
// reference documents:
//
//	skills/
//	  finance-research/
//	    skill.yaml
//	    SKILL.md
//	    refs/
//	      valuation.md
package skills

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/loomlabs/loom/pkg/errors"
)

// Descriptor is an immutable, fully-loaded skill definition. Descriptors are
// built once per registry load and never mutated afterwards; a reload
// replaces the whole set.
type Descriptor struct {
	ID          string
	Name        string
	Description string
	Version     string
	Tags        []string
	MatchTerms  []string // lower-cased routing keywords
	Tools       []string // tool names resolved at context-build time
	Instructions string
	References  []string // reference document paths, sorted
	Dir         string
}

const (
	maxIDLen          = 64
	maxDescriptionLen = 1024
)

var idPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

type manifest struct {
	ID           string   `yaml:"id"`
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	Version      string   `yaml:"version"`
	Tags         []string `yaml:"tags"`
	MatchTerms   []string `yaml:"match_terms"`
	Tools        []string `yaml:"tools"`
	Instructions string   `yaml:"instructions"`
	Refs         string   `yaml:"refs"`
}

// loadDescriptor reads and validates one skill directory.
func loadDescriptor(dir string) (*Descriptor, error) {
	manifestPath := filepath.Join(dir, "skill.yaml")
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, errors.New(errors.CodeMalformedDefinition,
			fmt.Sprintf("read manifest %s", manifestPath), err)
	}

	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.New(errors.CodeMalformedDefinition,
			fmt.Sprintf("parse manifest %s", manifestPath), err)
	}

	if m.Instructions == "" {
		m.Instructions = "SKILL.md"
	}
	instructionsPath := filepath.Join(dir, m.Instructions)
	instructions, err := os.ReadFile(instructionsPath)
	if err != nil {
		return nil, errors.New(errors.CodeMalformedDefinition,
			fmt.Sprintf("skill %q: read instructions %s", m.ID, instructionsPath), err)
	}

	refs, err := collectReferences(dir, m.Refs)
	if err != nil {
		return nil, errors.New(errors.CodeMalformedDefinition,
			fmt.Sprintf("skill %q: read references", m.ID), err)
	}

	d := &Descriptor{
		ID:           strings.TrimSpace(m.ID),
		Name:         strings.TrimSpace(m.Name),
		Description:  strings.TrimSpace(m.Description),
		Version:      strings.TrimSpace(m.Version),
		Tags:         normalizeSet(m.Tags, false),
		MatchTerms:   normalizeSet(m.MatchTerms, true),
		Tools:        normalizeSet(m.Tools, false),
		Instructions: strings.TrimSpace(string(instructions)),
		References:   refs,
		Dir:          dir,
	}
	if d.Name == "" {
		d.Name = d.ID
	}
	if err := validateDescriptor(d); err != nil {
		return nil, err
	}
	return d, nil
}

func validateDescriptor(d *Descriptor) error {
	if d.ID == "" {
		return errors.Newf(errors.CodeMalformedDefinition,
			"skill in %s: id is required", d.Dir)
	}
	if utf8.RuneCountInString(d.ID) > maxIDLen {
		return errors.Newf(errors.CodeMalformedDefinition,
			"skill %q: id exceeds %d characters", d.ID, maxIDLen)
	}
	if !idPattern.MatchString(d.ID) {
		return errors.Newf(errors.CodeMalformedDefinition,
			"skill %q: id must match %s", d.ID, idPattern.String())
	}
	if dirName := filepath.Base(d.Dir); dirName != d.ID {
		return errors.Newf(errors.CodeMalformedDefinition,
			"skill %q: id must match directory name (%s)", d.ID, dirName)
	}
	if d.Description == "" {
		return errors.Newf(errors.CodeMalformedDefinition,
			"skill %q: description is required", d.ID)
	}
	if utf8.RuneCountInString(d.Description) > maxDescriptionLen {
		return errors.Newf(errors.CodeMalformedDefinition,
			"skill %q: description exceeds %d characters", d.ID, maxDescriptionLen)
	}
	return nil
}

// collectReferences walks the refs directory recursively and returns every
// file path, sorted. A missing default refs directory yields no references;
// a refs path named explicitly in the manifest must exist.
func collectReferences(dir, refsRel string) ([]string, error) {
	explicit := refsRel != ""
	if refsRel == "" {
		refsRel = "refs"
	}
	refsDir := filepath.Join(dir, refsRel)
	info, err := os.Stat(refsDir)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return nil, nil
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("refs path %s is not a directory", refsDir)
	}

	var refs []string
	err = filepath.WalkDir(refsDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() {
			refs = append(refs, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(refs)
	return refs, nil
}

func normalizeSet(items []string, lower bool) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if lower {
			item = strings.ToLower(item)
		}
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}
