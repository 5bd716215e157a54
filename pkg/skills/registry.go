// Copyright 2026 © The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package skills

import (
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/loomlabs/loom/pkg/errors"
)

// Registry holds the loaded skill catalog. Reads operate on one immutable
// snapshot; Reload builds a complete replacement and swaps it atomically, so
// concurrent readers never observe a partially-populated catalog.
type Registry struct {
	root string
	snap atomic.Pointer[snapshot]
}

// snapshot is one immutable view of the catalog. ordered preserves
// registration order for deterministic listings and router tie-breaking.
type snapshot struct {
	byID    map[string]*Descriptor
	ordered []*Descriptor
}

// NewRegistry creates a registry rooted at dir and performs the initial load.
func NewRegistry(root string) (*Registry, error) {
	r := &Registry{root: root}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Root returns the skills root directory.
func (r *Registry) Root() string { return r.root }

// Reload re-reads every skill definition from disk and atomically publishes
// the new catalog. Any malformed definition fails the whole reload and
// leaves the previous catalog visible (fail-closed).
func (r *Registry) Reload() error {
	snap, err := loadSnapshot(r.root)
	if err != nil {
		return err
	}
	r.snap.Store(snap)
	slog.Debug("skill registry loaded", "root", r.root, "skills", len(snap.ordered))
	return nil
}

func loadSnapshot(root string) (*snapshot, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, errors.New(errors.CodeMalformedDefinition,
			fmt.Sprintf("read skills root %s", root), err)
	}

	snap := &snapshot{byID: make(map[string]*Descriptor)}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := root + string(os.PathSeparator) + entry.Name()
		if _, err := os.Stat(dir + string(os.PathSeparator) + "skill.yaml"); err != nil {
			continue
		}
		d, err := loadDescriptor(dir)
		if err != nil {
			return nil, err
		}
		if _, dup := snap.byID[d.ID]; dup {
			return nil, errors.Newf(errors.CodeMalformedDefinition,
				"duplicate skill id %q", d.ID)
		}
		snap.byID[d.ID] = d
		snap.ordered = append(snap.ordered, d)
	}
	return snap, nil
}

// Get returns the descriptor for id, or a NOT_FOUND error.
func (r *Registry) Get(id string) (*Descriptor, error) {
	snap := r.snap.Load()
	d, ok := snap.byID[id]
	if !ok {
		return nil, errors.Newf(errors.CodeNotFound, "unknown skill id %q", id).
			WithContext("skill_id", id)
	}
	return d, nil
}

// List returns all descriptors in registration order.
func (r *Registry) List() []*Descriptor {
	snap := r.snap.Load()
	out := make([]*Descriptor, len(snap.ordered))
	copy(out, snap.ordered)
	return out
}

// Len returns the number of registered skills.
func (r *Registry) Len() int {
	return len(r.snap.Load().ordered)
}

// current returns the live snapshot. Routing reads it once per call so a
// concurrent reload cannot mix old and new descriptors within one route.
func (r *Registry) current() *snapshot {
	return r.snap.Load()
}
