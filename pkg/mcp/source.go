// Copyright 2026 © The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package mcp

import (
	"context"

	"github.com/loomlabs/loom/pkg/core"
	"github.com/loomlabs/loom/pkg/errors"
)

// Source resolves tool names across one or more MCP clients, satisfying
// core.ToolSource. Clients are consulted in registration order; the first
// server exposing a matching tool wins, so orderings with overlapping
// servers stay deterministic.
type Source struct {
	clients []*Client
}

// NewSource creates a tool source over the given clients.
func NewSource(clients ...*Client) *Source {
	return &Source{clients: clients}
}

// Add registers another client. Not safe for concurrent use with Resolve.
func (s *Source) Add(c *Client) {
	s.clients = append(s.clients, c)
}

// Resolve finds the named tool on the first server that advertises it and
// returns an adapter for it. A name no server exposes fails with NOT_FOUND.
func (s *Source) Resolve(ctx context.Context, name string) (core.Tool, error) {
	for _, c := range s.clients {
		tools, err := c.ListTools(ctx)
		if err != nil {
			return nil, errors.New(errors.CodeInternal, "list mcp tools", err)
		}
		for _, tool := range tools {
			if tool.Name == name {
				return NewToolAdapter(tool, c)
			}
		}
	}
	return nil, errors.Newf(errors.CodeNotFound, "tool %q is not exposed by any mcp server", name)
}

// Close closes every registered client, returning the first error.
func (s *Source) Close() error {
	var first error
	for _, c := range s.clients {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

var _ core.ToolSource = (*Source)(nil)
