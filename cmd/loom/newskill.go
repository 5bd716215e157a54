// Copyright 2026 © The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"flag"
	"fmt"
	"path/filepath"

	"github.com/loomlabs/loom/cmd/loom/scaffold"
)

func runNewSkill(app *app, args []string) {
	cmd := flag.NewFlagSet("new-skill", flag.ExitOnError)
	name := cmd.String("name", "", "Display name (defaults to the id)")
	description := cmd.String("description", "", "Skill description")
	var tags multiFlag
	cmd.Var(&tags, "tag", "Skill tag (repeatable)")
	var terms multiFlag
	cmd.Var(&terms, "term", "Routing match term (repeatable)")
	if err := cmd.Parse(args); err != nil {
		fatal(err)
	}
	if cmd.NArg() != 1 {
		fatal(fmt.Errorf("usage: loom new-skill <id> [--name <text>] [--description <text>]"))
	}
	id := cmd.Arg(0)

	dir := filepath.Join(app.cfg.Skills.Root, id)
	err := scaffold.Generate(dir, scaffold.Options{
		ID:          id,
		Name:        *name,
		Description: *description,
		Tags:        tags,
		MatchTerms:  terms,
	})
	if err != nil {
		fatal(err)
	}
	fmt.Printf("skill %q created at %s\n", id, dir)
}
