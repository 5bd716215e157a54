// Copyright 2026 © The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/loomlabs/loom/pkg/errors"
	"github.com/loomlabs/loom/pkg/validation"
)

type validateResult struct {
	SessionID    string                         `json:"session_id"`
	State        validation.State               `json:"state"`
	Attempts     int                            `json:"attempts"`
	Errors       []validation.FieldError        `json:"errors,omitempty"`
	Value        any                            `json:"value,omitempty"`
	Plausibility *validation.PlausibilityReport `json:"plausibility,omitempty"`
}

// runValidate checks a payload file against a schema file. The CLI performs
// a single validation pass; the correction round-trip belongs to the agent
// layer, which is not part of this command.
func runValidate(ctx context.Context, app *app, args []string) {
	cmd := flag.NewFlagSet("validate", flag.ExitOnError)
	schemaPath := cmd.String("schema", "", "Schema file (required)")
	inputPath := cmd.String("input", "", "Payload file (required, - for stdin)")
	plausibility := cmd.Bool("plausibility", false, "Also report the heuristic content score")
	if err := cmd.Parse(args); err != nil {
		fatal(err)
	}
	if *schemaPath == "" || *inputPath == "" {
		fatal(fmt.Errorf("usage: loom validate --schema <file> --input <file>"))
	}

	schemaData, err := os.ReadFile(*schemaPath)
	if err != nil {
		NewValidationError(errors.New(errors.CodeInvalidInput, "read schema", err)).PrintError(app.global.JSON)
		os.Exit(1)
	}
	schema, err := validation.ParseSchema(schemaData)
	if err != nil {
		NewValidationError(err).PrintError(app.global.JSON)
		os.Exit(1)
	}

	input, err := readInput(*inputPath)
	if err != nil {
		NewValidationError(errors.New(errors.CodeInvalidInput, "read input", err)).PrintError(app.global.JSON)
		os.Exit(1)
	}

	loop, err := validation.NewLoop(schema, 0, nil, validation.WithMetrics(app.loadMetrics()))
	if err != nil {
		NewValidationError(err).PrintError(app.global.JSON)
		os.Exit(1)
	}
	outcome, runErr := loop.Run(ctx, string(input))

	result := validateResult{
		SessionID: outcome.SessionID,
		State:     outcome.State,
		Attempts:  len(outcome.Attempts),
		Errors:    outcome.Errors(),
		Value:     outcome.Value,
	}
	if *plausibility {
		report := validation.Plausibility(string(input))
		result.Plausibility = &report
	}

	if app.global.JSON {
		printJSON(result)
	} else {
		fmt.Printf("state: %s (session %s)\n", result.State, result.SessionID)
		for _, fe := range result.Errors {
			fmt.Printf("  %s\n", fe.String())
		}
		if result.Plausibility != nil {
			fmt.Printf("plausibility: %s (confidence %.2f)\n",
				result.Plausibility.Status, result.Plausibility.Confidence)
			for _, ind := range result.Plausibility.Indicators {
				fmt.Printf("  %s\n", ind)
			}
		}
	}

	if runErr != nil {
		os.Exit(1)
	}
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
