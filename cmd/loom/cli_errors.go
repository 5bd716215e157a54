// Copyright 2026 © The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/loomlabs/loom/pkg/errors"
)

// CLIError wraps LoomError with CLI-specific formatting and hints.
type CLIError struct {
	*errors.LoomError
	Hint string
}

// NewCLIError creates a new CLI error.
func NewCLIError(le *errors.LoomError, hint string) *CLIError {
	return &CLIError{LoomError: le, Hint: hint}
}

// Error returns the formatted error message with hints.
func (e *CLIError) Error() string {
	if e.LoomError == nil {
		return "unknown error"
	}
	msg := e.LoomError.Error()
	if e.Hint != "" {
		msg += "\n  Hint: " + e.Hint
	}
	return msg
}

// PrintError prints the error with appropriate formatting.
func (e *CLIError) PrintError(json bool) {
	if json {
		fmt.Fprintf(os.Stderr, `{"error":{"code":"%s","message":"%s","hint":"%s"}}%s`,
			e.LoomError.Code,
			e.LoomError.Message,
			e.Hint,
			"\n")
		return
	}

	fmt.Fprintf(os.Stderr, "Error [%s]: %s\n", e.LoomError.Code, e.LoomError.Message)
	if e.Hint != "" {
		fmt.Fprintf(os.Stderr, "  Hint: %s\n", e.Hint)
	}
}

// NewConfigError creates a configuration error with CLI hints.
func NewConfigError(err error, configPath string) *CLIError {
	le := errors.New(errors.CodeInvalidInput, "configuration error", err).
		WithContext("config_path", configPath).
		WithRecoverable(false)

	hint := "check your configuration file syntax"
	if configPath != "" {
		hint = fmt.Sprintf("check %s for syntax errors", configPath)
	}
	return NewCLIError(le, hint)
}

// NewSkillsError creates a skill catalog error with CLI hints.
func NewSkillsError(err error, root string) *CLIError {
	le := toLoomError(err, "skill catalog error")
	le = le.WithContext("skills_root", root)

	hint := fmt.Sprintf("check the skill directories under %s", root)
	if errors.HasCode(err, errors.CodeMalformedDefinition) {
		hint = "fix the reported skill.yaml or instructions file and retry"
	}
	return NewCLIError(le, hint)
}

// NewRefStoreError creates a reference store error with CLI hints.
func NewRefStoreError(err error) *CLIError {
	le := toLoomError(err, "reference store error")

	hint := "check the refstore and embedder configuration"
	switch {
	case errors.HasCode(err, errors.CodeProviderTimeout):
		hint = "the embedding provider did not respond; check that it is running"
	case errors.HasCode(err, errors.CodeDimensionMismatch):
		hint = "re-index with the configured embedder so stored and query dimensions match"
	}
	return NewCLIError(le, hint)
}

// NewMCPError creates an MCP connection error with CLI hints.
func NewMCPError(err error, server string) *CLIError {
	le := toLoomError(err, "mcp server error")
	le = le.WithContext("server", server)
	return NewCLIError(le, fmt.Sprintf("check the %q entry under mcp.servers", server))
}

// NewValidationError creates a validation setup error with CLI hints.
func NewValidationError(err error) *CLIError {
	le := toLoomError(err, "validation error")
	return NewCLIError(le, "check the schema file and input payload")
}

func toLoomError(err error, fallback string) *errors.LoomError {
	if le, ok := err.(*errors.LoomError); ok {
		return le
	}
	return errors.New(errors.CodeInternal, fallback, err)
}
