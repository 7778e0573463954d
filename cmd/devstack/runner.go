// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
)

// CommandRunner abstracts shell invocations so tool manager tests can
// substitute a recording fake.
type CommandRunner interface {
	// Run executes name with args, returning trimmed stdout. Failures
	// come back as *CommandError carrying the exit code and stderr.
	Run(ctx context.Context, name string, args ...string) (string, error)

	// LookPath reports where name resolves on PATH, or an error if it
	// is not installed.
	LookPath(name string) (string, error)
}

// ExecRunner implements CommandRunner with os/exec.
type ExecRunner struct{}

// Compile-time interface check
var _ CommandRunner = (*ExecRunner)(nil)

// Run executes the command and captures both output streams.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		display := name
		if len(args) > 0 {
			display = name + " " + strings.Join(args, " ")
		}
		return "", NewCommandError(display, exitCode, stderr.String(), err)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// LookPath resolves name on PATH.
func (r *ExecRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}
