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
	"context"
	"errors"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecRunnerCapturesStdout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	runner := &ExecRunner{}

	out, err := runner.Run(context.Background(), "sh", "-c", "echo hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestExecRunnerWrapsFailures(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	runner := &ExecRunner{}

	_, err := runner.Run(context.Background(), "sh", "-c", "echo broken >&2; exit 3")
	require.Error(t, err)

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, 3, cmdErr.ExitCode)
	assert.Equal(t, "broken", cmdErr.Stderr)
	assert.Contains(t, cmdErr.Command, "sh -c")
}

func TestExecRunnerLookPath(t *testing.T) {
	runner := &ExecRunner{}

	_, err := runner.LookPath("sh")
	assert.NoError(t, err)

	_, err = runner.LookPath("definitely-not-a-real-binary-9999")
	assert.Error(t, err)
}

func TestCommandErrorFormatting(t *testing.T) {
	wrapped := errors.New("exit status 1")

	tests := []struct {
		name string
		err  *CommandError
		want string
	}{
		{
			"with stderr",
			NewCommandError("nginx -t", 1, "  unexpected end of file\n", wrapped),
			"nginx -t (exit 1): unexpected end of file",
		},
		{
			"without stderr",
			NewCommandError("systemctl restart docker", 5, "", wrapped),
			"systemctl restart docker (exit 5): exit status 1",
		},
		{
			"bare",
			NewCommandError("pm2 ping", -1, "", nil),
			"pm2 ping (exit -1)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}

	err := NewCommandError("nginx -t", 1, "boom", wrapped)
	assert.True(t, err.HasStderr())
	assert.True(t, errors.Is(err, wrapped))
}
