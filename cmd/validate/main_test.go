// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestValidateCLI(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		wantExit   int
		wantStdout string
		wantStderr string
	}{
		{
			name:       "valid minimal config",
			args:       []string{"-f", writeConfig(t, "encoder:\n  target_bitrate: 500000\n")},
			wantStdout: "is valid",
		},
		{
			name:       "invalid unknown key",
			args:       []string{"-f", writeConfig(t, "encoder:\n  bitrate: 1\n")},
			wantExit:   1,
			wantStderr: "Configuration error",
		},
		{
			name:       "invalid type mismatch",
			args:       []string{"--file", writeConfig(t, "input:\n  width: wide\n")},
			wantExit:   1,
			wantStderr: "Configuration error",
		},
		{
			name:       "validation problems are listed",
			args:       []string{"-f", writeConfig(t, "device:\n  kind: gpu\nsink:\n  kind: tape\n")},
			wantExit:   1,
			wantStderr: "device.kind",
		},
		{
			name:       "no file flag provided",
			wantExit:   2,
			wantStderr: "--file is required",
		},
		{
			name:       "non-existent file",
			args:       []string{"-f", filepath.Join(t.TempDir(), "does-not-exist.yaml")},
			wantExit:   1,
			wantStderr: "Configuration error",
		},
		{
			name:       "unknown flag",
			args:       []string{"-x"},
			wantExit:   2,
			wantStderr: "flag provided but not defined",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := run(tt.args, &stdout, &stderr)
			assert.Equal(t, tt.wantExit, code, "stderr: %s", stderr.String())
			assert.Contains(t, stdout.String(), tt.wantStdout)
			assert.Contains(t, stderr.String(), tt.wantStderr)
		})
	}
}

func TestValidateCLIVersion(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, run([]string{"-version"}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "commit:")
}

func TestValidateCLIExampleConfig(t *testing.T) {
	cfg := "../../config.example.yaml"
	if _, err := os.Stat(cfg); os.IsNotExist(err) {
		t.Skipf("%s not found, skipping", cfg)
	}
	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, run([]string{"-f", cfg}, &stdout, &stderr), stderr.String())
	assert.Contains(t, stdout.String(), "is valid")
}
