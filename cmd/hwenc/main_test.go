// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunVersion(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, run(context.Background(), []string{"-version"}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "commit:")
}

func TestRunRejectsBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("device:\n  kind: gpu\n"), 0o600))

	var stdout, stderr bytes.Buffer
	assert.Equal(t, 1, run(context.Background(), []string{"-config", path}, &stdout, &stderr))
	assert.Equal(t, 2, run(context.Background(), []string{"-nope"}, &stdout, &stderr))
}

func TestRunEncodesPattern(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.ivf")
	path := filepath.Join(dir, "config.yaml")
	cfg := "encoder:\n  caps: video/x-vp8\n" +
		"input:\n  path: pattern\n  width: 32\n  height: 32\n  frames: 5\n" +
		"sink:\n  kind: file\n  path: " + out + "\n"
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))

	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, run(context.Background(), []string{"-config", path}, &stdout, &stderr), stderr.String())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "DKIF", string(data[:4]))
}
