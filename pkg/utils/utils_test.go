package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckPerm(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, CheckPerm(dir))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	assert.Error(t, CheckPerm(filepath.Join(dir, "missing")))

	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, nil, 0600))
	assert.Error(t, CheckPerm(file))
}

func TestVersion(t *testing.T) {
	assert.NotEmpty(t, Version)
	assert.NotEmpty(t, RuntimeModuleName)
}
