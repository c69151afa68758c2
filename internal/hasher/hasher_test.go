package hasher

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHash_NewFileSentinel(t *testing.T) {
	dir := t.TempDir()
	got, err := Hash(filepath.Join(dir, "missing.txt"))
	require.NoError(t, err)
	assert.Equal(t, NewFile, got)
}

func TestHash_ChangesWithContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))
	h1, err := Hash(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("new"), 0o644))
	h2, err := Hash(path)
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
	assert.NotEqual(t, NewFile, h1)
}

func TestHash_Deterministic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("same"), 0o644))

	h1, err := Hash(path)
	require.NoError(t, err)
	h2, err := Hash(path)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Equal(t, HashBytes([]byte("same")), h1)
}
