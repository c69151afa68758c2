package pathsafe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/softwaresalt/agent-intercom/internal/errs"
)

func TestValidate_RejectsEscapes(t *testing.T) {
	root := t.TempDir()

	cases := []string{
		"../etc/passwd",
		filepath.Join(os.TempDir(), "outside-intercom-test"),
		`.\relative\..\..\escape`,
	}
	for _, c := range cases {
		_, err := Validate(c, root)
		require.Error(t, err)
		assert.True(t, errs.Is(err, errs.PathViolation), "case %q", c)
	}
}

func TestValidate_SymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	outsideFile := filepath.Join(outside, "secret.txt")
	require.NoError(t, os.WriteFile(outsideFile, []byte("x"), 0o644))

	link := filepath.Join(root, "link.txt")
	require.NoError(t, os.Symlink(outsideFile, link))

	_, err := Validate("link.txt", root)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.PathViolation))
}

func TestValidate_AllowsWithinRoot(t *testing.T) {
	root := t.TempDir()
	got, err := Validate("src/a.txt", root)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "src", "a.txt"), got)
}

func TestValidate_AllowsTraversalThatStaysWithinRoot(t *testing.T) {
	root := t.TempDir()
	got, err := Validate(`sub\..\sibling.txt`, root)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "sibling.txt"), got)
}

func TestValidate_RejectsDrivePrefix(t *testing.T) {
	root := t.TempDir()
	_, err := Validate(`C:\Windows\escape`, root)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.PathViolation))
}

func TestWriteFile_RoundTrip(t *testing.T) {
	root := t.TempDir()
	n, err := WriteFile("dir/file.txt", []byte("hello"), root)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	b, err := os.ReadFile(filepath.Join(root, "dir", "file.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b))
}

func TestApplyUnifiedDiff_SimpleReplace(t *testing.T) {
	original := "old"
	diff := "--- a/src/a.rs\n+++ b/src/a.rs\n@@ -1 +1 @@\n-old\n+new\n"
	out, err := ApplyUnifiedDiff(original, diff)
	require.NoError(t, err)
	assert.Equal(t, "new", out)
}

func TestApplyUnifiedDiff_ConflictOnMismatch(t *testing.T) {
	original := "drift"
	diff := "--- a/src/a.rs\n+++ b/src/a.rs\n@@ -1 +1 @@\n-old\n+new\n"
	_, err := ApplyUnifiedDiff(original, diff)
	require.Error(t, err)
}

func TestApplyPatch_WritesResult(t *testing.T) {
	root := t.TempDir()
	_, err := WriteFile("src/a.rs", []byte("old"), root)
	require.NoError(t, err)

	diff := "--- a/src/a.rs\n+++ b/src/a.rs\n@@ -1 +1 @@\n-old\n+new\n"
	n, err := ApplyPatch("src/a.rs", diff, root)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	b, err := os.ReadFile(filepath.Join(root, "src", "a.rs"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(b))
}
