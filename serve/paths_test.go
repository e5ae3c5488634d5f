package serve

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalizePathResolvesSymlinks(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "real")
	require.NoError(t, os.MkdirAll(target, 0o755))
	link := filepath.Join(dir, "link")
	require.NoError(t, os.Symlink(target, link))

	got, err := canonicalizePath(link)
	require.NoError(t, err)

	want, err := canonicalizePath(target)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestCanonicalizePathMissingFileErrors(t *testing.T) {
	_, err := canonicalizePath(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestIsWithinRoot(t *testing.T) {
	root := string(filepath.Separator) + filepath.Join("srv", "www")
	assert.True(t, isWithinRoot(root, root))
	assert.True(t, isWithinRoot(filepath.Join(root, "a", "b.txt"), root))
	assert.False(t, isWithinRoot(string(filepath.Separator)+filepath.Join("srv", "wwwevil"), root))
	assert.False(t, isWithinRoot(string(filepath.Separator)+"etc", root))
}

func TestSymlinkEscapeIsRejectedByCanonicalization(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	secret := filepath.Join(outside, "secret.txt")
	require.NoError(t, os.WriteFile(secret, []byte("nope"), 0o644))

	link := filepath.Join(root, "escape")
	require.NoError(t, os.Symlink(secret, link))

	canonicalRoot, err := canonicalizePath(root)
	require.NoError(t, err)

	canonicalTarget, err := canonicalizePath(link)
	require.NoError(t, err)

	assert.False(t, isWithinRoot(canonicalTarget, canonicalRoot))
}
