package cache

import (
	"bytes"
	"compress/gzip"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCachedFileRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.txt")
	content := []byte("the quick brown fox jumps over the lazy dog")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	f, err := buildCachedFile(path)
	require.NoError(t, err)
	assert.Equal(t, f.totalSize, f.Size())

	cur := f.NewCursor()
	gr, err := gzip.NewReader(readerFunc(cur.Read))
	require.NoError(t, err)
	got, err := io.ReadAll(gr)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestBuildCachedFileSpansMultipleChunks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.bin")
	// Random, effectively incompressible bytes so the gzip output itself
	// spans more than one chunkSize chunk, exercising chunkWriter's
	// chunk-boundary handling.
	content := make([]byte, chunkSize*3)
	rand.New(rand.NewSource(1)).Read(content)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	f, err := buildCachedFile(path)
	require.NoError(t, err)

	cur := f.NewCursor()
	gr, err := gzip.NewReader(readerFunc(cur.Read))
	require.NoError(t, err)
	got, err := io.ReadAll(gr)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestCursorReadInSmallChunks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("abcdefghij"), 0o644))

	f, err := buildCachedFile(path)
	require.NoError(t, err)

	cur := f.NewCursor()
	var out []byte
	buf := make([]byte, 1)
	for {
		n, err := cur.Read(buf)
		out = append(out, buf[:n]...)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}

	gr, err := gzip.NewReader(bytes.NewReader(out))
	require.NoError(t, err)
	got, err := io.ReadAll(gr)
	require.NoError(t, err)
	assert.Equal(t, "abcdefghij", string(got))
}
