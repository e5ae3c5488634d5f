package serve

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileReaderReadsWholeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("some file contents"), 0o644))

	r, err := newFileReader(path)
	require.NoError(t, err)
	defer r.Close()

	assert.EqualValues(t, len("some file contents"), r.Size())

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "some file contents", string(data))
}

func TestFileReaderEOFAfterExhausted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	r, err := newFileReader(path)
	require.NoError(t, err)
	defer r.Close()

	buf := make([]byte, 16)
	n, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = r.Read(buf)
	assert.Equal(t, 0, n)
	assert.Equal(t, io.EOF, err)
}

func TestFileReaderMissingFile(t *testing.T) {
	_, err := newFileReader(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
