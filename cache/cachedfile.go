package cache

import (
	"compress/gzip"
	"io"
	"os"

	"github.com/pkg/errors"
)

// chunkSize is the fixed size of every chunk in a CachedFile but the last.
const chunkSize = 16 * 1024

// CachedFile is the immutable gzip-compressed representation of a served
// file, held as a list of fixed-size chunks so that a very large file never
// requires one giant contiguous allocation. Once built it is never mutated;
// any number of Cursors can read it concurrently.
type CachedFile struct {
	chunks          [][]byte
	lastChunkLength int
	totalSize       int64
}

// Size returns the total number of compressed bytes.
func (f *CachedFile) Size() int64 {
	return f.totalSize
}

// NewCursor returns a fresh, non-restartable lazy byte sequence over f's
// compressed bytes.
func (f *CachedFile) NewCursor() *Cursor {
	return &Cursor{file: f}
}

// chunkWriter accumulates written bytes into chunkSize-byte chunks,
// implementing io.Writer so it can sit behind a gzip.Writer.
type chunkWriter struct {
	chunks  [][]byte
	current []byte
}

func (w *chunkWriter) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		if w.current == nil {
			w.current = make([]byte, 0, chunkSize)
		}
		n := copy(w.current[len(w.current):cap(w.current)], p)
		w.current = w.current[:len(w.current)+n]
		p = p[n:]
		written += n
		if len(w.current) == cap(w.current) {
			w.chunks = append(w.chunks, w.current)
			w.current = nil
		}
	}
	return written, nil
}

// buildCachedFile opens path, gzip-compresses its contents, and returns the
// result as a CachedFile. It is run on the caller's TaskRunner for load
// balancing, never on the cache's own runner.
func buildCachedFile(path string) (*CachedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %q", path)
	}
	defer f.Close()

	cw := &chunkWriter{}
	gw := gzip.NewWriter(cw)

	size, err := io.Copy(gw, f)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to compress %q", path)
	}
	if err := gw.Close(); err != nil {
		return nil, errors.Wrapf(err, "failed to flush compressor for %q", path)
	}
	_ = size // uncompressed size, not tracked beyond the read loop above.

	lastChunkLength := 0
	chunks := cw.chunks
	if cw.current != nil {
		lastChunkLength = len(cw.current)
		chunks = append(chunks, cw.current)
	} else if len(chunks) > 0 {
		lastChunkLength = len(chunks[len(chunks)-1])
	}

	var total int64
	for _, c := range chunks {
		total += int64(len(c))
	}

	return &CachedFile{
		chunks:          chunks,
		lastChunkLength: lastChunkLength,
		totalSize:       total,
	}, nil
}

// Cursor is a caller-facing, lazy, non-restartable view over a CachedFile's
// compressed bytes. It implements io.Reader.
type Cursor struct {
	file     *CachedFile
	chunkIdx int
	chunkOff int
}

// Size returns the total number of compressed bytes the cursor will yield.
func (c *Cursor) Size() int64 {
	return c.file.Size()
}

// Read implements io.Reader. Short reads are legal; io.EOF is returned once
// every byte of the underlying CachedFile has been read.
func (c *Cursor) Read(buf []byte) (int, error) {
	if c.chunkIdx >= len(c.file.chunks) {
		return 0, io.EOF
	}

	read := 0
	for read < len(buf) && c.chunkIdx < len(c.file.chunks) {
		chunk := c.file.chunks[c.chunkIdx]
		length := len(chunk)
		if c.chunkIdx == len(c.file.chunks)-1 {
			length = c.file.lastChunkLength
		}

		available := length - c.chunkOff
		if available <= 0 {
			c.chunkIdx++
			c.chunkOff = 0
			continue
		}

		n := copy(buf[read:], chunk[c.chunkOff:length])
		read += n
		c.chunkOff += n
		if c.chunkOff == length {
			c.chunkIdx++
			c.chunkOff = 0
		}
	}

	return read, nil
}
