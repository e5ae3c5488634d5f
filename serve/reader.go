package serve

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

// fileReader is a buffered sequential byte source backed by an OS file. It
// implements io.Reader: once the underlying file is exhausted it returns
// io.EOF, mirroring the teacher's convention of wrapping os.File behind a
// small sequential reader (see backend/local's use of os.Open/os.Stat)
// rather than the spec's C++ -1 sentinel, which has no idiomatic Go
// equivalent as nice as io.EOF.
type fileReader struct {
	file *os.File
	size int64
	eof  bool
}

// newFileReader opens path and records its size via Stat.
func newFileReader(path string) (*fileReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %q", path)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "failed to stat %q", path)
	}
	return &fileReader{file: f, size: info.Size()}, nil
}

// Size returns the file's byte size as observed at open time.
func (r *fileReader) Size() int64 {
	return r.size
}

// Read implements io.Reader. A short or zero read latches eof so subsequent
// calls return io.EOF without touching the file again.
func (r *fileReader) Read(buf []byte) (int, error) {
	if r.eof {
		return 0, io.EOF
	}
	n, err := r.file.Read(buf)
	if err != nil {
		if err == io.EOF {
			r.eof = true
			return n, io.EOF
		}
		return n, errors.Wrapf(err, "read failed on %q", r.file.Name())
	}
	if n < len(buf) {
		r.eof = true
	}
	return n, nil
}

// Close releases the underlying file descriptor.
func (r *fileReader) Close() error {
	return r.file.Close()
}
