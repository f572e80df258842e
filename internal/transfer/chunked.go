package transfer

import (
	"context"
	"errors"
	"io"
	"os"

	"go.uber.org/multierr"

	gatesftp "github.com/charlesng35/sftpgate/internal/sftp"
)

// DefaultChunkSize bounds the bytes held in memory per transfer.
const DefaultChunkSize = 16384

func chunkSize(size int) int {
	if size <= 0 {
		return DefaultChunkSize
	}
	return size
}

// ChunkReader yields a remote file as a sequence of chunks backed by one reused buffer.
type ChunkReader struct {
	path    string
	file    gatesftp.ReadableFile
	buf     []byte
	info    os.FileInfo
	read    int64
	pending error
	closed  bool
}

// OpenChunkReader stats path and opens it for reading. Directories fail with
// ErrIsDirectory before the file is opened.
func OpenChunkReader(client gatesftp.Client, path string, size int) (*ChunkReader, error) {
	info, err := client.Stat(path)
	if err != nil {
		return nil, Classify("stat", path, err)
	}
	if info.IsDir() {
		return nil, newError("open", path, ErrIsDirectory)
	}
	return openChunkReader(client, path, info, size)
}

// OpenChunkReaderInfo opens path using a stat result the caller already holds.
func OpenChunkReaderInfo(client gatesftp.Client, path string, info os.FileInfo, size int) (*ChunkReader, error) {
	if info != nil && info.IsDir() {
		return nil, newError("open", path, ErrIsDirectory)
	}
	return openChunkReader(client, path, info, size)
}

func openChunkReader(client gatesftp.Client, path string, info os.FileInfo, size int) (*ChunkReader, error) {
	file, err := client.Open(path)
	if err != nil {
		return nil, Classify("open", path, err)
	}
	return &ChunkReader{
		path: path,
		file: file,
		buf:  make([]byte, chunkSize(size)),
		info: info,
	}, nil
}

// Info returns the stat result captured when the reader was opened. It may be nil for
// readers created from a listing entry.
func (r *ChunkReader) Info() os.FileInfo {
	return r.info
}

// BytesRead reports the bytes yielded so far.
func (r *ChunkReader) BytesRead() int64 {
	return r.read
}

// Next returns the next chunk. The slice aliases the internal buffer and is only valid
// until the following call. A zero-byte read ends the sequence with io.EOF and closes
// the remote file.
func (r *ChunkReader) Next() ([]byte, error) {
	if r.closed {
		return nil, io.EOF
	}
	if r.pending != nil {
		err := r.pending
		r.pending = nil
		return nil, r.finish(err)
	}

	n, err := r.file.Read(r.buf)
	if n > 0 {
		r.read += int64(n)
		r.pending = err
		return r.buf[:n], nil
	}
	if err == nil {
		err = io.EOF
	}
	return nil, r.finish(err)
}

func (r *ChunkReader) finish(err error) error {
	cerr := r.closeFile()
	if err != io.EOF {
		return Classify("read", r.path, err)
	}
	if cerr != nil {
		return cerr
	}
	return io.EOF
}

// CopyTo drains the file into w, checking ctx between chunks. The remote file is
// closed on every path.
func (r *ChunkReader) CopyTo(ctx context.Context, w io.Writer) (int64, error) {
	defer r.Close()

	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		chunk, err := r.Next()
		if errors.Is(err, io.EOF) {
			return written, nil
		}
		if err != nil {
			return written, err
		}
		n, werr := w.Write(chunk)
		written += int64(n)
		if werr != nil {
			return written, werr
		}
		if n != len(chunk) {
			return written, io.ErrShortWrite
		}
	}
}

// Close releases the remote file. Safe to call after EOF.
func (r *ChunkReader) Close() error {
	return r.closeFile()
}

func (r *ChunkReader) closeFile() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if err := r.file.Close(); err != nil {
		return Classify("close", r.path, err)
	}
	return nil
}

// WriteFile copies src into a new remote file at dst in chunk-sized writes and returns the
// bytes written. An existing destination fails with ErrConflict and is left untouched.
// A partially written file is removed.
func WriteFile(ctx context.Context, client gatesftp.Client, dst string, src io.Reader, size int) (written int64, err error) {
	if _, statErr := client.Stat(dst); statErr == nil {
		return 0, newError("create", dst, ErrConflict)
	} else if classified := Classify("stat", dst, statErr); !errors.Is(classified, ErrNotFound) {
		return 0, classified
	}

	file, err := client.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL)
	if err != nil {
		return 0, Classify("create", dst, err)
	}

	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = Classify("close", dst, cerr)
		}
		if err != nil {
			if rerr := client.Remove(dst); rerr != nil {
				err = multierr.Append(err, Classify("remove", dst, rerr))
			}
		}
	}()

	buf := make([]byte, chunkSize(size))
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n, rerr := src.Read(buf)
		if n > 0 {
			wn, werr := file.Write(buf[:n])
			written += int64(wn)
			if werr != nil {
				return written, Classify("write", dst, werr)
			}
			if wn != n {
				return written, Classify("write", dst, io.ErrShortWrite)
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}
