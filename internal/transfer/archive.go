package transfer

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"

	gatesftp "github.com/charlesng35/sftpgate/internal/sftp"
)

// ArchiveEntry is one file queued for the archive. Open is called once, when the entry
// is about to be written.
type ArchiveEntry struct {
	Name    string
	Size    int64
	ModTime time.Time
	Open    func() (*ChunkReader, error)
}

// ArchiveOptions tunes archive output.
type ArchiveOptions struct {
	ChunkSize int
	// CompressionLevel follows compress/flate; flate.NoCompression stores entries as-is.
	CompressionLevel int
	// OnEntry is called after each entry has been fully written.
	OnEntry func(name string, written int64)
}

// DefaultArchiveOptions returns 16 KiB chunks with default deflate compression.
func DefaultArchiveOptions() ArchiveOptions {
	return ArchiveOptions{ChunkSize: DefaultChunkSize, CompressionLevel: flate.DefaultCompression}
}

// ArchiveStats summarises a completed or aborted build.
type ArchiveStats struct {
	Entries int
	Bytes   int64
}

// ArchiveBuilder streams a remote subtree as a zip archive. Entries are written one at
// a time in walk order, so at most one remote file is open and one chunk is buffered.
type ArchiveBuilder struct {
	client gatesftp.Client
	opts   ArchiveOptions
}

// NewArchiveBuilder returns a builder reading from client.
func NewArchiveBuilder(client gatesftp.Client, opts ArchiveOptions) *ArchiveBuilder {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.CompressionLevel < flate.HuffmanOnly || opts.CompressionLevel > flate.BestCompression {
		opts.CompressionLevel = flate.DefaultCompression
	}
	return &ArchiveBuilder{client: client, opts: opts}
}

// Build writes the archive of root to w. The central directory is written only after
// every entry succeeded; on failure Build returns at once and w holds a truncated,
// unreadable archive.
func (b *ArchiveBuilder) Build(ctx context.Context, root string, w io.Writer) (ArchiveStats, error) {
	var stats ArchiveStats
	root = CleanPath(root)

	zw := zip.NewWriter(w)
	method := zip.Deflate
	if b.opts.CompressionLevel == flate.NoCompression {
		method = zip.Store
	} else {
		level := b.opts.CompressionLevel
		zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
			return flate.NewWriter(out, level)
		})
	}

	walker := NewWalker(b.client, root)
	err := walker.Walk(ctx, func(step Step) error {
		for _, file := range step.Files {
			entry := b.entryFor(root, step.Path, file)
			written, err := b.writeEntry(ctx, zw, method, entry)
			stats.Bytes += written
			if err != nil {
				return err
			}
			stats.Entries++
		}
		return nil
	})
	if err != nil {
		return stats, err
	}

	if err := zw.Close(); err != nil {
		return stats, err
	}
	return stats, nil
}

func (b *ArchiveBuilder) entryFor(root, dir string, file Entry) ArchiveEntry {
	remotePath := JoinPath(dir, file.Name)
	return ArchiveEntry{
		Name:    ArchiveName(root, remotePath),
		Size:    file.Size,
		ModTime: file.ModTime,
		Open: func() (*ChunkReader, error) {
			return openChunkReader(b.client, remotePath, nil, b.opts.ChunkSize)
		},
	}
}

func (b *ArchiveBuilder) writeEntry(ctx context.Context, zw *zip.Writer, method uint16, entry ArchiveEntry) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	src, err := entry.Open()
	if err != nil {
		return 0, err
	}
	defer src.Close()

	header := &zip.FileHeader{
		Name:     entry.Name,
		Method:   method,
		Modified: entry.ModTime,
	}
	header.SetMode(0o644)

	dst, err := zw.CreateHeader(header)
	if err != nil {
		return 0, err
	}

	written, err := src.CopyTo(ctx, dst)
	if err != nil {
		return written, err
	}
	if b.opts.OnEntry != nil {
		b.opts.OnEntry(entry.Name, written)
	}
	// Push compressed bytes downstream now instead of when the next entry fills the buffer.
	return written, zw.Flush()
}

// ArchiveName returns the archive-relative name of remotePath under root: forward
// slashes, no leading slash, no empty or "." segments.
func ArchiveName(root, remotePath string) string {
	root = CleanPath(root)
	rel := CleanPath(remotePath)

	switch {
	case rel == root:
		rel = ""
	case root == ".":
	case root == "/":
		rel = strings.TrimPrefix(rel, "/")
	case strings.HasPrefix(rel, root+"/"):
		rel = rel[len(root)+1:]
	}

	segments := strings.Split(rel, "/")
	kept := segments[:0]
	for _, segment := range segments {
		if segment == "" || segment == "." {
			continue
		}
		kept = append(kept, segment)
	}
	return strings.Join(kept, "/")
}
