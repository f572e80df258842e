package transfer_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/sftpgate/internal/sftp/sftptest"
	"github.com/charlesng35/sftpgate/internal/transfer"
)

func payload(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

func TestChunkReaderChunkSizes(t *testing.T) {
	for _, tc := range []struct {
		size  int
		chunk int
	}{
		{0, transfer.DefaultChunkSize},
		{1, transfer.DefaultChunkSize},
		{transfer.DefaultChunkSize - 1, transfer.DefaultChunkSize},
		{transfer.DefaultChunkSize, transfer.DefaultChunkSize},
		{transfer.DefaultChunkSize + 1, transfer.DefaultChunkSize},
		{3*transfer.DefaultChunkSize + 7, transfer.DefaultChunkSize},
		{95, 10},
	} {
		data := payload(tc.size)
		fs := sftptest.NewFS().AddFile("/f.bin", data)

		r, err := transfer.OpenChunkReader(fs, "/f.bin", tc.chunk)
		require.NoError(t, err)
		require.EqualValues(t, tc.size, r.Info().Size())

		var (
			total int
			got   bytes.Buffer
			first *byte
		)
		for {
			chunk, err := r.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			require.NoError(t, err)
			require.NotEmpty(t, chunk)
			require.LessOrEqual(t, len(chunk), tc.chunk)
			if first == nil {
				first = &chunk[0]
			} else {
				require.Same(t, first, &chunk[0], "chunks must reuse one buffer")
			}
			total += len(chunk)
			got.Write(chunk)
		}

		require.Equal(t, tc.size, total)
		require.Equal(t, data, got.Bytes()[:total])
		require.EqualValues(t, tc.size, r.BytesRead())
		require.Zero(t, fs.OpenHandles(), "file must be closed at EOF")
	}
}

func TestChunkReaderZeroLengthFile(t *testing.T) {
	fs := sftptest.NewFS().AddFile("/empty", nil)

	r, err := transfer.OpenChunkReader(fs, "/empty", 0)
	require.NoError(t, err)

	chunk, err := r.Next()
	require.Equal(t, io.EOF, err)
	require.Nil(t, chunk)
	require.Zero(t, fs.OpenHandles())
}

func TestChunkReaderRejectsDirectory(t *testing.T) {
	fs := sftptest.NewFS().AddDir("/dir")

	_, err := transfer.OpenChunkReader(fs, "/dir", 0)
	require.ErrorIs(t, err, transfer.ErrIsDirectory)
	require.Zero(t, fs.CountCalls(sftptest.OpOpen, "/dir"))
}

func TestChunkReaderInfoSkipsStat(t *testing.T) {
	fs := sftptest.NewFS().AddDir("/dir").AddFile("/dir/a.bin", payload(100))
	info, err := fs.Stat("/dir/a.bin")
	require.NoError(t, err)

	r, err := transfer.OpenChunkReaderInfo(fs, "/dir/a.bin", info, 64)
	require.NoError(t, err)
	require.Equal(t, 1, fs.CountCalls(sftptest.OpStat, "/dir/a.bin"))
	require.Equal(t, info, r.Info())

	var out bytes.Buffer
	n, err := r.CopyTo(context.Background(), &out)
	require.NoError(t, err)
	require.EqualValues(t, 100, n)
	require.Equal(t, payload(100), out.Bytes())

	dirInfo, err := fs.Stat("/dir")
	require.NoError(t, err)
	_, err = transfer.OpenChunkReaderInfo(fs, "/dir", dirInfo, 0)
	require.ErrorIs(t, err, transfer.ErrIsDirectory)
}

func TestChunkReaderMissingFile(t *testing.T) {
	_, err := transfer.OpenChunkReader(sftptest.NewFS(), "/missing", 0)
	require.ErrorIs(t, err, transfer.ErrNotFound)
}

func TestChunkReaderEarlyClose(t *testing.T) {
	fs := sftptest.NewFS().AddFile("/big", payload(5*transfer.DefaultChunkSize))

	r, err := transfer.OpenChunkReader(fs, "/big", 0)
	require.NoError(t, err)
	_, err = r.Next()
	require.NoError(t, err)
	require.Equal(t, 1, fs.OpenHandles())

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	require.Zero(t, fs.OpenHandles())

	_, err = r.Next()
	require.Equal(t, io.EOF, err)
}

func TestChunkReaderReadFailure(t *testing.T) {
	boom := errors.New("link reset")
	fs := sftptest.NewFS().
		AddFile("/f", payload(1000)).
		FailAfter(sftptest.OpRead, "/f", 300, boom)

	r, err := transfer.OpenChunkReader(fs, "/f", 128)
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := r.CopyTo(context.Background(), &buf)
	require.ErrorIs(t, err, boom)
	require.EqualValues(t, 300, n)
	require.Zero(t, fs.OpenHandles())
}

type failingWriter struct{ after int }

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.after <= 0 {
		return 0, errors.New("client went away")
	}
	w.after--
	return len(p), nil
}

func TestChunkReaderCopyToClosesOnWriteFailure(t *testing.T) {
	fs := sftptest.NewFS().AddFile("/f", payload(10*transfer.DefaultChunkSize))

	r, err := transfer.OpenChunkReader(fs, "/f", 0)
	require.NoError(t, err)

	n, err := r.CopyTo(context.Background(), &failingWriter{after: 2})
	require.Error(t, err)
	require.EqualValues(t, 2*transfer.DefaultChunkSize, n)
	require.Zero(t, fs.OpenHandles())
}

type cancelWriter struct {
	cancel context.CancelFunc
	writes int
}

func (w *cancelWriter) Write(p []byte) (int, error) {
	w.writes++
	w.cancel()
	return len(p), nil
}

func TestChunkReaderCopyToStopsOnCancel(t *testing.T) {
	fs := sftptest.NewFS().AddFile("/f", payload(10*transfer.DefaultChunkSize))
	ctx, cancel := context.WithCancel(context.Background())

	r, err := transfer.OpenChunkReader(fs, "/f", 0)
	require.NoError(t, err)

	w := &cancelWriter{cancel: cancel}
	_, err = r.CopyTo(ctx, w)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, w.writes)
	require.Zero(t, fs.OpenHandles())
}

type recordingReader struct {
	r       io.Reader
	maxRead int
}

func (r *recordingReader) Read(p []byte) (int, error) {
	if len(p) > r.maxRead {
		r.maxRead = len(p)
	}
	return r.r.Read(p)
}

func TestWriteFile(t *testing.T) {
	fs := sftptest.NewFS().AddDir("/dest")
	data := payload(2*transfer.DefaultChunkSize + 11)
	src := &recordingReader{r: bytes.NewReader(data)}

	n, err := transfer.WriteFile(context.Background(), fs, "/dest/a.bin", src, 0)
	require.NoError(t, err)
	require.EqualValues(t, len(data), n)
	require.Equal(t, transfer.DefaultChunkSize, src.maxRead)

	got, ok := fs.ReadFile("/dest/a.bin")
	require.True(t, ok)
	require.Equal(t, data, got)
	require.Zero(t, fs.OpenHandles())
}

func TestWriteFileConflictLeavesDestinationUntouched(t *testing.T) {
	fs := sftptest.NewFS().AddFile("/dest/a.txt", []byte("original"))

	n, err := transfer.WriteFile(context.Background(), fs, "/dest/a.txt", bytes.NewReader([]byte("new")), 0)
	require.ErrorIs(t, err, transfer.ErrConflict)
	require.Zero(t, n)
	require.Zero(t, fs.CountCalls(sftptest.OpOpenFile, "/dest/a.txt"))

	got, _ := fs.ReadFile("/dest/a.txt")
	require.Equal(t, "original", string(got))
}

func TestWriteFileExclusiveCreateRace(t *testing.T) {
	fs := sftptest.NewFS().AddDir("/dest").Fail(sftptest.OpOpenFile, "/dest/a.txt", os.ErrExist)

	_, err := transfer.WriteFile(context.Background(), fs, "/dest/a.txt", bytes.NewReader([]byte("x")), 0)
	require.ErrorIs(t, err, transfer.ErrConflict)
}

func TestWriteFileRemovesPartialUpload(t *testing.T) {
	boom := errors.New("disk full")
	fs := sftptest.NewFS().AddDir("/dest").FailAfter(sftptest.OpWrite, "/dest/a.bin", transfer.DefaultChunkSize, boom)

	_, err := transfer.WriteFile(context.Background(), fs, "/dest/a.bin", bytes.NewReader(payload(3*transfer.DefaultChunkSize)), 0)
	require.ErrorIs(t, err, boom)
	require.False(t, fs.Exists("/dest/a.bin"))
	require.Zero(t, fs.OpenHandles())
}

func TestWriteFileStatFailure(t *testing.T) {
	fs := sftptest.NewFS().AddDir("/dest").Fail(sftptest.OpStat, "/dest/a.bin", os.ErrPermission)

	_, err := transfer.WriteFile(context.Background(), fs, "/dest/a.bin", bytes.NewReader([]byte("x")), 0)
	require.ErrorIs(t, err, transfer.ErrPermissionDenied)
	require.False(t, fs.Exists("/dest/a.bin"))
}
