package transfer_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/sftpgate/internal/sftp/sftptest"
	"github.com/charlesng35/sftpgate/internal/transfer"
)

func callIndex(calls []sftptest.Call, op sftptest.Op, path string) int {
	for i, c := range calls {
		if c.Op == op && c.Path == path {
			return i
		}
	}
	return -1
}

func TestRemoveAllFileThenParent(t *testing.T) {
	fs := sftptest.NewFS().
		AddFile("/d1/a.txt", []byte("a")).
		AddFile("/d1/sub/b.txt", []byte("b"))

	require.NoError(t, transfer.RemoveAll(context.Background(), fs, "/d1/a.txt"))
	require.NoError(t, transfer.RemoveAll(context.Background(), fs, "/d1"))

	require.False(t, fs.Exists("/d1/a.txt"))
	require.False(t, fs.Exists("/d1"))
	require.Empty(t, fs.Paths())
}

func TestRemoveAllChildrenBeforeParents(t *testing.T) {
	fs := sftptest.NewFS().
		AddFile("/top/x.txt", []byte("x")).
		AddFile("/top/mid/y.txt", []byte("y")).
		AddFile("/top/mid/low/z.txt", []byte("z")).
		AddDir("/top/side")

	require.NoError(t, transfer.RemoveAll(context.Background(), fs, "/top"))
	require.Empty(t, fs.Paths())

	calls := fs.Calls()
	order := func(op sftptest.Op, p string) int {
		i := callIndex(calls, op, p)
		require.GreaterOrEqual(t, i, 0, "%s %s not issued", op, p)
		return i
	}

	require.Less(t, order(sftptest.OpRemove, "/top/mid/low/z.txt"), order(sftptest.OpRemoveDirectory, "/top/mid/low"))
	require.Less(t, order(sftptest.OpRemoveDirectory, "/top/mid/low"), order(sftptest.OpRemoveDirectory, "/top/mid"))
	require.Less(t, order(sftptest.OpRemove, "/top/mid/y.txt"), order(sftptest.OpRemoveDirectory, "/top/mid"))
	require.Less(t, order(sftptest.OpRemoveDirectory, "/top/mid"), order(sftptest.OpRemoveDirectory, "/top"))
	require.Less(t, order(sftptest.OpRemoveDirectory, "/top/side"), order(sftptest.OpRemoveDirectory, "/top"))
	require.Less(t, order(sftptest.OpRemove, "/top/x.txt"), order(sftptest.OpRemoveDirectory, "/top"))
}

func TestRemoveAllMissing(t *testing.T) {
	err := transfer.RemoveAll(context.Background(), sftptest.NewFS(), "/ghost")
	require.ErrorIs(t, err, transfer.ErrNotFound)
}

func TestRemoveAllStopsOnChildFailure(t *testing.T) {
	fs := sftptest.NewFS().
		AddFile("/d/keep.txt", []byte("k")).
		Fail(sftptest.OpRemove, "/d/keep.txt", os.ErrPermission)

	err := transfer.RemoveAll(context.Background(), fs, "/d")
	require.ErrorIs(t, err, transfer.ErrPermissionDenied)
	require.True(t, fs.Exists("/d/keep.txt"))
	require.Zero(t, fs.CountCalls(sftptest.OpRemoveDirectory, "/d"))
}

func TestRemoveAllHonoursCancellation(t *testing.T) {
	fs := sftptest.NewFS().AddFile("/d/a.txt", []byte("a"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, transfer.RemoveAll(ctx, fs, "/d"), context.Canceled)
	require.True(t, fs.Exists("/d/a.txt"))
}
