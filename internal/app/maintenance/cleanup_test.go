package maintenance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/sftpgate/internal/cache"
	testutil "github.com/charlesng35/sftpgate/internal/database/testutil"
	"github.com/charlesng35/sftpgate/internal/models"
)

type stubPruner struct {
	calls   int
	removed int64
	err     error
}

func (p *stubPruner) PruneExpired(context.Context) (int64, error) {
	p.calls++
	return p.removed, p.err
}

func TestCleanerRunOnceContinuesAfterFailure(t *testing.T) {
	failing := &stubPruner{err: errors.New("disk full")}
	healthy := &stubPruner{removed: 3}

	c := NewCleaner(
		WithPruner("database", failing),
		WithPruner("memory", healthy),
		WithPruner("nil", nil),
	)

	err := c.RunOnce(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "prune database")
	require.Equal(t, 1, failing.calls)
	require.Equal(t, 1, healthy.calls)
}

func TestCleanerRunOnceDatabaseStore(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	store := cache.NewDatabaseStore(db)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "stale", []byte("x"), time.Millisecond))
	require.NoError(t, store.Set(ctx, "fresh", []byte("y"), time.Hour))
	require.NoError(t, store.Set(ctx, "forever", []byte("z"), 0))
	time.Sleep(10 * time.Millisecond)

	c := NewCleaner(WithPruner("database", store))
	require.NoError(t, c.RunOnce(ctx))

	var count int64
	require.NoError(t, db.Model(&models.CacheEntry{}).Count(&count).Error)
	require.Equal(t, int64(2), count)
}

func TestCleanerStartSchedules(t *testing.T) {
	scheduler := cron.New(cron.WithLogger(cron.DiscardLogger))
	c := NewCleaner(
		WithCron(scheduler),
		WithSchedule("@every 1h"),
		WithPruner("memory", cache.NewMemoryStore()),
	)

	require.NoError(t, c.Start())
	<-c.Stop().Done()
	require.Len(t, scheduler.Entries(), 1)
}

func TestCleanerStartWithoutPruners(t *testing.T) {
	scheduler := cron.New(cron.WithLogger(cron.DiscardLogger))
	c := NewCleaner(WithCron(scheduler))

	require.NoError(t, c.Start())
	require.Empty(t, scheduler.Entries())
}

func TestCleanerStartRejectsBadSpec(t *testing.T) {
	c := NewCleaner(WithSchedule("not a spec"), WithPruner("memory", cache.NewMemoryStore()))
	require.Error(t, c.Start())
}
