package jobs

import (
	"context"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joestump/bio-links/internal/metrics"
	"github.com/joestump/bio-links/internal/store"
	"github.com/joestump/bio-links/internal/testutil"
)

func TestClickRetention(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	users := store.NewUserStore(db)
	links := store.NewLinkStore(db, store.NewProfileStore(db))
	clicks := store.NewClickStore(db)

	u, err := users.Upsert(ctx, "test", "owner", "owner@example.com", "Owner")
	require.NoError(t, err)
	link, err := links.Create(ctx, u.ID, store.LinkInput{Title: "Site", URL: "https://example.com"})
	require.NoError(t, err)
	require.NoError(t, clicks.RecordClick(ctx, store.ClickEvent{LinkID: link.ID}))

	job := &ClickRetention{Clicks: clicks, MaxAge: 24 * time.Hour}
	assert.Equal(t, "@every 1h", job.Schedule())

	require.NoError(t, job.Run(ctx))
	counts, err := clicks.CountsByOwner(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[link.ID], "recent clicks are kept")

	before := promtest.ToFloat64(metrics.ClicksPurgedTotal)
	job.MaxAge = -time.Hour
	require.NoError(t, job.Run(ctx))
	counts, err = clicks.CountsByOwner(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, counts)
	assert.Equal(t, before+1, promtest.ToFloat64(metrics.ClicksPurgedTotal))
}

func TestUserCount(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	users := store.NewUserStore(db)
	for _, sub := range []string{"a", "b", "c"} {
		_, err := users.Upsert(ctx, "test", sub, sub+"@example.com", sub)
		require.NoError(t, err)
	}

	require.NoError(t, (&UserCount{Users: users}).Run(ctx))
	assert.Equal(t, float64(3), promtest.ToFloat64(metrics.UsersTotal))
}
