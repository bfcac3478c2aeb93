package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/example/deutschbot/internal/clock"
	"github.com/example/deutschbot/internal/database"
	"github.com/example/deutschbot/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWritesAndPrunes(t *testing.T) {
	ctx := context.Background()
	db, err := database.Open("sqlite", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	c := clock.NewFixed(time.Date(2026, 2, 21, 21, 30, 0, 0, time.UTC))
	users := database.NewUserRepository(db)
	_, err = users.EnsureProfile(ctx, 42, c.Now())
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("keep me"), 0o644))

	r := New(db, dir, 2, c, logger.NewNop())
	for i := 0; i < 3; i++ {
		require.NoError(t, r.Run(ctx))
		c.Advance(24 * time.Hour)
	}

	names, err := r.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"backup-20260223-213000.db", "backup-20260222-213000.db"}, names)
	assert.FileExists(t, filepath.Join(dir, "notes.txt"))

	snapshot, err := database.Open("sqlite", filepath.Join(dir, names[0]))
	require.NoError(t, err)
	defer snapshot.Close()
	n, err := database.NewUserRepository(snapshot).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestListMissingDirectory(t *testing.T) {
	r := New(nil, filepath.Join(t.TempDir(), "absent"), 0, clock.NewFixed(time.Now()), logger.NewNop())
	names, err := r.List()
	require.NoError(t, err)
	assert.Empty(t, names)
	assert.Equal(t, DefaultKeep, r.keep)
}
