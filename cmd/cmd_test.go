package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/example/deutschbot/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("CONFIG_FILE", filepath.Join(dir, "missing.yaml"))
	t.Setenv("DB_TYPE", "sqlite")
	t.Setenv("DATABASE_URL", filepath.Join(dir, "bot.db"))
	t.Setenv("LOG_MODE", "prod")
	t.Setenv("BACKUP_DIR", filepath.Join(dir, "backups"))
	return dir
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute(), out.String())
	return out.String()
}

func TestImportThenQueueStats(t *testing.T) {
	dir := setupEnv(t)

	path := filepath.Join(dir, "words.csv")
	data := "level,de,uz\n" +
		"A1,der Tisch,stol\n" +
		"A1,die Lampe,chiroq\n" +
		"Z9,das Nichts,hech narsa\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	out := execute(t, "import", path)
	assert.Contains(t, out, "Words created:  2")
	assert.Contains(t, out, "Skipped:        1")

	out = execute(t, "import", path)
	assert.Contains(t, out, "Words updated:  2")

	out = execute(t, "queue", "stats")
	assert.Contains(t, out, "pending")
	assert.Contains(t, out, "failed")

	out = execute(t, "queue", "recover", "--stale-seconds", "60")
	assert.Contains(t, out, "Recovered 0 job(s)")
}

func TestImportRejectsUnknownLevel(t *testing.T) {
	setupEnv(t)
	rootCmd.SetArgs([]string{"import", "x.csv", "--level", "Z9"})
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	assert.Error(t, rootCmd.Execute())
}

func TestBackupCommand(t *testing.T) {
	setupEnv(t)
	out := execute(t, "backup")
	assert.Contains(t, out, "backup-")
}

func TestLearnerCommand(t *testing.T) {
	dir := setupEnv(t)
	ctx := context.Background()
	now := time.Date(2026, 2, 21, 9, 0, 0, 0, time.UTC)

	db, err := database.Open("sqlite", filepath.Join(dir, "bot.db"))
	require.NoError(t, err)
	plans := database.NewPlanRepository(db)
	require.NoError(t, plans.AppendAudit(ctx, 5, "2026-02-21", database.PlanGenerated, now))
	require.NoError(t, plans.AppendAudit(ctx, 5, "2026-02-21", database.PlanReused, now))
	require.NoError(t, plans.AppendAudit(ctx, 5, "2026-02-21", database.PlanReused, now))
	require.NoError(t, db.Close())

	out := execute(t, "learner", "5", "--date", "2026-02-21")
	assert.Contains(t, out, "Learner 5 on 2026-02-21")
	assert.Contains(t, out, "Plans generated: 1")
	assert.Contains(t, out, "Plans reused:    2")
	assert.Contains(t, out, "Completed:       no")

	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"learner", "abc"})
	assert.Error(t, rootCmd.Execute())
	rootCmd.SetArgs([]string{"learner", "5", "--date", "21.02.2026"})
	assert.Error(t, rootCmd.Execute())
}
