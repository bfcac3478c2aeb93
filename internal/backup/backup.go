// Package backup snapshots the SQLite store into a directory and keeps the
// newest few copies.
package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/example/deutschbot/internal/clock"
	"github.com/example/deutschbot/internal/database"
	"github.com/example/deutschbot/pkg/logger"
)

const (
	filePrefix  = "backup-"
	fileSuffix  = ".db"
	stampLayout = "20060102-150405"
	DefaultKeep = 7
)

type Runner struct {
	db    *database.DB
	dir   string
	keep  int
	clock clock.Clock
	log   *logger.Logger
}

func New(db *database.DB, dir string, keep int, c clock.Clock, log *logger.Logger) *Runner {
	if dir == "" {
		dir = "backups"
	}
	if keep < 1 {
		keep = DefaultKeep
	}
	return &Runner{db: db, dir: dir, keep: keep, clock: c, log: log}
}

// Run writes one snapshot and prunes old ones. On Postgres it only logs,
// backups there are the operator's job.
func (r *Runner) Run(ctx context.Context) error {
	if r.db.IsPostgres() {
		r.log.Info("skipping backup, postgres backups are managed externally")
		return nil
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	name := filePrefix + r.clock.Now().UTC().Format(stampLayout) + fileSuffix
	path := filepath.Join(r.dir, name)
	// VACUUM INTO takes no bind parameters in older SQLite builds
	stmt := "VACUUM INTO '" + strings.ReplaceAll(path, "'", "''") + "'"
	if _, err := r.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to write backup %s: %w", name, err)
	}

	removed, err := r.prune()
	if err != nil {
		return err
	}
	r.log.Info("backup written", "path", path, "pruned", removed)
	return nil
}

// List returns backup file names, newest first
func (r *Runner) List() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), filePrefix) || !strings.HasSuffix(e.Name(), fileSuffix) {
			continue
		}
		names = append(names, e.Name())
	}
	// the timestamp layout sorts lexically
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

func (r *Runner) prune() (int, error) {
	names, err := r.List()
	if err != nil {
		return 0, err
	}
	removed := 0
	for i := r.keep; i < len(names); i++ {
		if err := os.Remove(filepath.Join(r.dir, names[i])); err != nil {
			return removed, fmt.Errorf("failed to remove old backup: %w", err)
		}
		removed++
	}
	return removed, nil
}
