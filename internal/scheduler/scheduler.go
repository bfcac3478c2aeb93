// Package scheduler runs the periodic jobs of the leader process: the
// hourly daily-word enqueue, the queue drain and the daily backup.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/example/deutschbot/internal/broadcast"
	"github.com/example/deutschbot/pkg/logger"
	"github.com/go-co-op/gocron"
)

// Enqueuer produces the daily-word jobs of the current slot
type Enqueuer interface {
	EnqueueCurrentSlot(ctx context.Context) (int, error)
}

// Drainer sends one batch of queued jobs
type Drainer interface {
	Drain(ctx context.Context) (broadcast.DrainStats, error)
}

// Backuper copies the store somewhere safe
type Backuper interface {
	Run(ctx context.Context) error
}

type Config struct {
	// Location is the display timezone the hourly trigger fires in
	Location      *time.Location
	DrainInterval time.Duration
	// BackupTimeUTC is "HH:MM"; empty disables the backup job
	BackupTimeUTC string
	LockRefresh   time.Duration
}

// Scheduler manages scheduled tasks for the application
type Scheduler struct {
	cron     *gocron.Scheduler
	cfg      Config
	lock     Locker
	enqueuer Enqueuer
	drainer  Drainer
	backup   Backuper
	log      *logger.Logger

	leader atomic.Bool
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new scheduler instance. backup may be nil.
func New(cfg Config, lock Locker, enqueuer Enqueuer, drainer Drainer, backup Backuper, log *logger.Logger) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.DrainInterval <= 0 {
		cfg.DrainInterval = 5 * time.Second
	}
	if cfg.LockRefresh <= 0 {
		cfg.LockRefresh = 10 * time.Second
	}
	return &Scheduler{
		cron:     gocron.NewScheduler(cfg.Location),
		cfg:      cfg,
		lock:     lock,
		enqueuer: enqueuer,
		drainer:  drainer,
		backup:   backup,
		log:      log,
	}
}

// Start takes the leader lock and begins running all scheduled tasks.
// It reports false, without error, when another process is the leader.
func (s *Scheduler) Start(ctx context.Context) (bool, error) {
	ok, err := s.lock.Acquire(ctx)
	if err != nil {
		return false, err
	}
	if !ok {
		s.log.Warn("another process holds the scheduler lock, jobs disabled")
		return false, nil
	}
	s.leader.Store(true)

	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	if err := s.register(); err != nil {
		s.cron.Clear()
		_ = s.lock.Release(ctx)
		s.leader.Store(false)
		return false, err
	}

	s.cron.StartAsync()
	s.log.Info("scheduler started",
		"timezone", s.cfg.Location.String(),
		"drain_interval", s.cfg.DrainInterval.String(),
		"backup_time_utc", s.cfg.BackupTimeUTC,
	)
	return true, nil
}

func (s *Scheduler) register() error {
	if _, err := s.cron.Cron("0 * * * *").SingletonMode().Do(s.dailyWordJob); err != nil {
		return fmt.Errorf("failed to schedule daily word: %w", err)
	}
	if _, err := s.cron.Every(s.cfg.DrainInterval).SingletonMode().Do(s.drainJob); err != nil {
		return fmt.Errorf("failed to schedule queue drain: %w", err)
	}
	if _, err := s.cron.Every(s.cfg.LockRefresh).SingletonMode().Do(s.refreshJob); err != nil {
		return fmt.Errorf("failed to schedule lock refresh: %w", err)
	}
	if s.backup != nil && s.cfg.BackupTimeUTC != "" {
		at, err := LocalClock(s.cfg.BackupTimeUTC, s.cfg.Location)
		if err != nil {
			return err
		}
		if _, err := s.cron.Every(1).Day().At(at).SingletonMode().Do(s.backupJob); err != nil {
			return fmt.Errorf("failed to schedule backup: %w", err)
		}
	}
	return nil
}

// Stop terminates all scheduled tasks and gives up leadership
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	s.cron.Stop()
	if s.leader.Swap(false) {
		if err := s.lock.Release(ctx); err != nil {
			s.log.Error("failed to release scheduler lock", "error", err)
		}
	}
}

// IsLeader reports whether this process currently runs the jobs
func (s *Scheduler) IsLeader() bool {
	return s.leader.Load()
}

// Jobs returns the number of registered jobs
func (s *Scheduler) Jobs() int {
	return s.cron.Len()
}

// RunDailyWord enqueues the daily word for the current slot
func (s *Scheduler) RunDailyWord(ctx context.Context) (int, error) {
	n, err := s.enqueuer.EnqueueCurrentSlot(ctx)
	if err != nil {
		return 0, fmt.Errorf("daily word enqueue failed: %w", err)
	}
	return n, nil
}

// RunDrain sends one batch from the queue
func (s *Scheduler) RunDrain(ctx context.Context) (broadcast.DrainStats, error) {
	return s.drainer.Drain(ctx)
}

func (s *Scheduler) jobContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

func (s *Scheduler) dailyWordJob() {
	if !s.leader.Load() {
		return
	}
	n, err := s.RunDailyWord(s.jobContext())
	if err != nil {
		s.log.Error("daily word job failed", "error", err)
		return
	}
	s.log.Info("daily word job done", "enqueued", n)
}

func (s *Scheduler) drainJob() {
	if !s.leader.Load() {
		return
	}
	ctx := s.jobContext()
	if _, err := s.RunDrain(ctx); err != nil && ctx.Err() == nil {
		s.log.Error("queue drain failed", "error", err)
	}
}

func (s *Scheduler) backupJob() {
	if !s.leader.Load() {
		return
	}
	if err := s.backup.Run(s.jobContext()); err != nil {
		s.log.Error("backup failed", "error", err)
	}
}

func (s *Scheduler) refreshJob() {
	if !s.leader.Load() {
		return
	}
	if err := s.lock.Refresh(s.jobContext()); err != nil {
		// Jobs stay registered but become no-ops
		s.leader.Store(false)
		s.log.Error("scheduler lock lost, jobs disabled", "error", err)
	}
}

// LocalClock converts an "HH:MM" UTC time of day to the same instant in loc
func LocalClock(utcHHMM string, loc *time.Location) (string, error) {
	t, err := time.Parse("15:04", utcHHMM)
	if err != nil {
		return "", fmt.Errorf("invalid backup time %q: %w", utcHHMM, err)
	}
	now := time.Now().UTC()
	at := time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC)
	return at.In(loc).Format("15:04"), nil
}
