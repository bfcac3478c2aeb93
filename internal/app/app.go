// Package app wires the store, the lesson core, the broadcast queue, the
// scheduler and the chat surface into one process.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/deutschbot/internal/backup"
	"github.com/example/deutschbot/internal/bot"
	"github.com/example/deutschbot/internal/broadcast"
	"github.com/example/deutschbot/internal/catalog"
	"github.com/example/deutschbot/internal/clock"
	"github.com/example/deutschbot/internal/config"
	"github.com/example/deutschbot/internal/database"
	"github.com/example/deutschbot/internal/excel"
	"github.com/example/deutschbot/internal/ledger"
	"github.com/example/deutschbot/internal/lesson"
	"github.com/example/deutschbot/internal/rng"
	"github.com/example/deutschbot/internal/scheduler"
	"github.com/example/deutschbot/internal/spaced_repetition"
	"github.com/example/deutschbot/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const lockTTL = 30 * time.Second

type App struct {
	Log       *logger.Logger
	Cfg       config.Config
	DB        *database.DB
	Repos     Repos
	Catalog   *catalog.Catalog
	Lessons   *lesson.Engine
	Reviews   *spaced_repetition.Store
	Queue     *broadcast.Queue
	DailyWord *broadcast.DailyWordEnqueuer
	Backup    *backup.Runner
	Importer  *excel.Importer
	Clock     clock.Clock

	redis *redis.Client
}

// New opens the store and builds everything that does not talk to Telegram
func New(cfg config.Config, log *logger.Logger) (*App, error) {
	return NewWithClock(cfg, log, clock.Real{Location: cfg.Location})
}

// NewWithClock is New with an explicit clock
func NewWithClock(cfg config.Config, log *logger.Logger, c clock.Clock) (*App, error) {
	db, err := database.Open(cfg.DBType, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	log.Info("database ready", "type", cfg.DBType)

	repos := wireRepos(db)
	r := rng.NewTimeSeeded()
	cat := catalog.New(repos.Words, repos.Topics, r)
	reviews := spaced_repetition.NewStore(repos.Repetition, c, log.With("component", "leitner"))

	engine := lesson.NewEngine(lesson.Deps{
		Profiles:     repos.Users,
		Catalog:      cat,
		Mastery:      reviews,
		Mistakes:     ledger.NewMistakes(repos.Mistakes, c, log.With("component", "mistakes")),
		Coverage:     ledger.NewCoverage(repos.Mistakes, c),
		Plans:        repos.Plans,
		Sessions:     repos.Sessions,
		Completions:  repos.Statistics,
		Clock:        c,
		Rand:         r,
		Log:          log.With("component", "lesson"),
		MistakeBlend: cfg.DailyMistakeBlend,
	})

	queue := broadcast.NewQueue(repos.Broadcast, c, log.With("component", "queue"))

	return &App{
		Log:       log,
		Cfg:       cfg,
		DB:        db,
		Repos:     repos,
		Catalog:   cat,
		Lessons:   engine,
		Reviews:   reviews,
		Queue:     queue,
		DailyWord: broadcast.NewDailyWordEnqueuer(queue, repos.Users, c, r, cfg.Location, log.With("component", "dailyword")),
		Backup:    backup.New(db, cfg.BackupDir, cfg.BackupKeep, c, log.With("component", "backup")),
		Importer:  excel.NewImporter(repos.Words, repos.Topics, log.With("component", "import")),
		Clock:     c,
	}, nil
}

// NewWorker builds a queue worker that sends through sender. Users whose
// chat is gone for good are flagged as blocked.
func (a *App) NewWorker(sender broadcast.Sender) *broadcast.Worker {
	w := broadcast.NewWorker(a.Queue, sender, broadcast.WorkerConfig{
		BatchSize:    a.Cfg.BroadcastClaimBatchSize,
		Concurrency:  a.Cfg.BroadcastSendConcurrency,
		MaxAttempts:  a.Cfg.BroadcastMaxAttempts,
		StaleSeconds: a.Cfg.BroadcastProcessingStaleSeconds,
	}, a.Log.With("component", "worker"))
	w.OnPermanent = func(ctx context.Context, userID int64) {
		if err := a.Repos.Users.MarkBlocked(ctx, userID, a.Clock.Now()); err != nil {
			a.Log.Warn("failed to mark user blocked", "user_id", userID, "error", err)
		}
	}
	return w
}

// NewLocker returns the Redis lease when REDIS_ADDR is set, else a lock file
func (a *App) NewLocker(ctx context.Context) (scheduler.Locker, error) {
	if a.Cfg.RedisAddr == "" {
		a.Log.Info("using file lock for scheduler leadership", "path", a.Cfg.LockFile)
		return scheduler.NewFileLock(a.Cfg.LockFile), nil
	}
	if a.redis == nil {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     a.Cfg.RedisAddr,
			Password: a.Cfg.RedisPassword,
		})
	}
	if err := a.redis.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis %s: %w", a.Cfg.RedisAddr, err)
	}
	lock := scheduler.NewRedisLock(a.redis, "", lockTTL)
	a.Log.Info("using redis lock for scheduler leadership", "addr", a.Cfg.RedisAddr, "ttl", lock.TTL(), "token", lock.Token())
	return lock, nil
}

// NewScheduler builds the leader-only job runner around drainer
func (a *App) NewScheduler(lock scheduler.Locker, drainer scheduler.Drainer) *scheduler.Scheduler {
	var bk scheduler.Backuper
	if a.DB.IsSQLite() {
		bk = a.Backup
	}
	return scheduler.New(scheduler.Config{
		Location:      a.Cfg.Location,
		DrainInterval: a.Cfg.DrainInterval(),
		BackupTimeUTC: a.Cfg.BackupTimeUTC,
		LockRefresh:   lockTTL / 3,
	}, lock, a.DailyWord, drainer, bk, a.Log.With("component", "scheduler"))
}

// Run starts the bot and, when this process wins the lock, the scheduler.
// It returns after ctx is cancelled and in-flight work has finished.
func (a *App) Run(ctx context.Context) error {
	if err := a.Cfg.Validate(); err != nil {
		return err
	}
	api, err := bot.NewAPI(a.Cfg.TelegramToken)
	if err != nil {
		return err
	}
	a.Log.Info("authorized on telegram", "account", api.Self.UserName)

	b := bot.New(api, bot.Deps{
		Lessons:   a.Lessons,
		Content:   a.Catalog,
		Profiles:  a.Repos.Users,
		Queue:     a.Queue,
		DailyWord: a.DailyWord,
		Reviews:   a.Reviews,
		Clock:     a.Clock,
	}, bot.Config{
		AdminUserID: a.Cfg.AdminUserID,
		PageSize:    a.Cfg.PageSize,
	}, a.Log.With("component", "bot"))

	lock, err := a.NewLocker(ctx)
	if err != nil {
		return err
	}
	sched := a.NewScheduler(lock, a.NewWorker(b.Transport()))
	leader, err := sched.Start(ctx)
	if err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	if !leader {
		a.Log.Info("running as follower, chat only")
	}

	err = b.Start(ctx)
	b.Stop()

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sched.Stop(stopCtx)

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases the store and the redis client
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.Log.Warn("failed to close redis client", "error", err)
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Log.Warn("failed to close database", "error", err)
		}
	}
	a.Log.Sync()
}
