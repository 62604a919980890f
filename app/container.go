package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"

	"github.com/RezaEskandarii/procengine/engine"
	"github.com/RezaEskandarii/procengine/internal/callback"
	"github.com/RezaEskandarii/procengine/internal/db"
	"github.com/RezaEskandarii/procengine/internal/executor"
	"github.com/RezaEskandarii/procengine/internal/intake"
	"github.com/RezaEskandarii/procengine/internal/lock"
	"github.com/RezaEskandarii/procengine/internal/message_broaker"
	"github.com/RezaEskandarii/procengine/internal/store"
	"github.com/RezaEskandarii/procengine/supervisor"
	"github.com/RezaEskandarii/procengine/types/config"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

// Container holds all application dependencies. It is the single source of truth
// for dependency injection and ensures connections and services are created once.
type Container struct {
	Config *config.EngineConfig
	Logger *slog.Logger

	// Storage connections (created once, shared by the store and the lock managers)
	DB    *sql.DB
	Redis *redis.Client

	JobStore store.JobStore

	// Infrastructure. Lock managers are nil when their backend is not configured.
	PostgresLocks lock.DistributedLockManager
	RedisLocks    lock.DistributedLockManager
	Gate          engine.Gate
	MessageBroker message_broaker.MessageBroker

	Executor   *executor.Executor
	Engine     *engine.Engine
	Intake     *intake.Consumer
	Retention  *supervisor.Retention
	Supervisor *supervisor.Supervisor
}

// NewContainer creates and wires all dependencies. Single entry point for DI.
// Call this once per application lifecycle; the returned Supervisor owns every
// connection and closes them when its Run returns.
// Pass optional WithDB, WithRedis, WithMessageBroker to inject connections for testing.
func NewContainer(ctx context.Context, cfg *config.EngineConfig, opts ...ContainerOption) (c *Container, err error) {
	opt := &containerConfig{}
	for _, o := range opts {
		o(opt)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := opt.logger
	if logger == nil {
		logger = slog.Default()
	}

	c = &Container{Config: cfg, Logger: logger}
	built := c
	defer func() {
		if err != nil {
			for _, cl := range built.closers() {
				cl.Close()
			}
		}
	}()

	if cfg.StorageDriver == config.Postgres {
		c.DB = opt.db
		if c.DB == nil {
			if c.DB, err = db.Open(ctx, cfg.PostgresConfig.ConnectionUrl); err != nil {
				return nil, fmt.Errorf("init storage: %w", err)
			}
		}
		c.PostgresLocks = lock.NewPostgresDistributedLockManager(c.DB)
		if err = db.Init(ctx, c.DB, c.PostgresLocks); err != nil {
			return nil, fmt.Errorf("migrate storage: %w", err)
		}
	}

	if c.JobStore, err = createJobStore(cfg.StorageDriver, c.DB, logger.With("component", "store")); err != nil {
		return nil, err
	}

	if cfg.GateDriver == config.RedisLeader {
		c.Redis = opt.redis
		if c.Redis == nil {
			if c.Redis, err = setupRedis(ctx, cfg.RedisConfig); err != nil {
				return nil, err
			}
		}
		c.RedisLocks = lock.NewRedisDistributedLockManager(c.Redis, cfg.LockTTL)
	}

	if c.Gate, err = createGate(cfg.GateDriver, c.PostgresLocks, c.RedisLocks); err != nil {
		return nil, err
	}

	c.MessageBroker = opt.broker
	if c.MessageBroker == nil && cfg.RabbitMQConfig != nil && cfg.RabbitMQConfig.URL != "" {
		if c.MessageBroker, err = setupRabbitMQ(cfg); err != nil {
			return nil, err
		}
	}

	var appClient executor.AppClient
	if cfg.AppCallback.BaseURL != "" {
		appClient = callback.NewClient(cfg.AppCallback.BaseURL, cfg.AppCallback.APIKey, cfg.AppCallback.Timeout)
	}
	c.Executor = newExecutor(appClient, c.MessageBroker, logger)

	c.Engine = engine.New(cfg, c.JobStore, c.Executor,
		engine.WithGate(c.Gate),
		engine.WithLogger(logger.With("component", "engine")),
	)

	supervisorOpts := []supervisor.Option{
		supervisor.WithLogger(logger),
		supervisor.WithClosers(c.closers()...),
	}

	if leader, ok := c.Gate.(*lock.LeaderGate); ok {
		supervisorOpts = append(supervisorOpts, supervisor.WithResigner(leader))
	}

	if cfg.IntakeQueue != "" {
		if c.MessageBroker == nil {
			return nil, fmt.Errorf("intake queue %q needs a rabbitmq connection", cfg.IntakeQueue)
		}
		c.Intake = intake.NewConsumer(c.MessageBroker, c.Engine, cfg.IntakeQueue, logger,
			intake.WithRequeueBackoff(cfg.StatusCheckBackoff))
		supervisorOpts = append(supervisorOpts, supervisor.WithRunners(c.Intake))
	}

	if cfg.RetentionSchedule != "" {
		c.Retention, err = supervisor.NewRetention(c.JobStore, c.retentionLocks(), cfg.RetentionSchedule, cfg.RetentionPeriod, logger)
		if err != nil {
			return nil, err
		}
		supervisorOpts = append(supervisorOpts, supervisor.WithRetention(c.Retention))
	}

	c.Supervisor = supervisor.New(c.Engine, cfg, supervisorOpts...)
	return c, nil
}

// closers lists the open connections in shutdown order: the broker first,
// then the lock managers, then the store, which owns the shared *sql.DB.
func (c *Container) closers() []io.Closer {
	var out []io.Closer
	if c.MessageBroker != nil {
		out = append(out, c.MessageBroker)
	}
	if c.RedisLocks != nil {
		out = append(out, c.RedisLocks)
	}
	if c.PostgresLocks != nil {
		out = append(out, c.PostgresLocks)
	}
	switch {
	case c.JobStore != nil:
		out = append(out, c.JobStore)
	case c.DB != nil:
		out = append(out, c.DB)
	}
	if c.Redis != nil {
		out = append(out, c.Redis)
	}
	return out
}

// retentionLocks picks the lock backend the instances already coordinate through.
func (c *Container) retentionLocks() lock.DistributedLockManager {
	if c.RedisLocks != nil {
		return c.RedisLocks
	}
	if c.PostgresLocks != nil {
		return c.PostgresLocks
	}
	return nil
}

// Run blocks until ctx is done or the engine gives up; see supervisor.Supervisor.Run.
func (c *Container) Run(ctx context.Context) error {
	return c.Supervisor.Run(ctx)
}
