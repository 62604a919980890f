package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/RezaEskandarii/procengine/engine"
	"github.com/RezaEskandarii/procengine/internal/constants"
	"github.com/RezaEskandarii/procengine/internal/executor"
	"github.com/RezaEskandarii/procengine/internal/lock"
	"github.com/RezaEskandarii/procengine/internal/message_broaker"
	"github.com/RezaEskandarii/procengine/internal/store"
	"github.com/RezaEskandarii/procengine/internal/store/memory"
	"github.com/RezaEskandarii/procengine/internal/store/postgres"
	"github.com/RezaEskandarii/procengine/types/config"
	"github.com/redis/go-redis/v9"
)

const redisPingTimeout = 2 * time.Second

func createJobStore(driver config.StorageDriver, db *sql.DB, logger *slog.Logger) (store.JobStore, error) {
	switch driver {
	case config.Postgres:
		return postgres.NewPostgresJobStore(db, postgres.WithLogger(logger)), nil
	case config.Memory:
		return memory.NewMemoryJobStore(), nil
	default:
		return nil, fmt.Errorf("unsupported storage driver: %v", driver)
	}
}

func createGate(driver config.GateDriver, pgLocks, redisLocks lock.DistributedLockManager) (engine.Gate, error) {
	switch driver {
	case config.AlwaysRun:
		return lock.AlwaysGate{}, nil
	case config.PostgresLeader:
		if pgLocks == nil {
			return nil, fmt.Errorf("gate driver %v needs postgres storage", driver)
		}
		return lock.NewLeaderGate(pgLocks, constants.ProcessEngineLock), nil
	case config.RedisLeader:
		if redisLocks == nil {
			return nil, fmt.Errorf("gate driver %v needs a redis connection", driver)
		}
		return lock.NewLeaderGate(redisLocks, constants.ProcessEngineLock), nil
	default:
		return nil, fmt.Errorf("unsupported gate driver: %v", driver)
	}
}

func setupRedis(ctx context.Context, rc config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     rc.Address,
		Password: rc.Password,
		DB:       rc.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}
	return rdb, nil
}

// setupRabbitMQ dials the broker and declares the intake queue, bound under
// its own name, when one is configured.
func setupRabbitMQ(cfg *config.EngineConfig) (message_broaker.MessageBroker, error) {
	mq, err := message_broaker.NewRabbitMQ(
		cfg.RabbitMQConfig.URL,
		cfg.RabbitMQConfig.Exchange,
		cfg.RabbitMQConfig.ContentType,
	)
	if err != nil {
		return nil, fmt.Errorf("init rabbitmq: %w", err)
	}
	if cfg.IntakeQueue != "" {
		if err := mq.Bind(cfg.IntakeQueue, cfg.IntakeQueue); err != nil {
			mq.Close()
			return nil, err
		}
	}
	return mq, nil
}

func newExecutor(app executor.AppClient, broker message_broaker.MessageBroker, logger *slog.Logger) *executor.Executor {
	var publisher executor.Publisher
	if broker != nil {
		publisher = broker
	}
	return executor.New(app, publisher, logger.With("component", "executor"))
}
