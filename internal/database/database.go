package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/temcen/lotus/internal/config"
)

type Database struct {
	PG *pgxpool.Pool
	// Neo4j is nil when no graph is configured.
	Neo4j  neo4j.DriverWithContext
	Redis  *RedisClients
	logger *logrus.Logger
}

type RedisClients struct {
	Hot  *redis.Client
	Warm *redis.Client
}

func New(cfg *config.Config, logger *logrus.Logger) (*Database, error) {
	db := &Database{
		logger: logger,
	}

	if err := db.initPostgreSQL(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}

	if cfg.Neo4j.URL != "" {
		if err := db.initNeo4j(cfg); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize Neo4j: %w", err)
		}
	} else {
		logger.Info("Neo4j not configured, related ingredient lookups disabled")
	}

	if err := db.initRedis(cfg); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize Redis: %w", err)
	}

	return db, nil
}

func (db *Database) initPostgreSQL(cfg *config.Config) error {
	config, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to parse PostgreSQL config: %w", err)
	}

	config.MaxConns = int32(cfg.Database.MaxConnections)
	config.MaxConnIdleTime = cfg.Database.MaxIdleTime
	config.MaxConnLifetime = cfg.Database.MaxLifetime
	config.ConnConfig.ConnectTimeout = cfg.Database.ConnectTimeout

	// Binary vector codec; requires the vector extension.
	if cfg.Database.UseVectorIndex {
		config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			return pgxvec.RegisterTypes(ctx, conn)
		}
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return fmt.Errorf("failed to create PostgreSQL pool: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	db.PG = pool
	db.logger.WithField("vector_index", cfg.Database.UseVectorIndex).Info("PostgreSQL connection established")
	return nil
}

func (db *Database) initNeo4j(cfg *config.Config) error {
	driver, err := neo4j.NewDriverWithContext(
		cfg.Neo4j.URL,
		neo4j.BasicAuth(cfg.Neo4j.Username, cfg.Neo4j.Password, ""),
		func(config *neo4j.Config) {
			config.MaxConnectionPoolSize = 10
			config.ConnectionAcquisitionTimeout = 30 * time.Second
		},
	)
	if err != nil {
		return fmt.Errorf("failed to create Neo4j driver: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return fmt.Errorf("failed to verify Neo4j connectivity: %w", err)
	}

	db.Neo4j = driver
	db.logger.Info("Neo4j connection established")
	return nil
}

func (db *Database) initRedis(cfg *config.Config) error {
	db.Redis = &RedisClients{}

	// Hot: rate limiting
	db.Redis.Hot = newRedisClient(cfg.Redis.Hot)
	// Warm: shared similarity search cache
	db.Redis.Warm = newRedisClient(cfg.Redis.Warm)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.Redis.Hot.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping Redis Hot: %w", err)
	}

	if err := db.Redis.Warm.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping Redis Warm: %w", err)
	}

	db.logger.Info("Redis connections established")
	return nil
}

func newRedisClient(cfg config.RedisInstanceConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.URL,
		MaxRetries:   cfg.MaxRetries,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})
}

func (db *Database) Close() error {
	var errs []error

	if db.PG != nil {
		db.PG.Close()
		db.logger.Info("PostgreSQL connection closed")
	}

	if db.Neo4j != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := db.Neo4j.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to close Neo4j: %w", err))
		} else {
			db.logger.Info("Neo4j connection closed")
		}
	}

	if db.Redis != nil {
		if db.Redis.Hot != nil {
			if err := db.Redis.Hot.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close Redis Hot: %w", err))
			}
		}
		if db.Redis.Warm != nil {
			if err := db.Redis.Warm.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close Redis Warm: %w", err))
			}
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("errors closing database connections: %w", err)
	}
	return nil
}
