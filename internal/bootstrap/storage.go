// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/AccelByte/extend-badge-engine/internal/config"
	"github.com/AccelByte/extend-badge-engine/pkg/activity"
	"github.com/AccelByte/extend-badge-engine/pkg/aggregate"
	"github.com/AccelByte/extend-badge-engine/pkg/assignment"
	"github.com/AccelByte/extend-badge-engine/pkg/badge"
	"github.com/AccelByte/extend-badge-engine/pkg/handler"
	"github.com/AccelByte/extend-badge-engine/pkg/storage/memstore"
	"github.com/AccelByte/extend-badge-engine/pkg/storage/mongostore"
	"github.com/AccelByte/extend-badge-engine/pkg/storage/redisstore"
	"github.com/AccelByte/extend-badge-engine/pkg/storage/sqlstore"
	"github.com/AccelByte/extend-badge-engine/pkg/user"
)

// primaryStore is what every storage driver provides.
type primaryStore interface {
	user.Store
	badge.Repository
	aggregate.History
	activity.Store
	assignment.Store
	assignment.Reader
	handler.Pinger
}

// Storage groups the stores the application is wired against.
type Storage struct {
	Users       user.Store
	Badges      badge.Repository
	History     aggregate.History
	Records     activity.Store
	Assignments assignment.Store
	Holdings    assignment.Reader

	// Health lists every backend by name for the health endpoints.
	Health map[string]handler.Pinger

	closers []func(context.Context) error
}

// InitStorage connects the storage driver selected by STORAGE_DRIVER and,
// when BADGE_SET_STORE=redis, moves badge ownership to Redis.
func InitStorage(ctx context.Context, cfg *config.Config) (*Storage, error) {
	s := &Storage{Health: make(map[string]handler.Pinger)}

	primary, err := s.openPrimary(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s.Users = primary
	s.Badges = primary
	s.History = primary
	s.Records = primary
	s.Assignments = primary
	s.Holdings = primary
	s.Health[cfg.StorageDriver] = primary

	if cfg.BadgeSetStore == config.BadgeSetRedis {
		client, err := redisstore.InitRedisClient(ctx, redisstore.Config{
			Host:       cfg.RedisHost,
			Port:       cfg.RedisPort,
			Password:   cfg.RedisPassword,
			DB:         cfg.RedisDB,
			MaxRetries: cfg.RedisMaxRetries,
		})
		if err != nil {
			_ = s.Close(ctx)
			return nil, fmt.Errorf("failed to init Redis: %w", err)
		}
		s.closers = append(s.closers, func(context.Context) error { return client.Close() })

		set := redisstore.NewBadgeSet(client)
		s.Assignments = set
		s.Holdings = set
		s.Health["redis"] = redisstore.NewHealthChecker(client)
		logrus.Info("badge sets stored in Redis")
	}

	return s, nil
}

func (s *Storage) openPrimary(ctx context.Context, cfg *config.Config) (primaryStore, error) {
	switch cfg.StorageDriver {
	case config.DriverPostgres, config.DriverSQLite:
		dsn := cfg.DatabaseURL
		if cfg.StorageDriver == config.DriverSQLite {
			dsn = cfg.SQLitePath
		}

		db, err := sqlstore.Open(ctx, sqlstore.Config{
			Driver:          cfg.StorageDriver,
			DSN:             dsn,
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxLifetime: cfg.DBConnLifetime,
			MaxRetries:      cfg.DBMaxRetries,
		})
		if err != nil {
			return nil, err
		}

		store := sqlstore.New(db)
		s.closers = append(s.closers, func(context.Context) error { return store.Close() })
		if err := store.Migrate(ctx); err != nil {
			_ = s.Close(ctx)
			return nil, err
		}
		return store, nil

	case config.DriverMongo:
		store, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, store.Close)
		if err := store.EnsureIndexes(ctx); err != nil {
			_ = s.Close(ctx)
			return nil, err
		}
		return store, nil

	case config.DriverMemory:
		logrus.Warn("using in-memory storage; data is lost on restart")
		return memstore.New(), nil

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

// Close releases every backend connection, last opened first.
func (s *Storage) Close(ctx context.Context) error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
