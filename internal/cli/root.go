// Package cli implements tourctl, the operator tool for tooltip registries
// and per-user tour state.
package cli

import (
	"context"
	"fmt"

	"loyalty-rewards-be/internal/config"
	"loyalty-rewards-be/internal/repository/implementation"
	"loyalty-rewards-be/pkg/database"
	"loyalty-rewards-be/pkg/tour"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// StoreOpener returns the tour store to operate on and a function that
// releases it.
type StoreOpener func(ctx context.Context) (tour.Store, func(), error)

// NewRootCmd builds the tourctl command tree.
func NewRootCmd(open StoreOpener) *cobra.Command {
	root := &cobra.Command{
		Use:           "tourctl",
		Short:         "Inspect tooltip registries and user tour state",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(NewRegistryCmd())
	root.AddCommand(NewSeenCmd(open))
	root.AddCommand(NewFlagCmd(open))
	return root
}

// OpenConfiguredStore opens the store selected by TOUR_STORE, the same way
// the API server does.
func OpenConfiguredStore(ctx context.Context) (tour.Store, func(), error) {
	cfg := config.Load()

	switch cfg.Tour.Store {
	case config.StoreRedis:
		opt, err := redis.ParseURL(cfg.App.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opt)
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("redis unreachable: %w", err)
		}
		return implementation.NewRedisTourStateRepository(rdb), func() { _ = rdb.Close() }, nil

	case config.StorePostgres:
		db, err := database.NewGormDBFromDSN(cfg.Database.Connection, false)
		if err != nil {
			return nil, nil, err
		}
		release := func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
		return implementation.NewTourStateRepository(db), release, nil

	default:
		return nil, nil, fmt.Errorf("TOUR_STORE=%s keeps state inside the API process and cannot be inspected", cfg.Tour.Store)
	}
}
