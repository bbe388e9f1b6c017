// Package cli implements ragctl, the operator tool for inspecting persisted
// session indexes and watching chat events.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"rag-chat-be/internal/bootstrap"
	"rag-chat-be/internal/config"
	"rag-chat-be/internal/pkg/logger"
	"rag-chat-be/pkg/database"
	"rag-chat-be/pkg/rag/vectorindex"
)

// NewRootCmd builds the ragctl command tree. Configuration comes from the
// same environment and .env file as the server.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ragctl",
		Short:         "Inspect session indexes and chat events",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(newInspectCmd(), newSearchCmd(), newEventsCmd())
	return root
}

// openPersister opens the configured index store, connecting to the database
// or redis only when that store needs it.
func openPersister(ctx context.Context, cfg *config.Config) (vectorindex.Persister, func() error, error) {
	var db *gorm.DB
	if cfg.Rag.IndexStore == config.IndexStorePostgres {
		conn, err := database.NewGormDBFromDSN(cfg.Database.Connection, false)
		if err != nil {
			return nil, nil, fmt.Errorf("connect database: %w", err)
		}
		db = conn
	}

	rdb, err := bootstrap.OpenRedis(ctx, redisURLFor(cfg), logger.NewNopLogger())
	if err != nil {
		return nil, nil, err
	}

	persister, closePersister, err := bootstrap.OpenIndexPersister(cfg.Rag, db, rdb)
	if err != nil {
		if rdb != nil {
			rdb.Close()
		}
		return nil, nil, err
	}
	return persister, func() error {
		if rdb != nil {
			rdb.Close()
		}
		return closePersister()
	}, nil
}

func redisURLFor(cfg *config.Config) string {
	if cfg.Rag.IndexStore != config.IndexStoreRedis {
		return ""
	}
	return cfg.App.RedisURL
}
