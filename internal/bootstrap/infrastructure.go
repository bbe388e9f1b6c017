package bootstrap

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"rag-chat-be/internal/config"
	"rag-chat-be/internal/pkg/logger"
	"rag-chat-be/internal/repository/implementation"
	"rag-chat-be/pkg/rag/vectorindex"
)

const bootstrapModule = "BOOTSTRAP"

// OpenRedis connects to url, which may be a redis:// URL or a bare address.
// An empty url yields a nil client: live events then stay on this instance.
func OpenRedis(ctx context.Context, url string, log logger.ILogger) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}

	opt, err := redis.ParseURL(url)
	if err != nil {
		log.Warn(bootstrapModule, "Failed to parse Redis URL, using it as address", map[string]interface{}{"error": err.Error()})
		opt = &redis.Options{Addr: url}
	}

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// OpenIndexPersister builds the persister selected by INDEX_STORE. The
// returned close function releases the backing store and is never nil.
func OpenIndexPersister(cfg config.RAGConfig, db *gorm.DB, rdb *redis.Client) (vectorindex.Persister, func() error, error) {
	noop := func() error { return nil }

	switch cfg.IndexStore {
	case config.IndexStoreFile, "":
		store, err := vectorindex.NewFileArtifactStore(cfg.IndexPath)
		if err != nil {
			return nil, noop, err
		}
		return vectorindex.NewBlobPersister(store), noop, nil
	case config.IndexStoreBolt:
		store, err := vectorindex.NewBoltArtifactStore(cfg.IndexPath)
		if err != nil {
			return nil, noop, err
		}
		return vectorindex.NewBlobPersister(store), store.Close, nil
	case config.IndexStoreRedis:
		if rdb == nil {
			return nil, noop, fmt.Errorf("index store %q needs REDIS_URL", cfg.IndexStore)
		}
		return vectorindex.NewBlobPersister(vectorindex.NewRedisArtifactStore(rdb)), noop, nil
	case config.IndexStorePostgres:
		if db == nil {
			return nil, noop, fmt.Errorf("index store %q needs DB_CONNECTION_STRING", cfg.IndexStore)
		}
		return implementation.NewSessionIndexPersister(db), noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown index store %q", cfg.IndexStore)
	}
}
