package vectorindex

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"rag-chat-be/pkg/rag/ragerr"
)

// RedisArtifactStore keeps artifacts under rag:index:<session>:<kind>, which
// lets several API instances share persisted indexes.
type RedisArtifactStore struct {
	client *redis.Client
}

var _ BatchArtifactStore = (*RedisArtifactStore)(nil)

func NewRedisArtifactStore(client *redis.Client) *RedisArtifactStore {
	return &RedisArtifactStore{client: client}
}

func redisKey(sessionId string, kind ArtifactKind) string {
	return fmt.Sprintf("rag:index:%s:%s", sessionId, kind)
}

func (s *RedisArtifactStore) Put(ctx context.Context, sessionId string, kind ArtifactKind, data []byte) error {
	return s.client.Set(ctx, redisKey(sessionId, kind), data, 0).Err()
}

// PutAll sets every artifact inside one MULTI/EXEC.
func (s *RedisArtifactStore) PutAll(ctx context.Context, sessionId string, artifacts map[ArtifactKind][]byte) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for kind, data := range artifacts {
			pipe.Set(ctx, redisKey(sessionId, kind), data, 0)
		}
		return nil
	})
	return err
}

func (s *RedisArtifactStore) Get(ctx context.Context, sessionId string, kind ArtifactKind) ([]byte, error) {
	data, err := s.client.Get(ctx, redisKey(sessionId, kind)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ragerr.ErrNotFound
	}
	return data, err
}

func (s *RedisArtifactStore) Delete(ctx context.Context, sessionId string, kind ArtifactKind) error {
	return s.client.Del(ctx, redisKey(sessionId, kind)).Err()
}
