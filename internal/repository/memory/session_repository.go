package memory

import (
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// SessionRepository caches per-session facts that every chat turn needs:
// the owning user and the names of the uploaded files. Entries expire, so
// the database stays the source of truth.
type SessionRepository struct {
	cache *cache.Cache
}

func NewSessionRepository() *SessionRepository {
	return NewSessionRepositoryWithTTL(1*time.Hour, 10*time.Minute)
}

func NewSessionRepositoryWithTTL(ttl, cleanup time.Duration) *SessionRepository {
	return &SessionRepository{
		cache: cache.New(ttl, cleanup),
	}
}

func ownerKey(sessionId uuid.UUID) string { return "owner:" + sessionId.String() }
func filesKey(sessionId uuid.UUID) string { return "files:" + sessionId.String() }

func (r *SessionRepository) SaveOwner(sessionId, userId uuid.UUID) {
	r.cache.Set(ownerKey(sessionId), userId, cache.DefaultExpiration)
}

func (r *SessionRepository) GetOwner(sessionId uuid.UUID) (uuid.UUID, bool) {
	if x, found := r.cache.Get(ownerKey(sessionId)); found {
		return x.(uuid.UUID), true
	}
	return uuid.Nil, false
}

// SaveFilenames records the session's uploaded files. An empty list is a
// valid entry meaning "no files".
func (r *SessionRepository) SaveFilenames(sessionId uuid.UUID, filenames []string) {
	stored := make([]string, len(filenames))
	copy(stored, filenames)
	r.cache.Set(filesKey(sessionId), stored, cache.DefaultExpiration)
}

func (r *SessionRepository) GetFilenames(sessionId uuid.UUID) ([]string, bool) {
	if x, ok := r.cache.Get(filesKey(sessionId)); ok {
		stored := x.([]string)
		out := make([]string, len(stored))
		copy(out, stored)
		return out, true
	}
	return nil, false
}

// ForgetFilenames invalidates the file list after an upload.
func (r *SessionRepository) ForgetFilenames(sessionId uuid.UUID) {
	r.cache.Delete(filesKey(sessionId))
}

func (r *SessionRepository) Delete(sessionId uuid.UUID) {
	r.cache.Delete(ownerKey(sessionId))
	r.cache.Delete(filesKey(sessionId))
}
