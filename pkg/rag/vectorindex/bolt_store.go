package vectorindex

import (
	"context"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"rag-chat-be/pkg/rag/ragerr"
)

var (
	bucketIndex   = []byte("index")
	bucketRecords = []byte("records")
)

// BoltArtifactStore keeps every session's artifacts in one bbolt file, one
// bucket per artifact kind.
type BoltArtifactStore struct {
	db *bbolt.DB
}

var _ BatchArtifactStore = (*BoltArtifactStore)(nil)

func NewBoltArtifactStore(path string) (*BoltArtifactStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketIndex); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketRecords); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltArtifactStore{db: db}, nil
}

func bucketFor(kind ArtifactKind) ([]byte, error) {
	switch kind {
	case ArtifactIndex:
		return bucketIndex, nil
	case ArtifactRecords:
		return bucketRecords, nil
	default:
		return nil, fmt.Errorf("unknown artifact kind %q", kind)
	}
}

func (s *BoltArtifactStore) Put(_ context.Context, sessionId string, kind ArtifactKind, data []byte) error {
	bucket, err := bucketFor(kind)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(sessionId), data)
	})
}

// PutAll writes every artifact in a single bbolt transaction.
func (s *BoltArtifactStore) PutAll(_ context.Context, sessionId string, artifacts map[ArtifactKind][]byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for kind, data := range artifacts {
			bucket, err := bucketFor(kind)
			if err != nil {
				return err
			}
			if err := tx.Bucket(bucket).Put([]byte(sessionId), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltArtifactStore) Get(_ context.Context, sessionId string, kind ArtifactKind) ([]byte, error) {
	bucket, err := bucketFor(kind)
	if err != nil {
		return nil, err
	}
	var out []byte
	err = s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucket).Get([]byte(sessionId))
		if data == nil {
			return ragerr.ErrNotFound
		}
		// bbolt memory is only valid inside the transaction.
		out = append([]byte(nil), data...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BoltArtifactStore) Delete(_ context.Context, sessionId string, kind ArtifactKind) error {
	bucket, err := bucketFor(kind)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucket).Delete([]byte(sessionId))
	})
}

func (s *BoltArtifactStore) Close() error {
	return s.db.Close()
}
