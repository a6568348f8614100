// Package store persists ingested chunks. The bbolt store is the production
// backend; Memory serves fixtures and tests.
package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"safetyqa/internal/domain"
)

var bucketChunks = []byte("chunks")

// BoltStore keeps chunks as JSON values keyed by their big-endian id, so a
// cursor walks them in id order.
type BoltStore struct {
	db *bbolt.DB
}

var (
	_ domain.ChunkReader = (*BoltStore)(nil)
	_ domain.ChunkWriter = (*BoltStore)(nil)
)

// Options control how the database file is opened.
type Options struct {
	ReadOnly bool
}

// Open opens (and, unless read-only, creates) the chunk database at path.
func Open(path string, opts Options) (*BoltStore, error) {
	if opts.ReadOnly {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("open chunk store: %w", err)
		}
	} else if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second, ReadOnly: opts.ReadOnly})
	if err != nil {
		return nil, err
	}
	if !opts.ReadOnly {
		err = db.Update(func(tx *bbolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists(bucketChunks)
			return err
		})
		if err != nil {
			db.Close()
			return nil, err
		}
	}
	return &BoltStore{db: db}, nil
}

// Close releases the database file.
func (s *BoltStore) Close() error { return s.db.Close() }

// Append stores chunks in one transaction, assigning ids from the bucket
// sequence. Ids start at 1 and are never reused.
func (s *BoltStore) Append(ctx context.Context, chunks []domain.NewChunk) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(chunks))
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketChunks)
		for _, nc := range chunks {
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			c := domain.Chunk{
				ID:          int64(seq),
				Text:        nc.Text,
				SourceTitle: nc.SourceTitle,
				SourceURL:   nc.SourceURL,
			}
			data, err := json.Marshal(c)
			if err != nil {
				return err
			}
			if err := b.Put(idKey(c.ID), data); err != nil {
				return err
			}
			ids = append(ids, c.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// All returns every chunk ordered by id.
func (s *BoltStore) All(ctx context.Context) ([]domain.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var chunks []domain.Chunk
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketChunks)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var c domain.Chunk
			if err := json.Unmarshal(v, &c); err != nil {
				return fmt.Errorf("decode chunk %d: %w", binary.BigEndian.Uint64(k), err)
			}
			chunks = append(chunks, c)
			return nil
		})
	})
	return chunks, err
}

// Get returns the chunk with the given id.
func (s *BoltStore) Get(ctx context.Context, id int64) (domain.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return domain.Chunk{}, err
	}
	var c domain.Chunk
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketChunks)
		if b == nil {
			return fmt.Errorf("%w: %d", domain.ErrChunkNotFound, id)
		}
		data := b.Get(idKey(id))
		if data == nil {
			return fmt.Errorf("%w: %d", domain.ErrChunkNotFound, id)
		}
		return json.Unmarshal(data, &c)
	})
	return c, err
}

// Count returns the number of stored chunks.
func (s *BoltStore) Count() (int, error) {
	n := 0
	err := s.db.View(func(tx *bbolt.Tx) error {
		if b := tx.Bucket(bucketChunks); b != nil {
			n = b.Stats().KeyN
		}
		return nil
	})
	return n, err
}

func idKey(id int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(id))
	return b
}
