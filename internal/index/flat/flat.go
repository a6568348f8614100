// Package flat is an exact inner-product index persisted to a bbolt file.
package flat

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"safetyqa/internal/domain"
	"safetyqa/internal/embedding"
	"safetyqa/internal/index"
)

var (
	bucketMeta    = []byte("meta")
	bucketVectors = []byte("vectors")
	keyDimension  = []byte("dimension")
	keyCount      = []byte("count")
)

// Index scores every stored vector against the query. Vectors are expected to
// be L2-normalized, so the score is cosine similarity.
//
// Ties are broken by ascending position: the candidate order is the insertion
// order and the sort is stable.
type Index struct {
	mu        sync.RWMutex
	dimension int
	vectors   [][]float64
}

var (
	_ index.NearestNeighborIndex = (*Index)(nil)
	_ index.Builder              = (*Index)(nil)
)

// New returns an empty index for vectors of the given dimension.
func New(dimension int) *Index { return &Index{dimension: dimension} }

// Add appends vectors at the next positions.
func (x *Index) Add(_ context.Context, vectors [][]float64) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, v := range vectors {
		if len(v) != x.dimension {
			return fmt.Errorf("%w: got %d, want %d", domain.ErrDimensionMismatch, len(v), x.dimension)
		}
	}
	x.vectors = append(x.vectors, vectors...)
	return nil
}

// Len returns the number of stored vectors.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.vectors)
}

// Dimension returns the vector dimension of the index.
func (x *Index) Dimension() int { return x.dimension }

// Search returns the k positions with the highest inner product. k larger than
// the index returns every position; an empty index returns nothing.
func (x *Index) Search(_ context.Context, query []float64, k int) ([]index.Neighbor, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if k <= 0 || len(x.vectors) == 0 {
		return nil, nil
	}
	if len(query) != x.dimension {
		return nil, fmt.Errorf("%w: query has %d, index has %d", domain.ErrDimensionMismatch, len(query), x.dimension)
	}

	scores := make([]float64, len(x.vectors))
	for i, v := range x.vectors {
		scores[i] = embedding.Dot(v, query)
	}
	positions := make([]int, len(scores))
	for i := range positions {
		positions[i] = i
	}
	sort.SliceStable(positions, func(a, b int) bool {
		return scores[positions[a]] > scores[positions[b]]
	})

	if k > len(positions) {
		k = len(positions)
	}
	out := make([]index.Neighbor, k)
	for i := 0; i < k; i++ {
		p := positions[i]
		out[i] = index.Neighbor{Position: p, Score: scores[p]}
	}
	return out, nil
}

// Save writes the index to a fresh bbolt file at path, replacing any previous one.
func (x *Index) Save(path string) error {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return err
	}
	defer db.Close()

	return db.Update(func(tx *bbolt.Tx) error {
		meta, err := tx.CreateBucket(bucketMeta)
		if err != nil {
			return err
		}
		if err := meta.Put(keyDimension, encodeUint(uint64(x.dimension))); err != nil {
			return err
		}
		if err := meta.Put(keyCount, encodeUint(uint64(len(x.vectors)))); err != nil {
			return err
		}
		vb, err := tx.CreateBucket(bucketVectors)
		if err != nil {
			return err
		}
		for i, v := range x.vectors {
			if err := vb.Put(encodeUint(uint64(i)), encodeVector(v)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Load reads an index written by Save. The file is opened read-only.
func Load(path string) (*Index, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s missing", index.ErrNotBuilt, path)
		}
		return nil, err
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second, ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer db.Close()

	x := &Index{}
	err = db.View(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		vb := tx.Bucket(bucketVectors)
		if meta == nil || vb == nil {
			return fmt.Errorf("%s is not a flat index", path)
		}
		x.dimension = int(decodeUint(meta.Get(keyDimension)))
		count := int(decodeUint(meta.Get(keyCount)))
		x.vectors = make([][]float64, 0, count)

		c := vb.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if pos := int(decodeUint(k)); pos != len(x.vectors) {
				return fmt.Errorf("flat index %s: gap at position %d", path, len(x.vectors))
			}
			vec := decodeVector(v)
			if len(vec) != x.dimension {
				return fmt.Errorf("%w: stored vector has %d, index has %d", domain.ErrDimensionMismatch, len(vec), x.dimension)
			}
			x.vectors = append(x.vectors, vec)
		}
		if len(x.vectors) != count {
			return fmt.Errorf("flat index %s: expected %d vectors, found %d", path, count, len(x.vectors))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return x, nil
}

func encodeUint(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func decodeUint(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func encodeVector(vec []float64) []byte {
	b := make([]byte, 8*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint64(b[i*8:], math.Float64bits(f))
	}
	return b
}

// decodeVector copies out of b; bbolt values are only valid inside the transaction.
func decodeVector(b []byte) []float64 {
	vec := make([]float64, len(b)/8)
	for i := range vec {
		vec[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return vec
}
