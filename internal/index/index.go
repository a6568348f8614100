// Package index defines the nearest-neighbor index port and the table that maps
// index positions back to chunk ids.
package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotBuilt is returned when an index or id map file is missing.
var ErrNotBuilt = errors.New("index not built")

// Neighbor is one hit of a nearest-neighbor search. Score is the inner product
// between the query and the stored vector.
type Neighbor struct {
	Position int
	Score    float64
}

// NearestNeighborIndex searches L2-normalized vectors by inner product.
// Results are ordered by descending score and never exceed k.
type NearestNeighborIndex interface {
	Search(ctx context.Context, query []float64, k int) ([]Neighbor, error)
	Len() int
	Dimension() int
}

// Builder receives the vectors of an offline index build, in position order.
type Builder interface {
	Add(ctx context.Context, vectors [][]float64) error
}

// IDMap translates index positions to chunk ids.
type IDMap []int64

// ChunkID returns the chunk id stored at position.
func (m IDMap) ChunkID(position int) (int64, error) {
	if position < 0 || position >= len(m) {
		return 0, fmt.Errorf("position %d outside id map of size %d", position, len(m))
	}
	return m[position], nil
}

// LoadIDMap reads a JSON array of chunk ids.
func LoadIDMap(path string) (IDMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: id map %s missing", ErrNotBuilt, path)
		}
		return nil, err
	}
	var ids IDMap
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("decode id map %s: %w", path, err)
	}
	return ids, nil
}

// SaveIDMap writes ids as a JSON array, creating directories as needed.
func SaveIDMap(path string, ids IDMap) error {
	if ids == nil {
		ids = IDMap{}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
