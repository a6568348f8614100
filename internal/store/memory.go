package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"safetyqa/internal/domain"
)

// Memory is an in-process chunk store with the same id semantics as BoltStore.
type Memory struct {
	mu     sync.RWMutex
	chunks map[int64]domain.Chunk
	nextID int64
}

var (
	_ domain.ChunkReader = (*Memory)(nil)
	_ domain.ChunkWriter = (*Memory)(nil)
)

// NewMemory returns a store pre-loaded with chunks, which keep their ids.
func NewMemory(chunks ...domain.Chunk) *Memory {
	m := &Memory{chunks: make(map[int64]domain.Chunk, len(chunks))}
	for _, c := range chunks {
		m.chunks[c.ID] = c
		if c.ID > m.nextID {
			m.nextID = c.ID
		}
	}
	return m
}

func (m *Memory) Append(_ context.Context, chunks []domain.NewChunk) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int64, len(chunks))
	for i, nc := range chunks {
		m.nextID++
		m.chunks[m.nextID] = domain.Chunk{ID: m.nextID, Text: nc.Text, SourceTitle: nc.SourceTitle, SourceURL: nc.SourceURL}
		ids[i] = m.nextID
	}
	return ids, nil
}

func (m *Memory) All(context.Context) ([]domain.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Chunk, 0, len(m.chunks))
	for _, c := range m.chunks {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) Get(_ context.Context, id int64) (domain.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.chunks[id]
	if !ok {
		return domain.Chunk{}, fmt.Errorf("%w: %d", domain.ErrChunkNotFound, id)
	}
	return c, nil
}

func (m *Memory) Count() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks), nil
}
