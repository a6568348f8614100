// Package qdrant serves the nearest-neighbor index from a Qdrant collection.
// Point ids are index positions; the chunk ids live in the shared id map.
package qdrant

import (
	"context"
	"errors"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"safetyqa/internal/domain"
	"safetyqa/internal/index"
)

// Config contains connection details for a Qdrant collection.
type Config struct {
	Host       string
	Port       int
	APIKey     string
	Collection string
	UseTLS     bool
}

// Index is a thin client over one collection using dot-product distance.
// Ties are returned in whatever order Qdrant produces.
type Index struct {
	client     *qdrant.Client
	collection string
	dimension  int
	count      int
}

var (
	_ index.NearestNeighborIndex = (*Index)(nil)
	_ index.Builder              = (*Index)(nil)
)

// Open connects to Qdrant and reads the collection's size and dimension when the
// collection already exists.
func Open(ctx context.Context, cfg Config) (*Index, error) {
	if cfg.Collection == "" {
		return nil, errors.New("qdrant collection name is required")
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	x := &Index{client: client, collection: cfg.Collection}

	exists, err := client.CollectionExists(ctx, cfg.Collection)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("qdrant collection check: %w", err)
	}
	if exists {
		if err := x.refresh(ctx); err != nil {
			client.Close()
			return nil, err
		}
	}
	return x, nil
}

// Recreate drops the collection if present and creates an empty one for vectors
// of the given dimension.
func (x *Index) Recreate(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	exists, err := x.client.CollectionExists(ctx, x.collection)
	if err != nil {
		return err
	}
	if exists {
		if err := x.client.DeleteCollection(ctx, x.collection); err != nil {
			return fmt.Errorf("qdrant drop %s: %w", x.collection, err)
		}
	}
	err = x.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: x.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Dot,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant create %s: %w", x.collection, err)
	}
	x.dimension = dimension
	x.count = 0
	return nil
}

// Add upserts vectors at the next positions and waits for them to be indexed.
func (x *Index) Add(ctx context.Context, vectors [][]float64) error {
	if len(vectors) == 0 {
		return nil
	}
	points := make([]*qdrant.PointStruct, len(vectors))
	for i, v := range vectors {
		if len(v) != x.dimension {
			return fmt.Errorf("%w: got %d, want %d", domain.ErrDimensionMismatch, len(v), x.dimension)
		}
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(uint64(x.count + i)),
			Vectors: qdrant.NewVectors(toFloat32(v)...),
		}
	}
	_, err := x.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: x.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	x.count += len(vectors)
	return nil
}

// Search queries the collection for the k nearest points.
func (x *Index) Search(ctx context.Context, query []float64, k int) ([]index.Neighbor, error) {
	if k <= 0 || x.count == 0 {
		return nil, nil
	}
	if len(query) != x.dimension {
		return nil, fmt.Errorf("%w: query has %d, index has %d", domain.ErrDimensionMismatch, len(query), x.dimension)
	}
	points, err := x.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: x.collection,
		Query:          qdrant.NewQuery(toFloat32(query)...),
		Limit:          qdrant.PtrOf(uint64(k)),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant query: %w", err)
	}
	out := make([]index.Neighbor, 0, len(points))
	for _, p := range points {
		out = append(out, index.Neighbor{
			Position: int(p.GetId().GetNum()),
			Score:    float64(p.GetScore()),
		})
	}
	return out, nil
}

// Len returns the number of points in the collection.
func (x *Index) Len() int { return x.count }

// Dimension returns the configured vector size of the collection.
func (x *Index) Dimension() int { return x.dimension }

// Close releases the gRPC connection.
func (x *Index) Close() error { return x.client.Close() }

func (x *Index) refresh(ctx context.Context) error {
	info, err := x.client.GetCollectionInfo(ctx, x.collection)
	if err != nil {
		return fmt.Errorf("qdrant collection info: %w", err)
	}
	x.count = int(info.GetPointsCount())
	x.dimension = int(info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize())
	return nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}
