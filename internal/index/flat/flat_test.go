package flat

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"safetyqa/internal/domain"
	"safetyqa/internal/index"
)

func fixture(t *testing.T) *Index {
	t.Helper()
	x := New(2)
	require.NoError(t, x.Add(context.Background(), [][]float64{
		{1, 0},
		{0, 1},
		{0.6, 0.8},
		{1, 0},
	}))
	return x
}

func TestSearch_OrderAndBounds(t *testing.T) {
	x := fixture(t)
	ctx := context.Background()

	got, err := x.Search(ctx, []float64{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []int{0, 3, 2}, []int{got[0].Position, got[1].Position, got[2].Position})
	assert.InDelta(t, 0.6, got[2].Score, 1e-12)

	all, err := x.Search(ctx, []float64{0, 1}, 10)
	require.NoError(t, err)
	assert.Len(t, all, 4, "k beyond the index size returns everything")
	for i := 1; i < len(all); i++ {
		assert.GreaterOrEqual(t, all[i-1].Score, all[i].Score)
	}
}

func TestSearch_TiesKeepPositionOrder(t *testing.T) {
	x := New(1)
	require.NoError(t, x.Add(context.Background(), [][]float64{{0.5}, {0.5}, {0.5}}))

	got, err := x.Search(context.Background(), []float64{1}, 3)
	require.NoError(t, err)
	assert.Equal(t, []index.Neighbor{{Position: 0, Score: 0.5}, {Position: 1, Score: 0.5}, {Position: 2, Score: 0.5}}, got)
}

func TestSearch_EmptyAndDegenerate(t *testing.T) {
	ctx := context.Background()

	got, err := New(0).Search(ctx, nil, 3)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = fixture(t).Search(ctx, []float64{1, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = fixture(t).Search(ctx, []float64{1, 0, 0}, 1)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestAdd_RejectsWrongDimension(t *testing.T) {
	err := New(2).Add(context.Background(), [][]float64{{1, 0, 0}})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idx", "index.db")
	x := fixture(t)
	require.NoError(t, x.Save(path))
	require.NoError(t, x.Save(path), "saving twice replaces the file")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Dimension())
	assert.Equal(t, 4, loaded.Len())

	want, err := x.Search(context.Background(), []float64{0.6, 0.8}, 4)
	require.NoError(t, err)
	got, err := loaded.Search(context.Background(), []float64{0.6, 0.8}, 4)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.db"))
	assert.ErrorIs(t, err, index.ErrNotBuilt)
}
