package index

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDMap_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta", "id_map.json")
	require.NoError(t, SaveIDMap(path, IDMap{7, 3, 11}))

	ids, err := LoadIDMap(path)
	require.NoError(t, err)
	assert.Equal(t, IDMap{7, 3, 11}, ids)

	id, err := ids.ChunkID(1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), id)

	_, err = ids.ChunkID(3)
	assert.Error(t, err)
	_, err = ids.ChunkID(-1)
	assert.Error(t, err)
}

func TestIDMap_EmptyIsArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "id_map.json")
	require.NoError(t, SaveIDMap(path, nil))

	ids, err := LoadIDMap(path)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestLoadIDMap_Missing(t *testing.T) {
	_, err := LoadIDMap(filepath.Join(t.TempDir(), "nope.json"))
	assert.ErrorIs(t, err, ErrNotBuilt)
}
