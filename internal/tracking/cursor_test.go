package tracking

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_LoadMissing(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "tracking.json"))
	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, ErrNoCursor)
}

func TestFileStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "tracking.json")
	store := NewFileStore(path)

	cursor := Cursor{
		ServerHost: "localhost",
		ServerPort: 4222,
		ClusterID:  "pdl",
		ClientID:   "receiver-1",
		Subject:    "anss.realtime",
		Sequence:   41,
	}
	require.NoError(t, store.Save(ctx, cursor))

	cursor.Sequence = 42
	require.NoError(t, store.Save(ctx, cursor))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, cursor, loaded)
	assert.Equal(t, uint64(43), loaded.Next())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"serverHost":"localhost","serverPort":4222,"clusterId":"pdl","clientId":"receiver-1","subject":"anss.realtime","sequence":42}`, string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files should be left behind")
}

func TestFileStore_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracking.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))

	_, err := NewFileStore(path).Load(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoCursor)
}

func TestCursor_Matches(t *testing.T) {
	c := Cursor{ClusterID: "pdl", ClientID: "r1", Subject: "a"}
	assert.True(t, c.Matches("pdl", "r1", "a"))
	assert.False(t, c.Matches("pdl", "r1", "b"))
	assert.False(t, c.Matches("other", "r1", "a"))
	assert.Equal(t, uint64(1), Cursor{}.Next())
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, ErrNoCursor)

	require.NoError(t, store.Save(ctx, Cursor{Sequence: 3}))
	c, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), c.Sequence)
	assert.Equal(t, 1, store.Saves())
}
