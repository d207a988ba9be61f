package cache

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type catalogPage struct {
	IDs   []string `json:"ids"`
	Cloud float64  `json:"cloud"`
}

func TestSetAndGet(t *testing.T) {
	fc := NewFileCache[catalogPage](t.TempDir(), "catalog", 0)
	key := fc.GenerateKey("plot-1", 2024, 3)

	require.NoError(t, fc.Set(key, catalogPage{IDs: []string{"a", "b"}, Cloud: 12.5}))

	got, ok := fc.Get(key)
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, got.IDs)
	assert.Equal(t, 12.5, got.Cloud)
}

func TestGenerateKeyIsStable(t *testing.T) {
	fc := NewFileCache[int](t.TempDir(), "x", 0)
	assert.Equal(t, fc.GenerateKey("a", 1), fc.GenerateKey("a", 1))
	assert.NotEqual(t, fc.GenerateKey("a", 1), fc.GenerateKey("a", 2))
}

func TestGetMissingKey(t *testing.T) {
	fc := NewFileCache[int](t.TempDir(), "x", 0)
	_, ok := fc.Get("nope")
	assert.False(t, ok)
}

func TestTamperedEntryIsIgnored(t *testing.T) {
	fc := NewFileCache[catalogPage](t.TempDir(), "catalog", 0)
	require.NoError(t, fc.Set("k", catalogPage{IDs: []string{"a"}}))

	tampered := `{"data":{"ids":["z"],"cloud":0},"created_at":"2024-01-01T00:00:00Z","checksum":"deadbeef"}`
	require.NoError(t, os.WriteFile(fc.path("k"), []byte(tampered), 0644))

	_, ok := fc.Get("k")
	assert.False(t, ok)
}

func TestExpiredEntryIsIgnored(t *testing.T) {
	fc := NewFileCache[int](t.TempDir(), "x", time.Hour)
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	fc.now = func() time.Time { return start }
	require.NoError(t, fc.Set("k", 7))

	fc.now = func() time.Time { return start.Add(30 * time.Minute) }
	got, ok := fc.Get("k")
	require.True(t, ok)
	assert.Equal(t, 7, got)

	fc.now = func() time.Time { return start.Add(2 * time.Hour) }
	_, ok = fc.Get("k")
	assert.False(t, ok)
}
