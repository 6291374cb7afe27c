package downloader

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachePutGet(t *testing.T) {
	cache, err := NewCache(t.TempDir(), 8)
	require.NoError(t, err)

	const url = "https://example.test/data.csv"

	_, ok := cache.Get(url)
	assert.False(t, ok)

	path, size, err := cache.Put(url, strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)

	got, ok := cache.Get(url)
	require.True(t, ok)
	assert.Equal(t, path, got)

	data, err := os.ReadFile(got)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestCacheSurvivesIndexEviction(t *testing.T) {
	dir := t.TempDir()
	cache, err := NewCache(dir, 8)
	require.NoError(t, err)

	const url = "https://example.test/data.csv"
	_, _, err = cache.Put(url, strings.NewReader("persisted"))
	require.NoError(t, err)

	// A fresh cache over the same directory has a cold index but finds the
	// file via stat.
	reopened, err := NewCache(dir, 8)
	require.NoError(t, err)
	_, ok := reopened.Get(url)
	assert.True(t, ok)
}

func TestCacheRemove(t *testing.T) {
	cache, err := NewCache(t.TempDir(), 8)
	require.NoError(t, err)

	const url = "https://example.test/data.csv"
	path, _, err := cache.Put(url, strings.NewReader("x"))
	require.NoError(t, err)

	cache.Remove(url)
	_, ok := cache.Get(url)
	assert.False(t, ok)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestCacheKeysDistinctURLs(t *testing.T) {
	cache, err := NewCache(t.TempDir(), 8)
	require.NoError(t, err)

	pathA, _, err := cache.Put("https://example.test/a", strings.NewReader("a"))
	require.NoError(t, err)
	pathB, _, err := cache.Put("https://example.test/b", strings.NewReader("b"))
	require.NoError(t, err)
	assert.NotEqual(t, pathA, pathB)
}
