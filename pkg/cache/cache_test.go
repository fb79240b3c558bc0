package cache

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestSaveAndLookup(t *testing.T) {
	c := openTestCache(t)

	err := c.Save(Result{
		FileHash:     "hash-1",
		FilePath:     "/photos/pic.jpg",
		IsWatercolor: true,
		Confidence:   0.92,
		TopLabel:     "a watercolor painting",
		Probs:        map[string]float64{"a watercolor painting": 0.92},
		Tags:         []string{"Watercolor85"},
	})
	require.NoError(t, err)

	res, err := c.Lookup("/photos/pic.jpg", nil)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.IsWatercolor)
	assert.Equal(t, 0.92, res.Confidence)
	assert.Equal(t, "a watercolor painting", res.TopLabel)
	assert.Equal(t, []string{"Watercolor85"}, res.Tags)
	assert.Equal(t, "image", res.MediaType)
}

func TestLookup_Miss(t *testing.T) {
	c := openTestCache(t)

	res, err := c.Lookup("/nowhere.jpg", func() (string, error) {
		return "no-such-hash", nil
	})
	require.NoError(t, err)
	assert.Nil(t, res)
}

// Файл переехал между запусками: находится по хэшу, путь обновляется.
func TestLookup_RehomesByHash(t *testing.T) {
	c := openTestCache(t)

	require.NoError(t, c.Save(Result{
		FileHash:   "stable-hash",
		FilePath:   "/old/location.jpg",
		Confidence: 0.5,
	}))

	res, err := c.Lookup("/new/location.jpg", func() (string, error) {
		return "stable-hash", nil
	})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "/new/location.jpg", res.FilePath)

	// Последующий поиск по новому пути попадает сразу
	res2, err := c.Lookup("/new/location.jpg", nil)
	require.NoError(t, err)
	require.NotNil(t, res2)
	assert.Equal(t, "stable-hash", res2.FileHash)
}

// Повторное Save того же хэша перезаписывает, а не дублирует.
func TestSave_UpsertByHash(t *testing.T) {
	c := openTestCache(t)

	require.NoError(t, c.Save(Result{FileHash: "h", FilePath: "/a.jpg", Confidence: 0.4}))
	require.NoError(t, c.Save(Result{FileHash: "h", FilePath: "/a.jpg", Confidence: 0.8, IsWatercolor: true}))

	res, err := c.Lookup("/a.jpg", nil)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 0.8, res.Confidence)
	assert.True(t, res.IsWatercolor)

	stats, err := c.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
}

func TestUpdateMovedLocation(t *testing.T) {
	c := openTestCache(t)

	require.NoError(t, c.Save(Result{FileHash: "h", FilePath: "/before.jpg"}))
	require.NoError(t, c.UpdateMovedLocation("h", "/after.jpg"))

	res, err := c.Lookup("/after.jpg", nil)
	require.NoError(t, err)
	require.NotNil(t, res)
}

func TestUpdateImmichInfo(t *testing.T) {
	c := openTestCache(t)

	require.NoError(t, c.Save(Result{FileHash: "h", FilePath: "/pic.jpg"}))
	require.NoError(t, c.UpdateImmichInfo("h", "asset-42", []string{"Watercolor85", "Painting"}))

	res, err := c.Lookup("/pic.jpg", nil)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "asset-42", res.ImmichID)
	assert.Equal(t, []string{"Watercolor85", "Painting"}, res.Tags)
}

func TestStats(t *testing.T) {
	c := openTestCache(t)

	require.NoError(t, c.Save(Result{FileHash: "h1", FilePath: "/1.jpg", IsWatercolor: true}))
	require.NoError(t, c.Save(Result{FileHash: "h2", FilePath: "/2.jpg"}))
	require.NoError(t, c.Save(Result{FileHash: "h3", FilePath: "/3.mp4", MediaType: "video", IsWatercolor: true}))

	stats, err := c.Stats()
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Watercolors)
	assert.Equal(t, 1, stats.Videos)
}
