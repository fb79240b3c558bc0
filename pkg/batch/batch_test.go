package batch

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ilkoid/aquarel/pkg/classifier"
	"github.com/ilkoid/aquarel/pkg/config"
)

func TestCollectFiles(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		"a.jpg", "b.PNG", "c.mp4", "sub/d.webp", "sub/deep/e.mkv",
		"skip.txt", "skip.pdf",
	}
	for _, name := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	}

	got, err := CollectFiles(dir)
	require.NoError(t, err)

	// 5 поддерживаемых файлов, расширения без учёта регистра
	assert.Len(t, got, 5)
	for _, p := range got {
		assert.NotContains(t, p, "skip")
	}

	// Детерминированный порядок
	again, err := CollectFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

// fakeTagger запоминает вызовы тегирования.
type fakeTagger struct {
	assetIDs map[string]string // remote path -> asset id
	ensured  []string
	applied  map[string][]string // tag name -> asset ids
	tagIDs   map[string]string   // tag name -> tag id
}

func newFakeTagger() *fakeTagger {
	return &fakeTagger{
		assetIDs: make(map[string]string),
		applied:  make(map[string][]string),
		tagIDs:   make(map[string]string),
	}
}

func (f *fakeTagger) EnsureTag(_ context.Context, name string) (string, error) {
	f.ensured = append(f.ensured, name)
	id := "tag-" + name
	f.tagIDs[name] = id
	return id, nil
}

func (f *fakeTagger) AddTagToAssets(_ context.Context, tagID string, assetIDs []string) error {
	for name, id := range f.tagIDs {
		if id == tagID {
			f.applied[name] = append(f.applied[name], assetIDs...)
		}
	}
	return nil
}

func (f *fakeTagger) AssetIDByPath(_ context.Context, remotePath string) (string, error) {
	return f.assetIDs[remotePath], nil
}

func TestTagAssets_GroupsByTag(t *testing.T) {
	tagger := newFakeTagger()
	tagger.assetIDs["/photos/wc1.jpg"] = "asset-1"
	tagger.assetIDs["/photos/wc2.jpg"] = "asset-2"
	tagger.assetIDs["/photos/oil.jpg"] = "asset-3"

	p := New(nil, nil, nil, tagger, nil, config.ClassifierConfig{})

	results := []FileResult{
		{FilePath: "/photos/wc1.jpg", IsWatercolor: true, Confidence: 0.9, TopLabel: classifier.LabelWatercolor},
		{FilePath: "/photos/wc2.jpg", IsWatercolor: true, Confidence: 0.88, TopLabel: classifier.LabelWatercolor},
		{FilePath: "/photos/oil.jpg", Confidence: 0.1, TopLabel: classifier.LabelOil},
	}

	tagged, err := p.TagAssets(context.Background(), results)
	require.NoError(t, err)

	// Оба watercolor попали в один батч Watercolor85 и в основной тег
	assert.ElementsMatch(t, []string{"asset-1", "asset-2"}, tagger.applied["Watercolor85"])
	assert.ElementsMatch(t, []string{"asset-1", "asset-2"}, tagger.applied["Watercolor"])
	// Все три — живопись
	assert.ElementsMatch(t, []string{"asset-1", "asset-2", "asset-3"}, tagger.applied["Painting"])
	assert.Greater(t, tagged, 0)
}

func TestTagAssets_SkipsUnresolvedAndErrored(t *testing.T) {
	tagger := newFakeTagger() // пустой: ни один путь не резолвится

	p := New(nil, nil, nil, tagger, nil, config.ClassifierConfig{})

	results := []FileResult{
		{FilePath: "/unknown.jpg", IsWatercolor: true, Confidence: 0.9, TopLabel: classifier.LabelWatercolor},
		{FilePath: "/broken.jpg", Err: assert.AnError},
	}

	tagged, err := p.TagAssets(context.Background(), results)
	require.NoError(t, err)
	assert.Zero(t, tagged)
	assert.Empty(t, tagger.applied)
}

func TestSummarize(t *testing.T) {
	results := []FileResult{
		{MediaType: "image", IsWatercolor: true},
		{MediaType: "image", FromCache: true},
		{MediaType: "video", IsWatercolor: true},
		{MediaType: "error", Err: assert.AnError},
	}

	s := Summarize(results, 2)
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 2, s.Images)
	assert.Equal(t, 1, s.Videos)
	assert.Equal(t, 2, s.Watercolors)
	assert.Equal(t, 1, s.Errors)
	assert.Equal(t, 1, s.FromCache)
	assert.Equal(t, 2, s.Tagged)
}
