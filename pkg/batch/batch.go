// Package batch — пакетная классификация папки и тегирование в Immich.
//
// Обходит дерево файлов, классифицирует изображения и видео (с кэшем),
// затем группирует ассеты по тегам и вешает теги батчами — один
// API вызов на тег вместо вызова на файл.
package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ilkoid/aquarel/pkg/cache"
	"github.com/ilkoid/aquarel/pkg/classifier"
	"github.com/ilkoid/aquarel/pkg/config"
	"github.com/ilkoid/aquarel/pkg/hasher"
	"github.com/ilkoid/aquarel/pkg/immich"
	"github.com/ilkoid/aquarel/pkg/pathmap"
	"github.com/ilkoid/aquarel/pkg/utils"
	"github.com/ilkoid/aquarel/pkg/video"
)

// Поддерживаемые расширения.
var (
	imageExts = map[string]bool{
		".jpg": true, ".jpeg": true, ".png": true,
		".bmp": true, ".webp": true, ".tiff": true,
	}
	videoExts = map[string]bool{
		".mp4": true, ".avi": true, ".mov": true, ".mkv": true,
	}
)

// FileResult — результат обработки одного файла.
type FileResult struct {
	FilePath     string
	MediaType    string // "image" | "video" | "error"
	IsWatercolor bool
	Confidence   float64
	TopLabel     string
	FromCache    bool
	Err          error

	// Только для видео
	ProcessedFrames  int
	WatercolorFrames int
	PercentFrames    float64
	DurationSec      float64
}

// Summary — итоги прогона.
type Summary struct {
	Total       int
	Images      int
	Videos      int
	Watercolors int
	Errors      int
	FromCache   int
	Tagged      int
}

// Tagger — минимальный контракт Immich клиента для тегирования.
// Выделен в интерфейс ради тестов с моком.
type Tagger interface {
	EnsureTag(ctx context.Context, name string) (string, error)
	AddTagToAssets(ctx context.Context, tagID string, assetIDs []string) error
	AssetIDByPath(ctx context.Context, remotePath string) (string, error)
}

// Проверка что реальный клиент удовлетворяет контракту
var _ Tagger = (*immich.Client)(nil)

// Processor — оркестратор пакетной обработки.
type Processor struct {
	engine   *classifier.Engine
	videos   *video.Processor
	store    *cache.Cache
	tagger   Tagger
	resolver *pathmap.Resolver
	cfg      config.ClassifierConfig

	// ForceReprocess игнорирует кэш и классифицирует заново.
	ForceReprocess bool
	// MainTag — основной тег для watercolor ассетов (default из конфига).
	MainTag string
}

// New создает Processor. tagger и store могут быть nil:
// без tagger пропускается тегирование, без store — кэширование.
func New(engine *classifier.Engine, videos *video.Processor, store *cache.Cache,
	tagger Tagger, resolver *pathmap.Resolver, cfg config.ClassifierConfig) *Processor {
	return &Processor{
		engine:   engine,
		videos:   videos,
		store:    store,
		tagger:   tagger,
		resolver: resolver,
		cfg:      cfg.GetDefaults(),
		MainTag:  "Watercolor",
	}
}

// CollectFiles рекурсивно собирает поддерживаемые файлы.
// Возвращает отсортированный список для детерминизма прогонов.
func CollectFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if imageExts[ext] || videoExts[ext] {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	sort.Strings(files)
	return files, nil
}

// ProcessFolder обрабатывает все поддерживаемые файлы в папке.
//
// Отмена контекста (Ctrl+C) не теряет работу: уже собранные результаты
// возвращаются, кэш сохранён по ходу. Ошибка отдельного файла попадает
// в его FileResult и не прерывает батч.
func (p *Processor) ProcessFolder(ctx context.Context, folder string) ([]FileResult, error) {
	files, err := CollectFiles(folder)
	if err != nil {
		return nil, err
	}

	utils.Info("Batch started", "folder", folder, "files", len(files))

	results := make([]FileResult, 0, len(files))
	for _, path := range files {
		if ctx.Err() != nil {
			utils.Warn("Batch interrupted, returning partial results",
				"processed", len(results), "total", len(files))
			return results, ctx.Err()
		}

		res := p.processFile(ctx, path)
		results = append(results, res)
		if res.Err != nil {
			utils.Error("File processing failed", "path", path, "error", res.Err)
		}
	}

	return results, nil
}

func (p *Processor) processFile(ctx context.Context, path string) FileResult {
	ext := strings.ToLower(filepath.Ext(path))
	mediaType := "image"
	if videoExts[ext] {
		mediaType = "video"
	}

	res := FileResult{FilePath: path, MediaType: mediaType}

	// Кэш: поиск по пути, затем по хэшу (файл мог переехать)
	var fileHash string
	if p.store != nil && !p.ForceReprocess {
		cached, err := p.store.Lookup(path, func() (string, error) {
			h, err := hasher.Digest(path)
			fileHash = h
			return h, err
		})
		if err != nil {
			utils.Warn("Cache lookup failed", "path", path, "error", err)
		} else if cached != nil {
			res.IsWatercolor = cached.IsWatercolor
			res.Confidence = cached.Confidence
			res.TopLabel = cached.TopLabel
			res.FromCache = true
			return res
		}
	}

	switch mediaType {
	case "video":
		vres, err := p.videos.Process(ctx, path)
		if err != nil {
			res.Err = err
			res.MediaType = "error"
			return res
		}
		res.IsWatercolor = vres.IsWatercolor
		res.Confidence = vres.Confidence
		res.TopLabel = classifier.LabelWatercolor
		res.ProcessedFrames = vres.ProcessedFrames
		res.WatercolorFrames = vres.WatercolorFrames
		res.PercentFrames = vres.PercentFrames
		res.DurationSec = vres.DurationSec

	default:
		data, err := os.ReadFile(path)
		if err != nil {
			res.Err = fmt.Errorf("read file: %w", err)
			res.MediaType = "error"
			return res
		}
		c, err := p.engine.Classify(ctx, data)
		if err != nil {
			res.Err = err
			res.MediaType = "error"
			return res
		}
		res.IsWatercolor = c.IsWatercolor
		res.Confidence = c.Confidence
		res.TopLabel = c.TopLabel
	}

	p.saveToCache(path, fileHash, res)
	return res
}

// saveToCache сохраняет результат; ошибка кэша не валит обработку.
func (p *Processor) saveToCache(path, fileHash string, res FileResult) {
	if p.store == nil {
		return
	}
	if fileHash == "" {
		h, err := hasher.Digest(path)
		if err != nil {
			utils.Warn("Hash for cache save failed", "path", path, "error", err)
			return
		}
		fileHash = h
	}
	err := p.store.Save(cache.Result{
		FileHash:     fileHash,
		FilePath:     path,
		IsWatercolor: res.IsWatercolor,
		Confidence:   res.Confidence,
		TopLabel:     res.TopLabel,
		MediaType:    res.MediaType,
	})
	if err != nil {
		utils.Warn("Cache save failed", "path", path, "error", err)
	}
}

// TagAssets группирует результаты по тегам и применяет их батчами.
//
// Для каждого файла:
//   - гранулярный тег по уверенности (Watercolor85..Watercolor35)
//   - зонтичный "Painting" если топ-метка — живопись
//   - основной тег если вердикт watercolor
//
// Возвращает число успешно помеченных пар файл-тег.
func (p *Processor) TagAssets(ctx context.Context, results []FileResult) (int, error) {
	if p.tagger == nil {
		return 0, nil
	}

	// tag name -> asset IDs
	tagToAssets := make(map[string][]string)
	resolved := make(map[string]string) // local path -> asset ID

	for _, r := range results {
		if r.Err != nil {
			continue
		}

		tags := classifier.TagsFor(classifier.Classification{
			IsWatercolor: r.IsWatercolor,
			Confidence:   r.Confidence,
			TopLabel:     r.TopLabel,
		}, p.MainTag)
		if len(tags) == 0 {
			continue
		}

		assetID, ok := resolved[r.FilePath]
		if !ok {
			remotePath := r.FilePath
			if p.resolver != nil {
				remotePath = p.resolver.ToRemote(r.FilePath)
			}
			id, err := p.tagger.AssetIDByPath(ctx, remotePath)
			if err != nil {
				utils.Warn("Asset lookup failed", "path", r.FilePath, "error", err)
				continue
			}
			if id == "" {
				utils.Debug("Asset not found in Immich", "remote_path", remotePath)
				continue
			}
			resolved[r.FilePath] = id
			assetID = id
		}

		for _, tag := range tags {
			tagToAssets[tag] = append(tagToAssets[tag], assetID)
		}
	}

	// Один API вызов на тег
	tagged := 0
	var errs []error
	for tagName, assetIDs := range tagToAssets {
		tagID, err := p.tagger.EnsureTag(ctx, tagName)
		if err != nil {
			errs = append(errs, fmt.Errorf("ensure tag %q: %w", tagName, err))
			continue
		}
		if err := p.tagger.AddTagToAssets(ctx, tagID, assetIDs); err != nil {
			errs = append(errs, fmt.Errorf("tag %q: %w", tagName, err))
			continue
		}
		tagged += len(assetIDs)
		utils.Info("Tag applied", "tag", tagName, "assets", len(assetIDs))
	}

	return tagged, errors.Join(errs...)
}

// Summarize строит итоги прогона.
func Summarize(results []FileResult, tagged int) Summary {
	s := Summary{Total: len(results), Tagged: tagged}
	for _, r := range results {
		switch r.MediaType {
		case "image":
			s.Images++
		case "video":
			s.Videos++
		}
		if r.IsWatercolor {
			s.Watercolors++
		}
		if r.Err != nil {
			s.Errors++
		}
		if r.FromCache {
			s.FromCache++
		}
	}
	return s
}

// String — человекочитаемые итоги для вывода в консоль.
func (s Summary) String() string {
	var b strings.Builder
	b.WriteString("==============================\n")
	b.WriteString("      EXECUTION SUMMARY\n")
	b.WriteString("==============================\n")
	fmt.Fprintf(&b, "Total files processed: %d\n", s.Total)
	fmt.Fprintf(&b, "  - Images: %d\n", s.Images)
	fmt.Fprintf(&b, "  - Videos: %d\n", s.Videos)
	fmt.Fprintf(&b, "Watercolor detections: %d\n", s.Watercolors)
	fmt.Fprintf(&b, "From cache:            %d\n", s.FromCache)
	fmt.Fprintf(&b, "Errors encountered:    %d\n", s.Errors)
	fmt.Fprintf(&b, "Assets tagged:         %d\n", s.Tagged)
	b.WriteString("==============================")
	return b.String()
}
