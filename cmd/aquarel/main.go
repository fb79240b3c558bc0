// Aquarel — пакетная классификация папки с изображениями и видео.
//
// Обходит папку, классифицирует каждый файл vision моделью (с sqlite
// кэшем), затем вешает теги на ассеты в Immich батчами: основной тег,
// гранулярные Watercolor85..35 и зонтичный Painting.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/ilkoid/aquarel/pkg/batch"
	"github.com/ilkoid/aquarel/pkg/cache"
	"github.com/ilkoid/aquarel/pkg/classifier"
	"github.com/ilkoid/aquarel/pkg/config"
	"github.com/ilkoid/aquarel/pkg/immich"
	"github.com/ilkoid/aquarel/pkg/llm/openai"
	"github.com/ilkoid/aquarel/pkg/pathmap"
	"github.com/ilkoid/aquarel/pkg/utils"
	"github.com/ilkoid/aquarel/pkg/video"
)

var (
	configFlag  = flag.String("config", "config.yaml", "Path to config.yaml")
	folderFlag  = flag.String("folder", "", "Folder to process (required)")
	modelFlag   = flag.String("model", "", "Vision model alias from config (default: models.default_vision)")
	forceFlag   = flag.Bool("force", false, "Reprocess files even if present in cache")
	noTagFlag   = flag.Bool("no-tag", false, "Skip Immich tagging, classify only")
	noCacheFlag = flag.Bool("no-cache", false, "Disable sqlite result cache")
)

func main() {
	flag.Parse()

	if err := utils.InitLogger(); err != nil {
		fmt.Fprintf(os.Stderr, "Logger init failed: %v\n", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer utils.SetupGracefulShutdown(cancel)()

	if *folderFlag == "" {
		fmt.Fprintln(os.Stderr, "Usage: aquarel -folder <path> [-config config.yaml]")
		os.Exit(1)
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		utils.Error("Config load failed", "error", err)
		fmt.Fprintf(os.Stderr, "Config load failed: %v\n", err)
		os.Exit(1)
	}
	utils.Info("aquarel started", "folder", *folderFlag, "config", *configFlag)

	// === Vision модель ===
	modelDef, ok := cfg.GetVisionModel(*modelFlag)
	if !ok {
		fmt.Fprintf(os.Stderr, "Vision model %q is not defined in config\n", *modelFlag)
		os.Exit(1)
	}
	provider := openai.NewClient(modelDef).WithJSONMode()
	engine := classifier.New(provider, cfg.Classifier, cfg.App.ImageProcessing)
	videos := video.New(engine, cfg.Video)

	// === Кэш ===
	var store *cache.Cache
	if !*noCacheFlag {
		store, err = cache.Open(cfg.CacheDBPath())
		if err != nil {
			utils.Error("Cache open failed", "error", err)
			fmt.Fprintf(os.Stderr, "Cache open failed: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()
	}

	// === Immich ===
	var tagger batch.Tagger
	var resolver *pathmap.Resolver
	if !*noTagFlag {
		client, err := immich.NewFromConfig(cfg.Immich)
		if err != nil {
			utils.Error("Immich client init failed", "error", err)
			fmt.Fprintf(os.Stderr, "Immich client init failed: %v\n", err)
			os.Exit(1)
		}
		if err := client.Ping(ctx); err != nil {
			utils.Error("Immich unreachable", "error", err)
			fmt.Fprintf(os.Stderr, "Immich server unreachable: %v\n", err)
			os.Exit(1)
		}
		tagger = client
		resolver = pathmap.New(cfg.Move.PathMappings)
	}

	// === Обработка ===
	proc := batch.New(engine, videos, store, tagger, resolver, cfg.Classifier)
	proc.ForceReprocess = *forceFlag
	proc.MainTag = cfg.Immich.GetDefaults().Tag

	results, err := proc.ProcessFolder(ctx, *folderFlag)
	if err != nil && ctx.Err() == nil {
		utils.Error("Batch failed", "error", err)
		fmt.Fprintf(os.Stderr, "Batch failed: %v\n", err)
		os.Exit(1)
	}
	// Прерывание (Ctrl+C) не теряет результаты: тегируем что успели

	tagged := 0
	if tagger != nil && len(results) > 0 {
		// Тегирование после прерывания идёт с новым контекстом,
		// иначе отменённый ctx сразу завалит API вызовы
		tagCtx := ctx
		if ctx.Err() != nil {
			tagCtx = context.Background()
		}
		tagged, err = proc.TagAssets(tagCtx, results)
		if err != nil {
			utils.Warn("Some tags failed to apply", "error", err)
			fmt.Fprintf(os.Stderr, "Warning: some tags failed to apply: %v\n", err)
		}
	}

	summary := batch.Summarize(results, tagged)
	utils.Info("Batch finished",
		"total", summary.Total,
		"watercolors", summary.Watercolors,
		"errors", summary.Errors,
		"tagged", summary.Tagged)

	fmt.Println(summary.String())
}
