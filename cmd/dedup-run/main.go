// Dedup-run — удаление дубликатов, найденных сервером Immich.
//
// В каждой группе дубликатов выбирается победитель по приоритету
// хранилища (библиотека картин > внутреннее > внешнее) и размеру файла,
// остальные ассеты удаляются, корзина очищается.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/ilkoid/aquarel/pkg/config"
	"github.com/ilkoid/aquarel/pkg/dedup"
	"github.com/ilkoid/aquarel/pkg/immich"
	"github.com/ilkoid/aquarel/pkg/utils"
)

var (
	configFlag     = flag.String("config", "config.yaml", "Path to config.yaml")
	internalFlag   = flag.String("internal-path", "/usr/src/app/upload", "Prefix of the internal Immich storage")
	pictureLibFlag = flag.String("picture-library", "", "Prefix of the picture library (highest priority, optional)")
	dryRunFlag     = flag.Bool("dry-run", false, "Report what would be deleted without deleting")
)

func main() {
	flag.Parse()

	if err := utils.InitLogger(); err != nil {
		fmt.Fprintf(os.Stderr, "Logger init failed: %v\n", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer utils.SetupGracefulShutdown(cancel)()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		utils.Error("Config load failed", "error", err)
		fmt.Fprintf(os.Stderr, "Config load failed: %v\n", err)
		os.Exit(1)
	}

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

	utils.Info("dedup-run started",
		"internal_path", *internalFlag,
		"picture_library", *pictureLibFlag,
		"dry_run", *dryRunFlag)

	proc := dedup.New(client, *internalFlag, *pictureLibFlag)

	plan, err := proc.BuildPlan(ctx)
	if err != nil {
		utils.Error("Plan build failed", "error", err)
		fmt.Fprintf(os.Stderr, "Plan build failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Duplicate groups: %d\n", plan.Groups)
	fmt.Printf("Assets to delete: %d\n", len(plan.ToDelete))

	if err := proc.Execute(ctx, plan, *dryRunFlag); err != nil {
		utils.Error("Dedup failed", "error", err)
		fmt.Fprintf(os.Stderr, "Dedup failed: %v\n", err)
		os.Exit(1)
	}

	if *dryRunFlag {
		fmt.Println("Dry run complete, nothing deleted.")
	} else {
		fmt.Println("Dedup complete.")
	}
}
