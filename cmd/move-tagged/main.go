// Move-tagged — миграция помеченных ассетов из Immich в локальное дерево.
//
// Забирает все ассеты с нужным тегом, переводит серверные пути в
// локальные, переносит файлы в destination_root/<label>/ с дедупликацией
// по контенту и журналом транзакций. По желанию: удаление из Immich
// и зеркало в S3.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/ilkoid/aquarel/pkg/config"
	"github.com/ilkoid/aquarel/pkg/immich"
	"github.com/ilkoid/aquarel/pkg/mover"
	"github.com/ilkoid/aquarel/pkg/pathmap"
	"github.com/ilkoid/aquarel/pkg/s3storage"
	"github.com/ilkoid/aquarel/pkg/txlog"
	"github.com/ilkoid/aquarel/pkg/utils"
)

var (
	configFlag = flag.String("config", "config.yaml", "Path to config.yaml")
	tagFlag    = flag.String("tag", "", "Tag to migrate (default: immich.tag from config)")
	dryRunFlag = flag.Bool("dry-run", false, "Simulate without touching the filesystem")
	yesFlag    = flag.Bool("yes", false, "Skip confirmation prompt")
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

	moveCfg := cfg.Move.GetDefaults()
	if *dryRunFlag {
		moveCfg.DryRun = true
	}
	if moveCfg.DestinationRoot == "" {
		fmt.Fprintln(os.Stderr, "move.destination_root is required in config")
		os.Exit(1)
	}

	tag := *tagFlag
	if tag == "" {
		tag = cfg.Immich.GetDefaults().Tag
	}

	utils.Info("move-tagged started",
		"tag", tag,
		"destination", moveCfg.DestinationRoot,
		"dry_run", moveCfg.DryRun)

	// === Immich: список помеченных ассетов ===
	client, err := immich.NewFromConfig(cfg.Immich)
	if err != nil {
		utils.Error("Immich client init failed", "error", err)
		fmt.Fprintf(os.Stderr, "Immich client init failed: %v\n", err)
		os.Exit(1)
	}
	if err := client.Ping(ctx); err != nil {
		utils.Error("Immich unreachable", "error", err, "type", client.ClassifyError(err))
		fmt.Fprintf(os.Stderr, "Immich server unreachable: %v\n", err)
		os.Exit(1)
	}

	tagID, err := client.EnsureTag(ctx, tag)
	if err != nil {
		utils.Error("Tag lookup failed", "tag", tag, "error", err)
		fmt.Fprintf(os.Stderr, "Tag lookup failed: %v\n", err)
		os.Exit(1)
	}

	assets, err := client.AssetsByTag(ctx, tagID)
	if err != nil {
		utils.Error("Asset listing failed", "tag", tag, "error", err)
		fmt.Fprintf(os.Stderr, "Asset listing failed: %v\n", err)
		os.Exit(1)
	}
	if len(assets) == 0 {
		fmt.Printf("No assets tagged %q, nothing to do.\n", tag)
		return
	}

	fmt.Printf("Found %d assets tagged %q\n", len(assets), tag)
	fmt.Printf("Destination: %s\n", moveCfg.DestinationRoot)
	if moveCfg.DeleteFromImmich {
		fmt.Println("Assets WILL be deleted from Immich after a successful move.")
	}

	// Подтверждение перед необратимой операцией
	if !moveCfg.DryRun && !*yesFlag {
		if !confirm(fmt.Sprintf("Move %d files?", len(assets))) {
			fmt.Println("Aborted.")
			return
		}
	}

	// === Журнал транзакций ===
	txLog, err := txlog.Open(moveCfg.TransactionLog)
	if err != nil {
		utils.Error("Transaction log open failed", "error", err)
		fmt.Fprintf(os.Stderr, "Transaction log open failed: %v\n", err)
		os.Exit(1)
	}
	defer txLog.Close()
	fmt.Printf("Transaction log: %s\n", txLog.Path())

	// === Mover ===
	resolver := pathmap.New(moveCfg.PathMappings)
	m := mover.New(resolver, txLog, moveCfg)

	if moveCfg.DeleteFromImmich && !moveCfg.DryRun {
		m.WithRemoteDeleter(client)
	}
	if moveCfg.MirrorToS3 && !moveCfg.DryRun {
		s3Client, err := s3storage.New(cfg.S3)
		if err != nil {
			utils.Error("S3 client init failed", "error", err)
			fmt.Fprintf(os.Stderr, "S3 client init failed: %v\n", err)
			os.Exit(1)
		}
		m.WithArchiveMirror(s3Client)
	}

	records := make([]mover.AssetRecord, len(assets))
	for i, a := range assets {
		records[i] = mover.AssetRecord{
			AssetID:    a.ID,
			RemotePath: a.OriginalPath,
			Label:      tag,
		}
	}

	results := m.Process(ctx, records)

	// === Отчёт ===
	// CSV — производная от журнала, поэтому строим его из файла журнала,
	// а не из результатов в памяти: так отчёт можно пересоздать и позже.
	entries, err := txlog.LoadEntries(txLog.Path())
	if err != nil {
		utils.Error("Transaction log read failed", "error", err)
		fmt.Fprintf(os.Stderr, "Transaction log read failed: %v\n", err)
	} else if err := txlog.WriteReportFile(moveCfg.CSVReport, entries); err != nil {
		utils.Error("CSV report write failed", "error", err)
		fmt.Fprintf(os.Stderr, "CSV report write failed: %v\n", err)
	} else {
		fmt.Printf("CSV report: %s\n", moveCfg.CSVReport)
	}

	summary := txlog.Summarize(results)
	utils.Info("Migration finished",
		"moved", summary.Moved,
		"skipped_duplicate", summary.SkippedDuplicates,
		"failed", summary.Failed)
	fmt.Println(summary.String())

	if summary.Failed > 0 {
		os.Exit(1)
	}
}

// confirm задаёт вопрос оператору, ответ по умолчанию — нет.
func confirm(question string) bool {
	fmt.Printf("%s [y/N]: ", question)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
