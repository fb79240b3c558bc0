// Package dedup — разбор групп дубликатов Immich.
//
// Сервер сам находит дубликаты, задача пакета — выбрать в каждой
// группе победителя по приоритету хранилища и удалить остальных.
package dedup

import (
	"context"
	"fmt"
	"strings"

	"github.com/ilkoid/aquarel/pkg/immich"
	"github.com/ilkoid/aquarel/pkg/utils"
)

// API — контракт Immich клиента для dedup воркфлоу.
type API interface {
	DuplicateGroups(ctx context.Context) ([]immich.DuplicateGroup, error)
	DeleteAssets(ctx context.Context, assetIDs []string) error
	EmptyTrash(ctx context.Context) error
}

var _ API = (*immich.Client)(nil)

// Processor выбирает победителей в группах дубликатов.
//
// Приоритет хранилищ (от высшего): библиотека картин, внутреннее
// хранилище Immich, внешние библиотеки. Внутри категории выигрывает
// самый большой файл. Всё кроме победителя удаляется.
type Processor struct {
	client           API
	internalPrefix   string
	pictureLibPrefix string
}

// New создает Processor. pictureLibPrefix может быть пустым.
func New(client API, internalPrefix, pictureLibPrefix string) *Processor {
	return &Processor{
		client:           client,
		internalPrefix:   internalPrefix,
		pictureLibPrefix: pictureLibPrefix,
	}
}

// Plan — список ID к удалению, посчитанный по группам дубликатов.
type Plan struct {
	Groups   int
	ToDelete []string
}

// BuildPlan запрашивает группы дубликатов и считает кого удалять.
// Ничего не меняет — план можно показать оператору перед Execute.
func (p *Processor) BuildPlan(ctx context.Context) (Plan, error) {
	groups, err := p.client.DuplicateGroups(ctx)
	if err != nil {
		return Plan{}, fmt.Errorf("fetch duplicate groups: %w", err)
	}

	plan := Plan{Groups: len(groups)}
	for _, g := range groups {
		plan.ToDelete = append(plan.ToDelete, p.losersOf(g)...)
	}
	return plan, nil
}

// losersOf возвращает ID всех ассетов группы кроме победителя.
func (p *Processor) losersOf(g immich.DuplicateGroup) []string {
	if len(g.Assets) < 2 {
		return nil
	}

	var pictureLib, internal, external []immich.Asset
	for _, a := range g.Assets {
		switch {
		case p.pictureLibPrefix != "" && strings.HasPrefix(a.OriginalPath, p.pictureLibPrefix):
			pictureLib = append(pictureLib, a)
		case strings.HasPrefix(a.OriginalPath, p.internalPrefix):
			internal = append(internal, a)
		default:
			external = append(external, a)
		}
	}

	var winnerPool []immich.Asset
	var losers []immich.Asset
	switch {
	case len(pictureLib) > 0:
		winnerPool = pictureLib
		losers = append(losers, internal...)
		losers = append(losers, external...)
	case len(internal) > 0:
		winnerPool = internal
		losers = append(losers, external...)
	default:
		winnerPool = external
	}

	winner := largest(winnerPool)
	ids := make([]string, 0, len(g.Assets)-1)
	for _, a := range winnerPool {
		if a.ID != winner.ID {
			ids = append(ids, a.ID)
		}
	}
	for _, a := range losers {
		ids = append(ids, a.ID)
	}
	return ids
}

// largest возвращает ассет с максимальным размером файла.
// При равенстве выигрывает более ранний в списке (стабильность).
func largest(assets []immich.Asset) immich.Asset {
	best := assets[0]
	for _, a := range assets[1:] {
		if fileSize(a) > fileSize(best) {
			best = a
		}
	}
	return best
}

func fileSize(a immich.Asset) int64 {
	if a.ExifInfo == nil {
		return 0
	}
	return a.ExifInfo.FileSizeInByte
}

// Execute удаляет ассеты по плану и очищает корзину.
//
// При dryRun только логирует что было бы удалено.
func (p *Processor) Execute(ctx context.Context, plan Plan, dryRun bool) error {
	if len(plan.ToDelete) == 0 {
		utils.Info("No duplicate assets to delete", "groups", plan.Groups)
		return nil
	}

	if dryRun {
		utils.Info("Dry run: would delete duplicate assets",
			"count", len(plan.ToDelete), "groups", plan.Groups)
		return nil
	}

	if err := p.client.DeleteAssets(ctx, plan.ToDelete); err != nil {
		return fmt.Errorf("delete duplicates: %w", err)
	}
	utils.Info("Duplicate assets deleted", "count", len(plan.ToDelete))

	if err := p.client.EmptyTrash(ctx); err != nil {
		return fmt.Errorf("empty trash: %w", err)
	}
	utils.Info("Immich trash emptied")

	return nil
}
