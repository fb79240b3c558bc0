// Package mover — оркестратор миграции помеченных ассетов.
//
// Для каждой записи: resolve → plan → проверка дубликата по контенту →
// move-or-skip → немедленная запись в журнал транзакций. Обработка строго
// последовательная, порядок результатов зеркалит порядок входных записей
// (детерминированные журналы и детерминированные суффиксы коллизий).
//
// Любой per-asset сбой конвертируется в MoveResult со status=failed;
// батч всегда доходит до конца и отчитывается за каждый ассет.
package mover

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ilkoid/aquarel/pkg/config"
	"github.com/ilkoid/aquarel/pkg/hasher"
	"github.com/ilkoid/aquarel/pkg/pathmap"
	"github.com/ilkoid/aquarel/pkg/txlog"
	"github.com/ilkoid/aquarel/pkg/utils"
)

// ErrCollisionUnresolved — исчерпан лимит числовых суффиксов.
const errDetailCollisionUnresolved = "destination_collision_unresolved"

// AssetRecord — один ассет к миграции.
//
// Инвариант: запись попадает сюда только после подтверждения тега на
// сервере; mover классификацию не перепроверяет.
type AssetRecord struct {
	AssetID    string
	RemotePath string  // Путь как его видит сервер Immich
	Label      string  // Метка классификации (watercolor и т.д.)
	Confidence float64 // [0,1]
}

// RemoteDeleter удаляет ассеты на стороне Immich после успешного move.
// Интерфейс вместо конкретного клиента — для мокания в тестах.
type RemoteDeleter interface {
	DeleteAssets(ctx context.Context, assetIDs []string) error
}

// ArchiveMirror заливает перемещённый файл в архивное S3 зеркало.
type ArchiveMirror interface {
	UploadFile(ctx context.Context, localPath, key string) error
}

// Mover — оркестратор. Владеет жизненным циклом MoveResult и записей
// журнала; resolver и planner — stateless сервисы per-asset.
type Mover struct {
	resolver *pathmap.Resolver
	log      *txlog.Log
	cfg      config.MoveConfig

	// Опциональные коллабораторы (nil = выключено)
	deleter RemoteDeleter
	mirror  ArchiveMirror
}

// New создает Mover.
//
// Параметры:
//   - resolver: транслятор remote → local путей
//   - log: открытый журнал транзакций (владелец — вызывающий)
//   - cfg: параметры миграции (уже с GetDefaults)
func New(resolver *pathmap.Resolver, log *txlog.Log, cfg config.MoveConfig) *Mover {
	return &Mover{resolver: resolver, log: log, cfg: cfg}
}

// WithRemoteDeleter включает удаление ассета из Immich после успешного move.
func (m *Mover) WithRemoteDeleter(d RemoteDeleter) *Mover {
	m.deleter = d
	return m
}

// WithArchiveMirror включает best-effort заливку перемещённых файлов в S3.
func (m *Mover) WithArchiveMirror(a ArchiveMirror) *Mover {
	m.mirror = a
	return m
}

// Process обрабатывает записи строго в переданном порядке.
//
// Возвращает по одному MoveResult на запись, в том же порядке. Ошибка
// одного ассета не прерывает батч. Отмена контекста завершает прогон
// после текущего ассета — уже записанные строки журнала остаются валидны,
// повторный запуск безопасен благодаря дедупликации по контенту.
func (m *Mover) Process(ctx context.Context, records []AssetRecord) []txlog.MoveResult {
	results := make([]txlog.MoveResult, 0, len(records))

	for _, rec := range records {
		if ctx.Err() != nil {
			utils.Warn("Processing interrupted", "processed", len(results), "total", len(records))
			break
		}

		result := m.processOne(ctx, rec)

		// Журналим сразу, до перехода к следующей записи (durability
		// инвариант: крах теряет максимум in-flight запись). Ошибка
		// записи журнала не откатывает выполненный move.
		if err := m.log.Record(txlog.Entry{Timestamp: time.Now(), MoveResult: result}); err != nil {
			result.LogWriteError = err.Error()
			utils.Error("Transaction log write failed", "asset_id", rec.AssetID, "error", err)
		}

		results = append(results, result)
	}

	return results
}

// processOne выполняет шаги 1-5 алгоритма для одного ассета.
func (m *Mover) processOne(ctx context.Context, rec AssetRecord) txlog.MoveResult {
	result := txlog.MoveResult{
		AssetID:    rec.AssetID,
		RemotePath: rec.RemotePath,
	}

	// 1. Резолвим локальный путь источника. Отсутствие маппинга — проблема
	// конфигурации, retry не поможет: failed и к следующей записи.
	sourcePath, err := m.resolver.ToLocal(rec.RemotePath)
	if err != nil {
		result.Status = txlog.StatusFailed
		result.ErrorDetail = err.Error()
		return result
	}
	result.SourcePath = sourcePath

	if _, err := os.Stat(sourcePath); err != nil {
		result.Status = txlog.StatusFailed
		result.ErrorDetail = fmt.Sprintf("source not accessible: %v", err)
		return result
	}

	// 2. Канонический путь назначения.
	dest := PlanDestination(rec.Label, sourcePath, m.cfg.DestinationRoot)

	// 3. Коллизии: дубликат по контенту → skip, иной контент → суффикс.
	dest, digest, status, errDetail := m.resolveCollision(sourcePath, dest)
	result.DestinationPath = dest
	result.ContentDigest = digest

	if status == txlog.StatusFailed {
		result.Status = txlog.StatusFailed
		result.ErrorDetail = errDetail
		return result
	}
	if status == txlog.StatusSkippedDuplicate {
		// Идемпотентность повторного запуска: файл уже на месте,
		// ничего не перемещаем.
		result.Status = txlog.StatusSkippedDuplicate
		return result
	}

	// 4. Dry-run: показываем would-be путь, файловую систему не трогаем.
	if m.cfg.DryRun {
		result.Status = txlog.StatusSkippedDryRun
		return result
	}

	// 5. Собственно move.
	if err := moveFile(sourcePath, dest); err != nil {
		result.Status = txlog.StatusFailed
		result.ErrorDetail = err.Error()
		return result
	}
	result.Status = txlog.StatusMoved
	utils.Info("Asset moved", "asset_id", rec.AssetID, "dest", dest)

	// Пост-шаги вне ядра миграции: зеркало и удаление на сервере.
	// Оба best-effort: их сбой не меняет status=moved.
	if m.mirror != nil {
		key := SanitizeLabel(rec.Label) + "/" + filepath.Base(dest)
		if err := m.mirror.UploadFile(ctx, dest, key); err != nil {
			utils.Warn("S3 mirror upload failed", "asset_id", rec.AssetID, "error", err)
		}
	}
	if m.deleter != nil {
		if err := m.deleter.DeleteAssets(ctx, []string{rec.AssetID}); err != nil {
			utils.Warn("Remote delete failed", "asset_id", rec.AssetID, "error", err)
		} else {
			result.DeletedRemote = true
		}
	}

	return result
}

// resolveCollision находит фактический путь назначения.
//
// Кандидаты: канонический путь, затем name_1.ext, name_2.ext, … до
// MaxSuffixAttempts. На каждом занятом кандидате сравниваются полные
// SHA-256 дайджесты: совпадение → skipped_duplicate (безопасный повторный
// запуск получает тот же путь), различие → следующий суффикс.
//
// Дайджест источника считается лениво, только при первой коллизии.
func (m *Mover) resolveCollision(sourcePath, canonical string) (dest, digest string, status txlog.MoveStatus, errDetail string) {
	candidate := canonical
	sourceDigest := ""

	for attempt := 0; attempt <= m.cfg.MaxSuffixAttempts; attempt++ {
		if attempt > 0 {
			candidate = suffixedCandidate(canonical, attempt)
		}

		if _, err := os.Stat(candidate); err != nil {
			if os.IsNotExist(err) {
				return candidate, sourceDigest, "", "" // Свободный слот
			}
			return candidate, sourceDigest, txlog.StatusFailed,
				fmt.Sprintf("stat destination: %v", err)
		}

		// Занято — сравниваем контент.
		if sourceDigest == "" {
			d, err := hasher.Digest(sourcePath)
			if err != nil {
				return candidate, "", txlog.StatusFailed, err.Error()
			}
			sourceDigest = d
		}

		destDigest, err := hasher.Digest(candidate)
		if err != nil {
			return candidate, sourceDigest, txlog.StatusFailed, err.Error()
		}

		if destDigest == sourceDigest {
			return candidate, sourceDigest, txlog.StatusSkippedDuplicate, ""
		}
	}

	return canonical, sourceDigest, txlog.StatusFailed, errDetailCollisionUnresolved
}

// moveFile перемещает файл: rename внутри одного тома, copy+delete между
// томами (EXDEV). Директория назначения создаётся при необходимости.
func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("create destination directory: %w", err)
	}

	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !isCrossDevice(err) {
		return fmt.Errorf("move file: %w", err)
	}

	// Кросс-девайс: копируем с fsync, затем удаляем источник.
	if err := copyFile(src, dst); err != nil {
		return err
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("remove source after copy: %w", err)
	}
	return nil
}

// isCrossDevice распознаёт rename через границу файловых систем.
func isCrossDevice(err error) bool {
	var linkErr *os.LinkError
	if errors.As(err, &linkErr) {
		return strings.Contains(linkErr.Err.Error(), "cross-device")
	}
	return false
}

// copyFile копирует содержимое с fsync до закрытия — недописанный файл
// назначения не должен пережить крах как полноценный.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("copy content: %w", err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return fmt.Errorf("sync destination: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close destination: %w", err)
	}
	return nil
}
