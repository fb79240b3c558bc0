// Package pathmap транслирует пути между сервером Immich и локальной
// файловой системой.
//
// Сервер видит библиотеку под своим корнем (например, /usr/src/app/photos),
// локально тот же каталог смонтирован в другом месте (например, /mnt/photos).
// Resolver применяет упорядоченный список префиксных маппингов: первый
// совпавший выигрывает, отсутствие совпадения — ошибка конфигурации,
// а не тихий pass-through.
package pathmap

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ilkoid/aquarel/pkg/config"
)

// ErrorKind — тип ошибки резолвинга пути.
type ErrorKind int

const (
	ErrUnknown ErrorKind = iota
	ErrEmptyPath
	ErrNoMappingMatched
)

// String возвращает строковое представление типа ошибки.
func (k ErrorKind) String() string {
	switch k {
	case ErrEmptyPath:
		return "empty_path"
	case ErrNoMappingMatched:
		return "no_mapping_matched"
	default:
		return "unknown"
	}
}

// ResolutionError — ошибка трансляции пути.
//
// Это всегда проблема конфигурации (нет подходящего маппинга), а не
// транзиентный сбой: retry не поможет, нужен правильный path_mappings.
type ResolutionError struct {
	Kind ErrorKind
	Path string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("path resolution failed (%s): %s", e.Kind, e.Path)
}

// Resolver хранит упорядоченный список маппингов.
// Stateless сервис: создаётся один раз из конфига, вызывается per-asset.
type Resolver struct {
	mappings []config.PathMapping
}

// New создает Resolver из упорядоченного списка маппингов конфига.
func New(mappings []config.PathMapping) *Resolver {
	return &Resolver{mappings: mappings}
}

// ToLocal транслирует серверный путь Immich в абсолютный локальный путь.
//
// Алгоритм:
//  1. Нормализуем разделители (сервер всегда отдаёт forward slashes,
//     но на всякий случай приводим и backslashes).
//  2. Пробуем маппинги в порядке конфигурации; первый совпавший префикс
//     выигрывает.
//  3. Если маппингов нет или ни один не совпал — путь считается уже
//     локальным ТОЛЬКО если файл существует; иначе ResolutionError.
//
// Возвращает путь с разделителями локальной ОС.
func (r *Resolver) ToLocal(remotePath string) (string, error) {
	if remotePath == "" {
		return "", &ResolutionError{Kind: ErrEmptyPath, Path: remotePath}
	}

	normalized := normalizeSlashes(remotePath)

	for _, m := range r.mappings {
		remotePrefix := strings.TrimRight(normalizeSlashes(m.Remote), "/")
		rest, ok := matchPrefix(normalized, remotePrefix)
		if !ok {
			continue
		}

		// Собираем локальный путь с разделителями текущей ОС
		local := filepath.Join(filepath.FromSlash(m.Local), filepath.FromSlash(rest))
		return filepath.Clean(local), nil
	}

	// Fallback: путь уже локальный? Принимаем только если файл реально есть.
	candidate := filepath.Clean(filepath.FromSlash(normalized))
	if _, err := os.Stat(candidate); err == nil {
		return candidate, nil
	}

	return "", &ResolutionError{Kind: ErrNoMappingMatched, Path: remotePath}
}

// ToRemote транслирует локальный путь в серверный путь Immich.
//
// Обратная операция к ToLocal: используется tagging-воркфлоу для поиска
// asset ID по локальному файлу (search/metadata по originalPath).
// Если ни один маппинг не совпал — возвращает путь как есть с forward
// slashes (сервер может знать этот путь напрямую, external library).
func (r *Resolver) ToRemote(localPath string) string {
	if localPath == "" {
		return ""
	}

	normalized := normalizeSlashes(filepath.Clean(localPath))

	for _, m := range r.mappings {
		localPrefix := strings.TrimRight(normalizeSlashes(filepath.Clean(m.Local)), "/")
		rest, ok := matchPrefix(normalized, localPrefix)
		if !ok {
			continue
		}

		remotePrefix := strings.TrimRight(normalizeSlashes(m.Remote), "/")
		if rest == "" {
			return remotePrefix
		}
		return remotePrefix + "/" + rest
	}

	return normalized
}

// normalizeSlashes приводит все разделители к forward slash.
// Пути с другого хоста (Windows) приходят с backslashes.
func normalizeSlashes(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

// matchPrefix проверяет совпадение префикса по границе сегмента.
//
// "/data" совпадает с "/data/img.jpg" (остаток "img.jpg") и с "/data",
// но НЕ совпадает с "/database/img.jpg".
func matchPrefix(path, prefix string) (rest string, ok bool) {
	if prefix == "" {
		return "", false
	}
	if path == prefix {
		return "", true
	}
	if strings.HasPrefix(path, prefix+"/") {
		return strings.TrimPrefix(path[len(prefix):], "/"), true
	}
	return "", false
}
