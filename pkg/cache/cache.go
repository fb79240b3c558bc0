// Package cache — sqlite кэш результатов классификации.
//
// Классификация через vision модель дорогая, поэтому каждый результат
// сохраняется с привязкой к SHA-256 хэшу файла. Повторный запуск батча
// пропускает уже обработанные файлы даже если их переместили.
package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ilkoid/aquarel/pkg/utils"
)

// Result — сохранённый результат классификации одного файла.
type Result struct {
	ID           int64
	FileHash     string
	FilePath     string
	IsWatercolor bool
	Confidence   float64
	TopLabel     string
	Probs        map[string]float64
	MediaType    string // "image" или "video"
	ImmichID     string
	Tags         []string
	ProcessedAt  time.Time
}

// Statistics — агрегаты по кэшу.
type Statistics struct {
	Total       int
	Watercolors int
	Videos      int
}

// Cache — обёртка над sqlite базой.
type Cache struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS classification_results (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	file_hash     TEXT NOT NULL UNIQUE,
	file_path     TEXT NOT NULL,
	is_watercolor INTEGER NOT NULL,
	confidence    REAL NOT NULL,
	top_label     TEXT NOT NULL DEFAULT '',
	probs_json    TEXT NOT NULL DEFAULT '{}',
	media_type    TEXT NOT NULL DEFAULT 'image',
	immich_id     TEXT NOT NULL DEFAULT '',
	tags_json     TEXT NOT NULL DEFAULT '[]',
	processed_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_results_path ON classification_results(file_path);
`

// Open открывает (и при необходимости создаёт) базу кэша.
func Open(path string) (*Cache, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init cache schema: %w", err)
	}

	utils.Debug("Classification cache opened", "path", path)
	return &Cache{db: db}, nil
}

// Close закрывает базу.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Lookup ищет результат сначала по пути, затем по хэшу содержимого.
//
// Поиск по хэшу покрывает случай когда файл переместили между
// запусками: запись находится и её file_path обновляется на новый.
// hashFn вызывается лениво — только если по пути ничего не нашлось.
func (c *Cache) Lookup(filePath string, hashFn func() (string, error)) (*Result, error) {
	res, err := c.queryOne("file_path = ?", filePath)
	if err != nil {
		return nil, err
	}
	if res != nil {
		return res, nil
	}

	if hashFn == nil {
		return nil, nil
	}

	hash, err := hashFn()
	if err != nil {
		return nil, fmt.Errorf("hash for cache lookup: %w", err)
	}

	res, err = c.queryOne("file_hash = ?", hash)
	if err != nil || res == nil {
		return res, err
	}

	// Файл переехал: актуализируем путь
	if res.FilePath != filePath {
		if _, err := c.db.Exec(
			"UPDATE classification_results SET file_path = ? WHERE file_hash = ?",
			filePath, hash); err != nil {
			return nil, fmt.Errorf("rehome cache entry: %w", err)
		}
		utils.Debug("Cache entry rehomed", "old_path", res.FilePath, "new_path", filePath)
		res.FilePath = filePath
	}

	return res, nil
}

// Save сохраняет результат классификации. Повторное сохранение того же
// хэша перезаписывает запись (идемпотентность повторных запусков).
func (c *Cache) Save(r Result) error {
	probsJSON, err := json.Marshal(r.Probs)
	if err != nil {
		return fmt.Errorf("marshal probs: %w", err)
	}
	tagsJSON, err := json.Marshal(r.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	mediaType := r.MediaType
	if mediaType == "" {
		mediaType = "image"
	}

	_, err = c.db.Exec(`
		INSERT INTO classification_results
			(file_hash, file_path, is_watercolor, confidence, top_label, probs_json, media_type, immich_id, tags_json, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(file_hash) DO UPDATE SET
			file_path     = excluded.file_path,
			is_watercolor = excluded.is_watercolor,
			confidence    = excluded.confidence,
			top_label     = excluded.top_label,
			probs_json    = excluded.probs_json,
			media_type    = excluded.media_type,
			tags_json     = excluded.tags_json,
			processed_at  = CURRENT_TIMESTAMP`,
		r.FileHash, r.FilePath, boolToInt(r.IsWatercolor), r.Confidence,
		r.TopLabel, string(probsJSON), mediaType, r.ImmichID, string(tagsJSON))
	if err != nil {
		return fmt.Errorf("save classification result: %w", err)
	}
	return nil
}

// UpdateMovedLocation фиксирует новый путь файла после физического перемещения.
func (c *Cache) UpdateMovedLocation(fileHash, newPath string) error {
	_, err := c.db.Exec(
		"UPDATE classification_results SET file_path = ? WHERE file_hash = ?",
		newPath, fileHash)
	if err != nil {
		return fmt.Errorf("update moved location: %w", err)
	}
	return nil
}

// UpdateImmichInfo привязывает ID ассета Immich и присвоенные теги.
func (c *Cache) UpdateImmichInfo(fileHash, immichID string, tags []string) error {
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	_, err = c.db.Exec(
		"UPDATE classification_results SET immich_id = ?, tags_json = ? WHERE file_hash = ?",
		immichID, string(tagsJSON), fileHash)
	if err != nil {
		return fmt.Errorf("update immich info: %w", err)
	}
	return nil
}

// Stats возвращает агрегаты по кэшу.
func (c *Cache) Stats() (Statistics, error) {
	var s Statistics
	err := c.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(is_watercolor), 0),
		       COALESCE(SUM(CASE WHEN media_type = 'video' THEN 1 ELSE 0 END), 0)
		FROM classification_results`).Scan(&s.Total, &s.Watercolors, &s.Videos)
	if err != nil {
		return Statistics{}, fmt.Errorf("cache stats: %w", err)
	}
	return s, nil
}

func (c *Cache) queryOne(where string, arg any) (*Result, error) {
	row := c.db.QueryRow(`
		SELECT id, file_hash, file_path, is_watercolor, confidence,
		       top_label, probs_json, media_type, immich_id, tags_json, processed_at
		FROM classification_results WHERE `+where, arg)

	var r Result
	var isWC int
	var probsJSON, tagsJSON string
	err := row.Scan(&r.ID, &r.FileHash, &r.FilePath, &isWC, &r.Confidence,
		&r.TopLabel, &probsJSON, &r.MediaType, &r.ImmichID, &tagsJSON, &r.ProcessedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query cache: %w", err)
	}

	r.IsWatercolor = isWC != 0
	if err := json.Unmarshal([]byte(probsJSON), &r.Probs); err != nil {
		r.Probs = nil // Битый JSON не должен валить весь батч
	}
	if err := json.Unmarshal([]byte(tagsJSON), &r.Tags); err != nil {
		r.Tags = nil
	}

	return &r, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
