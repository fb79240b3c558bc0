// Package txlog — append-only журнал транзакций миграции и CSV отчёт.
//
// Формат журнала: NDJSON, одна запись на строку. Каждая запись
// fsync-ится сразу после финализации MoveResult, поэтому крах посреди
// прогона теряет максимум текущую (недописанную) строку — все прежние
// остаются валидными и парсятся построчно.
//
// Отчёт — производная от журнала таблица, пересоздаётся в любой момент
// и не является source of truth.
package txlog

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// MoveStatus — итог попытки миграции одного ассета.
type MoveStatus string

const (
	StatusMoved            MoveStatus = "moved"
	StatusSkippedDuplicate MoveStatus = "skipped_duplicate"
	StatusSkippedDryRun    MoveStatus = "skipped_dry_run"
	StatusFailed           MoveStatus = "failed"
)

// MoveResult — результат обработки одного AssetRecord.
//
// ErrorDetail заполнен тогда и только тогда когда Status == failed.
// ContentDigest присутствует если выполнялась проверка дубликата.
type MoveResult struct {
	AssetID         string     `json:"asset_id"`
	RemotePath      string     `json:"remote_path"`
	SourcePath      string     `json:"source_path,omitempty"`
	DestinationPath string     `json:"destination_path,omitempty"`
	Status          MoveStatus `json:"status"`
	ErrorDetail     string     `json:"error_detail,omitempty"`
	ContentDigest   string     `json:"content_digest,omitempty"`
	DeletedRemote   bool       `json:"deleted_remote,omitempty"`
	LogWriteError   string     `json:"-"` // Ошибка записи самой записи; не сериализуется
}

// Entry — персистентная единица журнала: timestamp + MoveResult.
// После записи никогда не мутируется и не удаляется.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	MoveResult
}

// Log — append-only журнал с fsync на каждую запись.
type Log struct {
	f    *os.File
	path string
}

// Open открывает (или создаёт) файл журнала в режиме append.
func Open(path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open transaction log: %w", err)
	}
	return &Log{f: f, path: path}, nil
}

// Path возвращает путь к файлу журнала.
func (l *Log) Path() string { return l.path }

// Record сериализует и durable записывает одну запись.
//
// Запись не батчится: WriteString + Sync на каждую строку (как файловый
// логгер в pkg/utils). Ошибка записи НЕ откатывает уже выполненный move —
// она возвращается наверх и попадает в summary.
func (l *Log) Record(e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal log entry: %w", err)
	}

	if _, err := l.f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append log entry: %w", err)
	}
	if err := l.f.Sync(); err != nil {
		return fmt.Errorf("sync log entry: %w", err)
	}
	return nil
}

// Close закрывает файл журнала.
func (l *Log) Close() error {
	return l.f.Close()
}

// LoadEntries читает все записи журнала.
//
// Недописанная последняя строка (крах посреди записи) пропускается:
// журнал парсится до последней полной строки.
func LoadEntries(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open transaction log: %w", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			// Обрезанная или повреждённая строка — конец валидной части
			break
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return entries, fmt.Errorf("read transaction log: %w", err)
	}

	return entries, nil
}

// RenderReport пишет табличный CSV отчёт: одна строка на MoveResult.
//
// Чистая функция от entries, без побочных эффектов кроме записи в w.
func RenderReport(w io.Writer, entries []Entry) error {
	cw := csv.NewWriter(w)

	header := []string{"asset_id", "source", "destination", "status", "error_detail", "content_digest"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, e := range entries {
		row := []string{
			e.AssetID,
			e.SourcePath,
			e.DestinationPath,
			string(e.Status),
			e.ErrorDetail,
			e.ContentDigest,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteReportFile рендерит CSV отчёт в файл (перезаписывая существующий —
// отчёт полностью восстановим из журнала).
func WriteReportFile(path string, entries []Entry) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	defer f.Close()

	return RenderReport(f, entries)
}

// Summary — агрегированные счётчики по статусам.
type Summary struct {
	Total             int
	Moved             int
	SkippedDuplicates int
	SkippedDryRun     int
	Failed            int
	DeletedRemote     int
	LogWriteFailures  int
}

// Summarize считает статистику по результатам одного прогона.
func Summarize(results []MoveResult) Summary {
	var s Summary
	s.Total = len(results)
	for _, r := range results {
		switch r.Status {
		case StatusMoved:
			s.Moved++
		case StatusSkippedDuplicate:
			s.SkippedDuplicates++
		case StatusSkippedDryRun:
			s.SkippedDryRun++
		case StatusFailed:
			s.Failed++
		}
		if r.DeletedRemote {
			s.DeletedRemote++
		}
		if r.LogWriteError != "" {
			s.LogWriteFailures++
		}
	}
	return s
}

// String возвращает человекочитаемый summary для вывода оператору.
func (s Summary) String() string {
	return fmt.Sprintf(
		"total=%d moved=%d skipped_duplicate=%d skipped_dry_run=%d failed=%d deleted_remote=%d log_write_failures=%d",
		s.Total, s.Moved, s.SkippedDuplicates, s.SkippedDryRun, s.Failed, s.DeletedRemote, s.LogWriteFailures)
}
