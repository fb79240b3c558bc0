package txlog

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func sampleEntry(id string, status MoveStatus) Entry {
	return Entry{
		Timestamp: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
		MoveResult: MoveResult{
			AssetID:         id,
			RemotePath:      "/remote/" + id + ".jpg",
			SourcePath:      "/local/" + id + ".jpg",
			DestinationPath: "/out/watercolor/" + id + ".jpg",
			Status:          status,
			ContentDigest:   "abc123",
		},
	}
}

func TestRecordAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tx.ndjson")

	log, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}

	want := []Entry{
		sampleEntry("a", StatusMoved),
		sampleEntry("b", StatusSkippedDuplicate),
		sampleEntry("c", StatusFailed),
	}
	for _, e := range want {
		if err := log.Record(e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if err := log.Close(); err != nil {
		t.Fatal(err)
	}

	got, err := LoadEntries(path)
	if err != nil {
		t.Fatalf("LoadEntries: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("loaded %d entries, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].AssetID != want[i].AssetID {
			t.Errorf("entry %d: asset_id %q, want %q", i, got[i].AssetID, want[i].AssetID)
		}
		if got[i].Status != want[i].Status {
			t.Errorf("entry %d: status %q, want %q", i, got[i].Status, want[i].Status)
		}
	}
}

// Повторное открытие дописывает, а не перезаписывает.
func TestOpen_Appends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tx.ndjson")

	log, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := log.Record(sampleEntry("a", StatusMoved)); err != nil {
		t.Fatal(err)
	}
	log.Close()

	log2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := log2.Record(sampleEntry("b", StatusMoved)); err != nil {
		t.Fatal(err)
	}
	log2.Close()

	entries, err := LoadEntries(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries after reopen, got %d", len(entries))
	}
}

// Крах посреди записи оставляет обрезанную последнюю строку — журнал
// парсится до последней полной записи.
func TestLoadEntries_TruncatedLastLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tx.ndjson")

	log, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	log.Record(sampleEntry("a", StatusMoved))
	log.Record(sampleEntry("b", StatusMoved))
	log.Close()

	// Имитируем крах: дописываем обрезанный JSON без newline
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString(`{"timestamp":"2026-08-30T12:00:00Z","asset_id":"c","status":"mov`)
	f.Close()

	entries, err := LoadEntries(path)
	if err != nil {
		t.Fatalf("LoadEntries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 complete entries, got %d", len(entries))
	}
	if entries[1].AssetID != "b" {
		t.Errorf("last complete entry = %q, want %q", entries[1].AssetID, "b")
	}
}

func TestRenderReport(t *testing.T) {
	entries := []Entry{
		sampleEntry("a", StatusMoved),
		{
			MoveResult: MoveResult{
				AssetID:     "b",
				Status:      StatusFailed,
				ErrorDetail: "destination_collision_unresolved",
			},
		},
	}

	var buf bytes.Buffer
	if err := RenderReport(&buf, entries); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines", len(lines))
	}
	if lines[0] != "asset_id,source,destination,status,error_detail,content_digest" {
		t.Errorf("unexpected header: %q", lines[0])
	}
	if !strings.Contains(lines[2], "destination_collision_unresolved") {
		t.Errorf("failed row must carry error detail: %q", lines[2])
	}
}

// Отчёт полностью пересоздаваем из журнала.
func TestWriteReportFile_Rebuildable(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "tx.ndjson")
	csvPath := filepath.Join(dir, "report.csv")

	log, err := Open(logPath)
	if err != nil {
		t.Fatal(err)
	}
	log.Record(sampleEntry("a", StatusMoved))
	log.Close()

	entries, err := LoadEntries(logPath)
	if err != nil {
		t.Fatal(err)
	}

	if err := WriteReportFile(csvPath, entries); err != nil {
		t.Fatal(err)
	}
	first, _ := os.ReadFile(csvPath)

	// Повторный рендер даёт байт-в-байт тот же отчёт
	if err := WriteReportFile(csvPath, entries); err != nil {
		t.Fatal(err)
	}
	second, _ := os.ReadFile(csvPath)

	if !bytes.Equal(first, second) {
		t.Error("report must be a deterministic function of the log")
	}
}

func TestSummarize(t *testing.T) {
	results := []MoveResult{
		{Status: StatusMoved, DeletedRemote: true},
		{Status: StatusMoved},
		{Status: StatusSkippedDuplicate},
		{Status: StatusSkippedDryRun},
		{Status: StatusFailed, LogWriteError: "disk full"},
	}

	s := Summarize(results)
	if s.Total != 5 || s.Moved != 2 || s.SkippedDuplicates != 1 ||
		s.SkippedDryRun != 1 || s.Failed != 1 {
		t.Errorf("unexpected summary: %+v", s)
	}
	if s.DeletedRemote != 1 {
		t.Errorf("DeletedRemote = %d, want 1", s.DeletedRemote)
	}
	if s.LogWriteFailures != 1 {
		t.Errorf("LogWriteFailures = %d, want 1", s.LogWriteFailures)
	}
}
