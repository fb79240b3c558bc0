package mover

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ilkoid/aquarel/pkg/config"
	"github.com/ilkoid/aquarel/pkg/pathmap"
	"github.com/ilkoid/aquarel/pkg/txlog"
)

// testEnv — источник, назначение и журнал в t.TempDir.
type testEnv struct {
	srcDir  string
	destDir string
	logPath string
	cfg     config.MoveConfig
	log     *txlog.Log
	mover   *Mover
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()

	env := &testEnv{
		srcDir:  filepath.Join(root, "library"),
		destDir: filepath.Join(root, "out"),
		logPath: filepath.Join(root, "tx.ndjson"),
	}
	require.NoError(t, os.MkdirAll(env.srcDir, 0755))

	env.cfg = config.MoveConfig{
		DestinationRoot: env.destDir,
		PathMappings: []config.PathMapping{
			{Remote: "/remote/library", Local: env.srcDir},
		},
		MaxSuffixAttempts: 1000,
	}

	log, err := txlog.Open(env.logPath)
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })
	env.log = log

	env.mover = New(pathmap.New(env.cfg.PathMappings), log, env.cfg)
	return env
}

// addSource создаёт исходный файл и возвращает его remote путь.
func (e *testEnv) addSource(t *testing.T, name, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(filepath.Join(e.srcDir, name)), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(e.srcDir, name), []byte(content), 0644))
	return "/remote/library/" + name
}

func TestProcess_MoveSuccess(t *testing.T) {
	env := newTestEnv(t)
	remote := env.addSource(t, "pic.jpg", "content-1")

	results := env.mover.Process(context.Background(), []AssetRecord{
		{AssetID: "a1", RemotePath: remote, Label: "Watercolor"},
	})

	require.Len(t, results, 1)
	assert.Equal(t, txlog.StatusMoved, results[0].Status)

	wantDest := filepath.Join(env.destDir, "watercolor", "pic.jpg")
	assert.Equal(t, wantDest, results[0].DestinationPath)

	// Файл реально на месте, источник удалён
	data, err := os.ReadFile(wantDest)
	require.NoError(t, err)
	assert.Equal(t, "content-1", string(data))
	_, err = os.Stat(filepath.Join(env.srcDir, "pic.jpg"))
	assert.True(t, os.IsNotExist(err), "source must be removed after move")
}

// Одинаковый контент уже лежит в назначении: пропуск без перемещения,
// источник остаётся нетронутым.
func TestProcess_SkippedDuplicate(t *testing.T) {
	env := newTestEnv(t)
	remote := env.addSource(t, "pic.jpg", "same-bytes")

	destDir := filepath.Join(env.destDir, "watercolor")
	require.NoError(t, os.MkdirAll(destDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(destDir, "pic.jpg"), []byte("same-bytes"), 0644))

	results := env.mover.Process(context.Background(), []AssetRecord{
		{AssetID: "a1", RemotePath: remote, Label: "Watercolor"},
	})

	require.Len(t, results, 1)
	assert.Equal(t, txlog.StatusSkippedDuplicate, results[0].Status)
	assert.NotEmpty(t, results[0].ContentDigest)

	_, err := os.Stat(filepath.Join(env.srcDir, "pic.jpg"))
	assert.NoError(t, err, "source must remain on duplicate skip")
}

// Разный контент при занятом имени: файл получает суффикс _1.
func TestProcess_CollisionSuffix(t *testing.T) {
	env := newTestEnv(t)
	remote := env.addSource(t, "pic.jpg", "new-content")

	destDir := filepath.Join(env.destDir, "watercolor")
	require.NoError(t, os.MkdirAll(destDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(destDir, "pic.jpg"), []byte("other-content"), 0644))

	results := env.mover.Process(context.Background(), []AssetRecord{
		{AssetID: "a1", RemotePath: remote, Label: "Watercolor"},
	})

	require.Len(t, results, 1)
	assert.Equal(t, txlog.StatusMoved, results[0].Status)
	assert.Equal(t, filepath.Join(destDir, "pic_1.jpg"), results[0].DestinationPath)
}

// Повторный прогон после коллизии: тот же контент находит свой файл на
// суффиксном слоте и пропускается, а не плодит _2.
func TestProcess_CollisionIdempotentRerun(t *testing.T) {
	env := newTestEnv(t)

	destDir := filepath.Join(env.destDir, "watercolor")
	require.NoError(t, os.MkdirAll(destDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(destDir, "pic.jpg"), []byte("original"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(destDir, "pic_1.jpg"), []byte("second"), 0644))

	// Источник с контентом, уже лежащим на слоте _1
	remote := env.addSource(t, "pic.jpg", "second")

	results := env.mover.Process(context.Background(), []AssetRecord{
		{AssetID: "a1", RemotePath: remote, Label: "Watercolor"},
	})

	require.Len(t, results, 1)
	assert.Equal(t, txlog.StatusSkippedDuplicate, results[0].Status)
	assert.Equal(t, filepath.Join(destDir, "pic_1.jpg"), results[0].DestinationPath)
}

// Исчерпание лимита суффиксов — failed с фиксированной причиной.
func TestProcess_CollisionUnresolved(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.MaxSuffixAttempts = 2
	env.mover = New(pathmap.New(env.cfg.PathMappings), env.log, env.cfg)

	remote := env.addSource(t, "pic.jpg", "mine")

	destDir := filepath.Join(env.destDir, "watercolor")
	require.NoError(t, os.MkdirAll(destDir, 0755))
	for _, name := range []string{"pic.jpg", "pic_1.jpg", "pic_2.jpg"} {
		require.NoError(t, os.WriteFile(filepath.Join(destDir, name), []byte("occupied-"+name), 0644))
	}

	results := env.mover.Process(context.Background(), []AssetRecord{
		{AssetID: "a1", RemotePath: remote, Label: "Watercolor"},
	})

	require.Len(t, results, 1)
	assert.Equal(t, txlog.StatusFailed, results[0].Status)
	assert.Equal(t, "destination_collision_unresolved", results[0].ErrorDetail)

	// Источник не тронут
	_, err := os.Stat(filepath.Join(env.srcDir, "pic.jpg"))
	assert.NoError(t, err)
}

// Dry-run: файловая система не мутируется, но would-be пути и журнал есть.
func TestProcess_DryRun(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.DryRun = true
	env.mover = New(pathmap.New(env.cfg.PathMappings), env.log, env.cfg)

	remote := env.addSource(t, "pic.jpg", "content")

	results := env.mover.Process(context.Background(), []AssetRecord{
		{AssetID: "a1", RemotePath: remote, Label: "Watercolor"},
	})

	require.Len(t, results, 1)
	assert.Equal(t, txlog.StatusSkippedDryRun, results[0].Status)
	assert.Equal(t, filepath.Join(env.destDir, "watercolor", "pic.jpg"), results[0].DestinationPath)

	// Источник на месте, назначение не создано
	_, err := os.Stat(filepath.Join(env.srcDir, "pic.jpg"))
	assert.NoError(t, err)
	_, err = os.Stat(results[0].DestinationPath)
	assert.True(t, os.IsNotExist(err))

	// Запись в журнале есть и в dry-run
	entries, err := txlog.LoadEntries(env.logPath)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestProcess_SourceMissing(t *testing.T) {
	env := newTestEnv(t)

	results := env.mover.Process(context.Background(), []AssetRecord{
		{AssetID: "a1", RemotePath: "/remote/library/ghost.jpg", Label: "Watercolor"},
	})

	require.Len(t, results, 1)
	assert.Equal(t, txlog.StatusFailed, results[0].Status)
	assert.Contains(t, results[0].ErrorDetail, "source not accessible")
}

func TestProcess_ResolutionFailure(t *testing.T) {
	env := newTestEnv(t)

	results := env.mover.Process(context.Background(), []AssetRecord{
		{AssetID: "a1", RemotePath: "/unmapped/prefix/pic.jpg", Label: "Watercolor"},
	})

	require.Len(t, results, 1)
	assert.Equal(t, txlog.StatusFailed, results[0].Status)
	assert.Contains(t, results[0].ErrorDetail, "no_mapping_matched")
}

// Порядок результатов и записей журнала зеркалит порядок входа,
// сбой одного ассета не прерывает батч.
func TestProcess_OrderPreservedAndFailuresIsolated(t *testing.T) {
	env := newTestEnv(t)
	r1 := env.addSource(t, "a.jpg", "aaa")
	r3 := env.addSource(t, "c.jpg", "ccc")

	records := []AssetRecord{
		{AssetID: "id-a", RemotePath: r1, Label: "Watercolor"},
		{AssetID: "id-b", RemotePath: "/remote/library/missing.jpg", Label: "Watercolor"},
		{AssetID: "id-c", RemotePath: r3, Label: "Watercolor"},
	}

	results := env.mover.Process(context.Background(), records)

	require.Len(t, results, 3)
	assert.Equal(t, "id-a", results[0].AssetID)
	assert.Equal(t, "id-b", results[1].AssetID)
	assert.Equal(t, "id-c", results[2].AssetID)
	assert.Equal(t, txlog.StatusMoved, results[0].Status)
	assert.Equal(t, txlog.StatusFailed, results[1].Status)
	assert.Equal(t, txlog.StatusMoved, results[2].Status)

	entries, err := txlog.LoadEntries(env.logPath)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i, e := range entries {
		assert.Equal(t, records[i].AssetID, e.AssetID)
	}
}

// fakeDeleter записывает какие ассеты его попросили удалить.
type fakeDeleter struct {
	deleted []string
	err     error
}

func (f *fakeDeleter) DeleteAssets(_ context.Context, ids []string) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, ids...)
	return nil
}

func TestProcess_RemoteDeleteAfterMove(t *testing.T) {
	env := newTestEnv(t)
	remote := env.addSource(t, "pic.jpg", "content")

	deleter := &fakeDeleter{}
	env.mover.WithRemoteDeleter(deleter)

	results := env.mover.Process(context.Background(), []AssetRecord{
		{AssetID: "a1", RemotePath: remote, Label: "Watercolor"},
	})

	require.Len(t, results, 1)
	assert.Equal(t, txlog.StatusMoved, results[0].Status)
	assert.True(t, results[0].DeletedRemote)
	assert.Equal(t, []string{"a1"}, deleter.deleted)
}

// Сбой удаления на сервере не меняет статус moved.
func TestProcess_RemoteDeleteFailureKeepsMoved(t *testing.T) {
	env := newTestEnv(t)
	remote := env.addSource(t, "pic.jpg", "content")

	env.mover.WithRemoteDeleter(&fakeDeleter{err: assert.AnError})

	results := env.mover.Process(context.Background(), []AssetRecord{
		{AssetID: "a1", RemotePath: remote, Label: "Watercolor"},
	})

	require.Len(t, results, 1)
	assert.Equal(t, txlog.StatusMoved, results[0].Status)
	assert.False(t, results[0].DeletedRemote)
}

// Отмена контекста завершает батч после текущей записи.
func TestProcess_ContextCancel(t *testing.T) {
	env := newTestEnv(t)
	env.addSource(t, "a.jpg", "aaa")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := env.mover.Process(ctx, []AssetRecord{
		{AssetID: "a1", RemotePath: "/remote/library/a.jpg", Label: "Watercolor"},
	})

	assert.Empty(t, results)
}
