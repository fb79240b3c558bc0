package dedup

import (
	"context"
	"testing"

	"github.com/ilkoid/aquarel/pkg/immich"
)

// fakeAPI отдаёт заданные группы и запоминает вызовы удаления.
type fakeAPI struct {
	groups       []immich.DuplicateGroup
	deleted      []string
	trashEmptied bool
}

func (f *fakeAPI) DuplicateGroups(context.Context) ([]immich.DuplicateGroup, error) {
	return f.groups, nil
}

func (f *fakeAPI) DeleteAssets(_ context.Context, ids []string) error {
	f.deleted = append(f.deleted, ids...)
	return nil
}

func (f *fakeAPI) EmptyTrash(context.Context) error {
	f.trashEmptied = true
	return nil
}

func asset(id, path string, size int64) immich.Asset {
	return immich.Asset{
		ID:           id,
		OriginalPath: path,
		ExifInfo:     &immich.ExifInfo{FileSizeInByte: size},
	}
}

func TestBuildPlan_PriorityOrder(t *testing.T) {
	tests := []struct {
		name       string
		assets     []immich.Asset
		wantDelete []string
	}{
		{
			name: "picture library beats internal and external",
			assets: []immich.Asset{
				asset("ext", "/external/pic.jpg", 9000),
				asset("lib", "/library/pic.jpg", 100),
				asset("int", "/usr/src/app/upload/pic.jpg", 5000),
			},
			wantDelete: []string{"int", "ext"},
		},
		{
			name: "internal beats external",
			assets: []immich.Asset{
				asset("ext", "/external/pic.jpg", 9000),
				asset("int", "/usr/src/app/upload/pic.jpg", 100),
			},
			wantDelete: []string{"ext"},
		},
		{
			name: "largest wins within category",
			assets: []immich.Asset{
				asset("small", "/library/a.jpg", 100),
				asset("big", "/library/b.jpg", 500),
				asset("mid", "/library/c.jpg", 300),
			},
			wantDelete: []string{"small", "mid"},
		},
		{
			name: "external only keeps largest",
			assets: []immich.Asset{
				asset("e1", "/elsewhere/a.jpg", 10),
				asset("e2", "/elsewhere/b.jpg", 20),
			},
			wantDelete: []string{"e1"},
		},
		{
			name:       "single asset group untouched",
			assets:     []immich.Asset{asset("only", "/library/a.jpg", 10)},
			wantDelete: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{groups: []immich.DuplicateGroup{{DuplicateID: "g1", Assets: tt.assets}}}
			p := New(api, "/usr/src/app/upload", "/library")

			plan, err := p.BuildPlan(context.Background())
			if err != nil {
				t.Fatal(err)
			}

			if len(plan.ToDelete) != len(tt.wantDelete) {
				t.Fatalf("to delete = %v, want %v", plan.ToDelete, tt.wantDelete)
			}
			got := make(map[string]bool, len(plan.ToDelete))
			for _, id := range plan.ToDelete {
				got[id] = true
			}
			for _, id := range tt.wantDelete {
				if !got[id] {
					t.Errorf("expected %q in delete list %v", id, plan.ToDelete)
				}
			}
		})
	}
}

// Без picture library префикса работает двухуровневый приоритет.
func TestBuildPlan_NoPictureLibrary(t *testing.T) {
	api := &fakeAPI{groups: []immich.DuplicateGroup{{
		DuplicateID: "g1",
		Assets: []immich.Asset{
			asset("int", "/usr/src/app/upload/a.jpg", 10),
			asset("ext", "/library/a.jpg", 9000),
		},
	}}}
	p := New(api, "/usr/src/app/upload", "")

	plan, err := p.BuildPlan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.ToDelete) != 1 || plan.ToDelete[0] != "ext" {
		t.Errorf("internal must win without picture library, got %v", plan.ToDelete)
	}
}

func TestExecute(t *testing.T) {
	api := &fakeAPI{}
	p := New(api, "/internal", "")
	plan := Plan{Groups: 1, ToDelete: []string{"a", "b"}}

	if err := p.Execute(context.Background(), plan, false); err != nil {
		t.Fatal(err)
	}
	if len(api.deleted) != 2 {
		t.Errorf("deleted %v, want 2 assets", api.deleted)
	}
	if !api.trashEmptied {
		t.Error("trash must be emptied after deletion")
	}
}

func TestExecute_DryRun(t *testing.T) {
	api := &fakeAPI{}
	p := New(api, "/internal", "")
	plan := Plan{Groups: 1, ToDelete: []string{"a"}}

	if err := p.Execute(context.Background(), plan, true); err != nil {
		t.Fatal(err)
	}
	if len(api.deleted) != 0 || api.trashEmptied {
		t.Error("dry run must not delete anything")
	}
}
