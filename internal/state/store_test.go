package state

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func fixedStore(dir string) *FileStore {
	s := NewFileStore(dir)
	s.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestFileStore_SaveAndLoad(t *testing.T) {
	// Given preferences to persist
	dir := t.TempDir()
	store := fixedStore(filepath.Join(dir, "state"))

	prefs := Preferences{
		Profile:        "work",
		CurrentUser:    "ops@example.com",
		LastModule:     "vps-services",
		TicketsPerPage: 50,
		TicketPage:     2,
	}

	// When Save is called
	if err := store.Save(prefs); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	// Then Load returns the same preferences stamped with the save time
	loaded, found, err := store.Load("work")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !found {
		t.Fatal("Load() found = false, want true")
	}
	want := prefs
	want.UpdatedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if loaded != want {
		t.Errorf("Load() = %+v, want %+v", loaded, want)
	}
}

func TestFileStore_SaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)

	if err := store.Save(Preferences{Profile: "p", LastModule: "profile"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.Save(Preferences{Profile: "p", LastModule: "projects"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "p.json" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("dir entries = %v, want [p.json]", names)
	}
	loaded, _, _ := store.Load("p")
	if loaded.LastModule != "projects" {
		t.Errorf("LastModule = %q, want %q", loaded.LastModule, "projects")
	}
}

func TestFileStore_EmptyProfileUsesDefault(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)

	if err := store.Save(Preferences{LastModule: "invoices"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, DefaultProfile+".json")); err != nil {
		t.Errorf("default profile file missing: %v", err)
	}
	loaded, found, err := store.Load("")
	if err != nil || !found {
		t.Fatalf("Load(\"\") = found %v, err %v", found, err)
	}
	if loaded.LastModule != "invoices" {
		t.Errorf("LastModule = %q, want %q", loaded.LastModule, "invoices")
	}
}

func TestFileStore_Update(t *testing.T) {
	// Given an existing profile
	store := NewFileStore(t.TempDir())
	if err := store.Save(Preferences{Profile: "p", CurrentUser: "a@example.com", TicketPage: 3}); err != nil {
		t.Fatal(err)
	}

	// When Update changes one field
	err := store.Update("p", func(p *Preferences) { p.LastModule = "projects" })
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	// Then other fields survive
	loaded, _, _ := store.Load("p")
	if loaded.LastModule != "projects" || loaded.CurrentUser != "a@example.com" || loaded.TicketPage != 3 {
		t.Errorf("Load() after Update = %+v", loaded)
	}
}

func TestFileStore_UpdateMissingProfile(t *testing.T) {
	store := NewFileStore(t.TempDir())

	if err := store.Update("fresh", func(p *Preferences) { p.TicketsPerPage = 100 }); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	loaded, found, _ := store.Load("fresh")
	if !found || loaded.Profile != "fresh" || loaded.TicketsPerPage != 100 {
		t.Errorf("Load() = %+v, found %v", loaded, found)
	}
}

func TestFileStore_LoadNotFound(t *testing.T) {
	// Given an empty store
	store := NewFileStore(t.TempDir())

	// When Load is called for a nonexistent profile
	_, found, err := store.Load("nonexistent")

	// Then it returns not found
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if found {
		t.Error("Load() found = true, want false")
	}
}

func TestFileStore_LoadCorrupt(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, found, err := NewFileStore(dir).Load("bad")

	if err == nil {
		t.Fatal("Load(corrupt) error = nil, want parse error")
	}
	if found {
		t.Error("Load(corrupt) found = true, want false")
	}
}

func TestFileStore_Remove(t *testing.T) {
	// Given saved preferences
	store := NewFileStore(t.TempDir())
	if err := store.Save(Preferences{Profile: "p"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	// When Remove is called
	if err := store.Remove("p"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	// Then Load returns not found
	_, found, _ := store.Load("p")
	if found {
		t.Error("Load() found = true after Remove, want false")
	}
}

func TestFileStore_RemoveNotFound(t *testing.T) {
	store := NewFileStore(t.TempDir())

	// Then no error (idempotent)
	if err := store.Remove("nonexistent"); err != nil {
		t.Errorf("Remove(nonexistent) error = %v, want nil", err)
	}
}

func TestFileStore_PathTraversal(t *testing.T) {
	store := NewFileStore(t.TempDir())

	tests := []struct {
		name string
		id   string
	}{
		{name: "parent traversal", id: "../../etc/passwd"},
		{name: "slash in id", id: "foo/bar"},
		{name: "dot dot", id: ".."},
		{name: "current dir", id: "."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := store.Save(Preferences{Profile: tt.id}); !errors.Is(err, ErrInvalidID) {
				t.Errorf("Save(%q) error = %v, want ErrInvalidID", tt.id, err)
			}
			if _, _, err := store.Load(tt.id); !errors.Is(err, ErrInvalidID) {
				t.Errorf("Load(%q) error = %v, want ErrInvalidID", tt.id, err)
			}
			if err := store.Remove(tt.id); !errors.Is(err, ErrInvalidID) {
				t.Errorf("Remove(%q) error = %v, want ErrInvalidID", tt.id, err)
			}
		})
	}
}

func TestFileStore_RemoveEmptyRejected(t *testing.T) {
	if err := NewFileStore(t.TempDir()).Remove(""); !errors.Is(err, ErrInvalidID) {
		t.Errorf("Remove(\"\") error = %v, want ErrInvalidID", err)
	}
}
