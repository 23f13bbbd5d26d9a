package panel

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/hostgenius/panel/internal/module"
)

func TestEmbeddedModules_Load(t *testing.T) {
	reg, err := module.Builtins(Resources)
	if err != nil {
		t.Fatalf("Builtins(Resources) error = %v", err)
	}

	for _, id := range []string{"dashboard", "profile", "invoices", "vps-services", "user-tickets"} {
		if !reg.Has(id) {
			t.Errorf("embedded table is missing %q", id)
		}
	}
}

func TestOverlayFS_LocalModulesWin(t *testing.T) {
	// Given: a local modules.yaml with a single module
	localDir := t.TempDir()
	local := []byte("modules:\n  - id: status\n    title: Status\n    breadcrumb: [Home, Status]\n    kind: internal\n")
	if err := os.WriteFile(filepath.Join(localDir, "modules.yaml"), local, 0o644); err != nil {
		t.Fatal(err)
	}

	// When: the registry is built through the overlay
	reg, err := module.Builtins(OverlayFS(localDir, Resources))
	if err != nil {
		t.Fatalf("Builtins() error = %v", err)
	}

	// Then: only the local table is used
	if got := reg.IDs(); len(got) != 1 || got[0] != "status" {
		t.Errorf("IDs() = %v, want [status]", got)
	}
}

func TestOverlayFS_FallsBackToEmbedded(t *testing.T) {
	embedded := fstest.MapFS{
		"a.yaml": &fstest.MapFile{Data: []byte("embedded-a")},
		"b.yaml": &fstest.MapFile{Data: []byte("embedded-b")},
	}
	localDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(localDir, "a.yaml"), []byte("local-a"), 0o644); err != nil {
		t.Fatal(err)
	}
	ofs := OverlayFS(localDir, embedded)

	for name, want := range map[string]string{"a.yaml": "local-a", "b.yaml": "embedded-b"} {
		data, err := fs.ReadFile(ofs, name)
		if err != nil {
			t.Fatalf("ReadFile(%s) error = %v", name, err)
		}
		if string(data) != want {
			t.Errorf("%s = %q, want %q", name, data, want)
		}
	}

	if _, err := fs.ReadFile(ofs, "missing.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestOverlayFS_RejectsEscapes(t *testing.T) {
	ofs := OverlayFS(t.TempDir(), fstest.MapFS{})

	for _, name := range []string{"../modules.yaml", "/etc/passwd"} {
		if _, err := ofs.Open(name); err == nil {
			t.Errorf("Open(%q) should return error", name)
		}
	}
}
