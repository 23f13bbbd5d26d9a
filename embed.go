// Package panel ships the dashboard's module table inside the binary and
// lets a project directory replace it file by file.
package panel

import (
	"embed"
	"io/fs"
	"os"
	"path/filepath"
)

//go:embed resources/*.yaml
var bundled embed.FS

// Resources holds the bundled module table, rooted at resources/.
var Resources fs.FS = func() fs.FS {
	sub, err := fs.Sub(bundled, "resources")
	if err != nil {
		panic(err)
	}
	return sub
}()

// OverlayFS serves name from dir when a file of that name exists there
// and from base otherwise. Names must satisfy fs.ValidPath, so lookups
// cannot leave dir.
func OverlayFS(dir string, base fs.FS) fs.FS {
	return overlay{dir: dir, base: base}
}

type overlay struct {
	dir  string
	base fs.FS
}

func (o overlay) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	if f, err := os.Open(filepath.Join(o.dir, filepath.FromSlash(name))); err == nil {
		return f, nil
	}
	return o.base.Open(name)
}
