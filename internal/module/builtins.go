package module

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"gopkg.in/yaml.v3"
)

// TableFile is the name of the module table inside a resources filesystem.
const TableFile = "modules.yaml"

type table struct {
	Modules []Descriptor `yaml:"modules"`
}

// Load parses a YAML module table into a new Registry.
// Unknown fields, duplicate IDs and incomplete entries are rejected.
func Load(data []byte) (*Registry, error) {
	var t table
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("module: parsing table: %w", err)
	}
	if len(t.Modules) == 0 {
		return nil, errors.New("module: table defines no modules")
	}

	r := NewRegistry()
	for i, d := range t.Modules {
		if err := validate(d); err != nil {
			return nil, fmt.Errorf("module: entry %d: %w", i, err)
		}
		if r.Has(d.ID) {
			return nil, fmt.Errorf("module: entry %d: duplicate id %q", i, d.ID)
		}
		r.Register(d)
	}
	return r, nil
}

// Builtins loads the module table from fsys, normally panel.OverlayFS over
// panel.Resources so a local modules.yaml can replace the embedded one.
func Builtins(fsys fs.FS) (*Registry, error) {
	data, err := fs.ReadFile(fsys, TableFile)
	if err != nil {
		return nil, fmt.Errorf("module: reading %s: %w", TableFile, err)
	}
	return Load(data)
}

func validate(d Descriptor) error {
	if d.ID == "" {
		return errors.New("id is required")
	}
	if d.Title == "" {
		return fmt.Errorf("%q: title is required", d.ID)
	}
	switch d.Kind {
	case KindInternal:
	case KindPartial:
		if d.URL == "" {
			return fmt.Errorf("%q: partial module needs a url", d.ID)
		}
	default:
		return fmt.Errorf("%q: kind must be %q or %q, got %q", d.ID, KindInternal, KindPartial, d.Kind)
	}
	return nil
}
