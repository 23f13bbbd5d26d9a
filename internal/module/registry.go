package module

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
)

// ErrNotFound matches any *NotFoundError via errors.Is.
var ErrNotFound = errors.New("module: not found")

// Registry maps module IDs to descriptors.
// It is not safe for concurrent registration; register at startup and
// treat the registry as read-only afterwards.
type Registry struct {
	byID  map[string]Descriptor
	order []string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]Descriptor)}
}

// Register adds a module. Overwrites if the ID already exists, keeping its
// original navigation position.
// Panics if the ID is empty or a partial module has no URL (programmer error).
func (r *Registry) Register(d Descriptor) {
	if d.ID == "" {
		panic("module: Register called with empty ID")
	}
	if d.Kind == KindPartial && d.URL == "" {
		panic(fmt.Sprintf("module: partial module %q has no URL", d.ID))
	}
	d.Breadcrumb = slices.Clone(d.Breadcrumb)
	if _, exists := r.byID[d.ID]; !exists {
		r.order = append(r.order, d.ID)
	}
	r.byID[d.ID] = d
}

// Describe returns the descriptor for id, or a *NotFoundError.
func (r *Registry) Describe(id string) (Descriptor, error) {
	d, ok := r.byID[id]
	if !ok {
		return Descriptor{}, &NotFoundError{ID: id, Available: r.IDs()}
	}
	d.Breadcrumb = slices.Clone(d.Breadcrumb)
	return d, nil
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.byID[id]
	return ok
}

// IDs returns registered module IDs in sorted order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Modules returns all descriptors in registration (navigation) order.
func (r *Registry) Modules() []Descriptor {
	mods := make([]Descriptor, 0, len(r.order))
	for _, id := range r.order {
		mods = append(mods, r.byID[id])
	}
	return mods
}

// Sections groups modules by Descriptor.Section, ordered by first appearance.
func (r *Registry) Sections() []Section {
	var sections []Section
	index := make(map[string]int)
	for _, d := range r.Modules() {
		name := d.Section()
		i, ok := index[name]
		if !ok {
			i = len(sections)
			index[name] = i
			sections = append(sections, Section{Name: name})
		}
		sections[i].Modules = append(sections[i].Modules, d)
	}
	return sections
}

// NotFoundError indicates a module ID is not registered.
type NotFoundError struct {
	ID        string
	Available []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("module %q not found (available: %s)", e.ID, strings.Join(e.Available, ", "))
}

// Is lets errors.Is(err, ErrNotFound) match.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}
