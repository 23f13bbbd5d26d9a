// Package module defines the dashboard module table: which modules exist,
// how they are titled, and where their content comes from.
package module

// Kind says where a module's content comes from.
type Kind string

const (
	KindInternal Kind = "internal" // Rendered client-side, no fetch.
	KindPartial  Kind = "partial"  // HTML fragment fetched from URL.
)

// Descriptor is the static description of one dashboard module.
type Descriptor struct {
	ID         string   `yaml:"id"`
	Title      string   `yaml:"title"`
	Breadcrumb []string `yaml:"breadcrumb"`
	URL        string   `yaml:"url"`
	Kind       Kind     `yaml:"kind"`
}

// Section returns the navigation group a module belongs to: the second
// breadcrumb segment, or the title when the breadcrumb is shorter.
func (d Descriptor) Section() string {
	if len(d.Breadcrumb) >= 2 {
		return d.Breadcrumb[1]
	}
	return d.Title
}

// Fetchable reports whether the module's content is fetched over HTTP.
func (d Descriptor) Fetchable() bool {
	return d.Kind == KindPartial
}

// Section is a named group of modules, in navigation order.
type Section struct {
	Name    string
	Modules []Descriptor
}
