// Package formatter provides a pluggable output formatting system.
// Formatters render Meta trees and tabular listings as table, json or yaml.
package formatter

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/artpar/dataforge/core/meta"
)

// Formatter converts Meta and tabular listings to a specific output format.
type Formatter interface {
	// Name returns the formatter name (e.g., "table", "json", "yaml").
	Name() string

	// Description returns a human-readable description.
	Description() string

	// FormatMeta formats a whole Meta tree.
	FormatMeta(w io.Writer, m meta.Meta, opts FormatOptions) error

	// FormatRows formats a tabular listing.
	FormatRows(w io.Writer, rows Rows, opts FormatOptions) error

	// FormatError formats an error.
	FormatError(w io.Writer, err error) error
}

// Rows is a tabular listing. Every record has one cell per column.
type Rows struct {
	Columns []string
	Records [][]string
}

// project keeps only the requested columns, in the requested order.
// Unknown columns are dropped.
func (r Rows) project(columns []string) Rows {
	if len(columns) == 0 {
		return r
	}
	idx := make([]int, 0, len(columns))
	out := Rows{}
	for _, want := range columns {
		for i, have := range r.Columns {
			if have == want {
				idx = append(idx, i)
				out.Columns = append(out.Columns, have)
				break
			}
		}
	}
	for _, rec := range r.Records {
		cells := make([]string, len(idx))
		for j, i := range idx {
			if i < len(rec) {
				cells[j] = rec[i]
			}
		}
		out.Records = append(out.Records, cells)
	}
	return out
}

// maps converts records to column-keyed maps for the structured formats.
func (r Rows) maps() []map[string]string {
	out := make([]map[string]string, len(r.Records))
	for i, rec := range r.Records {
		m := make(map[string]string, len(r.Columns))
		for j, col := range r.Columns {
			if j < len(rec) {
				m[col] = rec[j]
			}
		}
		out[i] = m
	}
	return out
}

// FormatOptions configures formatting behavior.
type FormatOptions struct {
	// Columns specifies which row columns to include (nil = all).
	Columns []string

	// NoHeader disables header row for tabular formats.
	NoHeader bool

	// Compact minimizes whitespace (for json).
	Compact bool

	// MaxWidth truncates long values (0 = no limit).
	MaxWidth int
}

// Registry manages registered formatters.
type Registry struct {
	mu         sync.RWMutex
	formatters map[string]Formatter
	defaultFmt string
}

// NewRegistry creates a new formatter registry.
func NewRegistry() *Registry {
	return &Registry{
		formatters: make(map[string]Formatter),
		defaultFmt: "table",
	}
}

// Register adds a formatter to the registry.
func (r *Registry) Register(f Formatter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.formatters[f.Name()]; exists {
		return fmt.Errorf("formatter %q already registered", f.Name())
	}

	r.formatters[f.Name()] = f
	return nil
}

// Get returns a formatter by name.
func (r *Registry) Get(name string) (Formatter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.formatters[name]
	return f, ok
}

// Default returns the default formatter, or nil when nothing is registered.
func (r *Registry) Default() Formatter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if f, ok := r.formatters[r.defaultFmt]; ok {
		return f
	}
	names := r.sortedNames()
	if len(names) == 0 {
		return nil
	}
	return r.formatters[names[0]]
}

// SetDefault sets the default formatter.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.formatters[name]; !exists {
		return fmt.Errorf("formatter %q not registered", name)
	}

	r.defaultFmt = name
	return nil
}

// List returns all registered formatter names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedNames()
}

func (r *Registry) sortedNames() []string {
	names := make([]string, 0, len(r.formatters))
	for name := range r.formatters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry is the global formatter registry.
var DefaultRegistry = NewRegistry()

// Register adds a formatter to the default registry.
func Register(f Formatter) error {
	return DefaultRegistry.Register(f)
}

// Get returns a formatter from the default registry.
func Get(name string) (Formatter, bool) {
	return DefaultRegistry.Get(name)
}

// Default returns the default formatter from the default registry.
func Default() Formatter {
	return DefaultRegistry.Default()
}

// List returns all formatter names from the default registry.
func List() []string {
	return DefaultRegistry.List()
}
