package formatter

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/artpar/dataforge/core/meta"
	"github.com/artpar/dataforge/core/metacodec"
)

// YAMLFormatter formats output as YAML.
type YAMLFormatter struct{}

// NewYAMLFormatter creates a new YAML formatter.
func NewYAMLFormatter() *YAMLFormatter {
	return &YAMLFormatter{}
}

// Name returns the formatter name.
func (f *YAMLFormatter) Name() string {
	return "yaml"
}

// Description returns the formatter description.
func (f *YAMLFormatter) Description() string {
	return "YAML output format"
}

// FormatMeta writes m in the YAML meta layout.
func (f *YAMLFormatter) FormatMeta(w io.Writer, m meta.Meta, opts FormatOptions) error {
	return metacodec.YAML.Encode(w, m)
}

// FormatRows formats a listing as YAML.
func (f *YAMLFormatter) FormatRows(w io.Writer, rows Rows, opts FormatOptions) error {
	data := rows.project(opts.Columns).maps()
	output := map[string]any{
		"count": len(data),
		"data":  data,
	}
	return f.encode(w, output)
}

// FormatError formats an error as YAML.
func (f *YAMLFormatter) FormatError(w io.Writer, err error) error {
	return f.encode(w, map[string]any{"error": err.Error()})
}

func (f *YAMLFormatter) encode(w io.Writer, data any) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	defer encoder.Close()
	return encoder.Encode(data)
}

func init() {
	if err := Register(NewYAMLFormatter()); err != nil {
		fmt.Printf("failed to register yaml formatter: %v\n", err)
	}
}
