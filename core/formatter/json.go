package formatter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/artpar/dataforge/core/meta"
	"github.com/artpar/dataforge/core/metacodec"
)

// JSONFormatter formats output as JSON.
type JSONFormatter struct{}

// NewJSONFormatter creates a new JSON formatter.
func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{}
}

// Name returns the formatter name.
func (f *JSONFormatter) Name() string {
	return "json"
}

// Description returns the formatter description.
func (f *JSONFormatter) Description() string {
	return "JSON output format"
}

// FormatMeta writes m in the JSON meta layout.
func (f *JSONFormatter) FormatMeta(w io.Writer, m meta.Meta, opts FormatOptions) error {
	if !opts.Compact {
		return metacodec.JSON.Encode(w, m)
	}
	b, err := metacodec.Marshal(metacodec.JSON, m)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, b); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err = w.Write(buf.Bytes())
	return err
}

// FormatRows formats a listing as a JSON document with count and data.
func (f *JSONFormatter) FormatRows(w io.Writer, rows Rows, opts FormatOptions) error {
	data := rows.project(opts.Columns).maps()
	output := map[string]any{
		"count": len(data),
		"data":  data,
	}
	return f.encode(w, output, opts.Compact)
}

// FormatError formats an error as JSON.
func (f *JSONFormatter) FormatError(w io.Writer, err error) error {
	output := map[string]any{
		"error": err.Error(),
	}
	return f.encode(w, output, false)
}

// encode writes JSON to the writer.
func (f *JSONFormatter) encode(w io.Writer, data any, compact bool) error {
	encoder := json.NewEncoder(w)
	if !compact {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(data)
}

func init() {
	if err := Register(NewJSONFormatter()); err != nil {
		fmt.Printf("failed to register json formatter: %v\n", err)
	}
}
