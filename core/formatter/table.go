package formatter

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/artpar/dataforge/core/meta"
	"github.com/artpar/dataforge/domain/values"
)

// TableFormatter formats output as aligned text columns.
type TableFormatter struct{}

// NewTableFormatter creates a new table formatter.
func NewTableFormatter() *TableFormatter {
	return &TableFormatter{}
}

// Name returns the formatter name.
func (f *TableFormatter) Name() string {
	return "table"
}

// Description returns the formatter description.
func (f *TableFormatter) Description() string {
	return "Human-readable table format"
}

// FormatMeta prints one NAME/TYPE/VALUE row per flattened value.
func (f *TableFormatter) FormatMeta(w io.Writer, m meta.Meta, opts FormatOptions) error {
	entries := meta.Flatten(m)
	rows := Rows{Columns: []string{"name", "type", "value"}}
	for _, e := range entries {
		rows.Records = append(rows.Records, []string{
			e.Name.String(),
			string(e.Value.Type()),
			f.formatValue(e.Value),
		})
	}
	if len(rows.Records) == 0 {
		fmt.Fprintln(w, "No values.")
		return nil
	}
	return f.FormatRows(w, rows, opts)
}

// FormatRows formats a listing as a table.
func (f *TableFormatter) FormatRows(w io.Writer, rows Rows, opts FormatOptions) error {
	rows = rows.project(opts.Columns)
	if len(rows.Records) == 0 {
		fmt.Fprintln(w, "No records found.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	if !opts.NoHeader {
		headers := make([]string, len(rows.Columns))
		for i, col := range rows.Columns {
			headers[i] = strings.ToUpper(col)
		}
		fmt.Fprintln(tw, strings.Join(headers, "\t"))
	}

	for _, rec := range rows.Records {
		cells := make([]string, len(rec))
		for i, cell := range rec {
			cells[i] = truncate(cell, opts.MaxWidth)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}

	return tw.Flush()
}

// FormatError formats an error message.
func (f *TableFormatter) FormatError(w io.Writer, err error) error {
	fmt.Fprintf(w, "Error: %s\n", err.Error())
	return nil
}

// formatValue formats a value for display.
func (f *TableFormatter) formatValue(v values.Value) string {
	switch v := v.(type) {
	case values.Null:
		return "-"
	case values.Binary:
		return fmt.Sprintf("[binary %d bytes]", len(v))
	default:
		return v.String()
	}
}

func truncate(s string, maxWidth int) string {
	if maxWidth > 3 && len(s) > maxWidth {
		return s[:maxWidth-3] + "..."
	}
	return s
}

func init() {
	Register(NewTableFormatter())
}
