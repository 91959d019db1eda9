// Package output renders CLI results as a table, JSON or YAML.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"
)

var headerColor = color.New(color.FgWhite, color.Bold)

// Supported formats.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

// ValidateFormat rejects unknown --output values.
func ValidateFormat(format string) error {
	switch format {
	case FormatTable, FormatJSON, FormatYAML:
		return nil
	default:
		return fmt.Errorf("unknown output format %q (supported: table, json, yaml)", format)
	}
}

// JSON writes v as indented JSON.
func JSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// YAML writes v as YAML.
func YAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// Structured writes v in a machine format. It reports false for the table
// format so the caller can render its own table.
func Structured(w io.Writer, format string, v any) (bool, error) {
	switch format {
	case FormatJSON:
		return true, JSON(w, v)
	case FormatYAML:
		return true, YAML(w, v)
	default:
		return false, nil
	}
}

// Table is a fixed-column text table.
type Table struct {
	headers []string
	rows    [][]string
}

// NewTable creates a table with the given headers.
func NewTable(headers ...string) *Table {
	return &Table{headers: headers}
}

// AddRow appends a row. Missing cells render empty; extra cells are dropped.
func (t *Table) AddRow(cells ...string) {
	row := make([]string, len(t.headers))
	copy(row, cells)
	t.rows = append(t.rows, row)
}

// Render writes the table to w.
func (t *Table) Render(w io.Writer) error {
	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = len(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var b strings.Builder
	writeRow := func(cells []string, c *color.Color) {
		for i, cell := range cells {
			if i < len(cells)-1 {
				cell = fmt.Sprintf("%-*s  ", widths[i], cell)
			}
			if c != nil {
				cell = c.Sprint(cell)
			}
			b.WriteString(cell)
		}
		b.WriteByte('\n')
	}

	writeRow(t.headers, headerColor)
	sep := make([]string, len(widths))
	for i, n := range widths {
		sep[i] = strings.Repeat("-", n)
	}
	writeRow(sep, nil)
	for _, row := range t.rows {
		writeRow(row, nil)
	}

	_, err := io.WriteString(w, b.String())
	return err
}
