// Package output renders sandboxctl command results: plugin listings,
// audit log entries, and trusted-key listings.
package output

import (
	"fmt"
	"io"
)

// Record is one row of output: a plugin's lifecycle summary, an audit
// event, or a trusted key's metadata.
type Record = map[string]interface{}

// Formatter renders a set of records to the given writer.
type Formatter interface {
	// Format writes records to w. TableFormatter uses columns, if
	// non-empty, as the column order and selection, and otherwise the
	// sorted keys of the first record; JSONFormatter and YAMLFormatter
	// ignore columns and write every key.
	Format(w io.Writer, records []Record, columns []string) error
}

// NewFormatter returns a Formatter for the given format name.
// Supported formats: "json", "table", "yaml", "quiet".
func NewFormatter(format string) (Formatter, error) {
	switch format {
	case "json":
		return &JSONFormatter{}, nil
	case "table":
		return &TableFormatter{}, nil
	case "yaml":
		return &YAMLFormatter{}, nil
	case "quiet":
		return &QuietFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %q (supported: json, table, yaml, quiet)", format)
	}
}

// QuietFormatter produces no output. The exit code conveys the result.
type QuietFormatter struct{}

func (f *QuietFormatter) Format(w io.Writer, _ []Record, _ []string) error {
	return nil
}
