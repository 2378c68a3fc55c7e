package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

// TableFormatter outputs records as a human-readable table, one row
// per record.
type TableFormatter struct{}

func (f *TableFormatter) Format(w io.Writer, records []Record, columns []string) error {
	if len(records) == 0 {
		_, _ = fmt.Fprintln(w, "(no data)")
		return nil
	}

	cols := columns
	if len(cols) == 0 {
		cols = sortedKeys(records[0])
	}

	table := tablewriter.NewTable(w,
		tablewriter.WithHeaderAutoFormat(tw.Off),
		tablewriter.WithRowAutoWrap(tw.WrapNone),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.Border{Top: tw.On, Bottom: tw.On, Left: tw.On, Right: tw.On},
		}),
	)

	headers := make([]interface{}, len(cols))
	for i, col := range cols {
		headers[i] = snakeToTitle(col)
	}
	table.Header(headers...)

	for _, record := range records {
		row := make([]interface{}, len(cols))
		for i, col := range cols {
			row[i] = formatValue(record[col])
		}
		table.Append(row...)
	}

	return table.Render()
}

// sortedKeys returns the sorted keys of a record.
func sortedKeys(m Record) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// snakeToTitle converts "plugin_id" to "Plugin Id".
func snakeToTitle(s string) string {
	parts := strings.Split(s, "_")
	for i, p := range parts {
		if len(p) > 0 {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, " ")
}

// formatValue converts a value to a display string.
func formatValue(v any) string {
	if v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%.2f", val)
	case bool:
		if val {
			return "true"
		}
		return "false"
	case []string:
		return strings.Join(val, ", ")
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = formatValue(item)
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		b, _ := json.Marshal(val)
		return string(b)
	default:
		return fmt.Sprintf("%v", val)
	}
}
