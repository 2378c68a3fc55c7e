package output

import (
	"encoding/json"
	"io"
)

// JSONFormatter outputs records as pretty-printed JSON. A single record
// is printed as an object, not a one-element array, for clean piping to
// jq.
type JSONFormatter struct{}

func (f *JSONFormatter) Format(w io.Writer, records []Record, _ []string) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if len(records) == 1 {
		return enc.Encode(records[0])
	}
	return enc.Encode(records)
}
