package output

import (
	"io"

	"gopkg.in/yaml.v3"
)

// YAMLFormatter outputs records as YAML.
type YAMLFormatter struct{}

func (f *YAMLFormatter) Format(w io.Writer, records []Record, _ []string) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer func() { _ = enc.Close() }()

	if len(records) == 1 {
		return enc.Encode(records[0])
	}
	return enc.Encode(records)
}
