package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func testRecords() []Record {
	return []Record{
		{"plugin_id": "git-status", "state": "active", "trust": "first_party"},
		{"plugin_id": "weather-widget", "state": "loaded", "trust": "community"},
	}
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	f := &JSONFormatter{}
	if err := f.Format(&buf, testRecords(), nil); err != nil {
		t.Fatalf("Format: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "git-status") {
		t.Errorf("expected 'git-status' in output: %s", output)
	}

	var data []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &data); err != nil {
		t.Errorf("output is not valid JSON: %v", err)
	}
}

func TestJSONFormatterSingleRecordIsObject(t *testing.T) {
	var buf bytes.Buffer
	f := &JSONFormatter{}
	if err := f.Format(&buf, testRecords()[:1], nil); err != nil {
		t.Fatalf("Format: %v", err)
	}

	var data map[string]any
	if err := json.Unmarshal(buf.Bytes(), &data); err != nil {
		t.Errorf("single record should decode as an object, not array: %v", err)
	}
}

func TestTableFormatter(t *testing.T) {
	var buf bytes.Buffer
	f := &TableFormatter{}
	err := f.Format(&buf, testRecords(), []string{"plugin_id", "state", "trust"})
	if err != nil {
		t.Fatalf("Format: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "git-status") {
		t.Errorf("expected 'git-status' in table output: %s", output)
	}
	if !strings.Contains(output, "Plugin Id") {
		t.Errorf("expected title-cased headers in output: %s", output)
	}
}

func TestTableFormatterEmpty(t *testing.T) {
	var buf bytes.Buffer
	f := &TableFormatter{}
	if err := f.Format(&buf, nil, nil); err != nil {
		t.Fatalf("Format: %v", err)
	}
	if !strings.Contains(buf.String(), "(no data)") {
		t.Errorf("expected '(no data)' placeholder, got: %s", buf.String())
	}
}

func TestYAMLFormatter(t *testing.T) {
	var buf bytes.Buffer
	f := &YAMLFormatter{}
	if err := f.Format(&buf, testRecords(), nil); err != nil {
		t.Fatalf("Format: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "plugin_id: git-status") {
		t.Errorf("expected YAML key-value in output: %s", output)
	}
}

func TestNewFormatter_Invalid(t *testing.T) {
	_, err := NewFormatter("xml")
	if err == nil {
		t.Error("expected error for unsupported format")
	}
}
