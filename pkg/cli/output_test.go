package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
)

func TestTextFormatter(t *testing.T) {
	formatter := &TextFormatter{}
	data := "test message"

	output, err := formatter.Format(data)
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}

	expected := "test message\n"
	if string(output) != expected {
		t.Errorf("Format() = %q, want %q", string(output), expected)
	}
}

func TestTextFormatterWriter(t *testing.T) {
	formatter := &TextFormatter{}
	data := "test message"
	buf := &bytes.Buffer{}

	err := formatter.FormatTo(buf, data)
	if err != nil {
		t.Fatalf("FormatTo() error = %v", err)
	}

	expected := "test message\n"
	if buf.String() != expected {
		t.Errorf("FormatTo() = %q, want %q", buf.String(), expected)
	}
}

func TestJSONFormatter(t *testing.T) {
	tests := []struct {
		name   string
		data   interface{}
		indent bool
	}{
		{
			name:   "simple string",
			data:   "test",
			indent: false,
		},
		{
			name: "map with indent",
			data: map[string]string{
				"key": "value",
			},
			indent: true,
		},
		{
			name: "struct",
			data: struct {
				ID    string `json:"id"`
				Tier  string `json:"tier"`
				State string `json:"state"`
			}{
				ID:    "key-1",
				Tier:  "flash",
				State: "available",
			},
			indent: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			formatter := &JSONFormatter{Indent: tt.indent}
			output, err := formatter.Format(tt.data)
			if err != nil {
				t.Fatalf("Format() error = %v", err)
			}

			var result interface{}
			if err := json.Unmarshal(output, &result); err != nil {
				t.Errorf("Format() produced invalid JSON: %v", err)
			}
		})
	}
}

func TestJSONFormatterWriter(t *testing.T) {
	formatter := &JSONFormatter{Indent: true}
	data := map[string]string{"test": "value"}
	buf := &bytes.Buffer{}

	err := formatter.FormatTo(buf, data)
	if err != nil {
		t.Fatalf("FormatTo() error = %v", err)
	}

	var result map[string]string
	if err := json.Unmarshal(buf.Bytes(), &result); err != nil {
		t.Errorf("FormatTo() produced invalid JSON: %v", err)
	}

	if result["test"] != "value" {
		t.Errorf("FormatTo() = %v, want %v", result, data)
	}
}

func TestCSVFormatter(t *testing.T) {
	formatter := &CSVFormatter{
		Headers: []string{"id", "tier", "state"},
	}

	rows := [][]string{
		{"key-1", "flash", "available"},
		{"key-2", "pro", "cooling"},
	}

	output, err := formatter.Format(rows)
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	if len(lines) != 3 {
		t.Fatalf("Format() produced %d lines, want 3", len(lines))
	}
	if lines[0] != "id,tier,state" {
		t.Errorf("header = %q, want %q", lines[0], "id,tier,state")
	}
	if lines[1] != "key-1,flash,available" {
		t.Errorf("row 1 = %q, want %q", lines[1], "key-1,flash,available")
	}
}

func TestCSVFormatterQuoting(t *testing.T) {
	formatter := &CSVFormatter{Headers: []string{"id", "detail"}}

	output, err := formatter.Format([][]string{{"key-1", `quota: rpm, tpm`}})
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}

	if !strings.Contains(string(output), `"quota: rpm, tpm"`) {
		t.Errorf("Format() = %q, want comma-bearing field quoted", string(output))
	}
}

func TestCSVFormatterRejectsNonRows(t *testing.T) {
	formatter := &CSVFormatter{}

	if _, err := formatter.Format(map[string]int{"a": 1}); err == nil {
		t.Error("Format() error = nil for non-row data, want error")
	}
}

func TestCSVFormatterNoHeaders(t *testing.T) {
	formatter := &CSVFormatter{}

	output, err := formatter.Format([][]string{{"a", "b"}})
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if strings.TrimSpace(string(output)) != "a,b" {
		t.Errorf("Format() = %q, want %q", strings.TrimSpace(string(output)), "a,b")
	}
}

func TestNewFormatter(t *testing.T) {
	tests := []struct {
		name   string
		format OutputFormat
		want   string
	}{
		{
			name:   "text formatter",
			format: FormatText,
			want:   "*cli.TextFormatter",
		},
		{
			name:   "json formatter",
			format: FormatJSON,
			want:   "*cli.JSONFormatter",
		},
		{
			name:   "csv formatter",
			format: FormatCSV,
			want:   "*cli.CSVFormatter",
		},
		{
			name:   "default to text",
			format: "unknown",
			want:   "*cli.TextFormatter",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			formatter := NewFormatter(tt.format)
			got := fmt.Sprintf("%T", formatter)
			if got != tt.want {
				t.Errorf("NewFormatter(%q) type = %v, want %v", tt.format, got, tt.want)
			}
		})
	}
}
