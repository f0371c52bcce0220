package ux

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"testing"
)

type linkOutcome string

func (o linkOutcome) String() string { return "outcome: " + string(o) }

type deviceRows []string

func (r deviceRows) RenderText(w io.Writer) error {
	for _, id := range r {
		if _, err := fmt.Fprintf(w, "%s\tactive\n", id); err != nil {
			return err
		}
	}
	return nil
}

type device struct {
	DeviceID string `json:"device_id" yaml:"device_id"`
	IsActive bool   `json:"is_active" yaml:"is_active"`
}

func TestNewFormatterRejectsUnknown(t *testing.T) {
	for _, format := range []string{"", FormatText, FormatJSON, FormatYAML} {
		if _, err := NewFormatter(format, nil); err != nil {
			t.Errorf("NewFormatter(%q) error = %v", format, err)
		}
	}

	_, err := NewFormatter("xml", nil)
	if err == nil || !strings.Contains(err.Error(), "supported: text, json, yaml") {
		t.Errorf("NewFormatter(xml) error = %v", err)
	}
}

func TestFormat(t *testing.T) {
	dev := device{DeviceID: "dev-1", IsActive: true}

	tests := []struct {
		name    string
		format  string
		compact bool
		data    any
		want    string
		wantErr bool
	}{
		{name: "json indented", format: FormatJSON, data: dev, want: "{\n  \"device_id\": \"dev-1\",\n  \"is_active\": true\n}\n"},
		{name: "json compact", format: FormatJSON, compact: true, data: dev, want: "{\"device_id\":\"dev-1\",\"is_active\":true}\n"},
		{name: "yaml", format: FormatYAML, data: dev, want: "device_id: dev-1\nis_active: true\n"},
		{name: "text string", format: FormatText, data: "Logged out", want: "Logged out\n"},
		{name: "text stringer", format: FormatText, data: linkOutcome("linked"), want: "outcome: linked\n"},
		{name: "text renderer", format: FormatText, data: deviceRows{"dev-1", "dev-2"}, want: "dev-1\tactive\ndev-2\tactive\n"},
		{name: "empty renderer", format: FormatText, data: deviceRows{}, want: ""},
		{name: "text struct unsupported", format: FormatText, data: dev, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			f, err := NewFormatter(tt.format, &FormatterOptions{Writer: &buf, Compact: tt.compact})
			if err != nil {
				t.Fatalf("NewFormatter() error = %v", err)
			}

			err = f.Format(tt.data)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Format() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !strings.Contains(err.Error(), "--format json or yaml") {
					t.Errorf("error should point at structured formats: %v", err)
				}
				return
			}
			if got := buf.String(); got != tt.want {
				t.Errorf("Format() = %q, want %q", got, tt.want)
			}
		})
	}
}
