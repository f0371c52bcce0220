package version

import (
	"runtime"
	"runtime/debug"
	"strings"
	"testing"
)

func TestGetInfo(t *testing.T) {
	info := GetInfo()

	if info.Version != Version {
		t.Errorf("Version = %q, want %q", info.Version, Version)
	}
	if info.GoVersion != runtime.Version() {
		t.Errorf("GoVersion = %q, want %q", info.GoVersion, runtime.Version())
	}
	if want := runtime.GOOS + "/" + runtime.GOARCH; info.Platform != want {
		t.Errorf("Platform = %q, want %q", info.Platform, want)
	}
}

func TestFromBuildSettings(t *testing.T) {
	settings := []debug.BuildSetting{
		{Key: "vcs.revision", Value: "0123456789abcdef"},
		{Key: "vcs.time", Value: "2024-05-01T10:00:00Z"},
		{Key: "vcs.modified", Value: "true"},
		{Key: "GOARCH", Value: "amd64"},
	}

	tests := []struct {
		name       string
		in         Info
		wantCommit string
		wantDate   string
	}{
		{"fills unknown", Info{Commit: "unknown", Date: "unknown"}, "0123456789abcdef", "2024-05-01T10:00:00Z"},
		{"ldflags win", Info{Commit: "abc1234", Date: "2024-06-01"}, "abc1234", "2024-06-01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := fromBuildSettings(tt.in, settings)
			if got.Commit != tt.wantCommit {
				t.Errorf("Commit = %q, want %q", got.Commit, tt.wantCommit)
			}
			if got.Date != tt.wantDate {
				t.Errorf("Date = %q, want %q", got.Date, tt.wantDate)
			}
			if !got.Modified {
				t.Error("expected Modified from vcs.modified")
			}
		})
	}
}

func TestInfoString(t *testing.T) {
	info := Info{
		Version:   "1.2.0",
		Commit:    "0123456789abcdef",
		Date:      "2024-05-01",
		GoVersion: "go1.24.6",
		Platform:  "linux/amd64",
	}

	want := "qrlink 1.2.0 (01234567) built 2024-05-01 with go1.24.6 for linux/amd64"
	if got := info.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}

	info.Modified = true
	if got := info.String(); !strings.Contains(got, "(01234567-dirty)") {
		t.Errorf("String() = %q, want dirty marker", got)
	}

	info.Commit = "abc"
	if got := info.String(); !strings.Contains(got, "(abc-dirty)") {
		t.Errorf("short commit should be kept whole: %q", got)
	}

	if got := info.Short(); got != "1.2.0" {
		t.Errorf("Short() = %q", got)
	}
}
