// cmd/gigscrapexter/main_test.go
package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/valpere/GigScrapexter/internal/utils"
)

func TestLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want utils.LogLevel
	}{
		{"debug", utils.DebugLevel},
		{"info", utils.InfoLevel},
		{"warn", utils.WarnLevel},
		{"error", utils.ErrorLevel},
		{"", utils.InfoLevel},
		{"nonsense", utils.InfoLevel},
	}
	for _, tt := range tests {
		if got := logLevel(tt.in); got != tt.want {
			t.Errorf("logLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseRunArgs(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		wantConfig string
		wantMode   string
		wantMax    int
		wantErr    bool
	}{
		{name: "no arguments", args: nil},
		{name: "config only", args: []string{"config.yaml"}, wantConfig: "config.yaml"},
		{
			name:       "config with overrides",
			args:       []string{"config.yaml", "-mode", "backup", "-max-targets", "5"},
			wantConfig: "config.yaml",
			wantMode:   "backup",
			wantMax:    5,
		},
		{name: "flags without config", args: []string{"-mode", "test"}, wantMode: "test"},
		{name: "unknown flag", args: []string{"-bogus"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configFile, overrides, err := parseRunArgs(tt.args)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseRunArgs() error = %v", err)
			}
			if configFile != tt.wantConfig {
				t.Errorf("config file = %q, want %q", configFile, tt.wantConfig)
			}
			if overrides.mode != tt.wantMode {
				t.Errorf("mode = %q, want %q", overrides.mode, tt.wantMode)
			}
			if overrides.maxTargets != tt.wantMax {
				t.Errorf("max targets = %d, want %d", overrides.maxTargets, tt.wantMax)
			}
		})
	}
}

func TestValidateTargets(t *testing.T) {
	good := `
targets:
  - name: test-venue
    urls:
      - https://test-venue.example/schedule
`
	path := filepath.Join(t.TempDir(), "targets.yaml")
	if err := os.WriteFile(path, []byte(good), 0644); err != nil {
		t.Fatalf("writing targets file: %v", err)
	}
	if err := validateTargets(path); err != nil {
		t.Errorf("validateTargets() error = %v", err)
	}

	bad := `
targets:
  - name: ""
    urls: []
`
	badPath := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(badPath, []byte(bad), 0644); err != nil {
		t.Fatalf("writing targets file: %v", err)
	}
	if err := validateTargets(badPath); err == nil {
		t.Error("validateTargets() accepted an invalid file")
	}
}

func TestValidateConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("mode: weekly\n"), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	if err := validateConfig(path); err != nil {
		t.Errorf("validateConfig() error = %v", err)
	}

	if err := validateConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("validateConfig() accepted a missing file")
	}
}
