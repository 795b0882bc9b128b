package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nao1215/corpuscrawl/internal/database"
	corpuslog "github.com/nao1215/corpuscrawl/internal/log"
)

func TestFinishStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "success", err: nil, want: database.StatusCompleted},
		{name: "cancelled", err: fmt.Errorf("fetch: %w", context.Canceled), want: database.StatusInterrupted},
		{name: "failure", err: errors.New("disk full"), want: database.StatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := finishStatus(tt.err); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

// TestSetupLogger tests the --log-format flag. It installs the default
// logger, so it does not run in parallel.
func TestSetupLogger(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	tests := []struct {
		name    string
		format  string
		wantErr bool
		check   func(t *testing.T, out string)
	}{
		{
			name:   "text by default",
			format: "",
			check: func(t *testing.T, out string) {
				if !strings.Contains(out, "msg=hello") {
					t.Errorf("expected text output, got %q", out)
				}
			},
		},
		{
			name:   "json",
			format: logFormatJSON,
			check: func(t *testing.T, out string) {
				var entry map[string]any
				if err := json.Unmarshal([]byte(out), &entry); err != nil {
					t.Fatalf("expected one JSON object, got %q: %v", out, err)
				}
				if entry["msg"] != "hello" || entry["cookie"] != corpuslog.MaskValue {
					t.Errorf("unexpected entry: %v", entry)
				}
			},
		},
		{name: "unknown", format: "xml", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			cmd := NewRootCmd()
			cmd.SetErr(&buf)
			if tt.format != "" {
				if err := cmd.PersistentFlags().Set("log-format", tt.format); err != nil {
					t.Fatal(err)
				}
			}

			logger, err := setupLogger(cmd, false)
			if tt.wantErr {
				if err == nil {
					t.Error("expected an error for an unknown format")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			logger.Info("hello", "cookie", "sid=1")
			if slog.Default() != logger {
				t.Error("expected the logger to become the default")
			}
			tt.check(t, strings.TrimSpace(buf.String()))
		})
	}
}

func TestBuildConfig(t *testing.T) {
	t.Parallel()

	cmd := NewCrawlCmd()
	dataDir := t.TempDir()
	if err := cmd.ParseFlags([]string{"-D", dataDir, "--no-db", "-w", "3", "--split-limit", "0"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := buildConfig(cmd, []string{"sacred-texts"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Source != "sacred-texts" {
		t.Errorf("expected source from argument, got %q", cfg.Source)
	}
	if cfg.OutputPath != filepath.Join(dataDir, "corpus.jsonl") {
		t.Errorf("expected output inside data dir, got %q", cfg.OutputPath)
	}
	if cfg.CatalogPath != filepath.Join(dataDir, "catalog.json") {
		t.Errorf("expected catalog inside data dir, got %q", cfg.CatalogPath)
	}
	if cfg.DBDir != "" {
		t.Errorf("expected database to be disabled, got %q", cfg.DBDir)
	}
	if cfg.Workers != 3 || cfg.OversizeLimit != 0 {
		t.Errorf("expected flag values, got workers=%d split=%d", cfg.Workers, cfg.OversizeLimit)
	}
}
