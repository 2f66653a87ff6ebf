package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/existflow/hearth/internal/logger"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if !cfg.ConfirmDelete || cfg.LogLevel != "INFO" {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.LogFile != filepath.Join(dir, "logs", "hearth.log") {
		t.Errorf("LogFile = %q", cfg.LogFile)
	}
	if _, err := cfg.Board(); !errors.Is(err, ErrNoBoard) {
		t.Errorf("Board = %v, want ErrNoBoard", err)
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig(dir)
	cfg.ServerURL = "https://hearth.example.com"
	cfg.BoardID = "b1"
	cfg.LogLevel = "DEBUG"
	cfg.ConfirmDelete = false
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if got.ServerURL != cfg.ServerURL || got.BoardID != "b1" || got.ConfirmDelete {
		t.Errorf("loaded = %+v", got)
	}
	if lc := got.Logger(); lc.Level != logger.DEBUG || lc.FilePath != cfg.LogFile {
		t.Errorf("Logger() = %+v", lc)
	}
}

func TestInvalidFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server_url: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFrom(dir); err == nil {
		t.Error("LoadFrom accepted invalid yaml")
	}
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig(dir)
	cfg.ServerURL = "http://from-file"
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	t.Setenv("HEARTH_SERVER_URL", "http://from-env")
	t.Setenv("HEARTH_LOG_CONSOLE", "true")
	got, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if got.ServerURL != "http://from-env" || !got.LogConsole {
		t.Errorf("env not applied: %+v", got)
	}
}

func TestBoardSelection(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig(dir)
	cfg.BoardID = "from-config"

	tests := []struct {
		name   string
		setup  func(t *testing.T)
		want   string
		wantGr string
	}{
		{"config value", func(t *testing.T) {}, "from-config", "from-config"},
		{"selected board wins", func(t *testing.T) {
			if err := cfg.SetBoard("picked"); err != nil {
				t.Fatal(err)
			}
		}, "picked", "picked"},
		{"env wins over selection", func(t *testing.T) {
			t.Setenv("HEARTH_BOARD_ID", "env-board")
		}, "env-board", "env-board"},
		{"cleared selection", func(t *testing.T) {
			if err := cfg.ClearBoard(); err != nil {
				t.Fatal(err)
			}
		}, "from-config", "from-config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup(t)
			got, err := cfg.Board()
			if err != nil || got != tt.want {
				t.Errorf("Board = (%q, %v), want %q", got, err, tt.want)
			}
			if g := cfg.Group(got); g != tt.wantGr {
				t.Errorf("Group = %q, want %q", g, tt.wantGr)
			}
		})
	}

	cfg.GroupID = "household"
	if g := cfg.Group("b1"); g != "household" {
		t.Errorf("explicit Group = %q", g)
	}
	if err := cfg.ClearBoard(); err != nil {
		t.Errorf("second ClearBoard: %v", err)
	}
	if err := cfg.SetBoard("  "); err == nil {
		t.Error("SetBoard accepted a blank id")
	}
}
