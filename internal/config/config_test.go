package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	c := Default()
	if c.SampleRate != 44100 || c.Volume != 1 || c.LogLevel != "info" {
		t.Fatalf("unexpected defaults %+v", c)
	}
	if !c.MIDI.Enabled || c.MIDI.RescanInterval != time.Second || len(c.MIDI.Exclude) != 3 {
		t.Fatalf("unexpected midi defaults %+v", c.MIDI)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	data := "sample_rate: 48000\nlog_level: debug\nmidi:\n  include: [Launchkey]\n  rescan_interval: 250ms\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path, true)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.SampleRate != 48000 || c.LogLevel != "debug" {
		t.Fatalf("file values not applied: %+v", c)
	}
	if c.Volume != 1 || !c.MIDI.Enabled {
		t.Fatalf("unset values should keep defaults: %+v", c)
	}
	if len(c.MIDI.Include) != 1 || c.MIDI.RescanInterval != 250*time.Millisecond {
		t.Fatalf("midi = %+v", c.MIDI)
	}
}

func TestLoadMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.yml")
	if _, err := Load(path, false); err != nil {
		t.Fatalf("optional missing file: %v", err)
	}
	if _, err := Load(path, true); err == nil {
		t.Fatalf("required missing file should fail")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte("sample_rate: -1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path, true); err == nil {
		t.Fatalf("negative sample rate should fail")
	}
	if err := os.WriteFile(path, []byte("sample_rate: [\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path, true); err == nil {
		t.Fatalf("malformed yaml should fail")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"":      slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error")
	}
}
