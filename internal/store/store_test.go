package store

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileStoreRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if _, ok, err := s.Load(SourceKey); ok || err != nil {
		t.Fatalf("empty store: ok=%v err=%v", ok, err)
	}
	if err := s.Save(SourceKey, `{"instruments":{}}`); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Save(SourceKey, `{"instruments":{"a":{}}}`); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, ok, err := s.Load(SourceKey)
	if err != nil || !ok {
		t.Fatalf("Load: ok=%v err=%v", ok, err)
	}
	if got != `{"instruments":{"a":{}}}` {
		t.Fatalf("Load = %q", got)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != SourceKey {
		t.Fatalf("temporary files left behind: %v", entries)
	}
}

func TestFileStoreRejectsPathKeys(t *testing.T) {
	s := &FileStore{Dir: t.TempDir()}
	for _, key := range []string{"", "../escape", "a/b"} {
		if err := s.Save(key, "x"); err == nil {
			t.Fatalf("key %q should be rejected", key)
		}
	}
}

func TestNewFileStoreExpandsHome(t *testing.T) {
	s, err := NewFileStore("~/stepsynth")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if s.Dir == "~/stepsynth" || !filepath.IsAbs(s.Dir) {
		t.Fatalf("dir not expanded: %q", s.Dir)
	}
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	if _, ok, _ := m.Load(SourceKey); ok {
		t.Fatalf("empty memory store")
	}
	_ = m.Save(SourceKey, "x")
	if v, ok, _ := m.Load(SourceKey); !ok || v != "x" {
		t.Fatalf("Load = %q %v", v, ok)
	}
}
