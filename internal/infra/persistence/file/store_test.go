package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"classledger/pkg/domain"
)

func TestSlotRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "data.json")
	s, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := s.Read(ctx); !errors.Is(err, domain.ErrSlotEmpty) {
		t.Fatalf("expected ErrSlotEmpty, got %v", err)
	}
	for _, payload := range []string{`{"groups":[]}`, `{"groups":[{"id":"g"}]}`} {
		if err := s.Write(ctx, []byte(payload)); err != nil {
			t.Fatalf("write: %v", err)
		}
		got, err := s.Read(ctx)
		if err != nil || string(got) != payload {
			t.Fatalf("read: %q %v", got, err)
		}
	}
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
	if s.Driver() != "file" || s.Path() != path {
		t.Fatalf("unexpected slot %s %s", s.Driver(), s.Path())
	}
}

func TestSlotReadErrorIsNotEmpty(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := s.Read(context.Background()); err == nil || errors.Is(err, domain.ErrSlotEmpty) {
		t.Fatalf("expected read error for directory path, got %v", err)
	}
}
