package memory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"classledger/internal/blob/core"
)

func TestStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()
	if s.Driver() != core.DriverMemory {
		t.Fatalf("unexpected driver %s", s.Driver())
	}
	info, err := s.Put(ctx, "exports/a.json", bytes.NewReader([]byte("one")), core.PutOptions{ContentType: "application/json", Metadata: map[string]string{"k": "v"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 3 || info.ETag == "" {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := s.Put(ctx, "exports/a.json", bytes.NewReader([]byte("second")), core.PutOptions{}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, rc, err := s.Get(ctx, "exports/a.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(b) != "second" || got.Size != 6 || got.ETag == info.ETag {
		t.Fatalf("overwrite not visible: %q %+v", b, got)
	}
	if _, err := s.Put(ctx, "other/b.json", bytes.NewReader(nil), core.PutOptions{}); err != nil {
		t.Fatalf("put other: %v", err)
	}
	list, err := s.List(ctx, "exports/")
	if err != nil || len(list) != 1 || list[0].Key != "exports/a.json" {
		t.Fatalf("list: %v %+v", err, list)
	}
	if ok, err := s.Delete(ctx, "exports/a.json"); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if ok, _ := s.Delete(ctx, "exports/a.json"); ok {
		t.Fatalf("second delete should report false")
	}
	if _, err := s.Head(ctx, "exports/a.json"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, _, err := s.Get(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPutRejectsInvalidKeys(t *testing.T) {
	s := New()
	for _, key := range []string{"", "/abs", "../up", "a/../../b"} {
		if _, err := s.Put(context.Background(), key, bytes.NewReader(nil), core.PutOptions{}); !errors.Is(err, core.ErrInvalidKey) {
			t.Fatalf("key %q: expected ErrInvalidKey, got %v", key, err)
		}
	}
}

func TestReturnedMetadataIsCopied(t *testing.T) {
	ctx := context.Background()
	s := New()
	md := map[string]string{"k": "v"}
	if _, err := s.Put(ctx, "k", bytes.NewReader(nil), core.PutOptions{Metadata: md}); err != nil {
		t.Fatalf("put: %v", err)
	}
	md["k"] = "changed"
	info, _ := s.Head(ctx, "k")
	info.Metadata["k"] = "mutated"
	again, _ := s.Head(ctx, "k")
	if again.Metadata["k"] != "v" {
		t.Fatalf("metadata aliased: %v", again.Metadata)
	}
}
