package memory

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"carerules/internal/assets/store"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	s := New()
	ctx := context.Background()
	if s.Driver() != store.DriverMemory {
		t.Fatalf("unexpected driver %s", s.Driver())
	}
	info, err := s.Put(ctx, "tables/a.yaml", strings.NewReader("a: 1"), store.PutOptions{ContentType: "application/yaml", Metadata: map[string]string{"k": "v"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 4 {
		t.Fatalf("unexpected size %d", info.Size)
	}
	if _, err := s.Put(ctx, "tables/a.yaml", strings.NewReader("b"), store.PutOptions{}); !errors.Is(err, store.ErrExists) {
		t.Fatalf("expected duplicate put to fail, got %v", err)
	}
	got, rc, err := s.Get(ctx, "tables/a.yaml")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(b) != "a: 1" || got.Metadata["k"] != "v" {
		t.Fatalf("unexpected content %q meta %v", b, got.Metadata)
	}
	got.Metadata["k"] = "changed"
	head, err := s.Head(ctx, "tables/a.yaml")
	if err != nil || head.Metadata["k"] != "v" {
		t.Fatalf("metadata aliasing: %v %v", head.Metadata, err)
	}
	if _, err := s.Put(ctx, "other", strings.NewReader("x"), store.PutOptions{}); err != nil {
		t.Fatalf("put other: %v", err)
	}
	list, _ := s.List(ctx, "tables/")
	if len(list) != 1 || list[0].Key != "tables/a.yaml" {
		t.Fatalf("unexpected list %+v", list)
	}
	if ok, _ := s.Delete(ctx, "tables/a.yaml"); !ok {
		t.Fatalf("expected delete to report existing key")
	}
	if ok, _ := s.Delete(ctx, "tables/a.yaml"); ok {
		t.Fatalf("expected second delete to report missing key")
	}
	if _, _, err := s.Get(ctx, "tables/a.yaml"); !errors.Is(err, store.ErrNotExist) {
		t.Fatalf("expected not exist, got %v", err)
	}
	if _, err := s.Head(ctx, "missing"); !errors.Is(err, store.ErrNotExist) {
		t.Fatalf("expected not exist on head, got %v", err)
	}
	if _, err := s.Put(ctx, " ", strings.NewReader("x"), store.PutOptions{}); err == nil {
		t.Fatalf("expected empty key error")
	}
}
