package fs

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"carerules/internal/assets/store"
)

func TestFilesystemStorePutGetList(t *testing.T) {
	root := t.TempDir()
	s, err := New(root)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()
	info, err := s.Put(ctx, "growth/weight.yaml", strings.NewReader("24: {}"), store.PutOptions{ContentType: "application/yaml", Metadata: map[string]string{"source": "who"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.ETag == "" || info.Size != 6 {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := s.Put(ctx, "growth/weight.yaml", strings.NewReader("x"), store.PutOptions{}); !errors.Is(err, store.ErrExists) {
		t.Fatalf("expected exists error, got %v", err)
	}
	got, rc, err := s.Get(ctx, "growth/weight.yaml")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(b) != "24: {}" || got.Metadata["source"] != "who" || got.ContentType != "application/yaml" {
		t.Fatalf("unexpected get %q %+v", b, got)
	}
	list, err := s.List(ctx, "growth/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Key != "growth/weight.yaml" {
		t.Fatalf("sidecars or temp files leaked into list: %+v", list)
	}
}

func TestFilesystemStoreServesFilesWithoutSidecar(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "weight-for-age-male.json"), []byte(`{"24":{}}`), 0o600); err != nil {
		t.Fatalf("seed: %v", err)
	}
	s, err := New(root)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	info, rc, err := s.Get(context.Background(), "weight-for-age-male.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	_ = rc.Close()
	if info.Size != 9 || info.ETag != "" {
		t.Fatalf("unexpected stat-derived info %+v", info)
	}
}

func TestFilesystemStoreErrors(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()
	if _, _, err := s.Get(ctx, "missing"); !errors.Is(err, store.ErrNotExist) {
		t.Fatalf("expected not exist, got %v", err)
	}
	for _, key := range []string{"", "../escape", "/abs", "x.meta"} {
		if _, err := s.Put(ctx, key, strings.NewReader("x"), store.PutOptions{}); err == nil {
			t.Fatalf("expected invalid key %q to fail", key)
		}
	}
	if ok, err := s.Delete(ctx, "missing"); ok || err != nil {
		t.Fatalf("expected (false, nil) deleting missing key, got (%v, %v)", ok, err)
	}
	if _, err := s.Put(ctx, "dir/file", strings.NewReader("x"), store.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := s.Head(ctx, "dir"); !errors.Is(err, store.ErrNotExist) {
		t.Fatalf("directory should not be served as an asset: %v", err)
	}
	if ok, err := s.Delete(ctx, "dir/file"); !ok || err != nil {
		t.Fatalf("delete: %v %v", ok, err)
	}
}

func TestFilesystemStoreListSkipsPendingWrites(t *testing.T) {
	root := t.TempDir()
	s, err := New(root)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, ".weight.yaml1234567"), []byte("partial"), 0o600); err != nil {
		t.Fatalf("seed: %v", err)
	}
	ctx := context.Background()
	if _, err := s.Put(ctx, "weight.yaml", strings.NewReader("24: {}"), store.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	list, err := s.List(ctx, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Key != "weight.yaml" {
		t.Fatalf("pending file leaked into list: %+v", list)
	}
}
