package bridge

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/wippyai/hostbridge/errors"
)

func TestFileLoader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.bundle")
	if err := os.WriteFile(path, []byte("var x = 1;"), 0o644); err != nil {
		t.Fatal(err)
	}

	b, err := FileLoader{Path: path}.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if b.Name != "index.bundle" || string(b.Source) != "var x = 1;" {
		t.Fatalf("bundle = %+v", b)
	}

	_, err = FileLoader{Path: path + ".missing"}.Load(context.Background())
	if !errors.Is(err, &errors.Error{Phase: errors.PhaseLoad, Kind: errors.KindInvalidData}) {
		t.Fatalf("missing file err = %v", err)
	}
}

func TestCachedFileLoader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cached.js")
	if err := os.WriteFile(path, []byte("1"), 0o644); err != nil {
		t.Fatal(err)
	}
	l := CachedFileLoader{CachePath: path, SourceURL: "http://localhost:8081/index.bundle"}
	b, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if b.URL != l.SourceURL {
		t.Fatalf("url = %q", b.URL)
	}
}

func TestRemoteLoader(t *testing.T) {
	b, err := RemoteLoader{SourceURL: "http://localhost:8081/index.bundle"}.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(b.Source) != 0 || b.URL == "" {
		t.Fatalf("bundle = %+v", b)
	}
	if _, err := (RemoteLoader{}).Load(context.Background()); err == nil {
		t.Fatal("expected error for empty URL")
	}
}
