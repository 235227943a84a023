package bridge

import (
	"context"
	"os"
	"path/filepath"

	"github.com/wippyai/hostbridge/errors"
)

// Bundle is the program handed to an executor. Source may be empty when the
// executor fetches the program itself from URL.
type Bundle struct {
	Name   string
	URL    string
	Source []byte
}

// BundleLoader supplies the program for a new context. Swapping the loader
// is how a host reloads.
type BundleLoader interface {
	Load(ctx context.Context) (Bundle, error)
	Description() string
}

// FileLoader reads a bundle from disk.
type FileLoader struct {
	Path string
}

func (l FileLoader) Load(ctx context.Context) (Bundle, error) {
	if err := ctx.Err(); err != nil {
		return Bundle{}, errors.Load("load "+l.Path, err)
	}
	src, err := os.ReadFile(l.Path)
	if err != nil {
		return Bundle{}, errors.Load("read "+l.Path, err)
	}
	return Bundle{Name: filepath.Base(l.Path), URL: "file://" + l.Path, Source: src}, nil
}

func (l FileLoader) Description() string {
	return "file " + l.Path
}

// BytesLoader serves an in-memory bundle.
type BytesLoader struct {
	Name   string
	Source []byte
}

func (l BytesLoader) Load(context.Context) (Bundle, error) {
	return Bundle{Name: l.Name, Source: l.Source}, nil
}

func (l BytesLoader) Description() string {
	return "bytes " + l.Name
}

// CachedFileLoader runs a previously downloaded bundle. SourceURL is the
// location it was downloaded from and is reported to the runtime as the
// bundle URL.
type CachedFileLoader struct {
	CachePath string
	SourceURL string
}

func (l CachedFileLoader) Load(ctx context.Context) (Bundle, error) {
	if err := ctx.Err(); err != nil {
		return Bundle{}, errors.Load("load "+l.CachePath, err)
	}
	src, err := os.ReadFile(l.CachePath)
	if err != nil {
		return Bundle{}, errors.Load("read cached bundle "+l.CachePath, err)
	}
	return Bundle{Name: filepath.Base(l.CachePath), URL: l.SourceURL, Source: src}, nil
}

func (l CachedFileLoader) Description() string {
	return "cached " + l.SourceURL + " at " + l.CachePath
}

// RemoteLoader points a remote executor at a bundle URL. The bytes are
// fetched by the remote side, never by the host.
type RemoteLoader struct {
	SourceURL string
}

func (l RemoteLoader) Load(context.Context) (Bundle, error) {
	if l.SourceURL == "" {
		return Bundle{}, errors.Load("remote bundle has no URL", nil)
	}
	return Bundle{Name: l.SourceURL, URL: l.SourceURL}, nil
}

func (l RemoteLoader) Description() string {
	return "remote " + l.SourceURL
}
