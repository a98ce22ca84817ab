package include

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Fetcher retrieves the raw markup text for an include source reference.
//
// Implementations may resolve locally (files, embedded assets) or remotely
// (HTTP); the engine treats every fetch as a deferred result either way.
// Fetch must honor ctx cancellation for remote sources.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) (string, error)
}

// FileFetcher resolves include references as paths relative to Root.
// References must stay inside Root; traversal outside it is a fetch error.
type FileFetcher struct {
	Root string
}

// Fetch implements Fetcher.
func (f FileFetcher) Fetch(_ context.Context, ref string) (string, error) {
	clean := filepath.Clean(ref)
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("reference escapes root: %s", ref)
	}
	raw, err := os.ReadFile(filepath.Join(f.Root, clean))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// FuncFetcher adapts a function as a Fetcher. Used by tests and by hosts
// with in-memory template tables.
type FuncFetcher func(ctx context.Context, ref string) (string, error)

// Fetch implements Fetcher.
func (f FuncFetcher) Fetch(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// MapFetcher serves includes from a fixed in-memory table.
// Unknown references are fetch errors.
type MapFetcher map[string]string

// Fetch implements Fetcher.
func (f MapFetcher) Fetch(_ context.Context, ref string) (string, error) {
	src, ok := f[ref]
	if !ok {
		return "", fmt.Errorf("unknown include source: %s", ref)
	}
	return src, nil
}
