package include

import (
	"context"
	"log/slog"
)

// Cache stores fetched include sources keyed by reference.
// Implemented by the sqlite store (persistent, CLI) and by plain maps in
// tests. Caching is an optimization only - correctness never depends on a
// hit, so cache errors degrade to fetching.
type Cache interface {
	Get(ref string) (src string, ok bool, err error)
	Put(ref, src string) error
}

// CachedFetcher consults a Cache before delegating to the underlying
// Fetcher, and populates it after a successful fetch.
type CachedFetcher struct {
	Source Fetcher
	Cache  Cache
}

// Fetch implements Fetcher.
func (f CachedFetcher) Fetch(ctx context.Context, ref string) (string, error) {
	src, ok, err := f.Cache.Get(ref)
	if err != nil {
		slog.Warn("include cache read failed", "ref", ref, "error", err)
	} else if ok {
		slog.Debug("include cache hit", "ref", ref)
		return src, nil
	}

	src, err = f.Source.Fetch(ctx, ref)
	if err != nil {
		return "", err
	}
	if err := f.Cache.Put(ref, src); err != nil {
		slog.Warn("include cache write failed", "ref", ref, "error", err)
	}
	return src, nil
}
