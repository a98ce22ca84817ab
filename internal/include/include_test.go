package include

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckCycle(t *testing.T) {
	assert.NoError(t, CheckCycle("a.htql", nil))
	assert.NoError(t, CheckCycle("c.htql", []string{"a.htql", "b.htql"}))

	err := CheckCycle("a.htql", []string{"a.htql", "b.htql"})
	require.Error(t, err)
	assert.True(t, IsCircular(err))

	var ce *CircularIncludeError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, []string{"a.htql", "b.htql", "a.htql"}, ce.Cycle)
}

func TestExtendChain_NoAliasing(t *testing.T) {
	base := make([]string, 1, 4)
	base[0] = "root.htql"

	left := ExtendChain(base, "left.htql")
	right := ExtendChain(base, "right.htql")

	assert.Equal(t, []string{"root.htql", "left.htql"}, left)
	assert.Equal(t, []string{"root.htql", "right.htql"}, right)
}

func TestFileFetcher(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "card.htql"), []byte("<span>x</span>"), 0o644))

	f := FileFetcher{Root: dir}
	src, err := f.Fetch(context.Background(), "card.htql")
	require.NoError(t, err)
	assert.Equal(t, "<span>x</span>", src)

	_, err = f.Fetch(context.Background(), "missing.htql")
	require.Error(t, err)

	_, err = f.Fetch(context.Background(), "../outside.htql")
	require.Error(t, err)

	_, err = f.Fetch(context.Background(), "/etc/passwd")
	require.Error(t, err)
}

func TestMapFetcher(t *testing.T) {
	f := MapFetcher{"a.htql": "<b>hi</b>"}

	src, err := f.Fetch(context.Background(), "a.htql")
	require.NoError(t, err)
	assert.Equal(t, "<b>hi</b>", src)

	_, err = f.Fetch(context.Background(), "b.htql")
	require.Error(t, err)
}

// mapCache is an in-memory Cache for tests.
type mapCache struct {
	entries map[string]string
	failGet bool
}

func (c *mapCache) Get(ref string) (string, bool, error) {
	if c.failGet {
		return "", false, errors.New("cache unavailable")
	}
	src, ok := c.entries[ref]
	return src, ok, nil
}

func (c *mapCache) Put(ref, src string) error {
	c.entries[ref] = src
	return nil
}

// countingFetcher counts fetches per ref.
type countingFetcher struct {
	table  MapFetcher
	counts map[string]int
}

func (f *countingFetcher) Fetch(ctx context.Context, ref string) (string, error) {
	f.counts[ref]++
	return f.table.Fetch(ctx, ref)
}

func TestCachedFetcher_HitSkipsSource(t *testing.T) {
	src := &countingFetcher{table: MapFetcher{"a.htql": "<b>a</b>"}, counts: map[string]int{}}
	cached := CachedFetcher{Source: src, Cache: &mapCache{entries: map[string]string{}}}

	for i := 0; i < 3; i++ {
		got, err := cached.Fetch(context.Background(), "a.htql")
		require.NoError(t, err)
		assert.Equal(t, "<b>a</b>", got)
	}
	assert.Equal(t, 1, src.counts["a.htql"], "source fetched once, then served from cache")
}

func TestCachedFetcher_CacheErrorDegradesToFetch(t *testing.T) {
	src := &countingFetcher{table: MapFetcher{"a.htql": "<b>a</b>"}, counts: map[string]int{}}
	cached := CachedFetcher{Source: src, Cache: &mapCache{entries: map[string]string{}, failGet: true}}

	got, err := cached.Fetch(context.Background(), "a.htql")
	require.NoError(t, err)
	assert.Equal(t, "<b>a</b>", got)
	assert.Equal(t, 1, src.counts["a.htql"])
}

func TestFixedGenerator(t *testing.T) {
	gen := NewFixedGenerator("tok-1", "tok-2")
	assert.Equal(t, "tok-1", gen.Generate())
	assert.Equal(t, "tok-2", gen.Generate())
	assert.Panics(t, func() { gen.Generate() })
}

func TestUUIDv7Generator_Unique(t *testing.T) {
	gen := UUIDv7Generator{}
	a := gen.Generate()
	b := gen.Generate()
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 36)
}
