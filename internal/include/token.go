package include

import (
	"sync"

	"github.com/google/uuid"
)

// TokenGenerator produces unique tokens for pending include operations.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
//
// The engine pairs each token with a generation counter; a completion whose
// token no longer matches the live pending operation at that tree position
// is stale and must be discarded.
type TokenGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 operation tokens.
// Sortability makes interleaved include fetches easy to read in traces.
//
// Thread-safety: stateless, safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 as a hyphenated string.
// Panics if UUID generation fails (should never happen in practice).
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined tokens in order. Tests use it to
// make pending-operation bookkeeping deterministic.
type FixedGenerator struct {
	mu     sync.Mutex
	tokens []string
	idx    int
}

// NewFixedGenerator creates a generator that returns tokens in order and
// panics when the sequence is exhausted.
func NewFixedGenerator(tokens ...string) *FixedGenerator {
	return &FixedGenerator{tokens: tokens}
}

// Generate implements TokenGenerator.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.idx >= len(g.tokens) {
		panic("include: fixed token generator exhausted")
	}
	tok := g.tokens[g.idx]
	g.idx++
	return tok
}
