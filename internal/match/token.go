package match

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// TokenGenerator generates client-side temporary event tokens.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
//
// The token travels with the event payload to the backend, which echoes it
// back next to the server-assigned id. Reconciliation is keyed on the echo,
// never on response ordering.
type TokenGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 event tokens.
//
// UUIDv7 embeds a timestamp in the most significant bits, so tokens sort by
// creation time, which keeps event lists readable in traces.
//
// Thread-safety: stateless, safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 as a hyphenated string.
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined tokens for deterministic tests and
// golden trace comparison.
//
// Thread-safety: safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu     sync.Mutex
	tokens []string
	idx    int
}

// NewFixedGenerator creates a generator that returns tokens in order.
// Generate panics once all tokens are consumed - a test asking for more
// tokens than it declared is a test bug.
func NewFixedGenerator(tokens ...string) *FixedGenerator {
	return &FixedGenerator{tokens: tokens}
}

// Generate returns the next predetermined token.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.tokens) {
		panic(fmt.Sprintf("FixedGenerator: all %d tokens exhausted", len(g.tokens)))
	}
	token := g.tokens[g.idx]
	g.idx++
	return token
}

// Fingerprint computes a content hash of an event's identifying payload.
//
// Used by the reconciler as a fallback correlation key when a backend
// response carries no echoed client token. The fingerprint deliberately
// excludes the event ID and Persisted flag: a reconciled event and its
// local original must hash identically.
func Fingerprint(e Event) (string, error) {
	payload := map[string]any{
		"quarter":   e.QuarterIndex,
		"type":      string(e.Type),
		"minute":    e.Minute,
		"side":      e.Side.String(),
		"own_goal":  e.OwnGoal,
		"primary":   string(e.Primary),
		"secondary": string(e.Secondary),
		"notes":     e.Notes,
	}

	data, err := MarshalCanonical(payload)
	if err != nil {
		return "", fmt.Errorf("fingerprint event: %w", err)
	}

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
