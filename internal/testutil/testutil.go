// Package testutil provides shared helpers for deterministic tests.
package testutil

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// SequenceGenerator issues "tok-0001", "tok-0002", ... without a declared
// upper bound. Use it where a test or the scenario harness cannot know up
// front how many tokens a flow consumes; use match.NewFixedGenerator when
// the exact tokens matter.
type SequenceGenerator struct {
	mu sync.Mutex
	n  int
}

// Generate returns the next token in the sequence.
func (g *SequenceGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("tok-%04d", g.n)
}

// SilentLogger returns a logger that discards everything. Keeps test output
// readable for flows that log every phase transition.
func SilentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
