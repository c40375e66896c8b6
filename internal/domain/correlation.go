package domain

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// CorrelationGenerator produces the correlation id of each top-level
// session. Implemented by UUIDv7Generator (production) and
// SequenceGenerator (tests and scenarios).
type CorrelationGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 correlation ids.
type UUIDv7Generator struct{}

// Generate panics if UUID generation fails.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// SequenceGenerator returns prefix-1, prefix-2, ...
type SequenceGenerator struct {
	prefix string
	n      atomic.Uint64
}

// NewSequenceGenerator creates a generator. An empty prefix uses "session".
func NewSequenceGenerator(prefix string) *SequenceGenerator {
	if prefix == "" {
		prefix = "session"
	}
	return &SequenceGenerator{prefix: prefix}
}

func (g *SequenceGenerator) Generate() string {
	return fmt.Sprintf("%s-%d", g.prefix, g.n.Add(1))
}
