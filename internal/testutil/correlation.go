package testutil

// FixedCorrelationGenerator generates the same correlation id every time.
//
// Every session of a store using it carries the same id, so event logs of
// repeated runs are byte-identical regardless of how many sessions ran.
//
// Thread-safety: FixedCorrelationGenerator is stateless and safe for concurrent use.
type FixedCorrelationGenerator struct {
	id string
}

// NewFixedCorrelationGenerator creates a new fixed correlation id generator.
//
// If id is empty, Generate() returns "test-session-default".
func NewFixedCorrelationGenerator(id string) *FixedCorrelationGenerator {
	if id == "" {
		id = "test-session-default"
	}
	return &FixedCorrelationGenerator{id: id}
}

// Generate returns the fixed correlation id.
func (g *FixedCorrelationGenerator) Generate() string {
	return g.id
}
