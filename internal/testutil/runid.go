package testutil

import (
	"fmt"
	"sync"
)

// FixedRunIDs returns predetermined run IDs in order.
//
// Implements job.RunIDGenerator, so golden snapshots and ledger queries can
// name runs without reading the ID back.
type FixedRunIDs struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedRunIDs creates a generator over ids.
func NewFixedRunIDs(ids ...string) *FixedRunIDs {
	return &FixedRunIDs{ids: ids}
}

// Generate returns the next ID. Panics when all IDs are consumed.
func (g *FixedRunIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.idx >= len(g.ids) {
		panic(fmt.Sprintf("FixedRunIDs: all %d run IDs consumed", len(g.ids)))
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
