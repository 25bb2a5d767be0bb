package testutil

import (
	"strconv"
	"sync/atomic"

	"launcher-core/internal/launcher"
)

// StubIDGenerator hands out "id-1", "id-2", ... so profile, version and
// session IDs are predictable in assertions.
type StubIDGenerator struct {
	n atomic.Int64
}

var _ launcher.IDGenerator = (*StubIDGenerator)(nil)

func NewStubIDGenerator() *StubIDGenerator {
	return &StubIDGenerator{}
}

func (g *StubIDGenerator) New() string {
	return "id-" + strconv.FormatInt(g.n.Add(1), 10)
}
