package thumbnail

import (
	"context"
	"sync"

	"renderhub/internal/pkg/errors"
)

// MemoryLedger is an in-process Ledger used by tests and LEDGER_DRIVER=memory.
type MemoryLedger struct {
	mu      sync.RWMutex
	records map[string]Record
	edges   map[edge]string
}

type edge struct {
	ref TargetRef
	typ Type
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		records: make(map[string]Record),
		edges:   make(map[edge]string),
	}
}

func (m *MemoryLedger) Commit(ctx context.Context, ref TargetRef, typ Type, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.UUID == "" {
		return errors.ValidationField("uuid", "record uuid is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[rec.UUID]; exists {
		return errors.New(errors.CodeConflict, "thumbnail record already exists").WithField("uuid", rec.UUID)
	}
	m.records[rec.UUID] = rec
	m.edges[edge{ref, typ}] = rec.UUID
	return nil
}

func (m *MemoryLedger) Current(ctx context.Context, ref TargetRef, typ Type) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.edges[edge{ref, typ}]
	if !ok {
		return nil, errors.NotFound("thumbnail", edgeKey(ref, typ))
	}
	rec := m.records[id]
	return &rec, nil
}

// Edges returns how many edges point at records of typ across all targets.
func (m *MemoryLedger) Edges(typ Type) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for e := range m.edges {
		if e.typ == typ {
			n++
		}
	}
	return n
}

// Records returns the number of records ever committed. Detached records
// are kept, as in the database.
func (m *MemoryLedger) Records() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
