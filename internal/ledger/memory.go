package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore keeps the ledger in process. It backs dry runs and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryStore creates an empty in-memory ledger
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

// PutIfAbsent inserts rec unless its id is already present
func (m *MemoryStore) PutIfAbsent(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.CommunicationID]; ok {
		return ErrExists
	}
	m.records[rec.CommunicationID] = rec
	return nil
}

// MarkSynced flips the sync flag of an existing record
func (m *MemoryStore) MarkSynced(_ context.Context, communicationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[communicationID]
	if !ok {
		return fmt.Errorf("marking %s synced: not found", communicationID)
	}
	rec.SyncFlag = Synced
	m.records[communicationID] = rec
	return nil
}

// QueryBySyncFlag scans every record
func (m *MemoryStore) QueryBySyncFlag(_ context.Context, flag int, after time.Time) ([]Record, error) {
	boundary := FormatTime(after)
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Record
	for _, rec := range m.records {
		if rec.SyncFlag == flag && rec.TimeCreated > boundary {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Get returns a record by id
func (m *MemoryStore) Get(communicationID string) (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[communicationID]
	return rec, ok
}

// Len returns the number of records
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
