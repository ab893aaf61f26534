// Package sessioncache holds per-account token and session records in process
// memory. Records are replaced wholesale on refresh and vanish on restart,
// which forces clean re-establishment against the upstream service.
package sessioncache

import (
	"sync"

	"github.com/fairyhunter13/gemini-pool-gateway/internal/domain"
)

// Memory implements domain.SessionCache with a mutex-guarded map.
// Concurrent refreshes for the same account are last-writer-wins; a stale but
// valid read is acceptable, so no single-flight collapsing is done.
type Memory struct {
	mu      sync.RWMutex
	records map[string]domain.SessionRecord
}

// New constructs an empty Memory cache.
func New() *Memory {
	return &Memory{records: make(map[string]domain.SessionRecord)}
}

// Get returns the record for an account id, if any.
func (m *Memory) Get(accountID string) (domain.SessionRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[accountID]
	return rec, ok
}

// Put replaces the record for an account id.
func (m *Memory) Put(accountID string, rec domain.SessionRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[accountID] = rec
}
