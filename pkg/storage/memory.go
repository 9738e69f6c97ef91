package storage

import (
	"context"
	"sync"
	"time"

	"flashdeck/pkg/errors"
)

type memoryEntry struct {
	rec       *Record
	expiresAt time.Time
}

// MemoryStore keeps session records in process memory. Records are lost on restart.
type MemoryStore struct {
	mutex   sync.RWMutex
	records map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Save stores a copy of rec for ttl.
func (m *MemoryStore) Save(_ context.Context, rec *Record, ttl time.Duration) error {
	if rec == nil || rec.ID == "" {
		return errors.New(errors.ErrTypeStorage, "RECORD_INVALID", "session record missing id")
	}
	if ttl <= 0 {
		return errors.New(errors.ErrTypeStorage, "TTL_INVALID", "session ttl must be positive")
	}

	m.mutex.Lock()
	m.records[rec.ID] = memoryEntry{rec: rec.Clone(), expiresAt: m.now().Add(ttl)}
	m.mutex.Unlock()
	return nil
}

// Load returns a copy of the record, cleaning it up if it expired.
func (m *MemoryStore) Load(_ context.Context, id string) (*Record, error) {
	m.mutex.RLock()
	entry, exists := m.records[id]
	m.mutex.RUnlock()

	if !exists {
		return nil, nil
	}
	if m.now().After(entry.expiresAt) {
		m.mutex.Lock()
		// A Save may have replaced the entry since the read lock was released.
		if cur, ok := m.records[id]; ok && m.now().After(cur.expiresAt) {
			delete(m.records, id)
		}
		m.mutex.Unlock()
		return nil, nil
	}
	return entry.rec.Clone(), nil
}

// Delete removes a record. Deleting a missing record is not an error.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mutex.Lock()
	delete(m.records, id)
	m.mutex.Unlock()
	return nil
}

// Sweep drops expired records and returns how many were removed.
func (m *MemoryStore) Sweep() int {
	now := m.now()
	removed := 0

	m.mutex.Lock()
	for id, entry := range m.records {
		if now.After(entry.expiresAt) {
			delete(m.records, id)
			removed++
		}
	}
	m.mutex.Unlock()

	return removed
}

// Len returns the number of stored records, expired or not.
func (m *MemoryStore) Len() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.records)
}
