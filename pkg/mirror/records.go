package mirror

import (
	"sort"
	"sync"
	"time"
)

// Results a sync cycle can record for a tag.
const (
	ResultSynced              = "synced"
	ResultUpToDate            = "up-to-date"
	ResultSkippedResolution   = "skipped-resolution"
	ResultSkippedVerification = "skipped-verification"
	ResultFailedTransfer      = "failed-transfer"
)

// Record is the per-tag sync state. A record is created on first
// discovery of a tag and updated on every cycle; the latest record
// per tag is always retained. LocalDigest is only ever set after a
// verified pull and a confirmed push to the mirror.
type Record struct {
	Tag          string    `json:"tag"`
	RemoteDigest string    `json:"remote_digest,omitempty"`
	LocalDigest  string    `json:"local_digest,omitempty"`
	LastSync     time.Time `json:"last_sync"`
	LastResult   string    `json:"last_result"`
}

// Store keeps the latest Record per tag.
type Store interface {
	Get(tag string) (Record, bool, error)
	Set(rec Record) error
	All() ([]Record, error)
}

// MemStore is the in-process default Store.
type MemStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemStore() *MemStore {
	return &MemStore{records: map[string]Record{}}
}

func (s *MemStore) Get(tag string) (Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[tag]
	return rec, ok, nil
}

func (s *MemStore) Set(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Tag] = rec
	return nil
}

func (s *MemStore) All() ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tag < out[j].Tag })
	return out, nil
}

var _ Store = &MemStore{}
