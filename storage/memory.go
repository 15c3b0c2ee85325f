package storage

import (
	"bytes"
	"sync"

	"github.com/ipfs/go-cid"

	"beap.dev/beap/capref"
)

// MemoryCAS is an in-memory content-addressable store.
//
// It upholds the CAS contract under concurrent use and is the default backend
// for tests and single-process deployments.
type MemoryCAS struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemoryCAS() *MemoryCAS {
	return &MemoryCAS{objects: make(map[string][]byte)}
}

func (m *MemoryCAS) Put(b []byte) (cid.Cid, error) {
	id, err := capref.CIDv1RawSHA256CID(b)
	if err != nil {
		return cid.Undef, err
	}
	if !id.Defined() {
		return cid.Undef, ErrInvalidCID
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.objects[id.String()]; ok {
		if !bytes.Equal(existing, b) {
			return cid.Undef, ErrImmutable
		}
		return id, nil
	}
	stored := make([]byte, len(b))
	copy(stored, b)
	m.objects[id.String()] = stored
	return id, nil
}

func (m *MemoryCAS) Get(id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, ErrInvalidCID
	}
	m.mu.RLock()
	b, ok := m.objects[id.String()]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func (m *MemoryCAS) Has(id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	m.mu.RLock()
	_, ok := m.objects[id.String()]
	m.mu.RUnlock()
	return ok
}

// MemoryLog is an in-memory append-only log.
type MemoryLog struct {
	mu      sync.RWMutex
	records [][]byte
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

func (l *MemoryLog) Append(record []byte) (uint64, error) {
	stored := make([]byte, len(record))
	copy(stored, record)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, stored)
	return uint64(len(l.records)), nil
}

func (l *MemoryLog) Entries() ([][]byte, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([][]byte, len(l.records))
	for i, r := range l.records {
		c := make([]byte, len(r))
		copy(c, r)
		out[i] = c
	}
	return out, nil
}

func (l *MemoryLog) Len() (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(len(l.records)), nil
}
