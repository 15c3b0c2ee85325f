package storage

import (
	"fmt"

	"github.com/ipfs/go-cid"

	"beap.dev/beap/capref"
)

// Mirror is a secondary store identified by a stable name. Names surface in
// replication reports and in mirror-related errors.
type Mirror struct {
	Name string
	CAS  CAS
}

// ReplicatingCAS keeps inbox payloads and capsule artefacts on a primary
// store and replicates every write to a set of mirrors. Loss of any single
// store never loses an admitted payload.
//
// Writes are primary-first: a payload that cannot land on the primary is not
// admitted at all, while a mirror failure after a successful primary write
// surfaces as an error without undoing the primary copy (the object is
// content-addressed and idempotent to re-put). Reads prefer the primary and
// fall back through the mirrors in order.
type ReplicatingCAS struct {
	primary CAS
	mirrors []Mirror
}

var _ CAS = (*ReplicatingCAS)(nil)

// NewReplicatingCAS wires a primary store with zero or more named mirrors.
func NewReplicatingCAS(primary CAS, mirrors ...Mirror) (*ReplicatingCAS, error) {
	if primary == nil {
		return nil, fmt.Errorf("storage: replicating CAS needs a primary store")
	}
	seen := make(map[string]struct{}, len(mirrors))
	for _, m := range mirrors {
		if m.Name == "" {
			return nil, fmt.Errorf("storage: mirror with empty name")
		}
		if m.CAS == nil {
			return nil, fmt.Errorf("storage: mirror %q has no store", m.Name)
		}
		if _, dup := seen[m.Name]; dup {
			return nil, fmt.Errorf("storage: duplicate mirror name %q", m.Name)
		}
		seen[m.Name] = struct{}{}
	}
	return &ReplicatingCAS{primary: primary, mirrors: mirrors}, nil
}

// Put writes bytes to the primary and then to every mirror. Every store must
// return the canonical CID for the bytes; a store that answers with a
// different CID is corrupt and the write fails with ErrCIDMismatch.
func (r *ReplicatingCAS) Put(bytes []byte) (cid.Cid, error) {
	want, err := capref.CIDv1RawSHA256CID(bytes)
	if err != nil {
		return cid.Undef, err
	}

	got, err := r.primary.Put(bytes)
	if err != nil {
		return cid.Undef, fmt.Errorf("storage: primary put: %w", err)
	}
	if got != want {
		return cid.Undef, ErrCIDMismatch
	}

	for _, m := range r.mirrors {
		got, err := m.CAS.Put(bytes)
		if err != nil {
			return cid.Undef, fmt.Errorf("storage: mirror %q put: %w", m.Name, err)
		}
		if got != want {
			return cid.Undef, fmt.Errorf("storage: mirror %q: %w", m.Name, ErrCIDMismatch)
		}
	}
	return want, nil
}

// Get reads from the primary, falling back through the mirrors in order.
// Only a clean miss falls through; any other store error stops the lookup.
func (r *ReplicatingCAS) Get(id cid.Cid) ([]byte, error) {
	out, err := r.primary.Get(id)
	if err == nil {
		return out, nil
	}
	if !IsNotFound(err) {
		return nil, err
	}
	for _, m := range r.mirrors {
		out, err := m.CAS.Get(id)
		if err == nil {
			return out, nil
		}
		if !IsNotFound(err) {
			return nil, err
		}
	}
	return nil, ErrNotFound
}

func (r *ReplicatingCAS) Has(id cid.Cid) bool {
	if r.primary.Has(id) {
		return true
	}
	for _, m := range r.mirrors {
		if m.CAS.Has(id) {
			return true
		}
	}
	return false
}

// Replicas reports which stores currently hold id: "primary" plus the names
// of every mirror that has it. An empty slice means the object is unknown.
func (r *ReplicatingCAS) Replicas(id cid.Cid) []string {
	var out []string
	if r.primary.Has(id) {
		out = append(out, "primary")
	}
	for _, m := range r.mirrors {
		if m.CAS.Has(id) {
			out = append(out, m.Name)
		}
	}
	return out
}
