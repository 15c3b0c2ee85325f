// Package storage defines the persistence abstractions the BEAP core runs on.
//
// The core is storage-engine-agnostic: it needs only a content-addressable
// store for immutable payload bytes and an append-only log for audit records.
package storage

import "github.com/ipfs/go-cid"

// CAS is a minimal content-addressable storage interface.
//
// Contract:
// - Put MUST be idempotent.
// - Stored objects MUST be immutable.
// - CIDs MUST be derived from the bytes written (callers are responsible for supplying canonical bytes).
// - Get MUST return ErrNotFound when the CID is absent.
type CAS interface {
	Put(bytes []byte) (cid.Cid, error)
	Get(id cid.Cid) ([]byte, error)
	Has(id cid.Cid) bool
}

// AppendLog is an append-only record log.
//
// Contract:
// - Append MUST assign strictly increasing sequence numbers starting at 1.
// - Records MUST never be mutated or deleted once appended.
// - Entries MUST return records in append order.
// - Implementations MUST be safe for concurrent appenders.
type AppendLog interface {
	Append(record []byte) (seq uint64, err error)
	Entries() ([][]byte, error)
	Len() (uint64, error)
}
