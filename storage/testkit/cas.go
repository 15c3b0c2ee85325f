// Package testkit provides conformance suites for storage implementations.
package testkit

import (
	"bytes"
	"testing"

	"github.com/ipfs/go-cid"

	"beap.dev/beap/capref"
	"beap.dev/beap/storage"
)

// NewCAS constructs a fresh, empty CAS instance for a test.
// The returned CAS MUST be isolated from other tests.
type NewCAS func(t *testing.T) storage.CAS

func RunCASConformance(t *testing.T, newCAS NewCAS) {
	t.Helper()

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		cas := newCAS(t)
		want := []byte("hello, beap storage")

		id, err := cas.Put(want)
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		wantID, err := capref.CIDv1RawSHA256CID(want)
		if err != nil {
			t.Fatalf("CIDv1RawSHA256CID failed: %v", err)
		}
		if id != wantID {
			t.Fatalf("Put CID mismatch: got %s want %s", id, wantID)
		}

		got, err := cas.Get(id)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("Get bytes mismatch")
		}
	})

	t.Run("PutIdempotent", func(t *testing.T) {
		cas := newCAS(t)
		b := []byte("same bytes")

		id1, err := cas.Put(b)
		if err != nil {
			t.Fatalf("Put(1) failed: %v", err)
		}
		id2, err := cas.Put(b)
		if err != nil {
			t.Fatalf("Put(2) failed: %v", err)
		}
		if id1 != id2 {
			t.Fatalf("Put not idempotent: %s vs %s", id1, id2)
		}
	})

	t.Run("HasAndNotFound", func(t *testing.T) {
		cas := newCAS(t)
		b := []byte("missing")
		id, err := capref.CIDv1RawSHA256CID(b)
		if err != nil {
			t.Fatalf("CIDv1RawSHA256CID failed: %v", err)
		}

		if cas.Has(id) {
			t.Fatalf("Has returned true for missing CID")
		}
		_, err = cas.Get(id)
		if !storage.IsNotFound(err) {
			t.Fatalf("Get missing: got err=%v want ErrNotFound", err)
		}

		_, err = cas.Put(b)
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if !cas.Has(id) {
			t.Fatalf("Has returned false after Put")
		}
	})

	t.Run("RejectUndefCID", func(t *testing.T) {
		cas := newCAS(t)
		var undef cid.Cid
		if cas.Has(undef) {
			t.Fatalf("Has should be false for undefined CID")
		}
		if _, err := cas.Get(undef); err == nil {
			t.Fatalf("Get should fail for undefined CID")
		}
	})
}

// NewLog constructs a fresh, empty AppendLog instance for a test.
type NewLog func(t *testing.T) storage.AppendLog

func RunLogConformance(t *testing.T, newLog NewLog) {
	t.Helper()

	t.Run("AppendOrderAndSequence", func(t *testing.T) {
		log := newLog(t)
		records := [][]byte{[]byte("a"), []byte("b"), []byte("c")}
		for i, r := range records {
			seq, err := log.Append(r)
			if err != nil {
				t.Fatalf("Append(%d): %v", i, err)
			}
			if seq != uint64(i+1) {
				t.Fatalf("Append(%d): seq=%d want %d", i, seq, i+1)
			}
		}

		got, err := log.Entries()
		if err != nil {
			t.Fatalf("Entries: %v", err)
		}
		if len(got) != len(records) {
			t.Fatalf("Entries: got %d records, want %d", len(got), len(records))
		}
		for i := range records {
			if !bytes.Equal(got[i], records[i]) {
				t.Fatalf("record %d mismatch", i)
			}
		}

		n, err := log.Len()
		if err != nil {
			t.Fatalf("Len: %v", err)
		}
		if n != uint64(len(records)) {
			t.Fatalf("Len: got %d want %d", n, len(records))
		}
	})
}
