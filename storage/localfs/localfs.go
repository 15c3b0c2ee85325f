// Package localfs provides filesystem-backed implementations of the storage
// interfaces: a content-addressable store and an append-only log.
package localfs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/ipfs/go-cid"

	"beap.dev/beap/capref"
	"beap.dev/beap/storage"
)

// CAS is a local filesystem-backed content-addressable store.
//
// Objects are stored immutably and keyed strictly by CID.
// This implementation is offline and deterministic: it never uses the network
// and never depends on wall-clock time.
type CAS struct {
	root string
}

// NewCAS constructs a filesystem CAS rooted at root. The directory will be created if needed.
func NewCAS(root string) (*CAS, error) {
	if root == "" {
		return nil, errors.New("localfs: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &CAS{root: root}, nil
}

func (c *CAS) Put(bytes []byte) (cid.Cid, error) {
	id, err := capref.CIDv1RawSHA256CID(bytes)
	if err != nil {
		return cid.Undef, err
	}
	if !id.Defined() {
		return cid.Undef, storage.ErrInvalidCID
	}

	path := c.pathFor(id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return cid.Undef, err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o444)
	if err != nil {
		if os.IsExist(err) {
			existing, rerr := c.Get(id)
			if rerr != nil {
				// If the file exists but is unreadable or corrupted, treat as an immutability violation.
				return cid.Undef, storage.ErrImmutable
			}
			if string(existing) != string(bytes) {
				return cid.Undef, storage.ErrImmutable
			}
			return id, nil
		}
		return cid.Undef, err
	}
	defer f.Close()

	if _, err := f.Write(bytes); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return cid.Undef, err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return cid.Undef, err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return cid.Undef, err
	}

	return id, nil
}

func (c *CAS) Get(id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	path := c.pathFor(id)
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	got, err := capref.CIDv1RawSHA256CID(b)
	if err != nil {
		return nil, err
	}
	if got != id {
		return nil, storage.ErrCIDMismatch
	}
	return b, nil
}

func (c *CAS) Has(id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	_, err := os.Stat(c.pathFor(id))
	return err == nil
}

func (c *CAS) pathFor(id cid.Cid) string {
	s := id.String()
	if len(s) < 2 {
		return filepath.Join(c.root, s)
	}
	return filepath.Join(c.root, s[:2], s)
}

// Log is a filesystem-backed append-only log.
//
// Each record is a separate file named by its zero-padded sequence number,
// created with O_EXCL so records are never overwritten.
type Log struct {
	mu   sync.Mutex
	root string
	next uint64
}

// NewLog opens or creates an append log rooted at root.
func NewLog(root string) (*Log, error) {
	if root == "" {
		return nil, errors.New("localfs: log directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	l := &Log{root: root}
	seqs, err := l.sequences()
	if err != nil {
		return nil, err
	}
	if n := len(seqs); n > 0 {
		l.next = seqs[n-1] + 1
	} else {
		l.next = 1
	}
	return l, nil
}

func (l *Log) Append(record []byte) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for {
		seq := l.next
		path := l.pathFor(seq)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o444)
		if os.IsExist(err) {
			// Another process appended; skip ahead.
			l.next++
			continue
		}
		if err != nil {
			return 0, err
		}
		if _, err := f.Write(record); err != nil {
			_ = f.Close()
			_ = os.Remove(path)
			return 0, err
		}
		if err := f.Sync(); err != nil {
			_ = f.Close()
			_ = os.Remove(path)
			return 0, err
		}
		if err := f.Close(); err != nil {
			_ = os.Remove(path)
			return 0, err
		}
		l.next = seq + 1
		return seq, nil
	}
}

func (l *Log) Entries() ([][]byte, error) {
	seqs, err := l.sequences()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, len(seqs))
	for _, seq := range seqs {
		b, err := os.ReadFile(l.pathFor(seq))
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func (l *Log) Len() (uint64, error) {
	seqs, err := l.sequences()
	if err != nil {
		return 0, err
	}
	return uint64(len(seqs)), nil
}

func (l *Log) pathFor(seq uint64) string {
	return filepath.Join(l.root, fmt.Sprintf("%012d.rec", seq))
}

func (l *Log) sequences() ([]uint64, error) {
	entries, err := os.ReadDir(l.root)
	if err != nil {
		return nil, err
	}
	var seqs []uint64
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".rec") {
			continue
		}
		n, perr := strconv.ParseUint(strings.TrimSuffix(name, ".rec"), 10, 64)
		if perr != nil || n == 0 {
			continue
		}
		seqs = append(seqs, n)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	return seqs, nil
}

var (
	_ storage.CAS       = (*CAS)(nil)
	_ storage.AppendLog = (*Log)(nil)
)
