// Package bundle moves accepted packages and their capsule artefacts between
// stores as deterministic tar archives.
//
// A bundle carries typed objects: .beap containers (KindPackage), sealed
// .qbeap capsules (KindCapsule) and verbatim inbox payloads (KindRaw). Object
// bytes are never interpreted; a capsule shipped in a bundle stays opaque on
// both ends. Every object is verified against its CID on export and again on
// import, so a tampered store cannot produce a bundle that lands cleanly
// elsewhere.
package bundle

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/ipfs/go-cid"

	"beap.dev/beap/capref"
	"beap.dev/beap/storage"
)

// FormatVersion is the current bundle manifest schema version.
const FormatVersion = 1

// Kind classifies one bundled object.
type Kind string

const (
	KindPackage Kind = "package" // .beap container bytes
	KindCapsule Kind = "capsule" // sealed .qbeap artefact
	KindRaw     Kind = "raw"     // verbatim inbox payload
)

func (k Kind) valid() bool {
	switch k {
	case KindPackage, KindCapsule, KindRaw:
		return true
	}
	return false
}

// Entry names one object to export.
type Entry struct {
	ID   cid.Cid
	Kind Kind
}

// ExportOptions controls bundle export.
type ExportOptions struct {
	// Labels maps human-facing names (message IDs, package filenames) to
	// object CIDs. Labels ride in the manifest and are never authoritative:
	// import trusts only the bytes and their CIDs.
	Labels map[string]cid.Cid
}

// Export writes a deterministic tar bundle for the given entries.
//
// Entry order does not affect the output: objects are laid out sorted by
// archive path, tar headers are normalized, and the manifest is canonical
// JSON. The same CID may be listed more than once only under one kind.
func Export(w io.Writer, cas storage.CAS, entries []Entry, opts ExportOptions) error {
	if cas == nil {
		return fmt.Errorf("bundle: nil CAS")
	}

	kinds := make(map[string]Kind, len(entries))
	for _, e := range entries {
		if !e.ID.Defined() {
			return storage.ErrInvalidCID
		}
		if !e.Kind.valid() {
			return fmt.Errorf("bundle: unknown object kind %q", e.Kind)
		}
		if prev, ok := kinds[e.ID.String()]; ok && prev != e.Kind {
			return fmt.Errorf("bundle: %s listed as both %q and %q", e.ID, prev, e.Kind)
		}
		kinds[e.ID.String()] = e.Kind
	}

	ordered := make([]string, 0, len(kinds))
	for s := range kinds {
		ordered = append(ordered, s)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return objectPath(kinds[ordered[i]], ordered[i]) < objectPath(kinds[ordered[j]], ordered[j])
	})

	tw := tar.NewWriter(w)
	fail := func(err error) error {
		_ = tw.Close()
		return err
	}

	objects := make([]manifestObject, 0, len(ordered))
	for _, s := range ordered {
		kind := kinds[s]
		id, err := cid.Decode(s)
		if err != nil {
			return fail(storage.ErrInvalidCID)
		}
		b, err := cas.Get(id)
		if err != nil {
			return fail(err)
		}
		if err := verifyObject(id, b); err != nil {
			return fail(err)
		}
		if err := writeEntry(tw, objectPath(kind, s), b); err != nil {
			return fail(err)
		}
		objects = append(objects, manifestObject{CID: s, Kind: kind, Size: len(b)})
	}

	mb, err := encodeManifest(objects, opts.Labels)
	if err != nil {
		return fail(err)
	}
	if err := writeEntry(tw, "manifest.json", mb); err != nil {
		return fail(err)
	}
	return tw.Close()
}

// ImportOptions controls bundle import.
type ImportOptions struct {
	// IgnoreUnknown skips tar entries outside the bundle layout. The default
	// (false) is fail-closed: an unknown entry aborts the import.
	IgnoreUnknown bool
}

// Import reads a bundle from r and stores every object into cas, fail-closed.
func Import(r io.Reader, cas storage.CAS) error {
	return ImportWithOptions(r, cas, ImportOptions{})
}

// ImportWithOptions reads a bundle from r and stores every object into cas.
//
// Each object must match both the CID in its archive path and the CID
// recomputed from its bytes. The manifest is skipped, never trusted.
func ImportWithOptions(r io.Reader, cas storage.CAS, opts ImportOptions) error {
	if cas == nil {
		return fmt.Errorf("bundle: nil CAS")
	}

	tr := tar.NewReader(r)
	seen := map[string]struct{}{}

	for {
		h, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		name, ok := sanitizePath(h.Name)
		if !ok {
			return fmt.Errorf("bundle: invalid entry path %q", h.Name)
		}

		if h.Typeflag != tar.TypeReg {
			if opts.IgnoreUnknown {
				continue
			}
			return fmt.Errorf("bundle: unexpected tar entry type %v (%s)", h.Typeflag, name)
		}

		if name == "manifest.json" {
			_, _ = io.Copy(io.Discard, tr)
			continue
		}

		kind, cidStr, ok := splitObjectPath(name)
		if !ok {
			if opts.IgnoreUnknown {
				_, _ = io.Copy(io.Discard, tr)
				continue
			}
			return fmt.Errorf("bundle: unknown entry %s", name)
		}
		if !kind.valid() {
			return fmt.Errorf("bundle: unknown object kind %q in %s", kind, name)
		}

		id, err := cid.Decode(cidStr)
		if err != nil || !id.Defined() {
			return storage.ErrInvalidCID
		}
		if _, dup := seen[id.String()]; dup {
			return fmt.Errorf("bundle: duplicate object %s", id)
		}
		seen[id.String()] = struct{}{}

		b, err := io.ReadAll(tr)
		if err != nil {
			return err
		}
		if err := verifyObject(id, b); err != nil {
			return err
		}

		putID, err := cas.Put(b)
		if err != nil {
			return err
		}
		if putID.String() != id.String() {
			return storage.ErrCIDMismatch
		}
	}
}

func objectPath(kind Kind, cidStr string) string {
	return "objects/" + string(kind) + "/" + cidStr
}

func splitObjectPath(name string) (Kind, string, bool) {
	rest, ok := strings.CutPrefix(name, "objects/")
	if !ok {
		return "", "", false
	}
	kind, cidStr, ok := strings.Cut(rest, "/")
	if !ok || kind == "" || cidStr == "" || strings.Contains(cidStr, "/") {
		return "", "", false
	}
	return Kind(kind), cidStr, true
}

// verifyObject recomputes the CID and compares it to the claimed one.
func verifyObject(id cid.Cid, b []byte) error {
	got, err := capref.CIDv1RawSHA256CID(b)
	if err != nil {
		return err
	}
	if got.String() != id.String() {
		return storage.ErrCIDMismatch
	}
	return nil
}

type manifest struct {
	FormatVersion int              `json:"formatVersion"`
	CIDCodec      string           `json:"cidCodec"`
	Multihash     string           `json:"multihash"`
	Objects       []manifestObject `json:"objects"`
	Labels        []manifestLabel  `json:"labels,omitempty"`
}

type manifestObject struct {
	CID  string `json:"cid"`
	Kind Kind   `json:"kind"`
	Size int    `json:"size"`
}

type manifestLabel struct {
	Name string `json:"name"`
	CID  string `json:"cid"`
}

// encodeManifest produces the canonical manifest bytes: structs and sorted
// slices only, so encoding/json is deterministic.
func encodeManifest(objects []manifestObject, labels map[string]cid.Cid) ([]byte, error) {
	m := manifest{
		FormatVersion: FormatVersion,
		CIDCodec:      "raw",
		Multihash:     "sha2-256",
		Objects:       objects,
	}
	if len(labels) > 0 {
		names := make([]string, 0, len(labels))
		for name := range labels {
			if name == "" {
				return nil, fmt.Errorf("bundle: empty label name")
			}
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			id := labels[name]
			if !id.Defined() {
				return nil, storage.ErrInvalidCID
			}
			m.Labels = append(m.Labels, manifestLabel{Name: name, CID: id.String()})
		}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

var epoch0 = time.Unix(0, 0).UTC()

// writeEntry appends one regular file with a normalized header so identical
// content always yields identical archive bytes.
func writeEntry(tw *tar.Writer, name string, content []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  epoch0,
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := io.Copy(tw, bytes.NewReader(content))
	return err
}

// sanitizePath normalizes a tar entry path and refuses anything that could
// escape the archive root.
func sanitizePath(name string) (string, bool) {
	name = strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimSuffix(name, "/")
	cleaned := path.Clean(name)
	if cleaned == "." || cleaned == "" ||
		strings.HasPrefix(cleaned, "/") ||
		cleaned == ".." || strings.HasPrefix(cleaned, "../") ||
		cleaned != name {
		return "", false
	}
	return cleaned, true
}
