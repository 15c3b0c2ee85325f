package bundle_test

import (
	"archive/tar"
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ipfs/go-cid"

	"beap.dev/beap/capref"
	"beap.dev/beap/storage"
	"beap.dev/beap/storage/bundle"
)

func TestBundle_ExportIsDeterministic(t *testing.T) {
	cas := storage.NewMemoryCAS()

	pkgID, err := cas.Put([]byte("container-bytes"))
	if err != nil {
		t.Fatal(err)
	}
	capID, err := cas.Put([]byte("capsule-bytes"))
	if err != nil {
		t.Fatal(err)
	}

	forward := []bundle.Entry{
		{ID: pkgID, Kind: bundle.KindPackage},
		{ID: capID, Kind: bundle.KindCapsule},
	}
	reversed := []bundle.Entry{
		{ID: capID, Kind: bundle.KindCapsule},
		{ID: pkgID, Kind: bundle.KindPackage},
	}

	var outA, outB bytes.Buffer
	if err := bundle.Export(&outA, cas, forward, bundle.ExportOptions{}); err != nil {
		t.Fatal(err)
	}
	if err := bundle.Export(&outB, cas, reversed, bundle.ExportOptions{}); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(outA.Bytes(), outB.Bytes()) {
		t.Fatalf("expected deterministic bundle bytes")
	}
}

func TestBundle_ImportRoundTrip(t *testing.T) {
	src := storage.NewMemoryCAS()

	container := []byte("container")
	capsule := []byte("capsule")
	pkgID, err := src.Put(container)
	if err != nil {
		t.Fatal(err)
	}
	capID, err := src.Put(capsule)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	entries := []bundle.Entry{
		{ID: pkgID, Kind: bundle.KindPackage},
		{ID: capID, Kind: bundle.KindCapsule},
	}
	opts := bundle.ExportOptions{Labels: map[string]cid.Cid{"message-1": pkgID}}
	if err := bundle.Export(&buf, src, entries, opts); err != nil {
		t.Fatal(err)
	}

	dst := storage.NewMemoryCAS()
	if err := bundle.Import(bytes.NewReader(buf.Bytes()), dst); err != nil {
		t.Fatal(err)
	}
	got, err := dst.Get(pkgID)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, container) {
		t.Fatalf("container bytes mismatch")
	}
	if !dst.Has(capID) {
		t.Fatalf("capsule missing after import")
	}
}

func TestBundle_ExportRejectsConflictingKinds(t *testing.T) {
	cas := storage.NewMemoryCAS()
	id, err := cas.Put([]byte("bytes"))
	if err != nil {
		t.Fatal(err)
	}
	entries := []bundle.Entry{
		{ID: id, Kind: bundle.KindPackage},
		{ID: id, Kind: bundle.KindCapsule},
	}
	var buf bytes.Buffer
	if err := bundle.Export(&buf, cas, entries, bundle.ExportOptions{}); err == nil {
		t.Fatalf("expected error for one CID under two kinds")
	}
}

func TestBundle_ExportRejectsUnknownKind(t *testing.T) {
	cas := storage.NewMemoryCAS()
	id, err := cas.Put([]byte("bytes"))
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := bundle.Export(&buf, cas, []bundle.Entry{{ID: id, Kind: "blob"}}, bundle.ExportOptions{}); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

func TestBundle_ImportRejectsCIDMismatch(t *testing.T) {
	good := []byte("good")
	otherCID, err := capref.CIDv1RawSHA256CID([]byte("other"))
	if err != nil {
		t.Fatal(err)
	}

	// Path says "otherCID" but the bytes are "good": recomputed CID differs.
	bundleBytes := makeDeterministicTar(t, "objects/raw/"+otherCID.String(), good)

	dst := storage.NewMemoryCAS()
	if err := bundle.Import(bytes.NewReader(bundleBytes), dst); !errors.Is(err, storage.ErrCIDMismatch) {
		t.Fatalf("expected ErrCIDMismatch, got %v", err)
	}
}

func TestBundle_ImportRejectsUnknownEntries(t *testing.T) {
	bundleBytes := makeDeterministicTar(t, "extras/surprise", []byte("nope"))
	dst := storage.NewMemoryCAS()
	if err := bundle.Import(bytes.NewReader(bundleBytes), dst); err == nil {
		t.Fatalf("expected error for unknown entry")
	}
	if err := bundle.ImportWithOptions(bytes.NewReader(bundleBytes), dst, bundle.ImportOptions{IgnoreUnknown: true}); err != nil {
		t.Fatalf("IgnoreUnknown: %v", err)
	}
}

func TestBundle_ImportRejectsUnknownObjectKind(t *testing.T) {
	b := []byte("bytes")
	id, err := capref.CIDv1RawSHA256CID(b)
	if err != nil {
		t.Fatal(err)
	}
	bundleBytes := makeDeterministicTar(t, "objects/blob/"+id.String(), b)
	dst := storage.NewMemoryCAS()
	if err := bundle.Import(bytes.NewReader(bundleBytes), dst); err == nil {
		t.Fatalf("expected error for unknown object kind")
	}
}

func TestBundle_ImportRejectsPathEscape(t *testing.T) {
	bundleBytes := makeDeterministicTar(t, "objects/raw/../../escape", []byte("nope"))
	dst := storage.NewMemoryCAS()
	if err := bundle.Import(bytes.NewReader(bundleBytes), dst); err == nil || !strings.Contains(err.Error(), "invalid entry path") {
		t.Fatalf("expected invalid-path error, got %v", err)
	}
}

func makeDeterministicTar(t *testing.T, name string, content []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	h := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  time.Unix(0, 0).UTC(),
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(h); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write(content); err != nil {
		t.Fatal(err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}
