package ingress

import (
	"bytes"
	"testing"

	"beap.dev/beap/beap"
	"beap.dev/beap/capref"
	"beap.dev/beap/keys"
	"beap.dev/beap/policy"
	"beap.dev/beap/storage"
	"beap.dev/beap/storage/bundle"
)

func exportSigner(t *testing.T) keys.Signer {
	t.Helper()
	seed := bytes.Repeat([]byte{0x2b}, 32)
	s, err := keys.NewEd25519SignerFromSeed(seed)
	if err != nil {
		t.Fatalf("NewEd25519SignerFromSeed: %v", err)
	}
	return s
}

func privateContainer(t *testing.T) (*beap.BeapPackage, []byte) {
	t.Helper()
	res := beap.BuildPackage(beap.BeapPackageConfig{
		Encoding: beap.EncodingQBEAP,
		Signer:   exportSigner(t),
		Recipient: &beap.Recipient{
			HandshakeID: "hs-7701",
			DisplayName: "Archive Node",
			SessionKey:  bytes.Repeat([]byte{0xd4}, 32),
		},
		Subject:     "quarterly summary",
		MessageBody: "numbers attached",
	})
	if !res.Success {
		t.Fatalf("BuildPackage: %v", res.Err)
	}
	return res.Package, res.PackageJSON
}

func TestExportBundle_RefusesUnverifiedItem(t *testing.T) {
	pl := standardPipeline(t)
	res := pl.ImportMessage(beapPayload("pending"), SourceFileDrop, ImportOptions{Filename: "msg.beap"})
	if !res.Success {
		t.Fatalf("import: %+v", res)
	}

	var buf bytes.Buffer
	err := pl.ExportBundle(&buf, []string{res.MessageID})
	if !IsKind(err, KindContract) {
		t.Fatalf("expected contract error for pending item, got %v", err)
	}
	if buf.Len() != 0 {
		t.Fatal("nothing may be written for an unverified item")
	}
}

func TestExportBundle_RefusesRejectedItem(t *testing.T) {
	pl := standardPipeline(t)
	res := pl.ImportMessage(beapPayload("bad"), SourceFileDrop, ImportOptions{Filename: "msg.beap"})
	if !res.Success {
		t.Fatalf("import: %+v", res)
	}
	if err := pl.ResolveVerification(res.MessageID, StateRejected); err != nil {
		t.Fatalf("ResolveVerification: %v", err)
	}

	var buf bytes.Buffer
	if err := pl.ExportBundle(&buf, []string{res.MessageID}); !IsKind(err, KindContract) {
		t.Fatalf("expected contract error for rejected item, got %v", err)
	}
}

func TestExportBundle_UnknownItemIsNotFound(t *testing.T) {
	pl := standardPipeline(t)
	var buf bytes.Buffer
	if err := pl.ExportBundle(&buf, []string{"no-such-message"}); !IsKind(err, KindNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestExportBundle_AcceptedPackageCarriesItsCapsule(t *testing.T) {
	pl := standardPipeline(t)
	pkg, container := privateContainer(t)

	res := pl.ImportMessage(container, SourceFileDrop, ImportOptions{Filename: "msg.beap"})
	if !res.Success || res.Outcome != OutcomeImported {
		t.Fatalf("import: %+v", res)
	}
	if err := pl.ResolveVerification(res.MessageID, StateAccepted); err != nil {
		t.Fatalf("ResolveVerification: %v", err)
	}

	var buf bytes.Buffer
	if err := pl.ExportBundle(&buf, []string{res.MessageID}); err != nil {
		t.Fatalf("ExportBundle: %v", err)
	}

	dst := storage.NewMemoryCAS()
	if err := bundle.Import(bytes.NewReader(buf.Bytes()), dst); err != nil {
		t.Fatalf("bundle import: %v", err)
	}

	containerID, err := capref.CIDv1RawSHA256CID(container)
	if err != nil {
		t.Fatal(err)
	}
	got, err := dst.Get(containerID)
	if err != nil {
		t.Fatalf("container missing from bundle: %v", err)
	}
	if !bytes.Equal(got, container) {
		t.Fatal("container bytes must survive the round trip verbatim")
	}

	capsuleID, err := capref.CIDv1RawSHA256CID(pkg.Payload)
	if err != nil {
		t.Fatal(err)
	}
	capsule, err := dst.Get(capsuleID)
	if err != nil {
		t.Fatalf("capsule missing from bundle: %v", err)
	}
	if !bytes.Equal(capsule, pkg.Payload) {
		t.Fatal("capsule artefact must match the sealed payload")
	}
}

func TestExportBundle_PublicPackageHasNoCapsule(t *testing.T) {
	pl := standardPipeline(t)
	res := beap.BuildPackage(beap.BeapPackageConfig{
		Encoding:    beap.EncodingPBEAP,
		Signer:      exportSigner(t),
		Subject:     "announcement",
		MessageBody: "public note",
	})
	if !res.Success {
		t.Fatalf("BuildPackage: %v", res.Err)
	}

	imp := pl.ImportMessage(res.PackageJSON, SourceFileDrop, ImportOptions{Filename: "msg.beap"})
	if !imp.Success {
		t.Fatalf("import: %+v", imp)
	}
	if err := pl.ResolveVerification(imp.MessageID, StateAccepted); err != nil {
		t.Fatalf("ResolveVerification: %v", err)
	}

	var buf bytes.Buffer
	if err := pl.ExportBundle(&buf, []string{imp.MessageID}); err != nil {
		t.Fatalf("ExportBundle: %v", err)
	}

	dst := storage.NewMemoryCAS()
	if err := bundle.Import(bytes.NewReader(buf.Bytes()), dst); err != nil {
		t.Fatalf("bundle import: %v", err)
	}
	capsuleID, err := capref.CIDv1RawSHA256CID(res.Package.Payload)
	if err != nil {
		t.Fatal(err)
	}
	// The plaintext payload rides inside the container only, never as a
	// separate capsule object.
	if dst.Has(capsuleID) {
		t.Fatal("public package must not ship a capsule object")
	}
}

func TestReplay_RestoresItemsAndResolutions(t *testing.T) {
	p, err := policy.NewDefaultPolicy(policy.LayerLocal, policy.TemplateStandard)
	if err != nil {
		t.Fatalf("NewDefaultPolicy: %v", err)
	}
	cas := storage.NewMemoryCAS()
	log := storage.NewMemoryLog()
	pl := NewPipeline(&p, cas, log)

	first := pl.ImportMessage(beapPayload("first"), SourceFileDrop, ImportOptions{Filename: "a.beap"})
	second := pl.ImportMessage(beapPayload("second"), SourceFileDrop, ImportOptions{Filename: "b.beap"})
	if !first.Success || !second.Success {
		t.Fatalf("imports: %+v %+v", first, second)
	}
	if err := pl.ResolveVerification(first.MessageID, StateAccepted); err != nil {
		t.Fatalf("ResolveVerification: %v", err)
	}

	replayed, err := Replay(&p, cas, log)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}

	got, ok := replayed.Item(first.MessageID)
	if !ok || got.State != StateAccepted {
		t.Fatalf("first item = %+v, ok=%v", got, ok)
	}
	got, ok = replayed.Item(second.MessageID)
	if !ok || got.State != StatePending {
		t.Fatalf("second item = %+v, ok=%v", got, ok)
	}

	// The replayed registry enforces the same terminal-state contract.
	if err := replayed.ResolveVerification(first.MessageID, StateRejected); !IsKind(err, KindContract) {
		t.Fatalf("expected contract error on terminal flip, got %v", err)
	}

	// An accepted item is exportable straight out of a replayed pipeline.
	var buf bytes.Buffer
	if err := replayed.ExportBundle(&buf, []string{first.MessageID}); err != nil {
		t.Fatalf("ExportBundle after replay: %v", err)
	}
}

func TestReplay_RejectedImportLeavesNoItem(t *testing.T) {
	p, err := policy.NewDefaultPolicy(policy.LayerLocal, policy.TemplateStandard)
	if err != nil {
		t.Fatalf("NewDefaultPolicy: %v", err)
	}
	cas := storage.NewMemoryCAS()
	log := storage.NewMemoryLog()
	pl := NewPipeline(&p, cas, log)

	// Clipboard is disabled in the standard template: rejected, no event.
	res := pl.ImportMessage(beapPayload("nope"), SourceClipboard, ImportOptions{})
	if res.Success {
		t.Fatalf("expected rejection, got %+v", res)
	}

	replayed, err := Replay(&p, cas, log)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if items := replayed.Items(); len(items) != 0 {
		t.Fatalf("expected empty registry, got %d items", len(items))
	}
}
