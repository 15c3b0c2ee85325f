package keys

import (
	"crypto/ed25519"
	"encoding/base64"
	"testing"
)

type deterministicReader struct{ b byte }

func (r *deterministicReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = r.b
		r.b++
	}
	return len(p), nil
}

func testSeed(fill byte) []byte {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = fill
	}
	return seed
}

func TestEd25519Signer_RoundTrip(t *testing.T) {
	s, err := NewEd25519SignerFromSeed(testSeed(0x42))
	if err != nil {
		t.Fatalf("NewEd25519SignerFromSeed: %v", err)
	}

	msg := []byte("envelope-bytes")
	sig, err := s.Sign(msg, "sha256")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	var v PublicVerifier
	if err := v.Verify(s.SenderKey(), msg, "sha256", sig); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestEd25519Signer_RejectsTamperedMessage(t *testing.T) {
	s, err := NewEd25519SignerFromSeed(testSeed(0x42))
	if err != nil {
		t.Fatalf("NewEd25519SignerFromSeed: %v", err)
	}
	sig, err := s.Sign([]byte("original"), "sha256")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	var v PublicVerifier
	if err := v.Verify(s.SenderKey(), []byte("tampered"), "sha256", sig); err == nil {
		t.Fatalf("expected verification failure for tampered message")
	}
}

func TestDilithium3Signer_RoundTrip(t *testing.T) {
	s, err := GenerateDilithium3Signer(&deterministicReader{})
	if err != nil {
		t.Fatalf("GenerateDilithium3Signer: %v", err)
	}

	msg := []byte("envelope-bytes")
	for _, hashAlg := range []string{"sha256", "sha512", "sha3-256", "blake3"} {
		sig, err := s.Sign(msg, hashAlg)
		if err != nil {
			t.Fatalf("Sign (%s): %v", hashAlg, err)
		}
		var v PublicVerifier
		if err := v.Verify(s.SenderKey(), msg, hashAlg, sig); err != nil {
			t.Fatalf("Verify (%s): %v", hashAlg, err)
		}
	}
}

func TestSenderPublicKeyBytes_RejectsUnknownAlg(t *testing.T) {
	_, _, err := SenderPublicKeyBytes("rsa:" + base64.StdEncoding.EncodeToString([]byte("nope")))
	if err == nil {
		t.Fatalf("expected error for unsupported algorithm")
	}
}

func TestSenderPublicKeyBytes_RejectsBadLength(t *testing.T) {
	_, _, err := SenderPublicKeyBytes("ed25519:" + base64.StdEncoding.EncodeToString([]byte("short")))
	if err == nil {
		t.Fatalf("expected error for short ed25519 key")
	}
}

func TestDigestFor_UnsupportedAlg(t *testing.T) {
	if _, err := DigestFor("md5", []byte("x")); err == nil {
		t.Fatalf("expected error for unsupported hash algorithm")
	}
}

func TestDeriveRoleSeed_DeterministicAndDistinct(t *testing.T) {
	root := testSeed(0x07)
	a1, err := DeriveRoleSeed(root, "admin")
	if err != nil {
		t.Fatalf("DeriveRoleSeed: %v", err)
	}
	a2, err := DeriveRoleSeed(root, "admin")
	if err != nil {
		t.Fatalf("DeriveRoleSeed: %v", err)
	}
	if string(a1) != string(a2) {
		t.Fatalf("expected deterministic derivation")
	}
	b, err := DeriveRoleSeed(root, "mailer")
	if err != nil {
		t.Fatalf("DeriveRoleSeed: %v", err)
	}
	if string(a1) == string(b) {
		t.Fatalf("expected distinct seeds per role")
	}
}
