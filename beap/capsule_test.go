package beap

import (
	"bytes"
	"testing"
)

func TestCapsule_SealOpenRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x11}, 32)
	plaintext := []byte("the capsule holds this")

	sealed, err := SealCapsule(key, plaintext)
	if err != nil {
		t.Fatalf("SealCapsule: %v", err)
	}
	if bytes.Contains(sealed, plaintext) {
		t.Fatal("sealed capsule must not contain the plaintext")
	}

	got, err := OpenCapsule(key, sealed)
	if err != nil {
		t.Fatalf("OpenCapsule: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("round trip = %q", got)
	}
}

func TestCapsule_WrongKeyFails(t *testing.T) {
	sealed, err := SealCapsule(bytes.Repeat([]byte{0x11}, 32), []byte("secret"))
	if err != nil {
		t.Fatalf("SealCapsule: %v", err)
	}
	if _, err := OpenCapsule(bytes.Repeat([]byte{0x22}, 32), sealed); !IsKind(err, KindCrypto) {
		t.Fatalf("wrong key must fail authentication, got %v", err)
	}
}

func TestCapsule_TamperedCiphertextFails(t *testing.T) {
	key := bytes.Repeat([]byte{0x11}, 32)
	sealed, err := SealCapsule(key, []byte("secret"))
	if err != nil {
		t.Fatalf("SealCapsule: %v", err)
	}
	sealed[len(sealed)-1] ^= 0xFF
	if _, err := OpenCapsule(key, sealed); err == nil {
		t.Fatal("tampered capsule must not open")
	}
}

func TestCapsule_RejectsBadKeySize(t *testing.T) {
	if _, err := SealCapsule([]byte("short"), []byte("x")); !IsKind(err, KindCrypto) {
		t.Fatalf("short key must be rejected, got %v", err)
	}
}

func TestCapsule_NoncesDiffer(t *testing.T) {
	key := bytes.Repeat([]byte{0x11}, 32)
	a, err := SealCapsule(key, []byte("same plaintext"))
	if err != nil {
		t.Fatalf("SealCapsule: %v", err)
	}
	b, err := SealCapsule(key, []byte("same plaintext"))
	if err != nil {
		t.Fatalf("SealCapsule: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Fatal("two seals of the same plaintext must not produce identical capsules")
	}
}
