package beap

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// capsule is the .qbeap on-disk/on-wire shape: a CBOR map sealing an
// AES-256-GCM ciphertext. It is written by the builder and opened only by
// the receiver after acceptance; ingress never parses it.
type capsule struct {
	Alg        string `cbor:"alg"`
	Nonce      []byte `cbor:"nonce"`
	Ciphertext []byte `cbor:"ciphertext"`
}

// SealCapsule encrypts plaintext under a 32-byte handshake session key and
// returns the CBOR-encoded capsule.
func SealCapsule(sessionKey, plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(sessionKey)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, wrapError(KindCrypto, "BEAP-CAP-002", "draw capsule nonce", err)
	}
	c := capsule{
		Alg:        "aes256gcm",
		Nonce:      nonce,
		Ciphertext: gcm.Seal(nil, nonce, plaintext, nil),
	}
	out, err := cbor.Marshal(c)
	if err != nil {
		return nil, wrapError(KindInternal, "BEAP-CAP-003", "encode capsule", err)
	}
	return out, nil
}

// OpenCapsule decrypts a sealed capsule. The GCM tag authenticates the
// ciphertext; any tampering fails the open.
func OpenCapsule(sessionKey, sealed []byte) ([]byte, error) {
	var c capsule
	if err := cbor.Unmarshal(sealed, &c); err != nil {
		return nil, wrapError(KindParse, "BEAP-CAP-004", "decode capsule", err)
	}
	if c.Alg != "aes256gcm" {
		return nil, newError(KindCrypto, "BEAP-CAP-005", "unsupported capsule algorithm "+c.Alg)
	}
	gcm, err := newGCM(sessionKey)
	if err != nil {
		return nil, err
	}
	if len(c.Nonce) != gcm.NonceSize() {
		return nil, newError(KindCrypto, "BEAP-CAP-006", "capsule nonce has wrong size")
	}
	plaintext, err := gcm.Open(nil, c.Nonce, c.Ciphertext, nil)
	if err != nil {
		return nil, wrapError(KindCrypto, "BEAP-CAP-007", "capsule authentication failed", err)
	}
	return plaintext, nil
}

func newGCM(sessionKey []byte) (cipher.AEAD, error) {
	if len(sessionKey) != 32 {
		return nil, newError(KindCrypto, "BEAP-CAP-001", "session key must be 32 bytes")
	}
	block, err := aes.NewCipher(sessionKey)
	if err != nil {
		return nil, wrapError(KindCrypto, "BEAP-CAP-001", "init cipher", err)
	}
	return cipher.NewGCM(block)
}
