package keys

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
)

// Signer produces detached signatures over a digest of the message, bound to a
// sender key. Implementations must be deterministic for a given key and message
// or internally randomized in a way that still verifies.
type Signer interface {
	// SenderKey returns the alg-prefixed public key string
	// ("ed25519:<base64>" or "dilithium3:<base64>").
	SenderKey() string
	// Sign returns a base64 signature over DigestFor(hashAlg, message).
	Sign(message []byte, hashAlg string) (string, error)
}

// Verifier checks detached signatures produced by a Signer.
type Verifier interface {
	// Verify checks sigB64 against DigestFor(hashAlg, message) under the
	// given alg-prefixed sender key. A nil return means the signature is valid.
	Verify(senderKey string, message []byte, hashAlg, sigB64 string) error
}

// Ed25519Signer signs with a raw Ed25519 private key.
type Ed25519Signer struct {
	Private ed25519.PrivateKey
}

// NewEd25519SignerFromSeed builds a signer from a 32-byte seed.
func NewEd25519SignerFromSeed(seed []byte) (*Ed25519Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("ed25519 seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return &Ed25519Signer{Private: ed25519.NewKeyFromSeed(seed)}, nil
}

func (s *Ed25519Signer) SenderKey() string {
	pub := s.Private.Public().(ed25519.PublicKey)
	return "ed25519:" + base64.StdEncoding.EncodeToString(pub)
}

func (s *Ed25519Signer) Sign(message []byte, hashAlg string) (string, error) {
	digest, err := DigestFor(hashAlg, message)
	if err != nil {
		return "", err
	}
	sig := ed25519.Sign(s.Private, digest)
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Dilithium3Signer signs with a Dilithium mode3 private key (post-quantum).
type Dilithium3Signer struct {
	Public  *mode3.PublicKey
	Private *mode3.PrivateKey
}

// GenerateDilithium3Signer returns a new Dilithium3 signer from rand.
func GenerateDilithium3Signer(rand io.Reader) (*Dilithium3Signer, error) {
	pk, sk, err := mode3.GenerateKey(rand)
	if err != nil {
		return nil, err
	}
	return &Dilithium3Signer{Public: pk, Private: sk}, nil
}

func (s *Dilithium3Signer) SenderKey() string {
	b, err := s.Public.MarshalBinary()
	if err != nil {
		return ""
	}
	return "dilithium3:" + base64.StdEncoding.EncodeToString(b)
}

func (s *Dilithium3Signer) Sign(message []byte, hashAlg string) (string, error) {
	if s.Private == nil {
		return "", errors.New("missing private key")
	}
	digest, err := DigestFor(hashAlg, message)
	if err != nil {
		return "", err
	}
	sig := make([]byte, mode3.SignatureSize)
	mode3.SignTo(s.Private, digest, sig)
	return base64.StdEncoding.EncodeToString(sig), nil
}

// PublicVerifier verifies signatures for any supported sender-key encoding.
// The zero value is ready to use.
type PublicVerifier struct{}

func (PublicVerifier) Verify(senderKey string, message []byte, hashAlg, sigB64 string) error {
	alg, pub, err := SenderPublicKeyBytes(senderKey)
	if err != nil {
		return err
	}
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return fmt.Errorf("invalid signature base64: %w", err)
	}
	digest, err := DigestFor(hashAlg, message)
	if err != nil {
		return err
	}
	switch alg {
	case "ed25519":
		if len(sig) != ed25519.SignatureSize {
			return errors.New("invalid ed25519 signature length")
		}
		if !ed25519.Verify(ed25519.PublicKey(pub), digest, sig) {
			return errors.New("signature invalid")
		}
		return nil
	case "dilithium3":
		var pk mode3.PublicKey
		if err := pk.UnmarshalBinary(pub); err != nil {
			return fmt.Errorf("invalid dilithium3 public key: %w", err)
		}
		if len(sig) != mode3.SignatureSize {
			return errors.New("invalid dilithium3 signature length")
		}
		if !mode3.Verify(&pk, digest, sig) {
			return errors.New("signature invalid")
		}
		return nil
	default:
		return fmt.Errorf("unsupported sender key algorithm: %q", alg)
	}
}

// SenderPublicKeyBytes decodes an alg-prefixed sender key string.
// Supported encodings:
//   - ed25519:<base64>
//   - dilithium3:<base64>
func SenderPublicKeyBytes(senderKey string) (alg string, pub []byte, err error) {
	if senderKey == "" {
		return "", nil, errors.New("missing sender key")
	}
	alg, enc, ok := strings.Cut(senderKey, ":")
	if !ok {
		return "", nil, errors.New("invalid sender key encoding")
	}
	pub, err = decodeBase64(enc)
	if err != nil {
		return "", nil, fmt.Errorf("invalid sender key base64: %w", err)
	}
	switch alg {
	case "ed25519":
		if len(pub) != ed25519.PublicKeySize {
			return "", nil, errors.New("invalid ed25519 public key length")
		}
	case "dilithium3":
		var pk mode3.PublicKey
		if err := pk.UnmarshalBinary(pub); err != nil {
			return "", nil, fmt.Errorf("invalid dilithium3 public key: %w", err)
		}
	default:
		return "", nil, fmt.Errorf("unsupported sender key algorithm: %q", alg)
	}
	return alg, pub, nil
}

func decodeBase64(s string) ([]byte, error) {
	// Prefer standard padded encoding, but accept raw encoding too.
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}
