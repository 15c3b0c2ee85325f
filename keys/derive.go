package keys

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// SenderKeyFromSeed returns the BEAP sender key string for an Ed25519 seed.
//
// Format: "ed25519:" + base64(pubkey).
func SenderKeyFromSeed(seed []byte) string {
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return "ed25519:" + base64.StdEncoding.EncodeToString(pub)
}

// SenderKeyFromPublicKey encodes an Ed25519 public key into the sender-key string.
func SenderKeyFromPublicKey(pub ed25519.PublicKey) (string, error) {
	if l := len(pub); l != ed25519.PublicKeySize {
		return "", fmt.Errorf("ed25519 public key must be %d bytes, got %d", ed25519.PublicKeySize, l)
	}
	return "ed25519:" + base64.StdEncoding.EncodeToString(pub), nil
}

// roleContext is the fixed HMAC message prefix for role derivation. Changing
// it invalidates every derived role key, so it is versioned.
const roleContext = "beap-keystore-v1/role/"

// DeriveRoleSeed derives a role-scoped Ed25519 seed from a root seed as
// HMAC-SHA256(rootSeed, roleContext||role). A sender uses role keys to
// separate signing contexts (e.g. a dedicated admin-distribution key)
// without managing independent secrets.
func DeriveRoleSeed(rootSeed []byte, role string) ([]byte, error) {
	if len(rootSeed) != ed25519.SeedSize {
		return nil, fmt.Errorf("root seed must be %d bytes", ed25519.SeedSize)
	}
	if err := CheckRole(role); err != nil {
		return nil, err
	}
	mac := hmac.New(sha256.New, rootSeed)
	mac.Write([]byte(roleContext))
	mac.Write([]byte(role))
	return mac.Sum(nil)[:ed25519.SeedSize], nil
}
