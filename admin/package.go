// Package admin builds, signs, verifies, applies and rolls back policy
// update packages for fleet distribution, and tracks per-node sync status.
//
// A package's lifecycle is created → (optionally signed) → applied →
// (optionally rolled back). Apply re-verifies the payload hash before any
// state change; rollback is a forward-apply of a historical package, never a
// destructive undo. History is append-only.
package admin

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"beap.dev/beap/keys"
	"beap.dev/beap/policy"
)

// TargetSelectors names the nodes a package is destined for. All takes
// precedence; otherwise any listed node ID or any group intersection matches.
type TargetSelectors struct {
	All     bool     `json:"all"`
	NodeIDs []string `json:"nodeIds,omitempty"`
	Groups  []string `json:"groups,omitempty"`
}

// Hashes anchors the package payload. SHA256 is hex over PolicyPayload,
// computed once at creation and never recomputed at sign time: the signature
// covers the payload directly, so hash and signature verify independently.
type Hashes struct {
	SHA256 string `json:"sha256"`
}

// SignatureMetadata records an optional detached signature over the payload.
type SignatureMetadata struct {
	Algorithm string `json:"algorithm"`
	KeyID     string `json:"keyId"`
	Signature string `json:"signature"`
}

// PackageMetadata carries rollout bookkeeping. Priority orders concurrent
// pending packages; EffectiveAt/ExpiresAt bound the delivery window (zero
// means unbounded).
type PackageMetadata struct {
	Creator     string    `json:"creator"`
	Priority    int       `json:"priority"`
	EffectiveAt time.Time `json:"effectiveAt,omitempty"`
	ExpiresAt   time.Time `json:"expiresAt,omitempty"`
}

// AdminPolicyPackage is a distributable policy update.
type AdminPolicyPackage struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`

	TargetSelectors TargetSelectors `json:"targetSelectors"`

	// PolicyPayload is the canonical serialization of one CanonicalPolicy.
	PolicyPayload []byte `json:"policyPayload"`

	Hashes    Hashes             `json:"hashes"`
	Signature *SignatureMetadata `json:"signatureMetadata,omitempty"`
	Metadata  PackageMetadata    `json:"metadata"`
}

// payloadHashHex is the single definition of the package integrity anchor.
func payloadHashHex(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// CreatePackage serializes p canonically, anchors it with sha256 and wraps it
// for distribution. The policy must validate; a package carrying an invalid
// policy would fail closed at every apply and is rejected up front.
func CreatePackage(p *policy.CanonicalPolicy, targets TargetSelectors, meta PackageMetadata) (*AdminPolicyPackage, error) {
	if res := policy.Validate(p); !res.OK {
		return nil, newError(KindValidation, "ADM-PKG-001",
			fmt.Sprintf("policy does not validate: %d violation(s), first: %s", len(res.Violations), res.Violations[0].Message))
	}
	payload, err := policy.Serialize(p)
	if err != nil {
		return nil, wrapError(KindInternal, "ADM-PKG-002", "serialize policy payload", err)
	}
	return &AdminPolicyPackage{
		ID:              uuid.NewString(),
		CreatedAt:       time.Now().UTC().Truncate(time.Second),
		TargetSelectors: targets,
		PolicyPayload:   payload,
		Hashes:          Hashes{SHA256: payloadHashHex(payload)},
		Metadata:        meta,
	}, nil
}

// SignPackage attaches a detached signature over the policy payload. The
// embedded hash is left untouched.
func SignPackage(pkg *AdminPolicyPackage, signer keys.Signer) error {
	if pkg == nil || len(pkg.PolicyPayload) == 0 {
		return newError(KindValidation, "ADM-SIG-001", "cannot sign an empty package")
	}
	sig, err := signer.Sign(pkg.PolicyPayload, "sha256")
	if err != nil {
		return wrapError(KindCrypto, "ADM-SIG-002", "sign policy payload", err)
	}
	alg, _, err := keys.SenderPublicKeyBytes(signer.SenderKey())
	if err != nil {
		return wrapError(KindCrypto, "ADM-SIG-003", "signer key is malformed", err)
	}
	pkg.Signature = &SignatureMetadata{
		Algorithm: alg,
		KeyID:     signer.SenderKey(),
		Signature: sig,
	}
	return nil
}

// VerifyPackage checks the hash anchor and, when present, the signature.
// Both checks fail closed; an unsigned package passes with hash alone.
func VerifyPackage(pkg *AdminPolicyPackage, verifier keys.Verifier) error {
	if pkg == nil {
		return newError(KindValidation, "ADM-VER-001", "nil package")
	}
	if pkg.Hashes.SHA256 != payloadHashHex(pkg.PolicyPayload) {
		return newError(KindIntegrity, "ADM-VER-002", "policy payload hash mismatch")
	}
	if pkg.Signature != nil {
		if err := verifier.Verify(pkg.Signature.KeyID, pkg.PolicyPayload, "sha256", pkg.Signature.Signature); err != nil {
			return wrapError(KindCrypto, "ADM-VER-003", "package signature does not verify", err)
		}
	}
	return nil
}

// EncodePackage renders pkg as JSON for transport or storage.
func EncodePackage(pkg *AdminPolicyPackage) ([]byte, error) {
	data, err := json.Marshal(pkg)
	if err != nil {
		return nil, wrapError(KindInternal, "ADM-ENC-001", "encode admin package", err)
	}
	return data, nil
}

// DecodePackage parses a package previously produced by EncodePackage.
func DecodePackage(data []byte) (*AdminPolicyPackage, error) {
	var pkg AdminPolicyPackage
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, wrapError(KindValidation, "ADM-DEC-001", "decode admin package", err)
	}
	if pkg.ID == "" {
		return nil, newError(KindValidation, "ADM-DEC-002", "admin package has no id")
	}
	return &pkg, nil
}
