// Package beap builds and verifies BEAP packages: cryptographically bound
// message envelopes exchanged between cooperating machines.
//
// A package is an always-cleartext header bound by hash and signature to an
// opaque payload. Two encodings exist: qBEAP (private, receiver-bound,
// AES-256-GCM encrypted capsule) and pBEAP (public, plaintext, auditable).
// Packages are built once and immutable thereafter; a re-send is a new
// package.
package beap

import (
	"encoding/json"
	"time"

	"beap.dev/beap/keys"
)

// Encoding selects the package family.
type Encoding string

const (
	EncodingQBEAP Encoding = "qBEAP" // private, encrypted, receiver-bound
	EncodingPBEAP Encoding = "pBEAP" // public, unencrypted, auditable
)

// Encryption modes carried in the header.
const (
	EncryptionAES256GCM = "AES256_GCM"
	EncryptionNone      = "NONE"
)

// Version is the protocol version stamped into containers and headers.
const Version = "1.0"

// ReceiverBinding ties a qBEAP package to one previously established
// handshake identity. pBEAP headers never carry one.
type ReceiverBinding struct {
	HandshakeID string `json:"handshake_id"`
	DisplayName string `json:"display_name,omitempty"`
	Org         string `json:"org,omitempty"`
}

// BeapEnvelopeHeader is the cleartext portion of a package. Field order is
// the canonical serialization order; the signature covers the marshaled
// header bytes, so reordering fields is a wire-format change.
type BeapEnvelopeHeader struct {
	Version           string           `json:"beap_version"`
	Encoding          Encoding         `json:"encoding"`
	SenderFingerprint string           `json:"sender_fingerprint"`
	ReceiverBinding   *ReceiverBinding `json:"receiver_binding,omitempty"`
	TemplateHash      string           `json:"template_hash"`
	PolicyHash        string           `json:"policy_hash"`
	ContentHash       string           `json:"content_hash"`
	HashAlg           string           `json:"hash_alg"`
	EncryptionMode    string           `json:"encryption_mode"`
	CreatedAt         time.Time        `json:"created_at"`
}

// DeliveryMetadata is the only part of a package a transport collaborator
// may read besides the header.
type DeliveryMetadata struct {
	Method   DeliveryMethod `json:"method,omitempty"`
	Hint     string         `json:"hint,omitempty"`
	Filename string         `json:"filename,omitempty"`
}

// BeapPackage is the wire-level unit: header, opaque payload, signature.
type BeapPackage struct {
	Header    BeapEnvelopeHeader `json:"header"`
	Payload   []byte             `json:"payload"`
	Signature string             `json:"signature"`
	Metadata  DeliveryMetadata   `json:"metadata"`
}

// signingBytes is the byte sequence the signature covers: the canonical
// header JSON, a newline, then the raw payload.
func signingBytes(header *BeapEnvelopeHeader, payload []byte) ([]byte, error) {
	hj, err := json.Marshal(header)
	if err != nil {
		return nil, wrapError(KindInternal, "BEAP-ENV-001", "marshal header for signing", err)
	}
	msg := make([]byte, 0, len(hj)+1+len(payload))
	msg = append(msg, hj...)
	msg = append(msg, '\n')
	msg = append(msg, payload...)
	return msg, nil
}

// VerifyPackageSignature checks the package signature against the sender
// fingerprint embedded in the header. Fails closed on any malformation.
func VerifyPackageSignature(pkg *BeapPackage, verifier keys.Verifier) error {
	if pkg == nil {
		return newError(KindValidation, "BEAP-ENV-002", "nil package")
	}
	if pkg.Header.SenderFingerprint == "" {
		return newError(KindValidation, "BEAP-ENV-003", "package has no sender fingerprint")
	}
	msg, err := signingBytes(&pkg.Header, pkg.Payload)
	if err != nil {
		return err
	}
	if err := verifier.Verify(pkg.Header.SenderFingerprint, msg, pkg.Header.HashAlg, pkg.Signature); err != nil {
		return wrapError(KindCrypto, "BEAP-ENV-004", "package signature does not verify", err)
	}
	return nil
}
