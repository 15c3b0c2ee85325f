// Package capref derives and validates content references for BEAP capsules.
//
// A capsule (.qbeap artefact) is opaque binary: it is never parsed, only bound
// to an envelope by CID, size, and encoding. The CID scheme is IPFS-compatible
// CIDv1 (raw + sha2-256) over the exact capsule bytes.
package capref

import (
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// Encodings a capsule reference may declare.
const (
	EncodingAES256GCM = "aes256gcm"
	EncodingNone      = "none"
)

var (
	ErrInvalidRef = errors.New("capref: invalid capsule reference")
	ErrMismatch   = errors.New("capref: capsule bytes do not match reference")
)

// Ref binds an opaque capsule to an envelope. All three fields are
// authoritative: verification fails if any of them disagrees with the bytes.
type Ref struct {
	CID      string `json:"cid"`
	Size     int64  `json:"size"`
	Encoding string `json:"encoding"`
}

// CIDv1RawSHA256 returns a CIDv1 string using the "raw" multicodec
// and a sha2-256 multihash.
func CIDv1RawSHA256(data []byte) string {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		// multihash.Sum only errors for invalid inputs; with SHA2_256 and -1
		// length this should be unreachable.
		return ""
	}
	return cid.NewCidV1(cid.Raw, sum).String()
}

// CIDv1RawSHA256CID returns a CIDv1 (raw + sha2-256) derived from data.
func CIDv1RawSHA256CID(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// New builds a Ref for capsule bytes.
func New(capsule []byte, encoding string) (Ref, error) {
	if err := checkEncoding(encoding); err != nil {
		return Ref{}, err
	}
	return Ref{
		CID:      CIDv1RawSHA256(capsule),
		Size:     int64(len(capsule)),
		Encoding: encoding,
	}, nil
}

// Validate checks structural validity of a Ref without capsule bytes.
func (r Ref) Validate() error {
	if r.CID == "" {
		return fmt.Errorf("%w: missing cid", ErrInvalidRef)
	}
	id, err := cid.Decode(r.CID)
	if err != nil || !id.Defined() {
		return fmt.Errorf("%w: malformed cid", ErrInvalidRef)
	}
	if r.Size < 0 {
		return fmt.Errorf("%w: negative size", ErrInvalidRef)
	}
	return checkEncoding(r.Encoding)
}

// VerifyBytes checks capsule bytes against the reference. The bytes are never
// interpreted, only hashed and measured.
func (r Ref) VerifyBytes(capsule []byte) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if int64(len(capsule)) != r.Size {
		return fmt.Errorf("%w: size %d != %d", ErrMismatch, len(capsule), r.Size)
	}
	if CIDv1RawSHA256(capsule) != r.CID {
		return fmt.Errorf("%w: cid mismatch", ErrMismatch)
	}
	return nil
}

func checkEncoding(encoding string) error {
	switch encoding {
	case EncodingAES256GCM, EncodingNone:
		return nil
	default:
		return fmt.Errorf("%w: unknown encoding %q", ErrInvalidRef, encoding)
	}
}
