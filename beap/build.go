package beap

import (
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"beap.dev/beap/keys"
	"beap.dev/beap/policy"
)

// Recipient is a resolved handshake identity. SessionKey is the 32-byte
// symmetric key established by the handshake; qBEAP capsules are sealed
// under it.
type Recipient struct {
	HandshakeID string
	DisplayName string
	Org         string
	SessionKey  []byte
}

// Attachment is one named blob shipped inside the payload.
type Attachment struct {
	Name string `json:"name"`
	Data []byte `json:"data,omitempty"`
}

// DraftBuildPolicy gates what a draft is allowed to ship.
type DraftBuildPolicy struct {
	// RequiresEncryptedMessage fails a qBEAP build whose encrypted payload
	// is empty.
	RequiresEncryptedMessage bool

	// RequiresPrivateTriggersInEncryptedOnly fails any build whose plaintext
	// body carries automation tags; tags must travel encrypted only.
	RequiresPrivateTriggersInEncryptedOnly bool
}

// BeapPackageConfig is the input to BuildPackage.
type BeapPackageConfig struct {
	Encoding  Encoding
	Signer    keys.Signer
	Recipient *Recipient // required for qBEAP; ignored for pBEAP

	Subject     string
	MessageBody string

	// EncryptedMessage is pre-encrypted content supplied for transport. When
	// set, the plaintext transport fields are scanned for it before build.
	EncryptedMessage string

	Attachments []Attachment

	TemplateID string
	Policy     *policy.CanonicalPolicy

	// HashAlg selects the digest for content/template hashes and the
	// signature; defaults to sha256.
	HashAlg string

	Delivery DeliveryMetadata
	Build    DraftBuildPolicy
}

// PackageBuildResult reports one build attempt. On failure Err carries a
// structured *Error and no package fields are populated.
type PackageBuildResult struct {
	Success     bool
	Package     *BeapPackage
	PackageJSON []byte // .beap container bytes
	Err         error
}

// payloadContent is the logical message the payload carries: plaintext for
// pBEAP, sealed inside the capsule for qBEAP.
type payloadContent struct {
	Subject          string       `json:"subject,omitempty"`
	Body             string       `json:"body,omitempty"`
	EncryptedMessage string       `json:"encrypted_message,omitempty"`
	Attachments      []Attachment `json:"attachments,omitempty"`
	AuditNotice      string       `json:"audit_notice,omitempty"`
}

// AuditNotice is embedded in every pBEAP payload: the package is public and
// deliberately labeled as such.
const AuditNotice = "This package is public and auditable; its payload is not encrypted."

// BuildPackage validates config and constructs a signed, immutable package.
//
// All validation precedes construction: a failed build has no side effects
// and returns Success=false with a structured error. Security failures
// (leak prevention, plaintext automation tags) are tagged KindSecurity and
// are always fatal to the build.
func BuildPackage(cfg BeapPackageConfig) PackageBuildResult {
	fail := func(err error) PackageBuildResult { return PackageBuildResult{Err: err} }

	if err := validateConfig(&cfg); err != nil {
		return fail(err)
	}
	if err := scanForLeaks(&cfg); err != nil {
		return fail(err)
	}
	if cfg.Build.RequiresPrivateTriggersInEncryptedOnly {
		if tags := ExtractAutomationTags(cfg.MessageBody); len(tags) > 0 {
			return fail(newError(KindSecurity, "BEAP-SEC-002", "Automation tags in plaintext are forbidden"))
		}
	}

	hashAlg := cfg.HashAlg
	if hashAlg == "" {
		hashAlg = "sha256"
	}

	contentHash, err := contentHashHex(hashAlg, cfg.MessageBody, cfg.Attachments)
	if err != nil {
		return fail(err)
	}
	templateHash, err := digestHex(hashAlg, []byte(cfg.TemplateID))
	if err != nil {
		return fail(err)
	}
	policyHash := ""
	if cfg.Policy != nil {
		policyHash, err = policy.Hash(cfg.Policy)
		if err != nil {
			return fail(wrapError(KindInternal, "BEAP-BLD-001", "hash policy", err))
		}
	}

	content := payloadContent{
		Subject:          cfg.Subject,
		Body:             cfg.MessageBody,
		EncryptedMessage: cfg.EncryptedMessage,
		Attachments:      cfg.Attachments,
	}

	header := BeapEnvelopeHeader{
		Version:           Version,
		Encoding:          cfg.Encoding,
		SenderFingerprint: cfg.Signer.SenderKey(),
		TemplateHash:      templateHash,
		PolicyHash:        policyHash,
		ContentHash:       contentHash,
		HashAlg:           hashAlg,
		CreatedAt:         time.Now().UTC().Truncate(time.Second),
	}

	var payload []byte
	switch cfg.Encoding {
	case EncodingQBEAP:
		header.EncryptionMode = EncryptionAES256GCM
		header.ReceiverBinding = &ReceiverBinding{
			HandshakeID: cfg.Recipient.HandshakeID,
			DisplayName: cfg.Recipient.DisplayName,
			Org:         cfg.Recipient.Org,
		}
		plaintext, err := json.Marshal(content)
		if err != nil {
			return fail(wrapError(KindInternal, "BEAP-BLD-002", "encode payload content", err))
		}
		payload, err = SealCapsule(cfg.Recipient.SessionKey, plaintext)
		if err != nil {
			return fail(err)
		}
	case EncodingPBEAP:
		// No receiver binding, ever. The payload carries its audit label.
		content.AuditNotice = AuditNotice
		header.EncryptionMode = EncryptionNone
		payload, err = json.Marshal(content)
		if err != nil {
			return fail(wrapError(KindInternal, "BEAP-BLD-002", "encode payload content", err))
		}
	}

	msg, err := signingBytes(&header, payload)
	if err != nil {
		return fail(err)
	}
	sig, err := cfg.Signer.Sign(msg, hashAlg)
	if err != nil {
		return fail(wrapError(KindCrypto, "BEAP-BLD-003", "sign package", err))
	}

	pkg := &BeapPackage{
		Header:    header,
		Payload:   payload,
		Signature: sig,
		Metadata:  cfg.Delivery,
	}
	if pkg.Metadata.Filename == "" {
		pkg.Metadata.Filename = defaultFilename(cfg.Encoding, contentHash)
	}

	containerJSON, err := EncodeContainer(pkg)
	if err != nil {
		return fail(err)
	}
	return PackageBuildResult{Success: true, Package: pkg, PackageJSON: containerJSON}
}

func validateConfig(cfg *BeapPackageConfig) error {
	switch cfg.Encoding {
	case "":
		return newError(KindValidation, "BEAP-VAL-001", "recipient mode is unset")
	case EncodingQBEAP, EncodingPBEAP:
	default:
		return newError(KindValidation, "BEAP-VAL-002", "unknown encoding "+string(cfg.Encoding))
	}
	if cfg.Signer == nil || cfg.Signer.SenderKey() == "" {
		return newError(KindValidation, "BEAP-VAL-003", "sender fingerprint is absent")
	}
	if cfg.Encoding == EncodingQBEAP {
		if cfg.Recipient == nil || cfg.Recipient.HandshakeID == "" {
			return newError(KindValidation, "BEAP-VAL-004", "private build requires a resolved handshake recipient")
		}
		if len(cfg.Recipient.SessionKey) != 32 {
			return newError(KindValidation, "BEAP-VAL-005", "handshake session key must be 32 bytes")
		}
		if cfg.Build.RequiresEncryptedMessage && cfg.EncryptedMessage == "" {
			return newError(KindValidation, "BEAP-VAL-006", "draft policy requires an encrypted message and none was supplied")
		}
	}
	return nil
}

// scanForLeaks guards against shipping secret content in the clear alongside
// its encrypted counterpart: when an encrypted message accompanies the
// build, no plaintext transport field may contain it.
func scanForLeaks(cfg *BeapPackageConfig) error {
	secret := cfg.EncryptedMessage
	if secret == "" {
		return nil
	}
	fields := []struct {
		name  string
		value string
	}{
		{"subject", cfg.Subject},
		{"body", cfg.MessageBody},
		{"filename", cfg.Delivery.Filename},
		{"delivery hint", cfg.Delivery.Hint},
	}
	for _, f := range fields {
		if f.value != "" && strings.Contains(f.value, secret) {
			return newError(KindSecurity, "BEAP-SEC-001",
				"encrypted content leaked into plaintext "+f.name)
		}
	}
	return nil
}

// contentHashHex computes hash(body ‖ attachment-name-list). Names join the
// digest input NUL-separated so "a","bc" and "ab","c" hash differently.
func contentHashHex(hashAlg, body string, attachments []Attachment) (string, error) {
	input := make([]byte, 0, len(body))
	input = append(input, body...)
	for _, a := range attachments {
		input = append(input, 0)
		input = append(input, a.Name...)
	}
	return digestHex(hashAlg, input)
}

func digestHex(hashAlg string, data []byte) (string, error) {
	sum, err := keys.DigestFor(hashAlg, data)
	if err != nil {
		return "", wrapError(KindCrypto, "BEAP-BLD-004", "unsupported hash algorithm "+hashAlg, err)
	}
	return hex.EncodeToString(sum), nil
}

// defaultFilename names the container file. Both encodings ship as .beap
// containers; .qbeap names are reserved for raw capsule artefacts referenced
// from inside an envelope.
func defaultFilename(enc Encoding, contentHash string) string {
	short := contentHash
	if len(short) > 12 {
		short = short[:12]
	}
	return "message-" + short + ".beap"
}
