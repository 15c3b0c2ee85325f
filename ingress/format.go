package ingress

import (
	"bytes"
	"regexp"
	"strings"
)

// Source tags where raw bytes came from. Values match the policy channel
// names so channel policy lookups need no mapping table.
type Source string

const (
	SourceEmailBridge    Source = "emailBridge"
	SourceMessengerPaste Source = "messengerPaste"
	SourceFileDrop       Source = "fileDrop"
	SourceClipboard      Source = "clipboard"
)

// FormatHint is the outcome of hint-only inspection. It is a routing hint,
// never a parse result: content interpretation happens only after acceptance.
type FormatHint string

const (
	FormatPackageJSON FormatHint = "package_json"
	FormatInsertText  FormatHint = "insert_text"
	FormatEmailBEAP   FormatHint = "email_beap"
	FormatUnknown     FormatHint = "unknown"
)

var (
	// insertTextRe matches the paste/insert marker messenger transports wrap
	// around package text.
	insertTextRe = regexp.MustCompile(`-{3,}\s*BEGIN BEAP MESSAGE\s*-{3,}`)

	// packageSignatureRe matches the container type discriminator without
	// parsing the JSON.
	packageSignatureRe = regexp.MustCompile(`"type"\s*:\s*"BEAP_PACKAGE"`)
)

// DetectFormat extracts a format hint from raw bytes.
//
// This is deliberately shallow: a regex scan for the insert-text marker, a
// regex scan for the JSON package signature, and for email a loose
// contains-the-word-BEAP heuristic. No JSON parse, no content
// interpretation; the payload stays opaque until verification accepts it.
func DetectFormat(raw []byte, source Source) FormatHint {
	if looksLikeJSONObject(raw) && packageSignatureRe.Match(raw) {
		return FormatPackageJSON
	}
	if insertTextRe.Match(raw) {
		return FormatInsertText
	}
	if source == SourceEmailBridge && containsWordBEAP(raw) {
		return FormatEmailBEAP
	}
	return FormatUnknown
}

func looksLikeJSONObject(raw []byte) bool {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func containsWordBEAP(raw []byte) bool {
	return strings.Contains(strings.ToUpper(string(raw)), "BEAP")
}

// IsImportableAsMessage enforces the file-extension invariant: only .beap
// containers (cleartext JSON envelopes) import as standalone messages. A
// .qbeap capsule is opaque binary, valid only as an artefact referenced from
// an already-accepted envelope, and must never be imported or parsed on its
// own.
func IsImportableAsMessage(filename string) bool {
	lower := strings.ToLower(filename)
	if strings.HasSuffix(lower, ".qbeap") {
		return false
	}
	return strings.HasSuffix(lower, ".beap")
}
