// Package policy implements the canonical BEAP policy model: an immutable,
// versioned capability configuration with deterministic serialization,
// hashing, risk derivation, and diffing.
package policy

import (
	"sort"
	"time"
)

// Layer identifies where in the stack a policy originates. Precedence for
// decision-making is local < network < admin; see the decision package.
type Layer string

const (
	LayerLocal   Layer = "local"
	LayerNetwork Layer = "network"
	LayerAdmin   Layer = "admin"
)

// RiskTier is always derived from policy content, never set directly.
type RiskTier string

const (
	RiskLow    RiskTier = "low"
	RiskMedium RiskTier = "medium"
	RiskHigh   RiskTier = "high"
)

// Behavior is an explicit, policy-declared outcome for a pre-verification
// violation. There is no implicit recovery.
type Behavior string

const (
	BehaviorReject     Behavior = "reject"
	BehaviorQueue      Behavior = "queue"
	BehaviorQuarantine Behavior = "quarantine"
	BehaviorDropSilent Behavior = "drop_silent"
)

// AttestationLevel is the minimum sender binding a channel requires.
type AttestationLevel string

const (
	AttestationNone      AttestationLevel = "none"
	AttestationSigned    AttestationLevel = "signed"
	AttestationHandshake AttestationLevel = "handshake"
)

// Well-known ingress channels.
const (
	ChannelEmailBridge    = "emailBridge"
	ChannelMessengerPaste = "messengerPaste"
	ChannelFileDrop       = "fileDrop"
	ChannelClipboard      = "clipboard"
)

// Well-known derivation kinds.
const (
	DeriveCapPlainText      = "derivePlainText"
	DeriveCapMetadata       = "deriveMetadata"
	DeriveCapPreviewImage   = "derivePreviewImage"
	DeriveCapFullDecryption = "deriveFullDecryption"
)

// ChannelPolicy configures one ingress channel.
type ChannelPolicy struct {
	Enabled                     bool             `json:"enabled"`
	RequiredAttestation         AttestationLevel `json:"requiredAttestation"`
	MaxPackagesPerSenderPerHour int64            `json:"maxPackagesPerSenderPerHour"`
	MaxPayloadBytes             int64            `json:"maxPayloadBytes"`
	AllowedSenders              []string         `json:"allowedSenders,omitempty"`
	BlockedSenders              []string         `json:"blockedSenders,omitempty"`
}

// PreVerificationPolicy bounds what the ingress pipeline accepts before any
// verification has happened.
type PreVerificationPolicy struct {
	MaxPayloadBytes int64    `json:"maxPayloadBytes"`
	MaxPendingItems int64    `json:"maxPendingItems"`
	OnOversize      Behavior `json:"onOversize"`
	OnRateLimit     Behavior `json:"onRateLimit"`
	OnUnknownFormat Behavior `json:"onUnknownFormat"`
}

// DerivationPolicy configures one derivation kind.
type DerivationPolicy struct {
	Enabled           bool  `json:"enabled"`
	RequireApproval   bool  `json:"requireApproval"`
	MaxUsesPerPackage int64 `json:"maxUsesPerPackage"`
	AuditAlways       bool  `json:"auditAlways"`
}

// EgressPolicy configures outbound package construction and delivery.
type EgressPolicy struct {
	AllowedDestinations []string `json:"allowedDestinations,omitempty"`
	AllowedCategories   []string `json:"allowedCategories,omitempty"`
	AllowedChannels     []string `json:"allowedChannels,omitempty"`
	RequireApproval     bool     `json:"requireApproval"`
	RequireEncryption   bool     `json:"requireEncryption"`
}

// CanonicalPolicy is a versioned, immutable configuration bundle.
//
// Policies are never mutated in place: every change produces a new value with
// a bumped Version, and superseded policies remain retrievable for rollback
// and diffing.
type CanonicalPolicy struct {
	ID        string    `json:"id"`
	Version   int64     `json:"version"`
	Layer     Layer     `json:"layer"`
	CreatedAt time.Time `json:"createdAt"`

	Channels        map[string]ChannelPolicy    `json:"channels"`
	PreVerification PreVerificationPolicy       `json:"preVerification"`
	Derivations     map[string]DerivationPolicy `json:"derivations"`
	Egress          EgressPolicy                `json:"egress"`
}

// Capability domains.
const (
	DomainChannels        = "channels"
	DomainPreVerification = "preVerification"
	DomainDerivations     = "derivations"
	DomainEgress          = "egress"
)

// ValueKind tags the typed capability value held in a Value.
type ValueKind string

const (
	KindBool ValueKind = "bool"
	KindInt  ValueKind = "int"
	KindList ValueKind = "list"
	KindEnum ValueKind = "enum"
)

// Value is a typed capability value. Exactly the field matching Kind is
// meaningful; the decision engine switches exhaustively on Kind.
type Value struct {
	Kind ValueKind `json:"kind"`
	Bool bool      `json:"bool,omitempty"`
	Int  int64     `json:"int,omitempty"`
	List []string  `json:"list,omitempty"`
	Enum string    `json:"enum,omitempty"`
}

func BoolValue(b bool) Value     { return Value{Kind: KindBool, Bool: b} }
func IntValue(i int64) Value     { return Value{Kind: KindInt, Int: i} }
func ListValue(l []string) Value { return Value{Kind: KindList, List: l} }
func EnumValue(e string) Value   { return Value{Kind: KindEnum, Enum: e} }

// Capability returns the typed value stored under (domain, capability).
//
// Capability keys are dotted paths, e.g. "emailBridge.enabled",
// "deriveFullDecryption.requireApproval", "maxPayloadBytes",
// "allowedDestinations". Every entry of every domain is addressable this way;
// decisions are always lookups, never structural walks.
func (p *CanonicalPolicy) Capability(domain, capability string) (Value, bool) {
	entries := p.domainEntries(domain)
	v, ok := entries[capability]
	return v, ok
}

// Entries returns a flat map of "domain/capability" to typed values covering
// the entire policy. The result is freshly allocated; mutating it does not
// affect the policy.
func (p *CanonicalPolicy) Entries() map[string]Value {
	out := make(map[string]Value)
	for _, domain := range []string{DomainChannels, DomainPreVerification, DomainDerivations, DomainEgress} {
		for cap, v := range p.domainEntries(domain) {
			out[domain+"/"+cap] = v
		}
	}
	return out
}

func (p *CanonicalPolicy) domainEntries(domain string) map[string]Value {
	out := make(map[string]Value)
	switch domain {
	case DomainChannels:
		for name, ch := range p.Channels {
			out[name+".enabled"] = BoolValue(ch.Enabled)
			out[name+".requiredAttestation"] = EnumValue(string(ch.RequiredAttestation))
			out[name+".maxPackagesPerSenderPerHour"] = IntValue(ch.MaxPackagesPerSenderPerHour)
			out[name+".maxPayloadBytes"] = IntValue(ch.MaxPayloadBytes)
			out[name+".allowedSenders"] = ListValue(ch.AllowedSenders)
			out[name+".blockedSenders"] = ListValue(ch.BlockedSenders)
		}
	case DomainPreVerification:
		out["maxPayloadBytes"] = IntValue(p.PreVerification.MaxPayloadBytes)
		out["maxPendingItems"] = IntValue(p.PreVerification.MaxPendingItems)
		out["onOversize"] = EnumValue(string(p.PreVerification.OnOversize))
		out["onRateLimit"] = EnumValue(string(p.PreVerification.OnRateLimit))
		out["onUnknownFormat"] = EnumValue(string(p.PreVerification.OnUnknownFormat))
	case DomainDerivations:
		for name, d := range p.Derivations {
			out[name+".enabled"] = BoolValue(d.Enabled)
			out[name+".requireApproval"] = BoolValue(d.RequireApproval)
			out[name+".maxUsesPerPackage"] = IntValue(d.MaxUsesPerPackage)
			out[name+".auditAlways"] = BoolValue(d.AuditAlways)
		}
	case DomainEgress:
		out["allowedDestinations"] = ListValue(p.Egress.AllowedDestinations)
		out["allowedCategories"] = ListValue(p.Egress.AllowedCategories)
		out["allowedChannels"] = ListValue(p.Egress.AllowedChannels)
		out["requireApproval"] = BoolValue(p.Egress.RequireApproval)
		out["requireEncryption"] = BoolValue(p.Egress.RequireEncryption)
	}
	return out
}

// Clone returns a deep copy. Policies are treated as immutable values; Clone
// exists so constructors can derive new versions without aliasing maps.
func (p *CanonicalPolicy) Clone() CanonicalPolicy {
	out := *p
	out.Channels = make(map[string]ChannelPolicy, len(p.Channels))
	for k, v := range p.Channels {
		v.AllowedSenders = append([]string(nil), v.AllowedSenders...)
		v.BlockedSenders = append([]string(nil), v.BlockedSenders...)
		out.Channels[k] = v
	}
	out.Derivations = make(map[string]DerivationPolicy, len(p.Derivations))
	for k, v := range p.Derivations {
		out.Derivations[k] = v
	}
	out.Egress.AllowedDestinations = append([]string(nil), p.Egress.AllowedDestinations...)
	out.Egress.AllowedCategories = append([]string(nil), p.Egress.AllowedCategories...)
	out.Egress.AllowedChannels = append([]string(nil), p.Egress.AllowedChannels...)
	return out
}

// SortedEntryKeys returns the flattened entry keys in lexicographic order.
func (p *CanonicalPolicy) SortedEntryKeys() []string {
	entries := p.Entries()
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
