package policy

import "fmt"

// Violation names one violated validation rule.
//
// RuleID is a stable identifier (e.g. POL-VAL-103) naming the invariant.
// Message is intended for humans; do not match on it.
type Violation struct {
	RuleID  string
	Message string
}

// ValidationResult reports the outcome of Validate. A policy with any
// violation must not be applied, hashed into distribution packages, or used
// for decisions.
type ValidationResult struct {
	OK         bool
	Violations []Violation
}

func (r *ValidationResult) add(ruleID, format string, args ...any) {
	r.Violations = append(r.Violations, Violation{RuleID: ruleID, Message: fmt.Sprintf(format, args...)})
}

// Validate checks internal consistency of a policy.
//
// Hard invariants (all templates, all layers):
//   - every capability domain must be populated
//   - numeric caps must be non-negative
//   - deriveFullDecryption may only be enabled with requireApproval set
func Validate(p *CanonicalPolicy) ValidationResult {
	var r ValidationResult

	if p.ID == "" {
		r.add("POL-VAL-001", "missing policy id")
	}
	if p.Version < 1 {
		r.add("POL-VAL-002", "version must be >= 1, got %d", p.Version)
	}
	switch p.Layer {
	case LayerLocal, LayerNetwork, LayerAdmin:
	default:
		r.add("POL-VAL-003", "unknown layer %q", p.Layer)
	}

	if len(p.Channels) == 0 {
		r.add("POL-VAL-101", "channels domain must not be empty")
	}
	for name, ch := range p.Channels {
		switch ch.RequiredAttestation {
		case AttestationNone, AttestationSigned, AttestationHandshake:
		default:
			r.add("POL-VAL-102", "channel %s: unknown attestation level %q", name, ch.RequiredAttestation)
		}
		if ch.MaxPackagesPerSenderPerHour < 0 {
			r.add("POL-VAL-103", "channel %s: negative rate limit", name)
		}
		if ch.MaxPayloadBytes < 0 {
			r.add("POL-VAL-104", "channel %s: negative payload limit", name)
		}
	}

	if p.PreVerification.MaxPayloadBytes < 0 {
		r.add("POL-VAL-201", "preVerification: negative maxPayloadBytes")
	}
	if p.PreVerification.MaxPendingItems < 0 {
		r.add("POL-VAL-202", "preVerification: negative maxPendingItems")
	}
	for field, b := range map[string]Behavior{
		"onOversize":      p.PreVerification.OnOversize,
		"onRateLimit":     p.PreVerification.OnRateLimit,
		"onUnknownFormat": p.PreVerification.OnUnknownFormat,
	} {
		switch b {
		case BehaviorReject, BehaviorQueue, BehaviorQuarantine, BehaviorDropSilent:
		default:
			r.add("POL-VAL-203", "preVerification: unknown behavior %q for %s", b, field)
		}
	}

	if len(p.Derivations) == 0 {
		r.add("POL-VAL-301", "derivations domain must not be empty")
	}
	for name, d := range p.Derivations {
		if d.MaxUsesPerPackage < 0 {
			r.add("POL-VAL-302", "derivation %s: maxUsesPerPackage must be >= 0", name)
		}
	}
	if d, ok := p.Derivations[DeriveCapFullDecryption]; ok {
		if d.Enabled && !d.RequireApproval {
			r.add("POL-VAL-303", "deriveFullDecryption enabled without requireApproval")
		}
	} else {
		r.add("POL-VAL-304", "derivations domain missing deriveFullDecryption entry")
	}

	// Egress has no required entries, but its behavior fields must be coherent
	// with encryption: an empty channel list with approval disabled is fine
	// (egress simply denies everything by absence of an allow).

	r.OK = len(r.Violations) == 0
	return r
}
