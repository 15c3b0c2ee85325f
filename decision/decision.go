// Package decision implements the layered policy decision engine.
//
// A capability request is evaluated against an ordered stack of policy layers
// (local < network < admin) with intersection semantics: every applicable
// layer must allow, numeric caps intersect to the minimum, and the posture is
// fail-closed: absence of an explicit allow is a deny.
package decision

import (
	"fmt"
	"sort"
	"strings"

	"beap.dev/beap/policy"
)

// Approval is an out-of-band requirement attached to an allowed decision.
type Approval string

const (
	ApprovalHuman       Approval = "human"
	ApprovalHardwareKey Approval = "hardware-key"
	ApprovalMultiParty  Approval = "multi-party"
	ApprovalTimeBounded Approval = "time-bounded"
)

// Decision is the single outcome of evaluating one (domain, capability)
// request against a policy stack.
type Decision struct {
	Allowed bool
	Reason  string

	// DecidedBy is the layer that produced the answer: the first denying
	// layer, or the highest-precedence applicable layer on allow.
	DecidedBy policy.Layer

	// AlsoDeniedBy lists every layer that would independently deny.
	// A denial always carries at least DecidedBy.
	AlsoDeniedBy []policy.Layer

	// RequiredApprovals is populated when any layer gates the capability
	// behind an approval flow.
	RequiredApprovals []Approval

	// Requested is the caller's value; Effective is the value after layer
	// intersection (e.g. the minimum numeric cap).
	Requested policy.Value
	Effective policy.Value
}

// layerValue pairs one layer's value for the capability under evaluation.
type layerValue struct {
	layer policy.Layer
	value policy.Value
}

// layerRank orders layers for precedence. Admin evaluates last and wins ties.
func layerRank(l policy.Layer) int {
	switch l {
	case policy.LayerLocal:
		return 0
	case policy.LayerNetwork:
		return 1
	case policy.LayerAdmin:
		return 2
	default:
		return -1
	}
}

// Evaluate runs the intersection decision for one capability request.
//
// Layers may arrive in any order; they are sorted by precedence before
// evaluation. A stack with no layer defining the capability denies,
// attributed to the highest-precedence layer present.
func Evaluate(layers []policy.CanonicalPolicy, domain, capability string, requested policy.Value) Decision {
	ordered := append([]policy.CanonicalPolicy(nil), layers...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return layerRank(ordered[i].Layer) < layerRank(ordered[j].Layer)
	})

	d := Decision{Requested: requested}

	var apply []layerValue
	for i := range ordered {
		p := &ordered[i]
		if v, ok := p.Capability(domain, capability); ok {
			apply = append(apply, layerValue{layer: p.Layer, value: v})
		}
		d.RequiredApprovals = mergeApprovals(d.RequiredApprovals, approvalsFor(p, domain, capability))
	}

	if len(apply) == 0 {
		d.Reason = fmt.Sprintf("no layer defines %s/%s; default deny", domain, capability)
		d.DecidedBy = highestLayer(ordered)
		d.AlsoDeniedBy = []policy.Layer{d.DecidedBy}
		return d
	}

	switch requested.Kind {
	case policy.KindBool:
		return evaluateBool(d, apply)
	case policy.KindInt:
		return evaluateInt(d, apply)
	case policy.KindEnum:
		return evaluateEnum(d, apply, capability)
	case policy.KindList:
		return evaluateListMembership(d, apply)
	default:
		d.Reason = fmt.Sprintf("unsupported requested value kind %q", requested.Kind)
		d.DecidedBy = apply[0].layer
		d.AlsoDeniedBy = []policy.Layer{apply[0].layer}
		return d
	}
}

// evaluateBool: allowed only when every applicable layer enables the flag.
func evaluateBool(d Decision, apply []layerValue) Decision {
	effective := true
	for _, a := range apply {
		if a.value.Kind != policy.KindBool || !a.value.Bool {
			effective = false
			if d.DecidedBy == "" {
				d.DecidedBy = a.layer
			}
			d.AlsoDeniedBy = append(d.AlsoDeniedBy, a.layer)
		}
	}
	d.Effective = policy.BoolValue(effective)
	if !d.Requested.Bool {
		// Declining to use a capability is always permitted.
		d.Allowed = true
		d.Reason = "capability not requested"
		d.DecidedBy = apply[len(apply)-1].layer
		d.AlsoDeniedBy = nil
		return d
	}
	if !effective {
		d.Reason = fmt.Sprintf("disabled by %s layer", d.DecidedBy)
		return d
	}
	d.Allowed = true
	d.Reason = "enabled by all applicable layers"
	d.DecidedBy = apply[len(apply)-1].layer
	return d
}

// evaluateInt: the effective cap is the minimum across layers. A looser
// admin policy cannot raise a stricter local cap.
func evaluateInt(d Decision, apply []layerValue) Decision {
	minSet := false
	var min int64
	var minLayer policy.Layer
	for _, a := range apply {
		if a.value.Kind != policy.KindInt {
			continue
		}
		if !minSet || a.value.Int < min {
			min = a.value.Int
			minLayer = a.layer
			minSet = true
		}
	}
	if !minSet {
		d.Reason = "no numeric cap defined; default deny"
		d.DecidedBy = apply[0].layer
		d.AlsoDeniedBy = []policy.Layer{apply[0].layer}
		return d
	}
	d.Effective = policy.IntValue(min)
	if d.Requested.Int > min {
		d.Reason = fmt.Sprintf("requested %d exceeds effective cap %d", d.Requested.Int, min)
		d.DecidedBy = minLayer
		for _, a := range apply {
			if a.value.Kind == policy.KindInt && d.Requested.Int > a.value.Int {
				d.AlsoDeniedBy = append(d.AlsoDeniedBy, a.layer)
			}
		}
		return d
	}
	d.Allowed = true
	d.Reason = fmt.Sprintf("within effective cap %d", min)
	d.DecidedBy = minLayer
	return d
}

// attestationRank orders attestation levels by strictness.
func attestationRank(level string) int {
	switch policy.AttestationLevel(level) {
	case policy.AttestationNone:
		return 0
	case policy.AttestationSigned:
		return 1
	case policy.AttestationHandshake:
		return 2
	default:
		return -1
	}
}

// evaluateEnum: attestation requirements intersect to the strictest level
// and the request must meet it. Other enums must match the admin-most layer.
func evaluateEnum(d Decision, apply []layerValue, capability string) Decision {
	if strings.HasSuffix(capability, ".requiredAttestation") {
		strictest := ""
		var strictestLayer policy.Layer
		for _, a := range apply {
			if a.value.Kind != policy.KindEnum {
				continue
			}
			if strictest == "" || attestationRank(a.value.Enum) > attestationRank(strictest) {
				strictest = a.value.Enum
				strictestLayer = a.layer
			}
		}
		d.Effective = policy.EnumValue(strictest)
		if attestationRank(d.Requested.Enum) < attestationRank(strictest) {
			d.Reason = fmt.Sprintf("attestation %q below required %q", d.Requested.Enum, strictest)
			d.DecidedBy = strictestLayer
			for _, a := range apply {
				if a.value.Kind == policy.KindEnum && attestationRank(d.Requested.Enum) < attestationRank(a.value.Enum) {
					d.AlsoDeniedBy = append(d.AlsoDeniedBy, a.layer)
				}
			}
			return d
		}
		d.Allowed = true
		d.Reason = fmt.Sprintf("attestation %q meets required %q", d.Requested.Enum, strictest)
		d.DecidedBy = strictestLayer
		return d
	}

	top := apply[len(apply)-1]
	d.Effective = top.value
	if top.value.Kind != policy.KindEnum || top.value.Enum != d.Requested.Enum {
		d.Reason = fmt.Sprintf("requested %q does not match effective %q", d.Requested.Enum, top.value.Enum)
		d.DecidedBy = top.layer
		d.AlsoDeniedBy = []policy.Layer{top.layer}
		return d
	}
	d.Allowed = true
	d.Reason = "matches effective value"
	d.DecidedBy = top.layer
	return d
}

// evaluateListMembership: every requested item must appear in every layer's
// allow-list. An empty list is deny-all.
func evaluateListMembership(d Decision, apply []layerValue) Decision {
	effective := intersectLists(apply)
	d.Effective = policy.ListValue(effective)

	allowed := make(map[string]bool, len(effective))
	for _, item := range effective {
		allowed[item] = true
	}
	for _, want := range d.Requested.List {
		if allowed[want] {
			continue
		}
		d.Reason = fmt.Sprintf("%q not in effective allow-list", want)
		for _, a := range apply {
			if !listContains(a.value.List, want) {
				if d.DecidedBy == "" {
					d.DecidedBy = a.layer
				}
				d.AlsoDeniedBy = append(d.AlsoDeniedBy, a.layer)
			}
		}
		if d.DecidedBy == "" {
			d.DecidedBy = apply[0].layer
			d.AlsoDeniedBy = []policy.Layer{apply[0].layer}
		}
		return d
	}
	d.Allowed = true
	d.Reason = "all requested items in effective allow-list"
	d.DecidedBy = apply[len(apply)-1].layer
	return d
}

func intersectLists(apply []layerValue) []string {
	var out []string
	for i, a := range apply {
		if a.value.Kind != policy.KindList {
			return nil
		}
		if i == 0 {
			out = append([]string(nil), a.value.List...)
			continue
		}
		var next []string
		for _, item := range out {
			if listContains(a.value.List, item) {
				next = append(next, item)
			}
		}
		out = next
	}
	sort.Strings(out)
	return out
}

func listContains(l []string, item string) bool {
	for _, x := range l {
		if x == item {
			return true
		}
	}
	return false
}

// approvalsFor inspects a layer for approval requirements attached to the
// capability's root: derivations and egress carry approval gates.
func approvalsFor(p *policy.CanonicalPolicy, domain, capability string) []Approval {
	var out []Approval
	switch domain {
	case policy.DomainDerivations:
		root := capability
		if i := strings.IndexByte(capability, '.'); i >= 0 {
			root = capability[:i]
		}
		if dp, ok := p.Derivations[root]; ok && dp.RequireApproval {
			out = append(out, ApprovalHuman)
			if root == policy.DeriveCapFullDecryption {
				out = append(out, ApprovalHardwareKey)
			}
		}
	case policy.DomainEgress:
		if p.Egress.RequireApproval {
			out = append(out, ApprovalHuman)
		}
	}
	return out
}

func mergeApprovals(have, add []Approval) []Approval {
	for _, a := range add {
		found := false
		for _, h := range have {
			if h == a {
				found = true
				break
			}
		}
		if !found {
			have = append(have, a)
		}
	}
	return have
}

func highestLayer(ordered []policy.CanonicalPolicy) policy.Layer {
	if len(ordered) == 0 {
		return policy.LayerLocal
	}
	return ordered[len(ordered)-1].Layer
}
