package policy

import (
	"reflect"
	"sort"
)

// RiskImpact is the direction a single entry change moves the risk tier.
type RiskImpact string

const (
	RiskIncrease RiskImpact = "increase"
	RiskDecrease RiskImpact = "decrease"
	RiskNeutral  RiskImpact = "neutral"
)

// DiffEntry records one changed capability entry between two policies.
type DiffEntry struct {
	Key        string     // "domain/capability"
	Old        *Value     // nil when added
	New        *Value     // nil when removed
	RiskImpact RiskImpact
}

// PolicyDiff is the full change set between two policies.
type PolicyDiff struct {
	Added    []DiffEntry
	Removed  []DiffEntry
	Modified []DiffEntry
}

// Diff compares two policies entry-by-entry.
//
// Risk impact per entry is computed by comparing the risk each policy carries
// restricted to that entry alone, not the whole-policy tiers: enabling one
// risky derivation is an increase even if the overall tier was already high.
func Diff(old, new *CanonicalPolicy) PolicyDiff {
	oldEntries := old.Entries()
	newEntries := new.Entries()

	keys := make(map[string]struct{}, len(oldEntries)+len(newEntries))
	for k := range oldEntries {
		keys[k] = struct{}{}
	}
	for k := range newEntries {
		keys[k] = struct{}{}
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	var diff PolicyDiff
	for _, k := range sorted {
		ov, oldOK := oldEntries[k]
		nv, newOK := newEntries[k]
		switch {
		case !oldOK:
			v := nv
			diff.Added = append(diff.Added, DiffEntry{
				Key:        k,
				New:        &v,
				RiskImpact: impactBetween(RiskLow, entryRisk(new, k)),
			})
		case !newOK:
			v := ov
			diff.Removed = append(diff.Removed, DiffEntry{
				Key:        k,
				Old:        &v,
				RiskImpact: impactBetween(entryRisk(old, k), RiskLow),
			})
		case !equalValues(ov, nv):
			o, n := ov, nv
			diff.Modified = append(diff.Modified, DiffEntry{
				Key:        k,
				Old:        &o,
				New:        &n,
				RiskImpact: impactBetween(entryRisk(old, k), entryRisk(new, k)),
			})
		}
	}
	return diff
}

// Empty reports whether the diff carries no changes.
func (d PolicyDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Modified) == 0
}

func impactBetween(old, new RiskTier) RiskImpact {
	switch {
	case tierRank(new) > tierRank(old):
		return RiskIncrease
	case tierRank(new) < tierRank(old):
		return RiskDecrease
	default:
		return RiskNeutral
	}
}

func equalValues(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindBool:
		return a.Bool == b.Bool
	case KindInt:
		return a.Int == b.Int
	case KindEnum:
		return a.Enum == b.Enum
	case KindList:
		return reflect.DeepEqual(normalizeList(a.List), normalizeList(b.List))
	default:
		return false
	}
}

func normalizeList(l []string) []string {
	if len(l) == 0 {
		return nil
	}
	return l
}
