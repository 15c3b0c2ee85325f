package policy

// CalculateRiskTier derives the risk tier from policy content. The tier is
// never independently settable: it is always recomputed from the union of
// enabled high-risk derivations and channels.
func CalculateRiskTier(p *CanonicalPolicy) RiskTier {
	tier := RiskLow
	for key := range p.Entries() {
		tier = maxTier(tier, entryRisk(p, key))
	}
	return tier
}

// entryRisk classifies the risk a single flattened entry ("domain/capability")
// contributes given its current value.
func entryRisk(p *CanonicalPolicy, key string) RiskTier {
	domain, cap := splitEntryKey(key)
	switch domain {
	case DomainDerivations:
		name := capabilityRoot(cap)
		d, ok := p.Derivations[name]
		if !ok || !d.Enabled {
			return RiskLow
		}
		switch name {
		case DeriveCapFullDecryption:
			return RiskHigh
		case DeriveCapPlainText:
			return RiskMedium
		default:
			return RiskLow
		}
	case DomainChannels:
		name := capabilityRoot(cap)
		ch, ok := p.Channels[name]
		if !ok || !ch.Enabled {
			return RiskLow
		}
		if ch.RequiredAttestation == AttestationNone {
			return RiskHigh
		}
		return RiskMedium
	case DomainEgress:
		if !p.Egress.RequireEncryption && len(p.Egress.AllowedChannels) > 0 {
			return RiskMedium
		}
		return RiskLow
	default:
		return RiskLow
	}
}

// Lockdown is the panic-button operation for incident response: it returns a
// new policy version with every approval-gated capability forcibly disabled.
// The input is unchanged.
func Lockdown(p *CanonicalPolicy) CanonicalPolicy {
	out := p.Clone()
	out.Version = p.Version + 1

	for name, d := range out.Derivations {
		if d.RequireApproval {
			d.Enabled = false
			out.Derivations[name] = d
		}
	}
	if out.Egress.RequireApproval {
		out.Egress.AllowedDestinations = nil
		out.Egress.AllowedCategories = nil
		out.Egress.AllowedChannels = nil
	}
	for name, ch := range out.Channels {
		if ch.RequiredAttestation == AttestationNone {
			ch.Enabled = false
			out.Channels[name] = ch
		}
	}
	return out
}

func maxTier(a, b RiskTier) RiskTier {
	if tierRank(b) > tierRank(a) {
		return b
	}
	return a
}

func tierRank(t RiskTier) int {
	switch t {
	case RiskHigh:
		return 2
	case RiskMedium:
		return 1
	default:
		return 0
	}
}

func splitEntryKey(key string) (domain, capability string) {
	for i := 0; i < len(key); i++ {
		if key[i] == '/' {
			return key[:i], key[i+1:]
		}
	}
	return key, ""
}

func capabilityRoot(capability string) string {
	for i := 0; i < len(capability); i++ {
		if capability[i] == '.' {
			return capability[:i]
		}
	}
	return capability
}
