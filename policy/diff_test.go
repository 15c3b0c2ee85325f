package policy

import "testing"

func TestDiff_EmptyForIdenticalPolicies(t *testing.T) {
	p := mustPolicy(t, LayerLocal, TemplateStandard)
	q := p.Clone()
	if d := Diff(&p, &q); !d.Empty() {
		t.Fatalf("expected empty diff, got %+v", d)
	}
}

func TestDiff_ModifiedWithRiskIncrease(t *testing.T) {
	old := mustPolicy(t, LayerLocal, TemplateStandard)
	new := old.Clone()
	d := new.Derivations[DeriveCapFullDecryption]
	d.Enabled = true
	new.Derivations[DeriveCapFullDecryption] = d

	diff := Diff(&old, &new)
	if len(diff.Modified) != 1 {
		t.Fatalf("expected one modified entry, got %+v", diff)
	}
	entry := diff.Modified[0]
	if entry.Key != "derivations/deriveFullDecryption.enabled" {
		t.Fatalf("unexpected key %q", entry.Key)
	}
	if entry.RiskImpact != RiskIncrease {
		t.Fatalf("expected risk increase, got %s", entry.RiskImpact)
	}
}

func TestDiff_ModifiedWithRiskDecrease(t *testing.T) {
	old := mustPolicy(t, LayerLocal, TemplatePermissive)
	new := old.Clone()
	ch := new.Channels[ChannelClipboard]
	ch.Enabled = false
	new.Channels[ChannelClipboard] = ch

	diff := Diff(&old, &new)
	var found *DiffEntry
	for i := range diff.Modified {
		if diff.Modified[i].Key == "channels/clipboard.enabled" {
			found = &diff.Modified[i]
		}
	}
	if found == nil {
		t.Fatalf("expected clipboard.enabled change, got %+v", diff)
	}
	if found.RiskImpact != RiskDecrease {
		t.Fatalf("expected risk decrease, got %s", found.RiskImpact)
	}
}

func TestDiff_AddedAndRemovedEntries(t *testing.T) {
	old := mustPolicy(t, LayerLocal, TemplateStandard)
	new := old.Clone()
	delete(new.Channels, ChannelClipboard)
	new.Derivations["deriveSummary"] = DerivationPolicy{Enabled: true, MaxUsesPerPackage: 5}

	diff := Diff(&old, &new)
	if len(diff.Removed) == 0 {
		t.Fatalf("expected removed entries for deleted channel")
	}
	if len(diff.Added) == 0 {
		t.Fatalf("expected added entries for new derivation")
	}

	// Numeric cap change is risk-neutral.
	old2 := mustPolicy(t, LayerLocal, TemplateStandard)
	new2 := old2.Clone()
	ch := new2.Channels[ChannelEmailBridge]
	ch.MaxPackagesPerSenderPerHour = 5
	new2.Channels[ChannelEmailBridge] = ch
	d2 := Diff(&old2, &new2)
	if len(d2.Modified) != 1 || d2.Modified[0].RiskImpact != RiskNeutral {
		t.Fatalf("expected one neutral modification, got %+v", d2.Modified)
	}
}
