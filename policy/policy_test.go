package policy

import (
	"bytes"
	"testing"
)

func mustPolicy(t *testing.T, layer Layer, template Template) CanonicalPolicy {
	t.Helper()
	p, err := NewDefaultPolicy(layer, template)
	if err != nil {
		t.Fatalf("NewDefaultPolicy(%s, %s): %v", layer, template, err)
	}
	return p
}

func TestNewDefaultPolicy_AllTemplatesValidate(t *testing.T) {
	for _, template := range []Template{TemplateRestrictive, TemplateStandard, TemplatePermissive} {
		for _, layer := range []Layer{LayerLocal, LayerNetwork, LayerAdmin} {
			p := mustPolicy(t, layer, template)
			if r := Validate(&p); !r.OK {
				t.Errorf("%s/%s: expected valid policy, got %+v", layer, template, r.Violations)
			}
		}
	}
}

func TestNewDefaultPolicy_FullDecryptionNeverEnabled(t *testing.T) {
	for _, template := range []Template{TemplateRestrictive, TemplateStandard, TemplatePermissive} {
		p := mustPolicy(t, LayerLocal, template)
		d, ok := p.Derivations[DeriveCapFullDecryption]
		if !ok {
			t.Fatalf("%s: missing deriveFullDecryption entry", template)
		}
		if d.Enabled {
			t.Errorf("%s: deriveFullDecryption enabled by default", template)
		}
		if !d.RequireApproval {
			t.Errorf("%s: deriveFullDecryption not approval-gated", template)
		}
	}
}

func TestNewDefaultPolicy_RestrictiveDisablesEmailBridge(t *testing.T) {
	p := mustPolicy(t, LayerLocal, TemplateRestrictive)
	if p.Channels[ChannelEmailBridge].Enabled {
		t.Fatalf("restrictive template must disable emailBridge")
	}
}

func TestValidate_RejectsNegativeUsageCap(t *testing.T) {
	p := mustPolicy(t, LayerLocal, TemplateStandard)
	d := p.Derivations[DeriveCapPlainText]
	d.MaxUsesPerPackage = -1
	p.Derivations[DeriveCapPlainText] = d

	r := Validate(&p)
	if r.OK {
		t.Fatalf("expected validation failure")
	}
	found := false
	for _, v := range r.Violations {
		if v.RuleID == "POL-VAL-302" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected POL-VAL-302, got %+v", r.Violations)
	}
}

func TestValidate_RejectsFullDecryptionWithoutApproval(t *testing.T) {
	p := mustPolicy(t, LayerLocal, TemplatePermissive)
	d := p.Derivations[DeriveCapFullDecryption]
	d.Enabled = true
	d.RequireApproval = false
	p.Derivations[DeriveCapFullDecryption] = d

	r := Validate(&p)
	if r.OK {
		t.Fatalf("expected validation failure")
	}
	found := false
	for _, v := range r.Violations {
		if v.RuleID == "POL-VAL-303" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected POL-VAL-303, got %+v", r.Violations)
	}
}

func TestValidate_RejectsMissingDomain(t *testing.T) {
	p := mustPolicy(t, LayerLocal, TemplateStandard)
	p.Derivations = nil
	if r := Validate(&p); r.OK {
		t.Fatalf("expected validation failure for missing derivations domain")
	}
}

func TestSerialize_Deterministic(t *testing.T) {
	p := mustPolicy(t, LayerNetwork, TemplateStandard)
	a, err := Serialize(&p)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	b, err := Serialize(&p)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("expected identical serializations")
	}
}

func TestHash_RoundTripStable(t *testing.T) {
	for _, template := range []Template{TemplateRestrictive, TemplateStandard, TemplatePermissive} {
		p := mustPolicy(t, LayerAdmin, template)
		h1, err := Hash(&p)
		if err != nil {
			t.Fatalf("Hash: %v", err)
		}

		b, err := Serialize(&p)
		if err != nil {
			t.Fatalf("Serialize: %v", err)
		}
		q, err := Deserialize(b)
		if err != nil {
			t.Fatalf("Deserialize: %v", err)
		}
		h2, err := Hash(&q)
		if err != nil {
			t.Fatalf("Hash (round trip): %v", err)
		}
		if h1 != h2 {
			t.Fatalf("%s: hash not stable across round trip: %s != %s", template, h1, h2)
		}
	}
}

func TestCapability_Addressing(t *testing.T) {
	p := mustPolicy(t, LayerLocal, TemplateStandard)

	v, ok := p.Capability(DomainChannels, "emailBridge.enabled")
	if !ok || v.Kind != KindBool || !v.Bool {
		t.Fatalf("emailBridge.enabled: got %+v ok=%v", v, ok)
	}

	v, ok = p.Capability(DomainDerivations, "deriveFullDecryption.requireApproval")
	if !ok || v.Kind != KindBool || !v.Bool {
		t.Fatalf("deriveFullDecryption.requireApproval: got %+v ok=%v", v, ok)
	}

	v, ok = p.Capability(DomainPreVerification, "maxPayloadBytes")
	if !ok || v.Kind != KindInt || v.Int != 16<<20 {
		t.Fatalf("preVerification maxPayloadBytes: got %+v ok=%v", v, ok)
	}

	if _, ok := p.Capability(DomainChannels, "carrierPigeon.enabled"); ok {
		t.Fatalf("expected missing capability for unknown channel")
	}
}

func TestClone_DoesNotAlias(t *testing.T) {
	p := mustPolicy(t, LayerLocal, TemplateStandard)
	q := p.Clone()

	ch := q.Channels[ChannelEmailBridge]
	ch.Enabled = false
	q.Channels[ChannelEmailBridge] = ch

	if !p.Channels[ChannelEmailBridge].Enabled {
		t.Fatalf("mutation of clone leaked into original")
	}
}
