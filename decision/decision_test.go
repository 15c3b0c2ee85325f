package decision

import (
	"strings"
	"testing"

	"beap.dev/beap/policy"
)

func layerPolicy(t *testing.T, layer policy.Layer, template policy.Template) policy.CanonicalPolicy {
	t.Helper()
	p, err := policy.NewDefaultPolicy(layer, template)
	if err != nil {
		t.Fatalf("NewDefaultPolicy(%s, %s): %v", layer, template, err)
	}
	return p
}

func TestEvaluate_EmptyStackDenies(t *testing.T) {
	d := Evaluate(nil, policy.DomainChannels, "emailBridge.enabled", policy.BoolValue(true))
	if d.Allowed {
		t.Fatal("empty stack must deny")
	}
	if len(d.AlsoDeniedBy) == 0 {
		t.Fatal("denial must carry at least one denying layer")
	}
}

func TestEvaluate_UndefinedCapabilityDenies(t *testing.T) {
	local := layerPolicy(t, policy.LayerLocal, policy.TemplateStandard)
	d := Evaluate([]policy.CanonicalPolicy{local}, policy.DomainChannels, "carrierPigeon.enabled", policy.BoolValue(true))
	if d.Allowed {
		t.Fatal("undefined capability must deny")
	}
	if d.DecidedBy != policy.LayerLocal {
		t.Fatalf("DecidedBy = %q, want local", d.DecidedBy)
	}
	if !strings.Contains(d.Reason, "default deny") {
		t.Fatalf("reason %q should state the default-deny posture", d.Reason)
	}
}

func TestEvaluate_BoolIntersection(t *testing.T) {
	local := layerPolicy(t, policy.LayerLocal, policy.TemplatePermissive)
	admin := layerPolicy(t, policy.LayerAdmin, policy.TemplateRestrictive)

	// Permissive local enables emailBridge; restrictive admin disables it.
	// Intersection denies, attributed to admin.
	d := Evaluate([]policy.CanonicalPolicy{local, admin}, policy.DomainChannels, "emailBridge.enabled", policy.BoolValue(true))
	if d.Allowed {
		t.Fatal("admin disable must deny despite local enable")
	}
	if d.DecidedBy != policy.LayerAdmin {
		t.Fatalf("DecidedBy = %q, want admin", d.DecidedBy)
	}
	if d.Effective.Kind != policy.KindBool || d.Effective.Bool {
		t.Fatalf("effective = %+v, want bool false", d.Effective)
	}

	// Both enable fileDrop: allowed, decided by the admin-most layer.
	d = Evaluate([]policy.CanonicalPolicy{local, admin}, policy.DomainChannels, "fileDrop.enabled", policy.BoolValue(true))
	if !d.Allowed {
		t.Fatalf("both layers enable fileDrop, got deny: %s", d.Reason)
	}
	if d.DecidedBy != policy.LayerAdmin {
		t.Fatalf("DecidedBy = %q, want admin", d.DecidedBy)
	}
}

func TestEvaluate_AllDenyingLayersRecorded(t *testing.T) {
	local := layerPolicy(t, policy.LayerLocal, policy.TemplateRestrictive)
	network := layerPolicy(t, policy.LayerNetwork, policy.TemplateRestrictive)
	admin := layerPolicy(t, policy.LayerAdmin, policy.TemplatePermissive)

	d := Evaluate([]policy.CanonicalPolicy{admin, network, local}, policy.DomainChannels, "clipboard.enabled", policy.BoolValue(true))
	if d.Allowed {
		t.Fatal("two restrictive layers disable clipboard; must deny")
	}
	if d.DecidedBy != policy.LayerLocal {
		t.Fatalf("first denying layer should be local, got %q", d.DecidedBy)
	}
	if len(d.AlsoDeniedBy) != 2 {
		t.Fatalf("AlsoDeniedBy = %v, want local and network", d.AlsoDeniedBy)
	}
}

func TestEvaluate_NumericCapTakesMinimum(t *testing.T) {
	local := layerPolicy(t, policy.LayerLocal, policy.TemplatePermissive) // 32 MiB emailBridge cap
	admin := layerPolicy(t, policy.LayerAdmin, policy.TemplateStandard)   // 8 MiB emailBridge cap
	stack := []policy.CanonicalPolicy{local, admin}

	d := Evaluate(stack, policy.DomainChannels, "emailBridge.maxPayloadBytes", policy.IntValue(4<<20))
	if !d.Allowed {
		t.Fatalf("4 MiB under 8 MiB min cap, got deny: %s", d.Reason)
	}
	if d.Effective.Int != 8<<20 {
		t.Fatalf("effective cap = %d, want %d", d.Effective.Int, int64(8<<20))
	}

	d = Evaluate(stack, policy.DomainChannels, "emailBridge.maxPayloadBytes", policy.IntValue(16<<20))
	if d.Allowed {
		t.Fatal("16 MiB exceeds the 8 MiB minimum cap; must deny")
	}
	if d.DecidedBy != policy.LayerAdmin {
		t.Fatalf("denial should attribute the layer holding the minimum, got %q", d.DecidedBy)
	}
}

func TestEvaluate_LooserAdminCannotRaiseLocalCap(t *testing.T) {
	local := layerPolicy(t, policy.LayerLocal, policy.TemplateRestrictive) // 1 MiB emailBridge cap
	admin := layerPolicy(t, policy.LayerAdmin, policy.TemplatePermissive)  // 32 MiB emailBridge cap

	d := Evaluate([]policy.CanonicalPolicy{local, admin}, policy.DomainChannels, "emailBridge.maxPayloadBytes", policy.IntValue(2<<20))
	if d.Allowed {
		t.Fatal("local 1 MiB cap must hold against permissive admin")
	}
	if d.DecidedBy != policy.LayerLocal {
		t.Fatalf("DecidedBy = %q, want local", d.DecidedBy)
	}
}

func TestEvaluate_AttestationIntersectsToStrictest(t *testing.T) {
	local := layerPolicy(t, policy.LayerLocal, policy.TemplatePermissive) // none
	admin := layerPolicy(t, policy.LayerAdmin, policy.TemplateStandard)   // signed
	stack := []policy.CanonicalPolicy{local, admin}

	d := Evaluate(stack, policy.DomainChannels, "emailBridge.requiredAttestation", policy.EnumValue(string(policy.AttestationNone)))
	if d.Allowed {
		t.Fatal("unattested sender must not meet the signed requirement")
	}
	if d.Effective.Enum != string(policy.AttestationSigned) {
		t.Fatalf("effective attestation = %q, want signed", d.Effective.Enum)
	}

	d = Evaluate(stack, policy.DomainChannels, "emailBridge.requiredAttestation", policy.EnumValue(string(policy.AttestationHandshake)))
	if !d.Allowed {
		t.Fatalf("handshake exceeds signed requirement, got deny: %s", d.Reason)
	}
}

func TestEvaluate_ListMembershipIntersects(t *testing.T) {
	local := layerPolicy(t, policy.LayerLocal, policy.TemplatePermissive) // email, messenger, download, clipboard
	admin := layerPolicy(t, policy.LayerAdmin, policy.TemplateStandard)   // email, messenger, download
	stack := []policy.CanonicalPolicy{local, admin}

	d := Evaluate(stack, policy.DomainEgress, "allowedChannels", policy.ListValue([]string{"email"}))
	if !d.Allowed {
		t.Fatalf("email in both allow-lists, got deny: %s", d.Reason)
	}

	d = Evaluate(stack, policy.DomainEgress, "allowedChannels", policy.ListValue([]string{"clipboard"}))
	if d.Allowed {
		t.Fatal("clipboard is absent from the admin allow-list; must deny")
	}
	if d.DecidedBy != policy.LayerAdmin {
		t.Fatalf("DecidedBy = %q, want admin", d.DecidedBy)
	}
}

func TestEvaluate_EmptyAllowListDeniesAll(t *testing.T) {
	restrictive := layerPolicy(t, policy.LayerLocal, policy.TemplateRestrictive)

	d := Evaluate([]policy.CanonicalPolicy{restrictive}, policy.DomainEgress, "allowedChannels", policy.ListValue([]string{"email"}))
	if d.Allowed {
		t.Fatal("empty allow-list must deny every destination")
	}
}

func TestEvaluate_ApprovalGatesSurface(t *testing.T) {
	standard := layerPolicy(t, policy.LayerLocal, policy.TemplateStandard)

	d := Evaluate([]policy.CanonicalPolicy{standard}, policy.DomainDerivations, "deriveFullDecryption.enabled", policy.BoolValue(true))
	if d.Allowed {
		t.Fatal("deriveFullDecryption is disabled in every template")
	}
	wantApprovals := map[Approval]bool{ApprovalHuman: false, ApprovalHardwareKey: false}
	for _, a := range d.RequiredApprovals {
		if _, ok := wantApprovals[a]; ok {
			wantApprovals[a] = true
		}
	}
	for a, seen := range wantApprovals {
		if !seen {
			t.Fatalf("required approvals %v missing %q", d.RequiredApprovals, a)
		}
	}
}

func TestEvaluate_DecliningBoolAlwaysAllowed(t *testing.T) {
	restrictive := layerPolicy(t, policy.LayerLocal, policy.TemplateRestrictive)

	d := Evaluate([]policy.CanonicalPolicy{restrictive}, policy.DomainChannels, "emailBridge.enabled", policy.BoolValue(false))
	if !d.Allowed {
		t.Fatalf("declining a capability must be allowed, got: %s", d.Reason)
	}
}
