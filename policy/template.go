package policy

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Template names the hand-tuned starting points for a policy layer.
type Template string

const (
	TemplateRestrictive Template = "restrictive"
	TemplateStandard    Template = "standard"
	TemplatePermissive  Template = "permissive"
)

// NewDefaultPolicy produces a fully-populated, internally consistent policy
// from one of the named templates.
//
// Regardless of template, deriveFullDecryption starts disabled and
// approval-gated: no template hands out full decryption by default.
func NewDefaultPolicy(layer Layer, template Template) (CanonicalPolicy, error) {
	switch layer {
	case LayerLocal, LayerNetwork, LayerAdmin:
	default:
		return CanonicalPolicy{}, fmt.Errorf("policy: unknown layer %q", layer)
	}

	p := CanonicalPolicy{
		ID:        uuid.NewString(),
		Version:   1,
		Layer:     layer,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}

	switch template {
	case TemplateRestrictive:
		p.Channels = map[string]ChannelPolicy{
			ChannelEmailBridge: {
				Enabled:                     false,
				RequiredAttestation:         AttestationHandshake,
				MaxPackagesPerSenderPerHour: 5,
				MaxPayloadBytes:             1 << 20,
			},
			ChannelMessengerPaste: {
				Enabled:                     false,
				RequiredAttestation:         AttestationHandshake,
				MaxPackagesPerSenderPerHour: 5,
				MaxPayloadBytes:             1 << 20,
			},
			ChannelFileDrop: {
				Enabled:                     true,
				RequiredAttestation:         AttestationHandshake,
				MaxPackagesPerSenderPerHour: 10,
				MaxPayloadBytes:             4 << 20,
			},
			ChannelClipboard: {
				Enabled:                     false,
				RequiredAttestation:         AttestationHandshake,
				MaxPackagesPerSenderPerHour: 5,
				MaxPayloadBytes:             256 << 10,
			},
		}
		p.PreVerification = PreVerificationPolicy{
			MaxPayloadBytes: 4 << 20,
			MaxPendingItems: 50,
			OnOversize:      BehaviorReject,
			OnRateLimit:     BehaviorReject,
			OnUnknownFormat: BehaviorReject,
		}
		p.Derivations = map[string]DerivationPolicy{
			DeriveCapPlainText:      {Enabled: false, RequireApproval: true, MaxUsesPerPackage: 1, AuditAlways: true},
			DeriveCapMetadata:       {Enabled: true, RequireApproval: true, MaxUsesPerPackage: 3, AuditAlways: true},
			DeriveCapPreviewImage:   {Enabled: false, RequireApproval: true, MaxUsesPerPackage: 1, AuditAlways: true},
			DeriveCapFullDecryption: {Enabled: false, RequireApproval: true, MaxUsesPerPackage: 1, AuditAlways: true},
		}
		p.Egress = EgressPolicy{
			RequireApproval:   true,
			RequireEncryption: true,
		}

	case TemplateStandard:
		p.Channels = map[string]ChannelPolicy{
			ChannelEmailBridge: {
				Enabled:                     true,
				RequiredAttestation:         AttestationSigned,
				MaxPackagesPerSenderPerHour: 20,
				MaxPayloadBytes:             8 << 20,
			},
			ChannelMessengerPaste: {
				Enabled:                     true,
				RequiredAttestation:         AttestationSigned,
				MaxPackagesPerSenderPerHour: 20,
				MaxPayloadBytes:             2 << 20,
			},
			ChannelFileDrop: {
				Enabled:                     true,
				RequiredAttestation:         AttestationSigned,
				MaxPackagesPerSenderPerHour: 50,
				MaxPayloadBytes:             16 << 20,
			},
			ChannelClipboard: {
				Enabled:                     false,
				RequiredAttestation:         AttestationSigned,
				MaxPackagesPerSenderPerHour: 10,
				MaxPayloadBytes:             512 << 10,
			},
		}
		p.PreVerification = PreVerificationPolicy{
			MaxPayloadBytes: 16 << 20,
			MaxPendingItems: 200,
			OnOversize:      BehaviorReject,
			OnRateLimit:     BehaviorQueue,
			OnUnknownFormat: BehaviorQuarantine,
		}
		p.Derivations = map[string]DerivationPolicy{
			DeriveCapPlainText:      {Enabled: true, RequireApproval: false, MaxUsesPerPackage: 10, AuditAlways: true},
			DeriveCapMetadata:       {Enabled: true, RequireApproval: false, MaxUsesPerPackage: 20, AuditAlways: false},
			DeriveCapPreviewImage:   {Enabled: true, RequireApproval: false, MaxUsesPerPackage: 5, AuditAlways: false},
			DeriveCapFullDecryption: {Enabled: false, RequireApproval: true, MaxUsesPerPackage: 1, AuditAlways: true},
		}
		p.Egress = EgressPolicy{
			AllowedChannels:   []string{"email", "messenger", "download"},
			RequireApproval:   false,
			RequireEncryption: true,
		}

	case TemplatePermissive:
		p.Channels = map[string]ChannelPolicy{
			ChannelEmailBridge: {
				Enabled:                     true,
				RequiredAttestation:         AttestationNone,
				MaxPackagesPerSenderPerHour: 100,
				MaxPayloadBytes:             32 << 20,
			},
			ChannelMessengerPaste: {
				Enabled:                     true,
				RequiredAttestation:         AttestationNone,
				MaxPackagesPerSenderPerHour: 100,
				MaxPayloadBytes:             8 << 20,
			},
			ChannelFileDrop: {
				Enabled:                     true,
				RequiredAttestation:         AttestationNone,
				MaxPackagesPerSenderPerHour: 200,
				MaxPayloadBytes:             64 << 20,
			},
			ChannelClipboard: {
				Enabled:                     true,
				RequiredAttestation:         AttestationNone,
				MaxPackagesPerSenderPerHour: 50,
				MaxPayloadBytes:             1 << 20,
			},
		}
		p.PreVerification = PreVerificationPolicy{
			MaxPayloadBytes: 64 << 20,
			MaxPendingItems: 1000,
			OnOversize:      BehaviorQuarantine,
			OnRateLimit:     BehaviorQueue,
			OnUnknownFormat: BehaviorQueue,
		}
		p.Derivations = map[string]DerivationPolicy{
			DeriveCapPlainText:      {Enabled: true, RequireApproval: false, MaxUsesPerPackage: 100, AuditAlways: false},
			DeriveCapMetadata:       {Enabled: true, RequireApproval: false, MaxUsesPerPackage: 100, AuditAlways: false},
			DeriveCapPreviewImage:   {Enabled: true, RequireApproval: false, MaxUsesPerPackage: 100, AuditAlways: false},
			DeriveCapFullDecryption: {Enabled: false, RequireApproval: true, MaxUsesPerPackage: 1, AuditAlways: true},
		}
		p.Egress = EgressPolicy{
			AllowedChannels:   []string{"email", "messenger", "download", "clipboard"},
			RequireApproval:   false,
			RequireEncryption: false,
		}

	default:
		return CanonicalPolicy{}, fmt.Errorf("policy: unknown template %q", template)
	}

	return p, nil
}
