package admin

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"beap.dev/beap/keys"
	"beap.dev/beap/policy"
)

// ApplyResult is the structured outcome of an apply or rollback. Failures
// leave the previously active policy untouched.
type ApplyResult struct {
	Success       bool   `json:"success"`
	PackageID     string `json:"packageId,omitempty"`
	PolicyID      string `json:"policyId,omitempty"`
	PolicyVersion int64  `json:"policyVersion,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Distributor owns the package/node registry and the active network policy.
//
// Applies serialize on an internal mutex: two concurrent applies are safe and
// the last one determines final state, with no merge. All persistence goes
// through the injected Store.
type Distributor struct {
	store    Store
	verifier keys.Verifier

	applyMu sync.Mutex // serializes apply/rollback
	now     func() time.Time
}

// NewDistributor builds a distributor over store. Signature checks on apply
// use verifier; pass keys.PublicVerifier{} for the default scheme.
func NewDistributor(store Store, verifier keys.Verifier) *Distributor {
	return &Distributor{
		store:    store,
		verifier: verifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create builds and persists a new package for p.
func (d *Distributor) Create(p *policy.CanonicalPolicy, targets TargetSelectors, meta PackageMetadata) (*AdminPolicyPackage, error) {
	pkg, err := CreatePackage(p, targets, meta)
	if err != nil {
		return nil, err
	}
	if err := d.store.SavePackage(pkg); err != nil {
		return nil, wrapError(KindInternal, "ADM-CRT-001", "persist admin package", err)
	}
	return pkg, nil
}

// Sign signs a stored package in place and persists the updated record.
func (d *Distributor) Sign(packageID string, signer keys.Signer) error {
	pkg, ok, err := d.store.GetPackage(packageID)
	if err != nil {
		return wrapError(KindInternal, "ADM-SGN-001", "load admin package", err)
	}
	if !ok {
		return newError(KindNotFound, "ADM-SGN-002", fmt.Sprintf("no package %q", packageID))
	}
	if err := SignPackage(pkg, signer); err != nil {
		return err
	}
	if err := d.store.SavePackage(pkg); err != nil {
		return wrapError(KindInternal, "ADM-SGN-003", "persist signed package", err)
	}
	return nil
}

// Verify checks a stored package's hash anchor and signature.
func (d *Distributor) Verify(packageID string) error {
	pkg, ok, err := d.store.GetPackage(packageID)
	if err != nil {
		return wrapError(KindInternal, "ADM-VFY-001", "load admin package", err)
	}
	if !ok {
		return newError(KindNotFound, "ADM-VFY-002", fmt.Sprintf("no package %q", packageID))
	}
	return VerifyPackage(pkg, d.verifier)
}

// Apply makes the package's policy the active network policy.
//
// The payload hash is re-verified immediately before the swap: a tampered
// payload yields Success=false with no state change of any kind. The swap
// itself is a single atomic store followed by one history append.
func (d *Distributor) Apply(packageID string) ApplyResult {
	return d.applyLocked(packageID, false)
}

// RollbackToPackage re-applies a historical package. Forward-apply only; the
// history keeps growing and nothing is undone destructively.
func (d *Distributor) RollbackToPackage(packageID string) ApplyResult {
	return d.applyLocked(packageID, true)
}

func (d *Distributor) applyLocked(packageID string, rollback bool) ApplyResult {
	d.applyMu.Lock()
	defer d.applyMu.Unlock()

	pkg, ok, err := d.store.GetPackage(packageID)
	if err != nil {
		return ApplyResult{Error: fmt.Sprintf("load package: %v", err)}
	}
	if !ok {
		return ApplyResult{Error: fmt.Sprintf("no package %q", packageID)}
	}
	if err := VerifyPackage(pkg, d.verifier); err != nil {
		if IsKind(err, KindIntegrity) {
			return ApplyResult{PackageID: packageID, Error: "Hash verification failed"}
		}
		return ApplyResult{PackageID: packageID, Error: err.Error()}
	}

	p, err := policy.Deserialize(pkg.PolicyPayload)
	if err != nil {
		return ApplyResult{PackageID: packageID, Error: fmt.Sprintf("decode policy payload: %v", err)}
	}
	if res := policy.Validate(&p); !res.OK {
		return ApplyResult{PackageID: packageID, Error: fmt.Sprintf("policy payload does not validate: %s", res.Violations[0].Message)}
	}

	if err := d.store.SetActivePolicy(&p, pkg.ID); err != nil {
		return ApplyResult{PackageID: packageID, Error: fmt.Sprintf("swap active policy: %v", err)}
	}
	rec := ApplyRecord{
		PackageID:     pkg.ID,
		PolicyID:      p.ID,
		PolicyVersion: p.Version,
		AppliedAt:     d.now(),
		Rollback:      rollback,
	}
	if err := d.store.AppendHistory(rec); err != nil {
		return ApplyResult{PackageID: packageID, Error: fmt.Sprintf("append history: %v", err)}
	}
	return ApplyResult{
		Success:       true,
		PackageID:     pkg.ID,
		PolicyID:      p.ID,
		PolicyVersion: p.Version,
	}
}

// ActivePolicy returns the currently applied policy, the package that carried
// it, and whether any policy has been applied yet.
func (d *Distributor) ActivePolicy() (*policy.CanonicalPolicy, string, bool, error) {
	return d.store.ActivePolicy()
}

// History returns the append-only apply log, oldest first.
func (d *Distributor) History() ([]ApplyRecord, error) {
	return d.store.History()
}

// RegisterNode upserts a node. Re-registration refreshes Groups and LastSeen
// but preserves accumulated sync state.
func (d *Distributor) RegisterNode(id string, groups []string) (*PolicyNode, error) {
	if id == "" {
		return nil, newError(KindValidation, "ADM-NOD-001", "node id must not be empty")
	}
	n, ok, err := d.store.GetNode(id)
	if err != nil {
		return nil, wrapError(KindInternal, "ADM-NOD-002", "load node", err)
	}
	if !ok {
		n = &PolicyNode{
			ID:   id,
			Sync: SyncStatus{Status: SyncPending},
		}
	}
	n.Groups = append([]string(nil), groups...)
	n.LastSeen = d.now()
	if err := d.store.SaveNode(n); err != nil {
		return nil, wrapError(KindInternal, "ADM-NOD-003", "persist node", err)
	}
	return n, nil
}

// GetPendingPackagesForNode selects the packages the node still has to apply:
// targeted at it, inside their effective/expiry window, and not already
// reflected in the node's sync status. Results order by priority (high
// first), then creation time.
func (d *Distributor) GetPendingPackagesForNode(nodeID string) ([]*AdminPolicyPackage, error) {
	n, ok, err := d.store.GetNode(nodeID)
	if err != nil {
		return nil, wrapError(KindInternal, "ADM-PND-001", "load node", err)
	}
	if !ok {
		return nil, newError(KindNotFound, "ADM-PND-002", fmt.Sprintf("no node %q", nodeID))
	}
	pkgs, err := d.store.ListPackages()
	if err != nil {
		return nil, wrapError(KindInternal, "ADM-PND-003", "list packages", err)
	}

	now := d.now()
	var pending []*AdminPolicyPackage
	for _, pkg := range pkgs {
		if !n.targeted(pkg) {
			continue
		}
		if !pkg.Metadata.EffectiveAt.IsZero() && now.Before(pkg.Metadata.EffectiveAt) {
			continue
		}
		if !pkg.Metadata.ExpiresAt.IsZero() && now.After(pkg.Metadata.ExpiresAt) {
			continue
		}
		// Idempotent re-delivery prevention: already synced and the sync is
		// newer than the package.
		if n.Sync.LastPackageID == pkg.ID && n.Sync.LastSync.After(pkg.CreatedAt) {
			continue
		}
		pending = append(pending, pkg)
	}
	sort.SliceStable(pending, func(i, j int) bool {
		if pending[i].Metadata.Priority != pending[j].Metadata.Priority {
			return pending[i].Metadata.Priority > pending[j].Metadata.Priority
		}
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	return pending, nil
}

// MarkNodeSynced records that a node applied a package. Safe to call any
// number of times with the same packageID; only a timestamp and a terminal
// status are written.
func (d *Distributor) MarkNodeSynced(nodeID, packageID string) error {
	n, ok, err := d.store.GetNode(nodeID)
	if err != nil {
		return wrapError(KindInternal, "ADM-SYN-001", "load node", err)
	}
	if !ok {
		return newError(KindNotFound, "ADM-SYN-002", fmt.Sprintf("no node %q", nodeID))
	}
	pkg, ok, err := d.store.GetPackage(packageID)
	if err != nil {
		return wrapError(KindInternal, "ADM-SYN-003", "load package", err)
	}
	if !ok {
		return newError(KindNotFound, "ADM-SYN-004", fmt.Sprintf("no package %q", packageID))
	}

	p, err := policy.Deserialize(pkg.PolicyPayload)
	if err != nil {
		return wrapError(KindValidation, "ADM-SYN-005", "decode policy payload", err)
	}

	now := d.now()
	n.LastSeen = now
	n.PolicyVersion = p.Version
	n.Sync = SyncStatus{
		LastSync:      now,
		LastPackageID: packageID,
		Status:        SyncSynced,
	}
	if err := d.store.SaveNode(n); err != nil {
		return wrapError(KindInternal, "ADM-SYN-006", "persist node", err)
	}
	return nil
}
