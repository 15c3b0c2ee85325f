package admin

import (
	"sort"
	"sync"
	"time"

	"beap.dev/beap/policy"
)

// ApplyRecord is one entry of the append-only apply history.
type ApplyRecord struct {
	PackageID     string    `json:"packageId"`
	PolicyID      string    `json:"policyId"`
	PolicyVersion int64     `json:"policyVersion"`
	AppliedAt     time.Time `json:"appliedAt"`
	Rollback      bool      `json:"rollback"`
}

// Store is the injected persistence boundary for the distribution component.
//
// Contract:
//   - SavePackage and SaveNode upsert by ID and must not alias caller memory.
//   - AppendHistory is append-only; implementations never rewrite entries.
//   - SetActivePolicy replaces the active policy pointer atomically with
//     respect to ActivePolicy readers.
//
// Decision logic never touches storage technology directly; tests substitute
// a memory backend.
type Store interface {
	SavePackage(pkg *AdminPolicyPackage) error
	GetPackage(id string) (*AdminPolicyPackage, bool, error)
	ListPackages() ([]*AdminPolicyPackage, error)

	SaveNode(n *PolicyNode) error
	GetNode(id string) (*PolicyNode, bool, error)
	ListNodes() ([]*PolicyNode, error)

	SetActivePolicy(p *policy.CanonicalPolicy, packageID string) error
	ActivePolicy() (*policy.CanonicalPolicy, string, bool, error)

	AppendHistory(rec ApplyRecord) error
	History() ([]ApplyRecord, error)
}

// MemoryStore is the in-memory Store used by tests and single-process
// deployments. Zero value not usable; construct with NewMemoryStore.
type MemoryStore struct {
	mu sync.RWMutex

	packages map[string]*AdminPolicyPackage
	nodes    map[string]*PolicyNode

	active      *policy.CanonicalPolicy
	activePkgID string

	history []ApplyRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		packages: make(map[string]*AdminPolicyPackage),
		nodes:    make(map[string]*PolicyNode),
	}
}

func clonePackage(pkg *AdminPolicyPackage) *AdminPolicyPackage {
	out := *pkg
	out.PolicyPayload = append([]byte(nil), pkg.PolicyPayload...)
	out.TargetSelectors.NodeIDs = append([]string(nil), pkg.TargetSelectors.NodeIDs...)
	out.TargetSelectors.Groups = append([]string(nil), pkg.TargetSelectors.Groups...)
	if pkg.Signature != nil {
		sig := *pkg.Signature
		out.Signature = &sig
	}
	return &out
}

func (s *MemoryStore) SavePackage(pkg *AdminPolicyPackage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packages[pkg.ID] = clonePackage(pkg)
	return nil
}

func (s *MemoryStore) GetPackage(id string) (*AdminPolicyPackage, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pkg, ok := s.packages[id]
	if !ok {
		return nil, false, nil
	}
	return clonePackage(pkg), true, nil
}

func (s *MemoryStore) ListPackages() ([]*AdminPolicyPackage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*AdminPolicyPackage, 0, len(s.packages))
	for _, pkg := range s.packages {
		out = append(out, clonePackage(pkg))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) SaveNode(n *PolicyNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[n.ID] = n.clone()
	return nil
}

func (s *MemoryStore) GetNode(id string) (*PolicyNode, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return nil, false, nil
	}
	return n.clone(), true, nil
}

func (s *MemoryStore) ListNodes() ([]*PolicyNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*PolicyNode, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, n.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) SetActivePolicy(p *policy.CanonicalPolicy, packageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := p.Clone()
	s.active = &cp
	s.activePkgID = packageID
	return nil
}

func (s *MemoryStore) ActivePolicy() (*policy.CanonicalPolicy, string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == nil {
		return nil, "", false, nil
	}
	cp := s.active.Clone()
	return &cp, s.activePkgID, true, nil
}

func (s *MemoryStore) AppendHistory(rec ApplyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, rec)
	return nil
}

func (s *MemoryStore) History() ([]ApplyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ApplyRecord(nil), s.history...), nil
}
