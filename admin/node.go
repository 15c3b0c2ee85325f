package admin

import "time"

// NodeSyncState is the coarse sync condition of one node.
type NodeSyncState string

const (
	SyncSynced  NodeSyncState = "synced"
	SyncPending NodeSyncState = "pending"
	SyncError   NodeSyncState = "error"
)

// SyncStatus tracks the last successful rollout seen by a node.
type SyncStatus struct {
	LastSync      time.Time     `json:"lastSync,omitempty"`
	LastPackageID string        `json:"lastPackageId,omitempty"`
	Status        NodeSyncState `json:"status"`
}

// PolicyNode is a registered distribution target. Nodes are never deleted;
// staleness is a collaborator decision read off LastSeen.
type PolicyNode struct {
	ID            string     `json:"id"`
	Groups        []string   `json:"groups,omitempty"`
	LastSeen      time.Time  `json:"lastSeen"`
	PolicyVersion int64      `json:"policyVersion"`
	Sync          SyncStatus `json:"syncStatus"`
}

// clone returns a deep copy so store callers cannot alias internal state.
func (n *PolicyNode) clone() *PolicyNode {
	out := *n
	out.Groups = append([]string(nil), n.Groups...)
	return &out
}

// targeted reports whether pkg selects this node.
func (n *PolicyNode) targeted(pkg *AdminPolicyPackage) bool {
	sel := pkg.TargetSelectors
	if sel.All {
		return true
	}
	for _, id := range sel.NodeIDs {
		if id == n.ID {
			return true
		}
	}
	for _, g := range sel.Groups {
		for _, ng := range n.Groups {
			if g == ng {
				return true
			}
		}
	}
	return false
}
