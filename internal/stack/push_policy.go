package stack

import (
	"loomstack.dev/loom/internal/config"
	"loomstack.dev/loom/internal/gitx"
	"loomstack.dev/loom/internal/store"
)

// PushPolicy governs whether Squash may rewrite a commit already
// pushed upstream.
type PushPolicy struct {
	// ForcePushAllowed, when false, rejects squashing a source or
	// destination at or behind PushedBoundary.
	ForcePushAllowed bool
	// PushedBoundary is the commit up to which history is considered
	// already pushed upstream, the zero OID if nothing has been pushed
	// yet (in which case nothing is ever rejected).
	PushedBoundary gitx.OID
}

// NewPushPolicy derives a PushPolicy from the engine's force-push
// setting and the workspace's last-pushed-base marker.
func NewPushPolicy(cfg *config.EngineConfig, state store.WorkspaceState) PushPolicy {
	policy := PushPolicy{ForcePushAllowed: cfg.ForcePushAllowedOrDefault()}
	if state.LastPushedBaseCommitID != nil {
		policy.PushedBoundary = gitx.OID(*state.LastPushedBaseCommitID)
	}
	return policy
}

// isPushed reports whether id is at or behind policy's pushed
// boundary, i.e. already part of history pushed upstream.
func isPushed(repo gitx.Repository, policy PushPolicy, id gitx.OID) (bool, error) {
	if policy.PushedBoundary.IsZero() {
		return false, nil
	}
	if id == policy.PushedBoundary {
		return true, nil
	}
	return repo.IsAncestor(id, policy.PushedBoundary)
}
