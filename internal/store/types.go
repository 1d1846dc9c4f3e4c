// Package store provides typed, transactional persistence of workspace
// metadata on top of an embedded SQLite database, implementing the
// metadata-store component of the workspace engine.
package store

// WorkspaceState is the singleton row describing engine-wide state.
type WorkspaceState struct {
	Initialized bool

	// DefaultTarget fields are all-present or all-absent together.
	DefaultTargetRemoteName     *string
	DefaultTargetBranchName     *string
	DefaultTargetRemoteURL      *string
	DefaultTargetCommitID       *string
	DefaultTargetPushRemoteName *string

	LastPushedBaseCommitID *string

	TOMLMtimeNS *int64
	TOMLSHA256  *string
}

// HasDefaultTarget reports whether the default-target fields are set.
func (s *WorkspaceState) HasDefaultTarget() bool {
	return s.DefaultTargetRemoteName != nil
}

// Target is the (remote, branch, url, commit, push-remote) tuple shared
// by WorkspaceState's default target and by BranchTarget.
type Target struct {
	RemoteName     string
	BranchName     string
	RemoteURL      string
	CommitID       string
	PushRemoteName *string
}

// SetDefaultTarget sets all five default-target fields together,
// satisfying the "all present or all absent" invariant.
func (s *WorkspaceState) SetDefaultTarget(t *Target) {
	if t == nil {
		s.DefaultTargetRemoteName = nil
		s.DefaultTargetBranchName = nil
		s.DefaultTargetRemoteURL = nil
		s.DefaultTargetCommitID = nil
		s.DefaultTargetPushRemoteName = nil
		return
	}
	s.DefaultTargetRemoteName = &t.RemoteName
	s.DefaultTargetBranchName = &t.BranchName
	s.DefaultTargetRemoteURL = &t.RemoteURL
	s.DefaultTargetCommitID = &t.CommitID
	s.DefaultTargetPushRemoteName = t.PushRemoteName
}

// DefaultTarget reconstructs the Target value, or nil if unset.
func (s *WorkspaceState) DefaultTarget() *Target {
	if !s.HasDefaultTarget() {
		return nil
	}
	return &Target{
		RemoteName:     *s.DefaultTargetRemoteName,
		BranchName:     *s.DefaultTargetBranchName,
		RemoteURL:      *s.DefaultTargetRemoteURL,
		CommitID:       *s.DefaultTargetCommitID,
		PushRemoteName: s.DefaultTargetPushRemoteName,
	}
}

// Stack is an ordered, named collection of heads sharing a merge base.
type Stack struct {
	ID             string
	SourceRefname  *string
	UpstreamRemote *string
	UpstreamBranch *string
	SortOrder      int
	InWorkspace    bool

	// Legacy scalar fields retained verbatim for TOML round-trip
	// compatibility; the engine itself does not interpret them.
	LegacyName            *string
	LegacyNotes           *string
	LegacyOrderFloat      *float64
	LegacyUpdatedAtMillis *int64
}

// StackHead is a single named series/position within a Stack.
type StackHead struct {
	StackID      string
	Position     int
	Name         string
	HeadCommitID string
	PRNumber     *int
	Archived     bool
	ReviewID     *string
}

// BranchTarget is a per-stack override of WorkspaceState's default target.
type BranchTarget struct {
	StackID string
	Target
}

// WorkspaceSnapshot is the pure-value I/O unit used by ReadSnapshot,
// ReplaceSnapshot, and the oplog.
type WorkspaceSnapshot struct {
	State         WorkspaceState
	Stacks        []Stack
	Heads         []StackHead
	BranchTargets []BranchTarget
}

// Clone returns a copy with its own Stacks/Heads/BranchTargets slices,
// so callers (notably the oplog) can append to or reorder a captured
// snapshot without aliasing the original's backing arrays. It is not a
// full deep copy: pointer-typed fields (e.g. Stack.SourceRefname,
// StackHead.PRNumber) still alias the source value. This is safe today
// because every mutator replaces those pointers wholesale rather than
// writing through them; a caller that started doing the latter would
// need a real field-by-field copy here.
func (s *WorkspaceSnapshot) Clone() *WorkspaceSnapshot {
	out := &WorkspaceSnapshot{State: s.State}
	out.Stacks = append([]Stack(nil), s.Stacks...)
	out.Heads = append([]StackHead(nil), s.Heads...)
	out.BranchTargets = append([]BranchTarget(nil), s.BranchTargets...)
	return out
}

// HeadsForStack returns the heads belonging to stackID, ordered by
// Position (the order ReadSnapshot's query already guarantees).
func (s *WorkspaceSnapshot) HeadsForStack(stackID string) []StackHead {
	var out []StackHead
	for _, h := range s.Heads {
		if h.StackID == stackID {
			out = append(out, h)
		}
	}
	return out
}
