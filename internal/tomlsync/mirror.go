// Package tomlsync reconciles the on-disk "virtual_branches.toml" mirror
// with the metadata store. The store is the runtime source of truth;
// the mirror exists so the workspace state is human-readable and
// externally editable.
package tomlsync

import (
	"os"

	"github.com/BurntSushi/toml"

	"loomstack.dev/loom/internal/store"
)

// mirrorDoc is the TOML document shape: default_target, last_pushed_base,
// per-stack branches.<id>, and per-stack branch_targets.<id>.
type mirrorDoc struct {
	DefaultTarget  *targetDoc            `toml:"default_target,omitempty"`
	LastPushedBase *string               `toml:"last_pushed_base,omitempty"`
	Branches       map[string]branchDoc  `toml:"branches"`
	BranchTargets  map[string]targetDoc  `toml:"branch_targets"`
}

type targetDoc struct {
	Remote         string  `toml:"remote"`
	Branch         string  `toml:"branch"`
	RemoteURL      string  `toml:"remoteUrl"`
	CommitID       string  `toml:"commitId"`
	PushRemoteName *string `toml:"pushRemoteName,omitempty"`
}

type headDoc struct {
	Position     int     `toml:"position"`
	Name         string  `toml:"name"`
	HeadCommitID string  `toml:"headCommitId"`
	PRNumber     *int    `toml:"prNumber,omitempty"`
	Archived     bool    `toml:"archived,omitempty"`
	ReviewID     *string `toml:"reviewId,omitempty"`
}

type branchDoc struct {
	SourceRefname  *string   `toml:"sourceRefname,omitempty"`
	UpstreamRemote *string   `toml:"upstreamRemote,omitempty"`
	UpstreamBranch *string   `toml:"upstreamBranch,omitempty"`
	SortOrder      int       `toml:"sortOrder"`
	InWorkspace    bool      `toml:"inWorkspace"`
	Heads          []headDoc `toml:"heads"`

	// Deprecated per-stack scalar fields, retained verbatim.
	LegacyName            *string  `toml:"name,omitempty"`
	LegacyNotes           *string  `toml:"notes,omitempty"`
	LegacyOrderFloat      *float64 `toml:"order,omitempty"`
	LegacyUpdatedAtMillis *int64   `toml:"updatedAtMillis,omitempty"`
}

func docFromSnapshot(snap *store.WorkspaceSnapshot) *mirrorDoc {
	doc := &mirrorDoc{
		Branches:      map[string]branchDoc{},
		BranchTargets: map[string]targetDoc{},
	}
	if t := snap.State.DefaultTarget(); t != nil {
		doc.DefaultTarget = &targetDoc{
			Remote: t.RemoteName, Branch: t.BranchName, RemoteURL: t.RemoteURL,
			CommitID: t.CommitID, PushRemoteName: t.PushRemoteName,
		}
	}
	doc.LastPushedBase = snap.State.LastPushedBaseCommitID

	for _, st := range snap.Stacks {
		bd := branchDoc{
			SourceRefname:         st.SourceRefname,
			UpstreamRemote:        st.UpstreamRemote,
			UpstreamBranch:        st.UpstreamBranch,
			SortOrder:             st.SortOrder,
			InWorkspace:           st.InWorkspace,
			LegacyName:            st.LegacyName,
			LegacyNotes:           st.LegacyNotes,
			LegacyOrderFloat:      st.LegacyOrderFloat,
			LegacyUpdatedAtMillis: st.LegacyUpdatedAtMillis,
		}
		for _, h := range snap.HeadsForStack(st.ID) {
			bd.Heads = append(bd.Heads, headDoc{
				Position: h.Position, Name: h.Name, HeadCommitID: h.HeadCommitID,
				PRNumber: h.PRNumber, Archived: h.Archived, ReviewID: h.ReviewID,
			})
		}
		doc.Branches[st.ID] = bd
	}

	for _, bt := range snap.BranchTargets {
		doc.BranchTargets[bt.StackID] = targetDoc{
			Remote: bt.RemoteName, Branch: bt.BranchName, RemoteURL: bt.RemoteURL,
			CommitID: bt.CommitID, PushRemoteName: bt.PushRemoteName,
		}
	}

	return doc
}

func (doc *mirrorDoc) toSnapshot() *store.WorkspaceSnapshot {
	snap := &store.WorkspaceSnapshot{State: store.WorkspaceState{Initialized: true}}
	if doc.DefaultTarget != nil {
		snap.State.SetDefaultTarget(&store.Target{
			RemoteName: doc.DefaultTarget.Remote, BranchName: doc.DefaultTarget.Branch,
			RemoteURL: doc.DefaultTarget.RemoteURL, CommitID: doc.DefaultTarget.CommitID,
			PushRemoteName: doc.DefaultTarget.PushRemoteName,
		})
	}
	snap.State.LastPushedBaseCommitID = doc.LastPushedBase

	for id, bd := range doc.Branches {
		snap.Stacks = append(snap.Stacks, store.Stack{
			ID:                    id,
			SourceRefname:         bd.SourceRefname,
			UpstreamRemote:        bd.UpstreamRemote,
			UpstreamBranch:        bd.UpstreamBranch,
			SortOrder:             bd.SortOrder,
			InWorkspace:           bd.InWorkspace,
			LegacyName:            bd.LegacyName,
			LegacyNotes:           bd.LegacyNotes,
			LegacyOrderFloat:      bd.LegacyOrderFloat,
			LegacyUpdatedAtMillis: bd.LegacyUpdatedAtMillis,
		})
		for _, h := range bd.Heads {
			snap.Heads = append(snap.Heads, store.StackHead{
				StackID: id, Position: h.Position, Name: h.Name, HeadCommitID: h.HeadCommitID,
				PRNumber: h.PRNumber, Archived: h.Archived, ReviewID: h.ReviewID,
			})
		}
	}

	for id, td := range doc.BranchTargets {
		snap.BranchTargets = append(snap.BranchTargets, store.BranchTarget{
			StackID: id,
			Target: store.Target{
				RemoteName: td.Remote, BranchName: td.Branch, RemoteURL: td.RemoteURL,
				CommitID: td.CommitID, PushRemoteName: td.PushRemoteName,
			},
		})
	}

	return snap
}

// encode serializes snap to TOML bytes.
func encode(snap *store.WorkspaceSnapshot) ([]byte, error) {
	doc := docFromSnapshot(snap)
	return marshalTOML(doc)
}

// decode parses TOML bytes into a snapshot. Returns an error if the
// file does not parse as valid TOML.
func decode(data []byte) (*store.WorkspaceSnapshot, error) {
	var doc mirrorDoc
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return nil, err
	}
	return doc.toSnapshot(), nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
