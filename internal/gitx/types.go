// Package gitx is the thin git-primitives layer every other component
// talks to git through: find_commit, find_tree, find_blob,
// read_reference, write_object, write_reference_atomic, merge_trees,
// merge_base, and bounded ancestor iteration. It is the only engine
// package under internal/ that imports go-git directly; every other
// component talks to git through the Repository interface below.
package gitx

import "time"

// OID is a git object id in its hex-string form.
type OID string

// IsZero reports whether oid is the empty/unset value.
func (oid OID) IsZero() bool { return oid == "" }

// Signature is an author/committer identity and timestamp.
type Signature struct {
	Name  string
	Email string
	When  time.Time
}

// CommitInfo is the subset of a commit object the engine needs.
type CommitInfo struct {
	ID        OID
	TreeID    OID
	ParentIDs []OID
	Author    Signature
	Committer Signature
	Message   string
}

// TreeEntryMode mirrors the handful of git file modes the engine cares
// about.
type TreeEntryMode int

const (
	ModeFile TreeEntryMode = iota
	ModeExecutable
	ModeDir
	ModeSymlink
)

// TreeEntry is one named entry of a Tree.
type TreeEntry struct {
	Name string
	Mode TreeEntryMode
	ID   OID
}

// Tree is a flat view of one tree object's direct entries.
type Tree struct {
	ID      OID
	Entries []TreeEntry
}

// CommitSpec is the input to WriteCommit.
type CommitSpec struct {
	TreeID    OID
	ParentIDs []OID
	Author    Signature
	Committer Signature
	Message   string
}

// Repository is the git-primitives boundary every other component
// depends on. The concrete implementation wraps go-git; tests may
// substitute a fake.
type Repository interface {
	FindCommit(id OID) (*CommitInfo, error)
	FindTree(id OID) (*Tree, error)
	FindBlob(id OID) ([]byte, error)

	ReadReference(name string) (OID, error)
	WriteReferenceAtomic(name string, old, new OID) error
	DeleteReference(name string) error
	ListReferences(prefix string) (map[string]OID, error)

	WriteBlob(data []byte) (OID, error)
	WriteTree(entries []TreeEntry) (OID, error)
	WriteCommit(spec CommitSpec) (OID, error)

	MergeBase(a, b OID) (OID, error)
	// MergeTrees performs a three-way merge of trees at the path
	// level. On conflict it still returns a tree (ours-biased at
	// conflicting paths) plus conflicted=true and the set of
	// conflicting paths with each side's blob id, so a caller (the
	// rebase executor) can build the full conflict-carrying commit
	// structure on top.
	MergeTrees(base, ours, theirs OID) (MergeResult, error)

	// Ancestors walks first-parent-and-beyond ancestors of tip,
	// stopping at (and excluding) hidden if hidden is non-zero.
	Ancestors(tip OID, hidden OID) ([]OID, error)
	IsAncestor(ancestor, descendant OID) (bool, error)
}

// PathConflict describes one path where a three-way merge could not
// cleanly resolve.
type PathConflict struct {
	Path       string
	BaseBlob   OID // zero if the path did not exist in base
	OursBlob   OID // zero if deleted on our side
	TheirsBlob OID // zero if deleted on their side
}

// MergeResult is the outcome of MergeTrees.
type MergeResult struct {
	TreeID     OID
	Conflicted bool
	Conflicts  []PathConflict
}
