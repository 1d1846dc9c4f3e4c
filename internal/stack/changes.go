package stack

import (
	"bytes"

	"loomstack.dev/loom/internal/gitx"
)

// ChangeSpec is one path-level edit to apply against a base tree:
// write Content at Path, or Delete Path entirely. Whole-file content
// rather than line hunks, since this engine has no working-tree
// line-hunk model.
type ChangeSpec struct {
	Path       string
	Delete     bool
	Content    []byte
	Executable bool

	// ExpectedOldContent, when non-nil, is compared against the path's
	// current blob before the change is applied. A mismatch rejects
	// the change instead of erroring: the caller's view of the file has
	// drifted out from under it.
	ExpectedOldContent []byte
}

// RejectionReason tags why ApplyChanges could not apply a ChangeSpec.
type RejectionReason int

const (
	// RejectionContextMismatch means ExpectedOldContent did not match
	// the path's current content (or the path did not exist while an
	// expectation was set).
	RejectionContextMismatch RejectionReason = iota
	// RejectionPathMissing means a Delete targeted a path that does
	// not exist in the base tree.
	RejectionPathMissing
)

func (r RejectionReason) String() string {
	switch r {
	case RejectionContextMismatch:
		return "context-mismatch"
	case RejectionPathMissing:
		return "path-missing"
	default:
		return "unknown"
	}
}

// Rejected pairs a RejectionReason with the ChangeSpec it applies to.
type Rejected struct {
	Reason RejectionReason
	Spec   ChangeSpec
}

// ApplyChanges builds a new tree from baseTree with changes applied in
// order, returning the specs that could not be applied cleanly
// alongside the new tree id. baseTree may be the zero OID (an empty
// tree), the case a root commit's Create starts from.
func ApplyChanges(repo gitx.Repository, baseTree gitx.OID, changes []ChangeSpec) (gitx.OID, []Rejected, error) {
	flat, err := gitx.FlattenTree(repo, baseTree)
	if err != nil {
		return "", nil, err
	}

	var rejected []Rejected
	for _, c := range changes {
		cur, exists := flat[c.Path]

		if c.ExpectedOldContent != nil {
			if !exists {
				rejected = append(rejected, Rejected{RejectionContextMismatch, c})
				continue
			}
			curBytes, err := repo.FindBlob(cur.ID)
			if err != nil {
				return "", nil, err
			}
			if !bytes.Equal(curBytes, c.ExpectedOldContent) {
				rejected = append(rejected, Rejected{RejectionContextMismatch, c})
				continue
			}
		}

		if c.Delete {
			if !exists {
				rejected = append(rejected, Rejected{RejectionPathMissing, c})
				continue
			}
			delete(flat, c.Path)
			continue
		}

		blobID, err := repo.WriteBlob(c.Content)
		if err != nil {
			return "", nil, err
		}
		mode := gitx.ModeFile
		if c.Executable {
			mode = gitx.ModeExecutable
		}
		flat[c.Path] = gitx.TreeEntry{Name: c.Path, Mode: mode, ID: blobID}
	}

	treeID, err := gitx.BuildTreeFromFlat(repo, flat)
	if err != nil {
		return "", nil, err
	}
	return treeID, rejected, nil
}
