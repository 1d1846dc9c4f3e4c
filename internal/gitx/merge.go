package gitx

import (
	"path"
	"sort"
	"strings"
)

// FlattenTree walks id recursively through repo and returns a
// path -> (mode, blob id) map. Directories with no entries are dropped,
// matching git's tree model. Exported so callers outside gitx (the
// change-spec tree builder in internal/stack) can reconstruct and edit
// trees without duplicating the walk.
func FlattenTree(repo Repository, id OID) (map[string]TreeEntry, error) {
	out := map[string]TreeEntry{}
	if id.IsZero() {
		return out, nil
	}
	if err := flattenInto(repo, id, "", out); err != nil {
		return nil, err
	}
	return out, nil
}

func flattenInto(repo Repository, id OID, prefix string, out map[string]TreeEntry) error {
	t, err := repo.FindTree(id)
	if err != nil {
		return err
	}
	for _, e := range t.Entries {
		full := e.Name
		if prefix != "" {
			full = prefix + "/" + e.Name
		}
		if e.Mode == ModeDir {
			if err := flattenInto(repo, e.ID, full, out); err != nil {
				return err
			}
			continue
		}
		out[full] = TreeEntry{Name: full, Mode: e.Mode, ID: e.ID}
	}
	return nil
}

// BuildTreeFromFlat reconstructs a nested tree object bottom-up from a
// flat path -> (mode, blob id) map, writing one tree object per
// directory level via repo.WriteTree.
func BuildTreeFromFlat(repo Repository, flat map[string]TreeEntry) (OID, error) {
	return writeSubtree(repo, "", flat)
}

// writeSubtree writes the tree object for the directory named by
// prefix (""= root), using only entries in flat whose path is directly
// under prefix or in a descendant directory.
func writeSubtree(repo Repository, prefix string, flat map[string]TreeEntry) (OID, error) {
	type child struct {
		name  string
		isDir bool
		entry TreeEntry
	}

	direct := map[string]TreeEntry{}
	dirs := map[string]bool{}

	for p, e := range flat {
		rel := p
		if prefix != "" {
			if !strings.HasPrefix(p, prefix+"/") {
				continue
			}
			rel = strings.TrimPrefix(p, prefix+"/")
		}
		if idx := strings.IndexByte(rel, '/'); idx >= 0 {
			dirs[rel[:idx]] = true
		} else {
			direct[rel] = e
		}
	}

	var children []child
	for name, e := range direct {
		children = append(children, child{name: name, entry: e})
	}
	for name := range dirs {
		children = append(children, child{name: name, isDir: true})
	}

	var entries []TreeEntry
	for _, c := range children {
		if c.isDir {
			sub := c.name
			if prefix != "" {
				sub = path.Join(prefix, c.name)
			}
			id, err := writeSubtree(repo, sub, flat)
			if err != nil {
				return "", err
			}
			entries = append(entries, TreeEntry{Name: c.name, Mode: ModeDir, ID: id})
		} else {
			entries = append(entries, TreeEntry{Name: c.name, Mode: c.entry.Mode, ID: c.entry.ID})
		}
	}

	return repo.WriteTree(entries)
}

// MergeTrees performs the three-way merge described in types.go.
func (g *GoGitRepository) MergeTrees(base, ours, theirs OID) (MergeResult, error) {
	baseFlat, err := FlattenTree(g, base)
	if err != nil {
		return MergeResult{}, err
	}
	oursFlat, err := FlattenTree(g, ours)
	if err != nil {
		return MergeResult{}, err
	}
	theirsFlat, err := FlattenTree(g, theirs)
	if err != nil {
		return MergeResult{}, err
	}

	paths := map[string]bool{}
	for p := range baseFlat {
		paths[p] = true
	}
	for p := range oursFlat {
		paths[p] = true
	}
	for p := range theirsFlat {
		paths[p] = true
	}

	result := map[string]TreeEntry{}
	var conflicts []PathConflict

	for p := range paths {
		b, bOK := baseFlat[p]
		o, oOK := oursFlat[p]
		t, tOK := theirsFlat[p]

		switch {
		case entryEqual(o, oOK, t, tOK):
			// Both sides agree (including both-deleted); take either.
			if oOK {
				result[p] = o
			}

		case entryEqual(o, oOK, b, bOK):
			// Unchanged on our side: take theirs (including deletion).
			if tOK {
				result[p] = t
			}

		case entryEqual(t, tOK, b, bOK):
			// Unchanged on their side: take ours (including deletion).
			if oOK {
				result[p] = o
			}

		default:
			// Both sides changed the same path differently: conflict.
			// Best-effort resolution favors ours so a tree can still
			// be produced; the rebase executor layers the full
			// conflict-carrying structure on top using the returned
			// PathConflict list.
			if oOK {
				result[p] = o
			}
			conflicts = append(conflicts, PathConflict{
				Path:       p,
				BaseBlob:   orZero(bOK, b.ID),
				OursBlob:   orZero(oOK, o.ID),
				TheirsBlob: orZero(tOK, t.ID),
			})
		}
	}

	treeID, err := BuildTreeFromFlat(g, result)
	if err != nil {
		return MergeResult{}, err
	}

	sort.Slice(conflicts, func(i, j int) bool { return conflicts[i].Path < conflicts[j].Path })
	return MergeResult{TreeID: treeID, Conflicted: len(conflicts) > 0, Conflicts: conflicts}, nil
}

func entryEqual(a TreeEntry, aOK bool, b TreeEntry, bOK bool) bool {
	if aOK != bOK {
		return false
	}
	if !aOK {
		return true
	}
	return a.ID == b.ID && a.Mode == b.Mode
}

func orZero(ok bool, id OID) OID {
	if !ok {
		return ""
	}
	return id
}
