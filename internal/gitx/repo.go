package gitx

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"

	"loomstack.dev/loom/internal/loomerr"
)

// GoGitRepository adapts a go-git repository to Repository.
type GoGitRepository struct {
	repo *gogit.Repository
}

// Open opens the repository rooted at path, or at a parent directory
// containing .git.
func Open(path string) (*GoGitRepository, error) {
	repo, err := gogit.PlainOpenWithOptions(path, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, loomerr.IOErrorf(err, "open repository at %s", path)
	}
	return &GoGitRepository{repo: repo}, nil
}

func hash(id OID) plumbing.Hash { return plumbing.NewHash(string(id)) }
func oid(h plumbing.Hash) OID   { return OID(h.String()) }

func (g *GoGitRepository) FindCommit(id OID) (*CommitInfo, error) {
	c, err := g.repo.CommitObject(hash(id))
	if err != nil {
		return nil, notFoundOrIOErr(err, string(id), "commit")
	}
	var parents []OID
	for _, p := range c.ParentHashes {
		parents = append(parents, oid(p))
	}
	return &CommitInfo{
		ID:        id,
		TreeID:    oid(c.TreeHash),
		ParentIDs: parents,
		Author:    Signature{Name: c.Author.Name, Email: c.Author.Email, When: c.Author.When},
		Committer: Signature{Name: c.Committer.Name, Email: c.Committer.Email, When: c.Committer.When},
		Message:   c.Message,
	}, nil
}

func (g *GoGitRepository) FindTree(id OID) (*Tree, error) {
	t, err := g.repo.TreeObject(hash(id))
	if err != nil {
		return nil, notFoundOrIOErr(err, string(id), "tree")
	}
	out := &Tree{ID: id}
	for _, e := range t.Entries {
		mode := ModeFile
		switch e.Mode {
		case filemode.Dir:
			mode = ModeDir
		case filemode.Executable:
			mode = ModeExecutable
		case filemode.Symlink:
			mode = ModeSymlink
		}
		out.Entries = append(out.Entries, TreeEntry{Name: e.Name, Mode: mode, ID: oid(e.Hash)})
	}
	return out, nil
}

func (g *GoGitRepository) FindBlob(id OID) ([]byte, error) {
	b, err := g.repo.BlobObject(hash(id))
	if err != nil {
		return nil, notFoundOrIOErr(err, string(id), "blob")
	}
	r, err := b.Reader()
	if err != nil {
		return nil, loomerr.IOErrorf(err, "open blob %s", id)
	}
	defer r.Close()
	data := make([]byte, b.Size)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, loomerr.IOErrorf(err, "read blob %s", id)
	}
	return data, nil
}

func (g *GoGitRepository) ReadReference(name string) (OID, error) {
	ref, err := g.repo.Reference(plumbing.ReferenceName(name), true)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return "", loomerr.NotFoundf(name, "reference not found")
		}
		return "", loomerr.IOErrorf(err, "read reference %s", name)
	}
	return oid(ref.Hash()), nil
}

func (g *GoGitRepository) WriteReferenceAtomic(name string, old, new OID) error {
	refName := plumbing.ReferenceName(name)
	var oldRef *plumbing.Reference
	if !old.IsZero() {
		oldRef = plumbing.NewHashReference(refName, hash(old))
	}
	newRef := plumbing.NewHashReference(refName, hash(new))
	if err := g.repo.Storer.CheckAndSetReference(newRef, oldRef); err != nil {
		return loomerr.IOErrorf(err, "update reference %s", name)
	}
	return nil
}

func (g *GoGitRepository) DeleteReference(name string) error {
	if err := g.repo.Storer.RemoveReference(plumbing.ReferenceName(name)); err != nil {
		return loomerr.IOErrorf(err, "delete reference %s", name)
	}
	return nil
}

func (g *GoGitRepository) ListReferences(prefix string) (map[string]OID, error) {
	refs, err := g.repo.Storer.IterReferences()
	if err != nil {
		return nil, loomerr.IOErrorf(err, "iterate references")
	}
	out := map[string]OID{}
	err = refs.ForEach(func(r *plumbing.Reference) error {
		if strings.HasPrefix(r.Name().String(), prefix) && r.Type() == plumbing.HashReference {
			out[r.Name().String()] = oid(r.Hash())
		}
		return nil
	})
	if err != nil {
		return nil, loomerr.IOErrorf(err, "iterate references")
	}
	return out, nil
}

func (g *GoGitRepository) WriteBlob(data []byte) (OID, error) {
	obj := g.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	w, err := obj.Writer()
	if err != nil {
		return "", loomerr.IOErrorf(err, "create blob writer")
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return "", loomerr.IOErrorf(err, "write blob data")
	}
	w.Close()
	h, err := g.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return "", loomerr.IOErrorf(err, "store blob object")
	}
	return oid(h), nil
}

func (g *GoGitRepository) WriteTree(entries []TreeEntry) (OID, error) {
	sorted := append([]TreeEntry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	tree := object.Tree{}
	for _, e := range sorted {
		var mode filemode.FileMode
		switch e.Mode {
		case ModeDir:
			mode = filemode.Dir
		case ModeExecutable:
			mode = filemode.Executable
		case ModeSymlink:
			mode = filemode.Symlink
		default:
			mode = filemode.Regular
		}
		tree.Entries = append(tree.Entries, object.TreeEntry{Name: e.Name, Mode: mode, Hash: hash(e.ID)})
	}

	obj := g.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.TreeObject)
	if err := tree.Encode(obj); err != nil {
		return "", loomerr.IOErrorf(err, "encode tree")
	}
	h, err := g.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return "", loomerr.IOErrorf(err, "store tree object")
	}
	return oid(h), nil
}

func (g *GoGitRepository) WriteCommit(spec CommitSpec) (OID, error) {
	commit := &object.Commit{
		Author:       object.Signature{Name: spec.Author.Name, Email: spec.Author.Email, When: spec.Author.When},
		Committer:    object.Signature{Name: spec.Committer.Name, Email: spec.Committer.Email, When: spec.Committer.When},
		Message:      spec.Message,
		TreeHash:     hash(spec.TreeID),
	}
	for _, p := range spec.ParentIDs {
		commit.ParentHashes = append(commit.ParentHashes, hash(p))
	}

	obj := g.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.CommitObject)
	if err := commit.Encode(obj); err != nil {
		return "", loomerr.IOErrorf(err, "encode commit")
	}
	h, err := g.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return "", loomerr.IOErrorf(err, "store commit object")
	}
	return oid(h), nil
}

func (g *GoGitRepository) MergeBase(a, b OID) (OID, error) {
	ca, err := g.repo.CommitObject(hash(a))
	if err != nil {
		return "", notFoundOrIOErr(err, string(a), "commit")
	}
	cb, err := g.repo.CommitObject(hash(b))
	if err != nil {
		return "", notFoundOrIOErr(err, string(b), "commit")
	}
	bases, err := ca.MergeBase(cb)
	if err != nil {
		return "", loomerr.IOErrorf(err, "compute merge base")
	}
	if len(bases) == 0 {
		return "", loomerr.NotFoundf(fmt.Sprintf("%s..%s", a, b), "no merge base")
	}
	return oid(bases[0].Hash), nil
}

func (g *GoGitRepository) IsAncestor(ancestor, descendant OID) (bool, error) {
	ancestors, err := g.Ancestors(descendant, "")
	if err != nil {
		return false, err
	}
	for _, a := range ancestors {
		if a == ancestor {
			return true, nil
		}
	}
	return descendant == ancestor, nil
}

// Ancestors walks commit parents breadth-first from tip (exclusive),
// stopping at (and excluding) hidden when set, over all parents rather
// than first-parent-only since the step graph must see merge commits
// too.
func (g *GoGitRepository) Ancestors(tip OID, hidden OID) ([]OID, error) {
	start, err := g.repo.CommitObject(hash(tip))
	if err != nil {
		return nil, notFoundOrIOErr(err, string(tip), "commit")
	}

	seen := map[plumbing.Hash]bool{start.Hash: true}
	var out []OID
	queue := []*object.Commit{start}
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		for _, ph := range c.ParentHashes {
			if seen[ph] {
				continue
			}
			seen[ph] = true
			if !hidden.IsZero() && ph == hash(hidden) {
				continue
			}
			out = append(out, oid(ph))
			parent, err := g.repo.CommitObject(ph)
			if err != nil {
				return nil, notFoundOrIOErr(err, ph.String(), "commit")
			}
			queue = append(queue, parent)
		}
	}
	return out, nil
}

func notFoundOrIOErr(err error, subject, kind string) error {
	if errors.Is(err, plumbing.ErrObjectNotFound) || errors.Is(err, gogit.ErrReferenceNotFound) {
		return loomerr.NotFoundf(subject, "%s not found", kind)
	}
	return loomerr.IOErrorf(err, "look up %s %s", kind, subject)
}
