package rebase

import (
	"context"
	"sort"

	"loomstack.dev/loom/internal/gitx"
	"loomstack.dev/loom/internal/loomerr"
)

// Materialize writes every reference in r.NewRefTarget to repo. It
// reads every ref's current value first so each write is a compare-
// and-swap against the value read at the start of Materialize, then
// applies them
// in a deterministic (sorted by name) order so a partial failure is
// reproducible. A failure here never touches the metadata store: the
// caller's oplog snapshot guard is what makes the overall operation
// safe to retry.
func (r *SuccessfulRebase) Materialize(ctx context.Context, repo gitx.Repository) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	names := make([]string, 0, len(r.NewRefTarget))
	for name := range r.NewRefTarget {
		names = append(names, name)
	}
	sort.Strings(names)

	type write struct {
		name string
		old  gitx.OID
		new  gitx.OID
	}
	var writes []write
	for _, name := range names {
		old, err := repo.ReadReference(name)
		if err != nil && !loomerr.Is(err, loomerr.KindNotFound) {
			return err
		}
		writes = append(writes, write{name: name, old: old, new: r.NewRefTarget[name]})
	}

	for _, w := range writes {
		if err := repo.WriteReferenceAtomic(w.name, w.old, w.new); err != nil {
			return loomerr.IOErrorf(err, "materialize reference %s", w.name)
		}
	}
	return nil
}
