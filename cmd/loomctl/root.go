package main

import (
	"github.com/spf13/cobra"
)

// newRootCmd builds the loomctl command tree: a thin cobra wrapper
// over internal/workspace's Apply/Unapply/Mutate operations, enough to
// drive the workspace engine from a shell without reimplementing the
// full stacked-branch CLI surface.
func newRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:     "loomctl",
		Short:   "Drive the loom workspace engine from the command line",
		Version: version,
	}

	root.AddCommand(newStatusCmd())
	root.AddCommand(newApplyCmd())
	root.AddCommand(newUnapplyCmd())

	return root
}
