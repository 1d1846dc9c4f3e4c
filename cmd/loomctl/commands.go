package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"loomstack.dev/loom/internal/workspace"
)

// openWorkspace resolves the current repository root and opens its
// Workspace, the shared setup every subcommand below needs.
func openWorkspace() (*workspace.Workspace, error) {
	root, err := repoRoot()
	if err != nil {
		return nil, err
	}
	return workspace.Open(root, commitAuthor())
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List every tracked stack and whether it is applied to the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			defer ws.Close()

			snap, err := ws.Store.ReadSnapshot(cmd.Context())
			if err != nil {
				return err
			}
			if snap == nil || len(snap.Stacks) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no stacks tracked")
				return nil
			}

			for _, s := range snap.Stacks {
				applied := "unapplied"
				if s.InWorkspace {
					applied = "applied"
				}
				heads := snap.HeadsForStack(s.ID)
				tip := "(no head)"
				if len(heads) > 0 {
					tip = heads[0].HeadCommitID
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-20s %-10s %s\n", s.ID, applied, tip)
			}
			return nil
		},
	}
}

func newApplyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "apply <stack-id>",
		Short: "Mark a stack applied and fold it into the workspace ref",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			defer ws.Close()

			_, err = ws.Apply(context.Background(), args[0])
			return err
		},
	}
}

func newUnapplyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unapply <stack-id>",
		Short: "Mark a stack unapplied, excluding it from the workspace ref",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			defer ws.Close()

			_, err = ws.Unapply(context.Background(), args[0])
			return err
		},
	}
}
