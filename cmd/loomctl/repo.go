package main

import (
	"fmt"
	"os"
	"time"

	gogit "github.com/go-git/go-git/v5"

	"loomstack.dev/loom/internal/gitx"
)

// repoRoot resolves the root of the git repository containing the
// current working directory, the same discovery go-git's
// PlainOpenWithOptions with DetectDotGit performs for gitx.Open.
func repoRoot() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}

	repo, err := gogit.PlainOpenWithOptions(wd, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", fmt.Errorf("not a git repository: %w", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("get worktree: %w", err)
	}
	return wt.Filesystem.Root(), nil
}

// commitAuthor builds the signature new commits are attributed to from
// the same GIT_AUTHOR_NAME/GIT_AUTHOR_EMAIL environment variables git
// itself honors, falling back to a generic identity when unset.
func commitAuthor() gitx.Signature {
	name := os.Getenv("GIT_AUTHOR_NAME")
	if name == "" {
		name = "loom"
	}
	email := os.Getenv("GIT_AUTHOR_EMAIL")
	if email == "" {
		email = "loom@localhost"
	}
	return gitx.Signature{Name: name, Email: email, When: time.Now()}
}
