// Package gitint reads the git repository a project lives in. The analyzer
// uses it for HEAD lookups: the current commit, a file's committed content
// to diff a modification against, and the agent credited on a commit.
package gitint

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// ErrNotRepository is returned by Open when no repository encloses the path.
var ErrNotRepository = errors.New("not a git repository")

// Repository wraps a go-git repository.
type Repository struct {
	repo *git.Repository
	root string
}

// Open opens the repository containing path, searching parent directories.
func Open(path string) (*Repository, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, ErrNotRepository
	}
	if err != nil {
		return nil, fmt.Errorf("open git repo at %s: %w", path, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("worktree for %s: %w", path, err)
	}
	return &Repository{repo: repo, root: wt.Filesystem.Root()}, nil
}

// Root returns the worktree root directory.
func (r *Repository) Root() string {
	return r.root
}

// HeadCommit returns the hash of HEAD, or "" for a repository with no commits.
func (r *Repository) HeadCommit() (string, error) {
	head, err := r.repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get HEAD: %w", err)
	}
	return head.Hash().String(), nil
}

// FileAtHead returns the committed content of absPath at HEAD. The bool is
// false when HEAD does not exist or does not contain the file.
func (r *Repository) FileAtHead(absPath string) ([]byte, bool, error) {
	rel, err := filepath.Rel(r.root, absPath)
	if err != nil {
		return nil, false, fmt.Errorf("relative path for %s: %w", absPath, err)
	}
	commit, err := r.headCommit()
	if err != nil || commit == nil {
		return nil, false, err
	}
	f, err := commit.File(filepath.ToSlash(rel))
	if errors.Is(err, object.ErrFileNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s at HEAD: %w", rel, err)
	}
	content, err := f.Contents()
	if err != nil {
		return nil, false, fmt.Errorf("read %s at HEAD: %w", rel, err)
	}
	return []byte(content), true, nil
}

// CommitCoAuthor returns the first Co-Authored-By name on the given commit.
func (r *Repository) CommitCoAuthor(hash string) (string, bool, error) {
	c, err := r.repo.CommitObject(plumbing.NewHash(hash))
	if err != nil {
		return "", false, fmt.Errorf("commit %s: %w", hash, err)
	}
	found, name := DetectCoAuthor(c.Message)
	return name, found, nil
}

var coAuthorRe = regexp.MustCompile(`(?im)^\s*co-authored-by:\s*(.+?)(?:\s*<[^>]*>)?\s*$`)

// DetectCoAuthor reports the first Co-Authored-By trailer in a commit
// message. Agents commonly sign their commits this way.
func DetectCoAuthor(message string) (bool, string) {
	m := coAuthorRe.FindStringSubmatch(message)
	if m == nil {
		return false, ""
	}
	return true, strings.TrimSpace(m[1])
}

func (r *Repository) headCommit() (*object.Commit, error) {
	head, err := r.repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get HEAD: %w", err)
	}
	c, err := r.repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("HEAD commit: %w", err)
	}
	return c, nil
}
