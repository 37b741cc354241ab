package gitint

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

func TestDetectCoAuthor(t *testing.T) {
	cases := []struct {
		name      string
		message   string
		wantFound bool
		wantName  string
	}{
		{"trailer with email", "feat: retry queue\n\nCo-Authored-By: planner-1 <p1@agents.local>", true, "planner-1"},
		{"lowercase key", "fix: flaky test\n\nco-authored-by: codegen 2 <cg@agents.local>", true, "codegen 2"},
		{"name only", "chore: bump deps\n\nCo-Authored-By: refactor-bot", true, "refactor-bot"},
		{"mentioned in prose", "docs: explain the co-authored-by: convention", false, ""},
		{"no trailer", "feat: add feature\n\nSome description.", false, ""},
		{"empty message", "", false, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			found, name := DetectCoAuthor(tc.message)
			if found != tc.wantFound || name != tc.wantName {
				t.Errorf("DetectCoAuthor = (%v, %q), want (%v, %q)", found, name, tc.wantFound, tc.wantName)
			}
		})
	}
}

func TestOpen_NotRepository(t *testing.T) {
	_, err := Open(t.TempDir())
	if !errors.Is(err, ErrNotRepository) {
		t.Fatalf("Open = %v, want ErrNotRepository", err)
	}
}

func TestHeadLookups(t *testing.T) {
	tmpDir := t.TempDir()
	repo := initTestRepo(t, tmpDir)

	r, err := Open(tmpDir)
	if err != nil {
		t.Fatal(err)
	}
	if h, err := r.HeadCommit(); err != nil || h != "" {
		t.Fatalf("HeadCommit on empty repo = %q, %v", h, err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(tmpDir, "src"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, tmpDir, "src/app.js", "import a from './a'\nconsole.log(a)\n")
	if _, err := wt.Add("src/app.js"); err != nil {
		t.Fatal(err)
	}
	hash, err := wt.Commit("feat: app\n\nCo-Authored-By: agent-7 <a7@example.com>", &gogit.CommitOptions{Author: testAuthor()})
	if err != nil {
		t.Fatal(err)
	}

	// Open from a subdirectory to exercise DetectDotGit.
	r, err = Open(filepath.Join(tmpDir, "src"))
	if err != nil {
		t.Fatal(err)
	}
	head, err := r.HeadCommit()
	if err != nil {
		t.Fatal(err)
	}
	if head != hash.String() {
		t.Errorf("HeadCommit = %s, want %s", head, hash)
	}

	writeFile(t, tmpDir, "src/app.js", "changed\n")
	content, ok, err := r.FileAtHead(filepath.Join(tmpDir, "src", "app.js"))
	if err != nil || !ok {
		t.Fatalf("FileAtHead ok=%v err=%v", ok, err)
	}
	if string(content) != "import a from './a'\nconsole.log(a)\n" {
		t.Errorf("FileAtHead = %q, want committed content", content)
	}

	if _, ok, err := r.FileAtHead(filepath.Join(tmpDir, "src", "new.js")); ok || err != nil {
		t.Errorf("FileAtHead(untracked) ok=%v err=%v", ok, err)
	}

	name, found, err := r.CommitCoAuthor(head)
	if err != nil || !found || name != "agent-7" {
		t.Errorf("CommitCoAuthor = %q %v %v", name, found, err)
	}
}

func initTestRepo(t *testing.T, dir string) *gogit.Repository {
	t.Helper()
	repo, err := gogit.PlainInit(dir, false)
	if err != nil {
		t.Fatal(err)
	}
	return repo
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func testAuthor() *object.Signature {
	return &object.Signature{
		Name:  "Test Author",
		Email: "test@example.com",
		When:  time.Now(),
	}
}
