// Package planrepo keeps a git-backed revision history for every care plan.
// Each plan gets its own repository with a single main branch; every finalize
// or assignment change commits a full content snapshot.
package planrepo

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// PlanContent is the snapshot committed for every plan revision.
type PlanContent struct {
	Title        string   `json:"title"`
	Status       string   `json:"status"`
	ProviderName string   `json:"providerName"`
	StaffIDs     []string `json:"staffIds"`
	PrimaryStaff string   `json:"primaryStaff,omitempty"`
	Monitoring   bool     `json:"monitoring"`
}

// Revision describes one commit in a plan's history.
type Revision struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// EnsurePlanRepo initializes the repository for a plan with a baseline commit.
// Calling it for an existing plan is a no-op.
func (s *Service) EnsurePlanRepo(carePlanID string, initial PlanContent, author string) error {
	lock := s.planLock(carePlanID)
	lock.Lock()
	defer lock.Unlock()

	path := s.repoPath(carePlanID)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat repo path: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create repo dir: %w", err)
	}

	repo, err := git.PlainInit(path, false)
	if err != nil {
		return fmt.Errorf("init repo: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	payload, err := json.MarshalIndent(initial, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal initial content: %w", err)
	}
	if err := os.WriteFile(filepath.Join(path, "plan.json"), append(payload, '\n'), 0o644); err != nil {
		return fmt.Errorf("write initial content: %w", err)
	}
	if _, err := worktree.Add("plan.json"); err != nil {
		return fmt.Errorf("git add initial content: %w", err)
	}
	hash, err := worktree.Commit("Create care plan", &git.CommitOptions{
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@local.carelink.dev", sanitizeEmail(author)),
			When:  time.Now(),
		},
	})
	if err != nil {
		return fmt.Errorf("commit initial content: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName("main"), hash)); err != nil {
		return fmt.Errorf("set main branch ref: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))); err != nil {
		return fmt.Errorf("set HEAD to main: %w", err)
	}
	return nil
}

// CommitSnapshot records a new plan revision. No-change snapshots still
// commit so the audit trail shows who touched the plan and when.
func (s *Service) CommitSnapshot(carePlanID string, content PlanContent, author, message string) (Revision, error) {
	lock := s.planLock(carePlanID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(carePlanID))
	if err != nil {
		return Revision{}, fmt.Errorf("open repo: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return Revision{}, fmt.Errorf("open worktree: %w", err)
	}

	payload, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return Revision{}, fmt.Errorf("marshal content: %w", err)
	}

	repoRoot := worktree.Filesystem.Root()
	if err := os.WriteFile(filepath.Join(repoRoot, "plan.json"), append(payload, '\n'), 0o644); err != nil {
		return Revision{}, fmt.Errorf("write plan.json: %w", err)
	}

	if _, err := worktree.Add("plan.json"); err != nil {
		return Revision{}, fmt.Errorf("git add content: %w", err)
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: true,
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@local.carelink.dev", sanitizeEmail(author)),
			When:  time.Now(),
		},
	})
	if err != nil {
		return Revision{}, fmt.Errorf("commit content: %w", err)
	}

	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return Revision{}, fmt.Errorf("read commit object: %w", err)
	}
	return toRevision(commitObj), nil
}

// GetHeadContent returns the latest snapshot and its revision.
func (s *Service) GetHeadContent(carePlanID string) (PlanContent, Revision, error) {
	lock := s.planLock(carePlanID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(carePlanID))
	if err != nil {
		return PlanContent{}, Revision{}, fmt.Errorf("open repo: %w", err)
	}

	ref, err := repo.Reference(plumbing.NewBranchReferenceName("main"), true)
	if err != nil {
		return PlanContent{}, Revision{}, fmt.Errorf("resolve main: %w", err)
	}

	commitObj, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return PlanContent{}, Revision{}, fmt.Errorf("load commit object: %w", err)
	}

	content, err := readContentFromCommit(commitObj)
	if err != nil {
		return PlanContent{}, Revision{}, err
	}

	return content, toRevision(commitObj), nil
}

// GetRevision returns the snapshot stored at a specific commit hash.
func (s *Service) GetRevision(carePlanID, hash string) (PlanContent, Revision, error) {
	lock := s.planLock(carePlanID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(carePlanID))
	if err != nil {
		return PlanContent{}, Revision{}, fmt.Errorf("open repo: %w", err)
	}

	resolvedHash, err := resolveHash(repo, hash)
	if err != nil {
		return PlanContent{}, Revision{}, err
	}
	commitObj, err := repo.CommitObject(resolvedHash)
	if err != nil {
		return PlanContent{}, Revision{}, fmt.Errorf("read commit %s: %w", hash, err)
	}
	content, err := readContentFromCommit(commitObj)
	if err != nil {
		return PlanContent{}, Revision{}, err
	}
	return content, toRevision(commitObj), nil
}

// History lists revisions newest first, up to limit (0 = all).
func (s *Service) History(carePlanID string, limit int) ([]Revision, error) {
	lock := s.planLock(carePlanID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(carePlanID))
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	ref, err := repo.Reference(plumbing.NewBranchReferenceName("main"), true)
	if err != nil {
		return nil, fmt.Errorf("resolve main: %w", err)
	}

	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]Revision, 0, limit)
	count := 0
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toRevision(commitObj))
		count++
		if limit > 0 && count >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

func (s *Service) repoPath(carePlanID string) string {
	return filepath.Join(s.baseDir, carePlanID)
}

func (s *Service) planLock(carePlanID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[carePlanID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[carePlanID] = lock
	return lock
}

func readContentFromCommit(commitObj *object.Commit) (PlanContent, error) {
	file, err := commitObj.File("plan.json")
	if err != nil {
		return PlanContent{}, fmt.Errorf("load plan.json from commit: %w", err)
	}
	reader, err := file.Reader()
	if err != nil {
		return PlanContent{}, fmt.Errorf("open content reader: %w", err)
	}
	defer reader.Close()

	bytes, err := io.ReadAll(reader)
	if err != nil {
		return PlanContent{}, fmt.Errorf("read content bytes: %w", err)
	}

	var content PlanContent
	if err := json.Unmarshal(bytes, &content); err != nil {
		return PlanContent{}, fmt.Errorf("decode commit content: %w", err)
	}
	return content, nil
}

func toRevision(commitObj *object.Commit) Revision {
	return Revision{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func sanitizeEmail(input string) string {
	bytes := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			bytes = append(bytes, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			bytes = append(bytes, '.')
		}
	}
	if len(bytes) == 0 {
		return "user"
	}
	return string(bytes)
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve hash %s: %w", hash, err)
	}
	return *resolved, nil
}
