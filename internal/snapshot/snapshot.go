// Package snapshot keeps a per-document version history on disk: one git
// repository per canonical key, a single main branch, one markdown file per
// repo. Snapshots work for local-only documents too — history does not depend
// on cloud sync.
package snapshot

import (
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

const contentFile = "document.md"

// Info describes one saved snapshot.
type Info struct {
	Hash      string
	Message   string
	Author    string
	CreatedAt time.Time
}

// Service owns the snapshot repositories under one base directory. Access to
// each document's repo is serialized with a per-key lock.
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

// Ensure initializes the repository for a document with its current content
// as the baseline snapshot. Calling it for an existing repository is a no-op.
func (s *Service) Ensure(key string, markdown []byte, author string) error {
	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	path := s.repoPath(key)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat snapshot repo: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	repo, err := git.PlainInit(path, false)
	if err != nil {
		return fmt.Errorf("init snapshot repo: %w", err)
	}

	if _, err := s.commit(repo, path, markdown, author, "Baseline snapshot"); err != nil {
		return err
	}
	return nil
}

// Save records a new snapshot of the document content.
func (s *Service) Save(key string, markdown []byte, author, message string) (Info, error) {
	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	path := s.repoPath(key)
	repo, err := git.PlainOpen(path)
	if err != nil {
		return Info{}, fmt.Errorf("open snapshot repo: %w", err)
	}
	if message == "" {
		message = "Snapshot"
	}
	hash, err := s.commit(repo, path, markdown, author, message)
	if err != nil {
		return Info{}, err
	}
	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return Info{}, fmt.Errorf("read snapshot commit: %w", err)
	}
	return toInfo(commitObj), nil
}

// History lists snapshots newest-first. limit <= 0 means unbounded.
func (s *Service) History(key string, limit int) ([]Info, error) {
	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(key))
	if err != nil {
		return nil, fmt.Errorf("open snapshot repo: %w", err)
	}
	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolve head: %w", err)
	}
	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read snapshot log: %w", err)
	}
	defer iter.Close()

	var items []Info
	count := 0
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toInfo(commitObj))
		count++
		if limit > 0 && count >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate snapshot log: %w", err)
	}
	return items, nil
}

// Restore returns the document content as of a snapshot hash. Abbreviated
// hashes are resolved through the repository.
func (s *Service) Restore(key, hash string) ([]byte, error) {
	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(key))
	if err != nil {
		return nil, fmt.Errorf("open snapshot repo: %w", err)
	}
	resolved, err := resolveHash(repo, hash)
	if err != nil {
		return nil, err
	}
	commitObj, err := repo.CommitObject(resolved)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", hash, err)
	}
	file, err := commitObj.File(contentFile)
	if err != nil {
		return nil, fmt.Errorf("load %s from snapshot: %w", contentFile, err)
	}
	reader, err := file.Reader()
	if err != nil {
		return nil, fmt.Errorf("open snapshot content: %w", err)
	}
	defer reader.Close()
	return io.ReadAll(reader)
}

func (s *Service) commit(repo *git.Repository, path string, markdown []byte, author, message string) (plumbing.Hash, error) {
	worktree, err := repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("open worktree: %w", err)
	}
	if err := os.WriteFile(filepath.Join(path, contentFile), markdown, 0o644); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("write snapshot content: %w", err)
	}
	if _, err := worktree.Add(contentFile); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("stage snapshot content: %w", err)
	}
	if author == "" {
		author = "inkwell"
	}
	hash, err := worktree.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: true,
		Author: &object.Signature{
			Name:  author,
			Email: author + "@local.inkwell.dev",
			When:  time.Now(),
		},
	})
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("commit snapshot: %w", err)
	}
	return hash, nil
}

func (s *Service) repoPath(key string) string {
	return filepath.Join(s.baseDir, key)
}

func (s *Service) keyLock(key string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	return lock
}

func toInfo(commitObj *object.Commit) Info {
	return Info{
		Hash:      commitObj.Hash.String(),
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve snapshot hash %s: %w", hash, err)
	}
	return *resolved, nil
}
