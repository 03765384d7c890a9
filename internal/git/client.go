// Package git prepares local working copies for generated sites and lands
// their content on the remote. It owns the create-or-clone decision and the
// single rebase-and-retry cycle on rejected pushes.
package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	gogit "github.com/go-git/go-git/v5"
	gitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	"git.home.luguber.info/inful/pagesmith/internal/config"
	"git.home.luguber.info/inful/pagesmith/internal/forge"
	ferrors "git.home.luguber.info/inful/pagesmith/internal/foundation/errors"
	"git.home.luguber.info/inful/pagesmith/internal/logfields"
	"git.home.luguber.info/inful/pagesmith/internal/retry"
)

// RemoteProvider is the forge surface the git layer needs: repository
// existence, creation, and the transport coordinates.
type RemoteProvider interface {
	GetRepository(ctx context.Context, name string) (*forge.Repository, bool, error)
	CreateRepository(ctx context.Context, name string) (*forge.Repository, error)
	RemoteURL(name string) string
	Token() string
}

// Manager handles local git operations for one configured account. Forge
// lookups and git transport calls run under the retry policy; only the
// rebase-and-retry cycle on rejected pushes lives outside it.
type Manager struct {
	remotes RemoteProvider
	cfg     config.GitConfig
	policy  retry.Policy
}

// NewManager creates a git manager writing commits as the configured author.
func NewManager(remotes RemoteProvider, cfg config.GitConfig, policy retry.Policy) *Manager {
	return &Manager{remotes: remotes, cfg: cfg, policy: policy}
}

// RepositoryState is a prepared working copy bound to its remote.
type RepositoryState struct {
	RepoName  string
	LocalPath string
	Branch    string
	Existed   bool

	remoteURL string
	repo      *gogit.Repository
}

// ReadFile returns the content of a tracked file in the working copy. The
// second return value is false when the file does not exist.
func (s *RepositoryState) ReadFile(name string) (string, bool) {
	data, err := os.ReadFile(filepath.Join(s.LocalPath, name))
	if err != nil {
		return "", false
	}
	return string(data), true
}

// ResolveAndPrepare makes dir a working copy for the task's repository:
// creating the remote and initializing locally when it does not exist yet,
// cloning when it does. Round and existence disagreeing is tolerated with a
// warning; the caller's intent wins.
func (m *Manager) ResolveAndPrepare(ctx context.Context, repoName string, round int, dir string) (*RepositoryState, error) {
	exists, err := retry.Do(ctx, m.policy, "repository lookup", func(ctx context.Context) (bool, error) {
		_, exists, err := m.remotes.GetRepository(ctx, repoName)
		return exists, err
	})
	if err != nil {
		return nil, err
	}

	state := &RepositoryState{
		RepoName:  repoName,
		LocalPath: dir,
		Branch:    m.cfg.DefaultBranch,
		Existed:   exists,
		remoteURL: m.remotes.RemoteURL(repoName),
	}

	if !exists {
		if round > 1 {
			slog.Warn("revision round for a missing repository, creating it",
				logfields.Repository(repoName), logfields.Round(round))
		}
		if _, err := retry.Do(ctx, m.policy, "repository create", func(ctx context.Context) (struct{}, error) {
			_, err := m.remotes.CreateRepository(ctx, repoName)
			if err != nil && repoAlreadyExists(err) {
				// A prior attempt landed server-side but its response was lost.
				return struct{}{}, nil
			}
			return struct{}{}, err
		}); err != nil {
			return nil, err
		}
		repo, err := m.initLocal(dir, state.remoteURL)
		if err != nil {
			return nil, err
		}
		state.repo = repo
		slog.Info("repository created", logfields.Repository(repoName), logfields.Path(dir))
		return state, nil
	}

	if round == 1 {
		slog.Warn("first round but repository already exists, updating in place",
			logfields.Repository(repoName), logfields.Round(round))
	}

	repo, err := retry.Do(ctx, m.policy, "repository clone", func(ctx context.Context) (*gogit.Repository, error) {
		// An aborted clone leaves a partial checkout behind; start clean.
		if err := clearDir(dir); err != nil {
			return nil, ClassifyGitError(err, "clone", state.remoteURL)
		}
		repo, err := gogit.PlainCloneContext(ctx, dir, false, &gogit.CloneOptions{
			URL:  state.remoteURL,
			Auth: m.auth(),
		})
		if errors.Is(err, transport.ErrEmptyRemoteRepository) {
			// Created earlier but never pushed; behave like a fresh repository.
			return m.initLocal(dir, state.remoteURL)
		}
		if err != nil {
			return nil, ClassifyGitError(err, "clone", state.remoteURL)
		}
		return repo, nil
	})
	if err != nil {
		return nil, err
	}
	state.repo = repo

	if head, err := repo.Head(); err == nil && head.Name().IsBranch() {
		state.Branch = head.Name().Short()
	}
	slog.Info("repository cloned",
		logfields.Repository(repoName), logfields.Branch(state.Branch), logfields.Path(dir))
	return state, nil
}

// CommitAndPush writes files into the working copy, commits them, and pushes
// the branch. A push rejected as non-fast-forward gets exactly one
// reset-to-remote and re-apply cycle before giving up with
// RemoteDivergedError. When the working tree is already identical the current
// head hash is returned without creating an empty commit.
func (m *Manager) CommitAndPush(ctx context.Context, state *RepositoryState, files map[string][]byte, message string) (string, error) {
	sha, err := m.applyAndCommit(state, files, message)
	if err != nil {
		return "", err
	}

	pushErr := m.pushRetried(ctx, state)
	if pushErr == nil {
		return sha, nil
	}
	if !isNonFastForward(pushErr) {
		return "", pushErr
	}

	slog.Warn("push rejected, re-applying onto remote head",
		logfields.Repository(state.RepoName), logfields.Branch(state.Branch))
	if err := m.resetToRemote(ctx, state); err != nil {
		return "", err
	}
	sha, err = m.applyAndCommit(state, files, message)
	if err != nil {
		return "", err
	}
	if err := m.pushRetried(ctx, state); err != nil {
		if isNonFastForward(err) {
			return "", &RemoteDivergedError{Op: "push", URL: state.remoteURL, Branch: state.Branch, Err: err}
		}
		return "", err
	}
	return sha, nil
}

// pushRetried runs push under the retry policy. A non-fast-forward rejection
// is not transient; it surfaces unclassified so the caller can run the
// rebase-and-retry cycle.
func (m *Manager) pushRetried(ctx context.Context, state *RepositoryState) error {
	_, err := retry.Do(ctx, m.policy, "git push", func(ctx context.Context) (struct{}, error) {
		err := m.push(ctx, state)
		if err != nil && !isNonFastForward(err) {
			err = ClassifyGitError(err, "push", state.remoteURL)
		}
		return struct{}{}, err
	})
	return err
}

func (m *Manager) initLocal(dir, remoteURL string) (*gogit.Repository, error) {
	repo, err := gogit.PlainInit(dir, false)
	if err != nil {
		return nil, ClassifyGitError(err, "init", remoteURL)
	}
	head := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(m.cfg.DefaultBranch))
	if err := repo.Storer.SetReference(head); err != nil {
		return nil, ClassifyGitError(err, "init", remoteURL)
	}
	_, err = repo.CreateRemote(&gitcfg.RemoteConfig{
		Name:  "origin",
		URLs:  []string{remoteURL},
		Fetch: []gitcfg.RefSpec{"+refs/heads/*:refs/remotes/origin/*"},
	})
	if err != nil {
		return nil, ClassifyGitError(err, "init", remoteURL)
	}
	return repo, nil
}

func (m *Manager) applyAndCommit(state *RepositoryState, files map[string][]byte, message string) (string, error) {
	wt, err := state.repo.Worktree()
	if err != nil {
		return "", ClassifyGitError(err, "commit", state.remoteURL)
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		full := filepath.Join(state.LocalPath, name)
		if dir := filepath.Dir(full); dir != state.LocalPath {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return "", ClassifyGitError(err, "commit", state.remoteURL)
			}
		}
		if err := os.WriteFile(full, files[name], 0o644); err != nil {
			return "", ClassifyGitError(err, "commit", state.remoteURL)
		}
		if _, err := wt.Add(name); err != nil {
			return "", ClassifyGitError(err, "commit", state.remoteURL)
		}
	}

	status, err := wt.Status()
	if err != nil {
		return "", ClassifyGitError(err, "commit", state.remoteURL)
	}
	if status.IsClean() {
		head, err := state.repo.Head()
		if err != nil {
			return "", GitError("nothing to commit in empty repository").WithCause(err).Build()
		}
		slog.Info("working tree unchanged, reusing head",
			logfields.Repository(state.RepoName), logfields.Commit(head.Hash().String()))
		return head.Hash().String(), nil
	}

	hash, err := wt.Commit(message, &gogit.CommitOptions{
		Author: &object.Signature{
			Name:  m.cfg.AuthorName,
			Email: m.cfg.AuthorEmail,
			When:  time.Now(),
		},
	})
	if err != nil {
		return "", ClassifyGitError(err, "commit", state.remoteURL)
	}
	return hash.String(), nil
}

func (m *Manager) push(ctx context.Context, state *RepositoryState) error {
	refspec := gitcfg.RefSpec(fmt.Sprintf("refs/heads/%s:refs/heads/%s", state.Branch, state.Branch))
	err := state.repo.PushContext(ctx, &gogit.PushOptions{
		RemoteName: "origin",
		RefSpecs:   []gitcfg.RefSpec{refspec},
		Auth:       m.auth(),
	})
	if errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return nil
	}
	return err
}

func (m *Manager) resetToRemote(ctx context.Context, state *RepositoryState) error {
	if _, err := retry.Do(ctx, m.policy, "git fetch", func(ctx context.Context) (struct{}, error) {
		err := state.repo.FetchContext(ctx, &gogit.FetchOptions{
			RemoteName: "origin",
			Auth:       m.auth(),
			Force:      true,
		})
		if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
			return struct{}{}, ClassifyGitError(err, "fetch", state.remoteURL)
		}
		return struct{}{}, nil
	}); err != nil {
		return err
	}

	ref, err := state.repo.Reference(plumbing.NewRemoteReferenceName("origin", state.Branch), true)
	if err != nil {
		return ClassifyGitError(err, "fetch", state.remoteURL)
	}
	wt, err := state.repo.Worktree()
	if err != nil {
		return ClassifyGitError(err, "reset", state.remoteURL)
	}
	if err := wt.Reset(&gogit.ResetOptions{Mode: gogit.HardReset, Commit: ref.Hash()}); err != nil {
		return ClassifyGitError(err, "reset", state.remoteURL)
	}
	return nil
}

func (m *Manager) auth() transport.AuthMethod {
	token := m.remotes.Token()
	if token == "" {
		return nil
	}
	// GitHub accepts any username with a token password over HTTPS.
	return &githttp.BasicAuth{Username: "token", Password: token}
}

func isNonFastForward(err error) bool {
	return err != nil && strings.Contains(err.Error(), "non-fast-forward")
}

// repoAlreadyExists matches the forge's name-taken rejection so repository
// creation stays safe to repeat.
func repoAlreadyExists(err error) bool {
	classified, ok := ferrors.AsClassified(err)
	if !ok {
		return false
	}
	status, ok := classified.Context()["status"].(int)
	if !ok {
		return false
	}
	if status == 409 {
		return true
	}
	body, _ := classified.Context()["body"].(string)
	return status == 422 && strings.Contains(strings.ToLower(body), "already exists")
}

// clearDir empties dir without removing the directory itself.
func clearDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}
