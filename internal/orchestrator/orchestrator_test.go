package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/pagesmith/internal/foundation/errors"
	"git.home.luguber.info/inful/pagesmith/internal/generator"
	"git.home.luguber.info/inful/pagesmith/internal/git"
	"git.home.luguber.info/inful/pagesmith/internal/notify"
	"git.home.luguber.info/inful/pagesmith/internal/task"
	"git.home.luguber.info/inful/pagesmith/internal/workspace"
)

type fakeGenerator struct {
	site     *generator.GeneratedSite
	err      error
	panicMsg string
	calls    int
	gotPrior map[string]string
}

func (f *fakeGenerator) Generate(_ context.Context, _ *task.Task, prior map[string]string) (*generator.GeneratedSite, error) {
	f.calls++
	f.gotPrior = prior
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	return f.site, f.err
}

type fakeRepos struct {
	existed bool
	prior   map[string]string
	prepErr error

	sha       string
	commitErr error

	prepCalls   int
	commitCalls int
	gotFiles    map[string][]byte
	gotMessage  string
}

func (f *fakeRepos) ResolveAndPrepare(_ context.Context, repoName string, _ int, dir string) (*git.RepositoryState, error) {
	f.prepCalls++
	if f.prepErr != nil {
		return nil, f.prepErr
	}
	for name, content := range f.prior {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			return nil, err
		}
	}
	return &git.RepositoryState{RepoName: repoName, LocalPath: dir, Branch: "main", Existed: f.existed}, nil
}

func (f *fakeRepos) CommitAndPush(_ context.Context, _ *git.RepositoryState, files map[string][]byte, message string) (string, error) {
	f.commitCalls++
	f.gotFiles = files
	f.gotMessage = message
	if f.commitErr != nil {
		return "", f.commitErr
	}
	return f.sha, nil
}

type fakePublisher struct {
	url   string
	err   error
	calls int
}

func (f *fakePublisher) EnsurePublished(_ context.Context, _, _ string) (string, error) {
	f.calls++
	return f.url, f.err
}

type fakeNotifier struct {
	successErr error

	successes  int
	failures   int
	lastResult notify.Result
	lastErr    error
}

func (f *fakeNotifier) NotifySuccess(_ context.Context, _ *task.Task, res notify.Result) error {
	f.successes++
	f.lastResult = res
	return f.successErr
}

func (f *fakeNotifier) NotifyFailure(_ context.Context, _ *task.Task, taskErr error) error {
	f.failures++
	f.lastErr = taskErr
	return nil
}

type fakeLinker struct{}

func (fakeLinker) RepoHTMLURL(repoName string) string {
	return "https://github.com/octocat/" + repoName
}

func goodSite() *generator.GeneratedSite {
	return &generator.GeneratedSite{Files: map[string]string{
		"index.html": "<h1>hi</h1>",
		"README.md":  "# hi",
		"LICENSE":    "MIT",
	}}
}

type fixture struct {
	gen   *fakeGenerator
	repos *fakeRepos
	pub   *fakePublisher
	notes *fakeNotifier
	orch  *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		gen:   &fakeGenerator{site: goodSite()},
		repos: &fakeRepos{sha: "abc123"},
		pub:   &fakePublisher{url: "https://octocat.github.io/site-a/"},
		notes: &fakeNotifier{},
	}
	f.orch = New(Deps{
		Generator:  f.gen,
		Repos:      f.repos,
		Publisher:  f.pub,
		Notifier:   f.notes,
		Links:      fakeLinker{},
		Workspaces: workspace.NewManager(t.TempDir()),
	})
	return f
}

func TestRoundOneHappyPath(t *testing.T) {
	f := newFixture(t)
	tsk := &task.Task{ID: "site a", Round: 1, RepoName: "site-a", Description: "landing page"}

	st, err := f.orch.Run(context.Background(), tsk)
	require.NoError(t, err)
	require.Equal(t, StateCompleted, st)

	require.Equal(t, 1, f.repos.prepCalls)
	require.Equal(t, 1, f.repos.commitCalls)
	require.Equal(t, 1, f.pub.calls)
	require.Equal(t, 1, f.notes.successes)
	require.Equal(t, 0, f.notes.failures)

	require.Equal(t, "Task: site a | Round: 1", f.repos.gotMessage)
	require.Contains(t, f.repos.gotFiles, "index.html")
	require.Contains(t, f.repos.gotFiles, "README.md")
	require.Contains(t, f.repos.gotFiles, "LICENSE")

	require.Equal(t, "abc123", f.notes.lastResult.CommitSHA)
	require.Equal(t, "https://github.com/octocat/site-a", f.notes.lastResult.RepoURL)
	require.Equal(t, "https://octocat.github.io/site-a/", f.notes.lastResult.PagesURL)
	require.Nil(t, f.gen.gotPrior, "round one passes no prior files")
}

func TestRevisionFeedsPriorFilesToGenerator(t *testing.T) {
	f := newFixture(t)
	f.repos.existed = true
	f.repos.prior = map[string]string{"index.html": "<h1>old</h1>"}
	tsk := &task.Task{ID: "site a", Round: 2, RepoName: "site-a", Description: "add contact section"}

	st, err := f.orch.Run(context.Background(), tsk)
	require.NoError(t, err)
	require.Equal(t, StateCompleted, st)
	require.Equal(t, "<h1>old</h1>", f.gen.gotPrior["index.html"])
	require.Equal(t, 1, f.repos.prepCalls, "existing repository is cloned, not recreated")
}

func TestGenerationFailureSkipsCommitAndReportsFailure(t *testing.T) {
	f := newFixture(t)
	f.gen.site = nil
	f.gen.err = ferrors.ModelError("generation output incomplete").Build()
	tsk := &task.Task{ID: "site a", Round: 1, RepoName: "site-a", Description: "x"}

	st, err := f.orch.Run(context.Background(), tsk)
	require.Error(t, err)
	require.Equal(t, StateFailed, st)
	require.Equal(t, 0, f.repos.commitCalls, "no commit after failed generation")
	require.Equal(t, 0, f.pub.calls)
	require.Equal(t, 1, f.notes.failures)
	require.Equal(t, 0, f.notes.successes)
	require.ErrorContains(t, f.notes.lastErr, "generation output incomplete")
}

func TestAttachmentsLandNextToGeneratedFiles(t *testing.T) {
	f := newFixture(t)
	tsk := &task.Task{
		ID: "site a", Round: 1, RepoName: "site-a", Description: "x",
		Attachments: []task.Attachment{{Name: "logo.png", MIME: "image/png", Data: []byte{9, 9}}},
	}

	_, err := f.orch.Run(context.Background(), tsk)
	require.NoError(t, err)
	require.Equal(t, []byte{9, 9}, f.repos.gotFiles["logo.png"])
}

func TestUndeliverableSuccessNotificationFailsTask(t *testing.T) {
	f := newFixture(t)
	f.notes.successErr = ferrors.NotifyError("callback rejected: 400").Build()
	tsk := &task.Task{ID: "site a", Round: 1, RepoName: "site-a", Description: "x"}

	st, err := f.orch.Run(context.Background(), tsk)
	require.Error(t, err)
	require.Equal(t, StateFailed, st)
	require.Equal(t, 1, f.notes.successes)
	require.Equal(t, 0, f.notes.failures, "no second notification after a success attempt")
}

func TestPanicInCollaboratorIsReportedAsFailure(t *testing.T) {
	f := newFixture(t)
	f.gen.panicMsg = "nil deref in prompt builder"
	tsk := &task.Task{ID: "site a", Round: 1, RepoName: "site-a", Description: "x"}

	st, err := f.orch.Run(context.Background(), tsk)
	require.Error(t, err)
	require.Equal(t, StateFailed, st)
	require.Equal(t, 1, f.notes.failures)
	require.ErrorContains(t, err, "panic while processing task")
}

func TestWorkspaceRemovedAfterEitherOutcome(t *testing.T) {
	base := t.TempDir()
	f := &fixture{
		gen:   &fakeGenerator{site: goodSite()},
		repos: &fakeRepos{sha: "abc123"},
		pub:   &fakePublisher{url: "https://octocat.github.io/site-a/"},
		notes: &fakeNotifier{},
	}
	f.orch = New(Deps{
		Generator:  f.gen,
		Repos:      f.repos,
		Publisher:  f.pub,
		Notifier:   f.notes,
		Links:      fakeLinker{},
		Workspaces: workspace.NewManager(base),
	})
	tsk := &task.Task{ID: "site a", Round: 1, RepoName: "site-a", Description: "x"}

	st, err := f.orch.Run(context.Background(), tsk)
	require.NoError(t, err)
	require.Equal(t, StateCompleted, st)
	entries, err := os.ReadDir(base)
	require.NoError(t, err)
	require.Empty(t, entries, "working directory removed after completion")

	f.gen.site = nil
	f.gen.err = ferrors.ModelError("generation output incomplete").Build()
	st, err = f.orch.Run(context.Background(), tsk)
	require.Error(t, err)
	require.Equal(t, StateFailed, st)
	entries, err = os.ReadDir(base)
	require.NoError(t, err)
	require.Empty(t, entries, "working directory removed after failure")
}

func TestRepoPreparationFailureIsTerminal(t *testing.T) {
	f := newFixture(t)
	f.repos.prepErr = ferrors.AuthError("GitHub API get repository failed: 401").Build()
	tsk := &task.Task{ID: "site a", Round: 1, RepoName: "site-a", Description: "x"}

	st, err := f.orch.Run(context.Background(), tsk)
	require.Error(t, err)
	require.Equal(t, StateFailed, st)
	require.Equal(t, 0, f.gen.calls, "no generation without a repository")
	require.Equal(t, 1, f.notes.failures)
}
