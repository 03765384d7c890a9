// Package orchestrator drives a task through its lifecycle: prepare the
// repository, generate content, commit and push, enable Pages, and report the
// outcome. Exactly one notification leaves the pipeline per task.
package orchestrator

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	ferrors "git.home.luguber.info/inful/pagesmith/internal/foundation/errors"
	"git.home.luguber.info/inful/pagesmith/internal/generator"
	"git.home.luguber.info/inful/pagesmith/internal/git"
	"git.home.luguber.info/inful/pagesmith/internal/logfields"
	"git.home.luguber.info/inful/pagesmith/internal/metrics"
	"git.home.luguber.info/inful/pagesmith/internal/notify"
	"git.home.luguber.info/inful/pagesmith/internal/observability"
	"git.home.luguber.info/inful/pagesmith/internal/task"
	"git.home.luguber.info/inful/pagesmith/internal/workspace"
)

// Generator produces site content for a task.
type Generator interface {
	Generate(ctx context.Context, t *task.Task, priorFiles map[string]string) (*generator.GeneratedSite, error)
}

// RepoManager prepares working copies and lands commits on the remote.
type RepoManager interface {
	ResolveAndPrepare(ctx context.Context, repoName string, round int, dir string) (*git.RepositoryState, error)
	CommitAndPush(ctx context.Context, state *git.RepositoryState, files map[string][]byte, message string) (string, error)
}

// Publisher drives Pages configuration toward the pushed branch.
type Publisher interface {
	EnsurePublished(ctx context.Context, repoName, branch string) (string, error)
}

// Notifier reports terminal outcomes to the task issuer.
type Notifier interface {
	NotifySuccess(ctx context.Context, t *task.Task, res notify.Result) error
	NotifyFailure(ctx context.Context, t *task.Task, taskErr error) error
}

// RepoLinker derives browsable repository URLs.
type RepoLinker interface {
	RepoHTMLURL(repoName string) string
}

// Deps wires the orchestrator's collaborators. Recorder may be nil.
type Deps struct {
	Generator  Generator
	Repos      RepoManager
	Publisher  Publisher
	Notifier   Notifier
	Links      RepoLinker
	Workspaces *workspace.Manager
	Recorder   metrics.Recorder
}

// Orchestrator processes tasks one call at a time; concurrent Runs for
// distinct tasks are safe.
type Orchestrator struct {
	deps     Deps
	inFlight atomic.Int64
}

// New creates an orchestrator from its collaborators.
func New(deps Deps) *Orchestrator {
	if deps.Recorder == nil {
		deps.Recorder = metrics.NoopRecorder{}
	}
	return &Orchestrator{deps: deps}
}

// Run processes one task to a terminal state. The returned state is COMPLETED
// or FAILED; the error explains a FAILED outcome. Failures inside the
// pipeline still produce a notification, so issuers never wait forever.
func (o *Orchestrator) Run(ctx context.Context, t *task.Task) (State, error) {
	start := time.Now()
	rec := o.deps.Recorder
	rec.SetTasksInFlight(int(o.inFlight.Add(1)))
	defer func() {
		rec.SetTasksInFlight(int(o.inFlight.Add(-1)))
		rec.ObserveTaskDuration(time.Since(start))
	}()

	ctx = observability.WithTask(ctx, t.ID, t.Round)
	observability.InfoContext(ctx, "task accepted",
		logfields.Repository(t.RepoName), logfields.Round(t.Round))

	st := StateReceived
	res, runErr := o.executeSafe(ctx, t, &st)

	if err := advance(&st, StateNotifying); err != nil {
		// The pipeline can always notify; failing here is a sequencing bug.
		runErr = err
	}
	ctx = observability.WithStage(ctx, "notifying")

	if runErr != nil {
		observability.ErrorContext(ctx, "task failed", logfields.Error(runErr))
		if nerr := o.deps.Notifier.NotifyFailure(ctx, t, runErr); nerr != nil {
			// Best effort; the task is already lost.
			observability.WarnContext(ctx, "failure notification undeliverable", logfields.Error(nerr))
			rec.IncNotification(false)
		} else {
			rec.IncNotification(true)
		}
		_ = advance(&st, StateFailed)
		rec.IncTaskOutcome("failed")
		return st, runErr
	}

	if err := o.deps.Notifier.NotifySuccess(ctx, t, res); err != nil {
		observability.ErrorContext(ctx, "success notification undeliverable", logfields.Error(err))
		rec.IncNotification(false)
		_ = advance(&st, StateFailed)
		rec.IncTaskOutcome("failed")
		return st, err
	}
	rec.IncNotification(true)

	_ = advance(&st, StateCompleted)
	rec.IncTaskOutcome("completed")
	observability.InfoContext(ctx, "task completed",
		logfields.Commit(res.CommitSHA), logfields.URL(res.PagesURL),
		logfields.DurationMS(time.Since(start)))
	return st, nil
}

// executeSafe shields the notification path from panics in collaborators.
func (o *Orchestrator) executeSafe(ctx context.Context, t *task.Task, st *State) (res notify.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ferrors.InternalError(fmt.Sprintf("panic while processing task: %v", r)).Fatal().Build()
		}
	}()
	return o.execute(ctx, t, st)
}

func (o *Orchestrator) execute(ctx context.Context, t *task.Task, st *State) (notify.Result, error) {
	ws, err := o.deps.Workspaces.Acquire(t.ID)
	if err != nil {
		return notify.Result{}, err
	}
	defer func() {
		if rmErr := ws.Remove(); rmErr != nil {
			observability.WarnContext(ctx, "workspace cleanup failed", logfields.Error(rmErr))
		}
	}()

	repoState, err := runStage(o, ctx, st, StatePreparingRepo, "preparing_repo",
		func(ctx context.Context) (*git.RepositoryState, error) {
			return o.deps.Repos.ResolveAndPrepare(ctx, t.RepoName, t.Round, ws.Path)
		})
	if err != nil {
		return notify.Result{}, err
	}

	var priorFiles map[string]string
	if t.Round > 1 && repoState.Existed {
		priorFiles = readPriorFiles(repoState)
	}

	site, err := runStage(o, ctx, st, StateGenerating, "generating",
		func(ctx context.Context) (*generator.GeneratedSite, error) {
			return o.deps.Generator.Generate(ctx, t, priorFiles)
		})
	if err != nil {
		return notify.Result{}, err
	}

	files := site.Bytes()
	for _, a := range t.Attachments {
		// Attachments land next to the generated files so the markup can
		// reference them by name.
		files[a.Name] = a.Data
	}
	message := fmt.Sprintf("Task: %s | Round: %d", t.ID, t.Round)

	sha, err := runStage(o, ctx, st, StateCommitting, "committing",
		func(ctx context.Context) (string, error) {
			return o.deps.Repos.CommitAndPush(ctx, repoState, files, message)
		})
	if err != nil {
		return notify.Result{}, err
	}

	pagesURL, err := runStage(o, ctx, st, StatePublishing, "publishing",
		func(ctx context.Context) (string, error) {
			return o.deps.Publisher.EnsurePublished(ctx, t.RepoName, repoState.Branch)
		})
	if err != nil {
		return notify.Result{}, err
	}

	return notify.Result{
		RepoURL:   o.deps.Links.RepoHTMLURL(t.RepoName),
		CommitSHA: sha,
		PagesURL:  pagesURL,
	}, nil
}

// runStage advances the lifecycle, times the stage, and records its outcome.
func runStage[T any](o *Orchestrator, ctx context.Context, st *State, target State, name string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := advance(st, target); err != nil {
		return zero, err
	}
	ctx = observability.WithStage(ctx, name)
	observability.DebugContext(ctx, "stage started")

	start := time.Now()
	out, err := fn(ctx)
	o.deps.Recorder.ObserveStageDuration(name, time.Since(start))

	if err != nil {
		result := metrics.ResultFailure
		if ctx.Err() != nil {
			result = metrics.ResultCanceled
		}
		o.deps.Recorder.IncStageResult(name, result)
		return zero, err
	}
	o.deps.Recorder.IncStageResult(name, metrics.ResultSuccess)
	observability.DebugContext(ctx, "stage finished", logfields.DurationMS(time.Since(start)))
	return out, nil
}

func readPriorFiles(state *git.RepositoryState) map[string]string {
	prior := make(map[string]string, len(generator.RequiredFiles))
	for _, name := range generator.RequiredFiles {
		if content, ok := state.ReadFile(name); ok {
			prior[name] = content
		}
	}
	if len(prior) == 0 {
		return nil
	}
	return prior
}
