// Package pages reconciles a repository's GitHub Pages configuration toward
// the desired branch and root path.
package pages

import (
	"context"
	"log/slog"

	ferrors "git.home.luguber.info/inful/pagesmith/internal/foundation/errors"
	"git.home.luguber.info/inful/pagesmith/internal/forge"
	"git.home.luguber.info/inful/pagesmith/internal/logfields"
	"git.home.luguber.info/inful/pagesmith/internal/retry"
)

// PagesService is the forge surface the publisher needs.
type PagesService interface {
	GetPages(ctx context.Context, repoName string) (*forge.PagesInfo, bool, error)
	CreatePages(ctx context.Context, repoName string, src forge.PagesSource) error
	UpdatePages(ctx context.Context, repoName string, src forge.PagesSource) error
	PagesURL(repoName string) string
}

// Publisher enables Pages idempotently: repeated calls for an already
// configured repository perform no mutating API calls.
type Publisher struct {
	forge  PagesService
	policy retry.Policy
}

// NewPublisher creates a publisher using the given retry policy for
// transient API failures.
func NewPublisher(svc PagesService, policy retry.Policy) *Publisher {
	return &Publisher{forge: svc, policy: policy}
}

// EnsurePublished drives the repository's Pages configuration to serve the
// given branch from the root path and returns the public site URL. The URL is
// derived from the account and repository name, not read back from the API;
// GitHub reports it asynchronously and the derived form is authoritative.
func (p *Publisher) EnsurePublished(ctx context.Context, repoName, branch string) (string, error) {
	target := forge.PagesSource{Branch: branch, Path: "/"}

	_, err := retry.Do(ctx, p.policy, "pages publish", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, p.reconcile(ctx, repoName, target)
	})
	if err != nil {
		return "", ferrors.PagesError("pages configuration failed").
			WithCause(err).
			WithContext("repository", repoName).Build()
	}
	return p.forge.PagesURL(repoName), nil
}

func (p *Publisher) reconcile(ctx context.Context, repoName string, target forge.PagesSource) error {
	info, configured, err := p.forge.GetPages(ctx, repoName)
	if err != nil {
		return err
	}

	if configured {
		if info.Matches(target) {
			slog.Debug("pages already configured", logfields.Repository(repoName), logfields.Branch(target.Branch))
			return nil
		}
		slog.Info("repointing pages source", logfields.Repository(repoName), logfields.Branch(target.Branch))
		return p.forge.UpdatePages(ctx, repoName, target)
	}

	err = p.forge.CreatePages(ctx, repoName, target)
	if err == nil {
		slog.Info("pages enabled", logfields.Repository(repoName), logfields.Branch(target.Branch))
		return nil
	}
	// A conflict means someone configured Pages between our check and the
	// create; converge by updating instead.
	if isAlreadyConfigured(err) {
		slog.Debug("pages appeared concurrently, updating", logfields.Repository(repoName))
		return p.forge.UpdatePages(ctx, repoName, target)
	}
	return err
}

func isAlreadyConfigured(err error) bool {
	classified, ok := ferrors.AsClassified(err)
	if !ok {
		return false
	}
	status, ok := classified.Context()["status"].(int)
	return ok && status == 409
}
