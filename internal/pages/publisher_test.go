package pages

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pagesmith/internal/config"
	ferrors "git.home.luguber.info/inful/pagesmith/internal/foundation/errors"
	"git.home.luguber.info/inful/pagesmith/internal/forge"
	"git.home.luguber.info/inful/pagesmith/internal/retry"
)

type fakePagesService struct {
	info      *forge.PagesInfo
	getErr    error
	createErr error

	gets, creates, updates int
}

func (f *fakePagesService) GetPages(context.Context, string) (*forge.PagesInfo, bool, error) {
	f.gets++
	if f.getErr != nil {
		err := f.getErr
		f.getErr = nil
		return nil, false, err
	}
	return f.info, f.info != nil, nil
}

func (f *fakePagesService) CreatePages(_ context.Context, _ string, src forge.PagesSource) error {
	f.creates++
	if f.createErr != nil {
		return f.createErr
	}
	f.info = &forge.PagesInfo{Source: src}
	return nil
}

func (f *fakePagesService) UpdatePages(_ context.Context, _ string, src forge.PagesSource) error {
	f.updates++
	f.info = &forge.PagesInfo{Source: src}
	return nil
}

func (f *fakePagesService) PagesURL(repoName string) string {
	return "https://octocat.github.io/" + repoName + "/"
}

func fastPolicy() retry.Policy {
	return retry.NewPolicy(config.RetryBackoffFixed, time.Millisecond, time.Millisecond, 3)
}

func TestEnablesPagesWhenUnconfigured(t *testing.T) {
	svc := &fakePagesService{}
	p := NewPublisher(svc, fastPolicy())

	url, err := p.EnsurePublished(context.Background(), "site-a", "main")
	require.NoError(t, err)
	require.Equal(t, "https://octocat.github.io/site-a/", url)
	require.Equal(t, 1, svc.creates)
	require.Equal(t, 0, svc.updates)
}

func TestSecondPublishIsReadOnly(t *testing.T) {
	svc := &fakePagesService{}
	p := NewPublisher(svc, fastPolicy())
	ctx := context.Background()

	_, err := p.EnsurePublished(ctx, "site-a", "main")
	require.NoError(t, err)

	url, err := p.EnsurePublished(ctx, "site-a", "main")
	require.NoError(t, err)
	require.Equal(t, "https://octocat.github.io/site-a/", url)
	require.Equal(t, 1, svc.creates, "no second create")
	require.Equal(t, 0, svc.updates, "no update when config matches")
	require.Equal(t, 2, svc.gets)
}

func TestRepointsMismatchedSource(t *testing.T) {
	svc := &fakePagesService{info: &forge.PagesInfo{Source: forge.PagesSource{Branch: "gh-pages", Path: "/"}}}
	p := NewPublisher(svc, fastPolicy())

	_, err := p.EnsurePublished(context.Background(), "site-a", "main")
	require.NoError(t, err)
	require.Equal(t, 0, svc.creates)
	require.Equal(t, 1, svc.updates)
}

func TestConflictOnCreateConvergesViaUpdate(t *testing.T) {
	svc := &fakePagesService{
		createErr: ferrors.ForgeError("GitHub API create pages failed: 409").
			WithContext("status", 409).Build(),
	}
	p := NewPublisher(svc, fastPolicy())

	url, err := p.EnsurePublished(context.Background(), "site-a", "main")
	require.NoError(t, err)
	require.Equal(t, "https://octocat.github.io/site-a/", url)
	require.Equal(t, 1, svc.creates)
	require.Equal(t, 1, svc.updates)
}

func TestIneligibleRepositorySurfacesPagesError(t *testing.T) {
	svc := &fakePagesService{
		createErr: ferrors.ForgeError("GitHub API create pages failed: 422").
			WithContext("status", 422).Build(),
	}
	p := NewPublisher(svc, fastPolicy())

	_, err := p.EnsurePublished(context.Background(), "site-a", "main")
	require.Error(t, err)
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryPages))
	require.Equal(t, 1, svc.creates, "terminal rejection is not retried")
}

func TestTransientLookupFailureIsRetried(t *testing.T) {
	svc := &fakePagesService{
		getErr: ferrors.NetworkError("GitHub API get pages unreachable").Build(),
	}
	p := NewPublisher(svc, fastPolicy())

	_, err := p.EnsurePublished(context.Background(), "site-a", "main")
	require.NoError(t, err)
	require.Equal(t, 2, svc.gets)
	require.Equal(t, 1, svc.creates)
}
