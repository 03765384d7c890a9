package git

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/pagesmith/internal/foundation/errors"
)

func TestClassifyGitError(t *testing.T) {
	cases := []struct {
		raw       string
		category  ferrors.ErrorCategory
		transient bool
		typed     any
	}{
		{"authentication failed for repo", ferrors.CategoryAuth, false, &AuthError{}},
		{"repository not found", ferrors.CategoryNotFound, false, &NotFoundError{}},
		{"rate limit exceeded", ferrors.CategoryNetwork, true, &RateLimitError{}},
		{"read tcp: i/o timeout", ferrors.CategoryNetwork, true, &NetworkTimeoutError{}},
		{"something else entirely", ferrors.CategoryGit, false, nil},
	}

	for _, c := range cases {
		err := ClassifyGitError(fmt.Errorf("%s", c.raw), "push", "https://example.com/r.git")
		require.Equal(t, c.category, ferrors.GetCategory(err), c.raw)
		require.Equal(t, c.transient, ferrors.IsTransient(err), c.raw)

		switch c.typed.(type) {
		case *AuthError:
			var target *AuthError
			require.True(t, stderrors.As(err, &target), c.raw)
			require.Equal(t, "push", target.Op)
		case *NotFoundError:
			var target *NotFoundError
			require.True(t, stderrors.As(err, &target), c.raw)
		case *RateLimitError:
			var target *RateLimitError
			require.True(t, stderrors.As(err, &target), c.raw)
		case *NetworkTimeoutError:
			var target *NetworkTimeoutError
			require.True(t, stderrors.As(err, &target), c.raw)
		}
	}
}

func TestClassifyPreservesAlreadyClassified(t *testing.T) {
	orig := ferrors.AuthError("token rejected").Build()
	require.Equal(t, orig, ClassifyGitError(orig, "push", "u"))
}

func TestClassifyNil(t *testing.T) {
	require.NoError(t, ClassifyGitError(nil, "push", "u"))
}
