package git

import (
	"strings"

	"git.home.luguber.info/inful/pagesmith/internal/foundation/errors"
)

// GitError simplifies creating a git-scoped ClassifiedError.
func GitError(message string) *errors.ErrorBuilder {
	return errors.NewError(errors.CategoryGit, message)
}

// ClassifyGitError translates go-git transport errors into ClassifiedErrors
// wrapping a typed cause, so the retry layer can distinguish transient from
// terminal and callers can match with errors.As.
func ClassifyGitError(err error, op string, url string) error {
	if err == nil {
		return nil
	}

	// Already classified
	if _, ok := errors.AsClassified(err); ok {
		return err
	}

	l := strings.ToLower(err.Error())

	builder := GitError("git operation failed").
		WithContext("op", op).
		WithContext("url", url)

	switch {
	case strings.Contains(l, "authentication failed") || strings.Contains(l, "not authorized") || strings.Contains(l, "invalid credentials") || strings.Contains(l, "authorization failed"):
		builder.WithCause(&AuthError{Op: op, URL: url, Err: err}).
			WithCategory(errors.CategoryAuth)
	case strings.Contains(l, "repository not found") || strings.Contains(l, "does not exist"):
		builder.WithCause(&NotFoundError{Op: op, URL: url, Err: err}).
			WithCategory(errors.CategoryNotFound)
	case strings.Contains(l, "rate limit") || strings.Contains(l, "too many requests"):
		builder.WithCause(&RateLimitError{Op: op, URL: url, Err: err}).
			WithCategory(errors.CategoryNetwork).RateLimit()
	case strings.Contains(l, "remote hung up") || strings.Contains(l, "connection reset") || strings.Contains(l, "timeout") || strings.Contains(l, "i/o timeout") || strings.Contains(l, "no route to host") || strings.Contains(l, "connection refused"):
		builder.WithCause(&NetworkTimeoutError{Op: op, URL: url, Err: err}).
			WithCategory(errors.CategoryNetwork).Retryable()
	case strings.Contains(l, "diverged") || strings.Contains(l, "non-fast-forward"):
		builder.WithCause(err).WithContext("diverged", true)
	default:
		builder.WithCause(err)
	}

	return builder.Build()
}
