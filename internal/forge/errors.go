package forge

import (
	"fmt"
	"net/http"
	"strings"

	ferrors "git.home.luguber.info/inful/pagesmith/internal/foundation/errors"
)

// classifyStatus maps a GitHub API failure status onto the error taxonomy so
// the retry layer can distinguish transient from terminal without re-parsing.
func classifyStatus(op string, status int, body string) error {
	msg := fmt.Sprintf("GitHub API %s failed: %d", op, status)
	builder := ferrors.ForgeError(msg).
		WithContext("op", op).
		WithContext("status", status)

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		if strings.Contains(strings.ToLower(body), "rate limit") {
			builder = builder.RateLimit()
		} else {
			builder = builder.WithCategory(ferrors.CategoryAuth)
		}
	case status == http.StatusTooManyRequests:
		builder = builder.RateLimit()
	case status == http.StatusNotFound:
		builder = builder.WithCategory(ferrors.CategoryNotFound)
	case status == http.StatusConflict || status == http.StatusUnprocessableEntity:
		// validation-shaped failures carry the server message for callers
		builder = builder.WithContext("body", truncate(body, 300))
	case status >= 500:
		builder = builder.Retryable()
	}
	return builder.Build()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
