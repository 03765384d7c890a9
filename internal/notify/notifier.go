// Package notify delivers completion callbacks to the task issuer.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	ferrors "git.home.luguber.info/inful/pagesmith/internal/foundation/errors"
	"git.home.luguber.info/inful/pagesmith/internal/logfields"
	"git.home.luguber.info/inful/pagesmith/internal/retry"
	"git.home.luguber.info/inful/pagesmith/internal/task"
)

// Result carries the publication coordinates reported on success.
type Result struct {
	RepoURL   string
	CommitSHA string
	PagesURL  string
}

// payload is the callback wire format. Status and error are present only on
// failure reports.
type payload struct {
	Email     string `json:"email"`
	Task      string `json:"task"`
	Round     int    `json:"round"`
	Nonce     string `json:"nonce"`
	RepoURL   string `json:"repo_url,omitempty"`
	CommitSHA string `json:"commit_sha,omitempty"`
	PagesURL  string `json:"pages_url,omitempty"`
	Status    string `json:"status,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Notifier posts callbacks with retries on transient delivery failures.
type Notifier struct {
	httpClient *http.Client
	policy     retry.Policy
}

// NewNotifier creates a notifier using the given retry policy.
func NewNotifier(policy retry.Policy) *Notifier {
	return &Notifier{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		policy:     policy,
	}
}

// NotifySuccess reports a completed publication to the task's callback URL.
func (n *Notifier) NotifySuccess(ctx context.Context, t *task.Task, res Result) error {
	return n.send(ctx, t, payload{
		Email:     t.Email,
		Task:      t.ID,
		Round:     t.Round,
		Nonce:     t.Nonce,
		RepoURL:   res.RepoURL,
		CommitSHA: res.CommitSHA,
		PagesURL:  res.PagesURL,
	})
}

// NotifyFailure reports a failed task so the issuer does not wait for a site
// that will never appear.
func (n *Notifier) NotifyFailure(ctx context.Context, t *task.Task, taskErr error) error {
	msg := ""
	if taskErr != nil {
		msg = taskErr.Error()
	}
	return n.send(ctx, t, payload{
		Email:  t.Email,
		Task:   t.ID,
		Round:  t.Round,
		Nonce:  t.Nonce,
		Status: "failed",
		Error:  msg,
	})
}

func (n *Notifier) send(ctx context.Context, t *task.Task, p payload) error {
	if t.CallbackURL == "" {
		slog.Warn("task carries no callback URL, skipping notification", logfields.TaskID(t.ID))
		return nil
	}

	body, err := json.Marshal(p)
	if err != nil {
		return ferrors.InternalError("cannot encode notification").WithCause(err).Build()
	}

	_, err = retry.Do(ctx, n.policy, "notify callback", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, n.post(ctx, t.CallbackURL, body)
	})
	if err == nil {
		slog.Info("notification delivered",
			logfields.TaskID(t.ID), logfields.Round(t.Round), logfields.URL(t.CallbackURL))
	}
	return err
}

func (n *Notifier) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return ferrors.NotifyError("cannot build notification request").WithCause(err).Build()
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return ferrors.NetworkError("callback endpoint unreachable").WithCause(err).Build()
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	builder := ferrors.NotifyError(fmt.Sprintf("callback rejected: %d", resp.StatusCode)).
		WithContext("status", resp.StatusCode)
	if resp.StatusCode == http.StatusTooManyRequests {
		builder = builder.RateLimit()
	} else if resp.StatusCode >= 500 {
		builder = builder.Retryable()
	}
	return builder.Build()
}
