package generator

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"git.home.luguber.info/inful/pagesmith/internal/config"
	ferrors "git.home.luguber.info/inful/pagesmith/internal/foundation/errors"
	"git.home.luguber.info/inful/pagesmith/internal/logfields"
	"git.home.luguber.info/inful/pagesmith/internal/retry"
	"git.home.luguber.info/inful/pagesmith/internal/task"
)

// Client calls the Gemini generateContent API with a response schema that
// forces structured file output.
type Client struct {
	httpClient *http.Client
	baseURL    string
	model      string
	apiKey     string
	policy     retry.Policy
}

// NewClient creates a generator client. The retry policy governs transient
// model failures; terminal rejections are never retried.
func NewClient(cfg config.ModelConfig, apiKey string, policy retry.Policy) (*Client, error) {
	if apiKey == "" {
		return nil, ferrors.ConfigError("model client requires an API key").Build()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}
	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		model:      cfg.Name,
		apiKey:     apiKey,
		policy:     policy,
	}
	if c.baseURL == "" {
		c.baseURL = "https://generativelanguage.googleapis.com"
	}
	if c.model == "" {
		c.model = "gemini-2.5-flash"
	}
	return c, nil
}

// Generate produces the complete site for a task. priorFiles is nil on the
// first round and carries the repository's current files on revisions. When
// the model rejects a request that carried attachments, the call is repeated
// once without them rather than failing the whole task over one bad input.
func (c *Client) Generate(ctx context.Context, t *task.Task, priorFiles map[string]string) (*GeneratedSite, error) {
	prompt := buildPrompt(t, priorFiles)

	site, err := c.generate(ctx, prompt, t.Attachments)
	if err != nil && hasImages(t.Attachments) && isInvalidRequest(err) {
		slog.Warn("model rejected request, retrying without attachments",
			logfields.TaskID(t.ID), logfields.Error(err))
		site, err = c.generate(ctx, prompt, nil)
	}
	return site, err
}

func (c *Client) generate(ctx context.Context, prompt string, attachments []task.Attachment) (*GeneratedSite, error) {
	return retry.Do(ctx, c.policy, "model generate", func(ctx context.Context) (*GeneratedSite, error) {
		return c.call(ctx, prompt, attachments)
	})
}

func (c *Client) call(ctx context.Context, prompt string, attachments []task.Attachment) (*GeneratedSite, error) {
	parts := make([]geminiPart, 0, len(attachments)+1)
	for _, a := range attachments {
		// Only images work as multimodal input; other attachments are still
		// named in the prompt and committed alongside the generated files.
		if !a.IsImage() {
			continue
		}
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{
			MIMEType: a.MIME,
			Data:     base64.StdEncoding.EncodeToString(a.Data),
		}})
	}
	parts = append(parts, geminiPart{Text: prompt})

	reqBody := geminiRequest{
		Contents:          []geminiContent{{Parts: parts}},
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: systemPrompt}}},
		GenerationConfig: geminiGenerationConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   filesSchema,
			Temperature:      0.1,
		},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, ferrors.InternalError("cannot encode model request").WithCause(err).Build()
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, ferrors.InternalError("cannot build model request").WithCause(err).Build()
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, ferrors.NetworkError("model API unreachable").WithCause(err).Build()
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, classifyModelStatus(resp.StatusCode, string(body))
	}

	var gr geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		// Truncated or malformed bodies do happen under load; worth retrying.
		return nil, ferrors.ModelError("cannot decode model response").WithCause(err).Retryable().Build()
	}
	text, err := gr.text()
	if err != nil {
		return nil, err
	}
	return parseSite(text)
}

// parseSite validates the structured output against the required file set.
func parseSite(text string) (*GeneratedSite, error) {
	var envelope struct {
		Files []struct {
			Path    string `json:"path"`
			Content string `json:"content"`
		} `json:"files"`
	}
	if err := json.Unmarshal([]byte(text), &envelope); err != nil {
		return nil, ferrors.ModelError("model output is not valid JSON").WithCause(err).Retryable().Build()
	}

	files := make(map[string]string, len(envelope.Files))
	for _, f := range envelope.Files {
		files[f.Path] = f.Content
	}

	site := &GeneratedSite{Files: make(map[string]string, len(RequiredFiles))}
	for _, name := range RequiredFiles {
		content, ok := files[name]
		if !ok || content == "" {
			return nil, ferrors.ModelError("generation output incomplete").
				WithContext("missing", name).Build()
		}
		site.Files[name] = content
	}
	for name := range files {
		if _, required := site.Files[name]; !required {
			slog.Warn("dropping unexpected file from model output", logfields.Path(name))
		}
	}
	return site, nil
}

func classifyModelStatus(status int, body string) error {
	builder := ferrors.ModelError(fmt.Sprintf("model API failed: %d", status)).
		WithContext("status", status)
	switch {
	case status == http.StatusTooManyRequests:
		builder = builder.RateLimit()
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		builder = builder.WithCategory(ferrors.CategoryAuth)
	case status >= 500:
		builder = builder.Retryable()
	default:
		// 4xx: the request itself is bad, a retry cannot help.
		builder = builder.WithContext("body", truncate(body, 300))
	}
	return builder.Build()
}

// isInvalidRequest reports a terminal model rejection of the request payload,
// the case where dropping attachments may rescue the task.
func isInvalidRequest(err error) bool {
	classified, ok := ferrors.AsClassified(err)
	if !ok || classified.IsTransient() {
		return false
	}
	if !classified.IsCategory(ferrors.CategoryModel) {
		return false
	}
	status, ok := classified.Context()["status"].(int)
	return ok && status >= 400 && status < 500
}

func hasImages(attachments []task.Attachment) bool {
	for _, a := range attachments {
		if a.IsImage() {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
