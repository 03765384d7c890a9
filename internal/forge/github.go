// Package forge is the narrow GitHub REST surface the pipeline consumes:
// repository existence, repository creation, and Pages configuration.
// Every operation is idempotent or made idempotent by pre-checking state.
package forge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"git.home.luguber.info/inful/pagesmith/internal/config"
	ferrors "git.home.luguber.info/inful/pagesmith/internal/foundation/errors"
)

// Client talks to the GitHub REST API for a single account.
type Client struct {
	httpClient *http.Client
	apiURL     string
	baseURL    string
	user       string
	token      string
}

// NewClient creates a GitHub client bound to the configured account.
func NewClient(cfg config.ForgeConfig, user, token string) (*Client, error) {
	if user == "" || token == "" {
		return nil, ferrors.ConfigError("GitHub client requires user and token").Build()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		apiURL:     cfg.APIURL,
		baseURL:    cfg.BaseURL,
		user:       user,
		token:      token,
	}
	if c.apiURL == "" {
		c.apiURL = "https://api.github.com"
	}
	if c.baseURL == "" {
		c.baseURL = "https://github.com"
	}
	return c, nil
}

// User returns the account name the client operates as.
func (c *Client) User() string { return c.user }

// Token returns the API token, for wiring git transport auth.
func (c *Client) Token() string { return c.token }

// RemoteURL returns the HTTPS clone URL for a repository of this account.
func (c *Client) RemoteURL(repoName string) string {
	return fmt.Sprintf("%s/%s/%s.git", c.baseURL, c.user, repoName)
}

// RepoHTMLURL returns the browsable repository URL.
func (c *Client) RepoHTMLURL(repoName string) string {
	return fmt.Sprintf("%s/%s/%s", c.baseURL, c.user, repoName)
}

// PagesURL returns the deterministic public Pages URL for a repository,
// independent of whether GitHub serves it yet.
func (c *Client) PagesURL(repoName string) string {
	return fmt.Sprintf("https://%s.github.io/%s/", c.user, repoName)
}

// GetRepository looks up a repository of the configured account. The second
// return value is false when the repository does not exist.
func (c *Client) GetRepository(ctx context.Context, repoName string) (*Repository, bool, error) {
	req, err := c.newRequest(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/%s", c.user, repoName), nil)
	if err != nil {
		return nil, false, err
	}
	var repo Repository
	err = c.doRequest(req, "get repository", &repo)
	if err != nil {
		if ferrors.HasCategory(err, ferrors.CategoryNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &repo, true, nil
}

// CreateRepository creates a public repository without auto-init so the first
// push establishes the default branch.
func (c *Client) CreateRepository(ctx context.Context, repoName string) (*Repository, error) {
	payload := map[string]any{"name": repoName, "private": false, "auto_init": false}
	req, err := c.newRequest(ctx, http.MethodPost, "/user/repos", payload)
	if err != nil {
		return nil, err
	}
	var repo Repository
	if err := c.doRequest(req, "create repository", &repo); err != nil {
		return nil, err
	}
	return &repo, nil
}

// GetPages reads the current Pages configuration. The second return value is
// false when Pages has never been configured for the repository.
func (c *Client) GetPages(ctx context.Context, repoName string) (*PagesInfo, bool, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.pagesEndpoint(repoName), nil)
	if err != nil {
		return nil, false, err
	}
	var info PagesInfo
	err = c.doRequest(req, "get pages", &info)
	if err != nil {
		if ferrors.HasCategory(err, ferrors.CategoryNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &info, true, nil
}

// CreatePages enables Pages pointing at the given source.
func (c *Client) CreatePages(ctx context.Context, repoName string, src PagesSource) error {
	payload := map[string]any{"source": src}
	req, err := c.newRequest(ctx, http.MethodPost, c.pagesEndpoint(repoName), payload)
	if err != nil {
		return err
	}
	return c.doRequest(req, "create pages", nil)
}

// UpdatePages repoints an existing Pages configuration at the given source.
func (c *Client) UpdatePages(ctx context.Context, repoName string, src PagesSource) error {
	payload := map[string]any{"source": src}
	req, err := c.newRequest(ctx, http.MethodPut, c.pagesEndpoint(repoName), payload)
	if err != nil {
		return err
	}
	return c.doRequest(req, "update pages", nil)
}

func (c *Client) pagesEndpoint(repoName string) string {
	return fmt.Sprintf("/repos/%s/%s/pages", c.user, repoName)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body any) (*http.Request, error) {
	u, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, err
	}
	u.Path = path.Join(u.Path, endpoint)

	var req *http.Request
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		req, err = http.NewRequestWithContext(ctx, method, u.String(), strings.NewReader(string(jsonBody)))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
	} else {
		req, err = http.NewRequestWithContext(ctx, method, u.String(), nil)
		if err != nil {
			return nil, err
		}
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("User-Agent", "pagesmith/1.0")
	return req, nil
}

func (c *Client) doRequest(req *http.Request, op string, result any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// transport failures are retryable by definition
		return ferrors.NetworkError(fmt.Sprintf("GitHub API %s unreachable", op)).WithCause(err).Build()
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return classifyStatus(op, resp.StatusCode, string(body))
	}
	if result != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(result)
	}
	return nil
}
