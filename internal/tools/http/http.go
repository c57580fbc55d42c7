// Package http implements the HTTPGet and HTTPPost standard tools.
// Domain resolution and SSRF/allow-deny checks happen through the
// security manager before any TCP connect is attempted, per spec §4.3
// step 4.
package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/agentkernel/core/internal/security"
	"github.com/agentkernel/core/pkg/models"
)

const defaultMaxResponseBytes = 1 << 20

// requestInput is the JSON envelope both HTTP tools expect:
// {"url", "body", "headers"}. body and headers are ignored by GetTool.
type requestInput struct {
	URL     string            `json:"url"`
	Body    string            `json:"body"`
	Headers map[string]string `json:"headers"`
}

// Config bundles the HTTP tools' shared collaborators.
type Config struct {
	Manager   *security.Manager
	Client    *http.Client
	MaxBody   int
	UserAgent string
}

func (c Config) client() *http.Client {
	if c.Client != nil {
		return c.Client
	}
	return &http.Client{Timeout: 30 * time.Second}
}

func (c Config) maxBody() int {
	if c.MaxBody > 0 {
		return c.MaxBody
	}
	return defaultMaxResponseBytes
}

func validateURL(ctx context.Context, manager *security.Manager, raw string) (*url.URL, error) {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return nil, err
	}
	if manager != nil {
		if err := manager.ValidateDomain(ctx, parsed.Hostname()); err != nil {
			return nil, err
		}
	}
	return parsed, nil
}

func doRequest(ctx context.Context, cfg Config, req *http.Request, toolName string, start time.Time) models.ExecutionResult {
	if cfg.UserAgent != "" {
		req.Header.Set("User-Agent", cfg.UserAgent)
	}
	resp, err := cfg.client().Do(req)
	if err != nil {
		return models.Failure(toolName, "ExecutionFailed", time.Since(start))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(cfg.maxBody())))
	if err != nil {
		return models.Failure(toolName, "ExecutionFailed", time.Since(start))
	}

	payload, _ := json.Marshal(map[string]any{
		"status": resp.StatusCode,
		"body":   string(body),
	})
	return models.Succeed(toolName, string(payload), time.Since(start))
}

// GetTool implements the HTTPGet standard tool.
type GetTool struct{ cfg Config }

// NewGetTool builds an HTTPGet tool.
func NewGetTool(cfg Config) *GetTool { return &GetTool{cfg: cfg} }

func (t *GetTool) Name() models.ToolName { return models.ToolName(models.HTTPGet) }

func (t *GetTool) Call(ctx context.Context, input string) models.ExecutionResult {
	start := time.Now()
	in := requestInput{URL: strings.TrimSpace(input)}
	if strings.HasPrefix(in.URL, "{") {
		if err := json.Unmarshal([]byte(input), &in); err != nil {
			return models.Failure(string(models.HTTPGet), "ExecutionFailed", time.Since(start))
		}
	}
	if in.URL == "" {
		return models.Failure(string(models.HTTPGet), "ExecutionFailed", time.Since(start))
	}

	parsed, err := validateURL(ctx, t.cfg.Manager, in.URL)
	if err != nil || parsed == nil {
		return models.Failure(string(models.HTTPGet), "DomainDenied", time.Since(start))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return models.Failure(string(models.HTTPGet), "ExecutionFailed", time.Since(start))
	}
	return doRequest(ctx, t.cfg, req, string(models.HTTPGet), start)
}

// PostTool implements the HTTPPost standard tool.
type PostTool struct{ cfg Config }

// NewPostTool builds an HTTPPost tool.
func NewPostTool(cfg Config) *PostTool { return &PostTool{cfg: cfg} }

func (t *PostTool) Name() models.ToolName { return models.ToolName(models.HTTPPost) }

func (t *PostTool) Call(ctx context.Context, input string) models.ExecutionResult {
	start := time.Now()
	var in requestInput
	if err := json.Unmarshal([]byte(input), &in); err != nil || in.URL == "" {
		return models.Failure(string(models.HTTPPost), "ExecutionFailed", time.Since(start))
	}

	parsed, err := validateURL(ctx, t.cfg.Manager, in.URL)
	if err != nil || parsed == nil {
		return models.Failure(string(models.HTTPPost), "DomainDenied", time.Since(start))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, parsed.String(), strings.NewReader(in.Body))
	if err != nil {
		return models.Failure(string(models.HTTPPost), "ExecutionFailed", time.Since(start))
	}
	for k, v := range in.Headers {
		req.Header.Set(k, v)
	}
	return doRequest(ctx, t.cfg, req, string(models.HTTPPost), start)
}
