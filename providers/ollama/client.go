package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"llm-finetune/core/errs"
)

// Client talks to a local Ollama daemon over its HTTP API
type Client struct {
	BaseURL string
	Client  *http.Client
}

// NewClient creates a daemon client. Streaming calls are bounded by the
// caller's context rather than a client timeout.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{},
	}
}

// ModelInfo is one model known to the daemon
type ModelInfo struct {
	Name       string    `json:"name"`
	Model      string    `json:"model"`
	ModifiedAt time.Time `json:"modified_at"`
	Size       int64     `json:"size"`
	Digest     string    `json:"digest"`
}

type tagsResponse struct {
	Models []ModelInfo `json:"models"`
}

// PullRequest is the body of POST /api/pull
type PullRequest struct {
	Model  string `json:"model"`
	Stream bool   `json:"stream"`
}

// PullProgress is one line of the pull stream
type PullProgress struct {
	Status    string `json:"status"`
	Digest    string `json:"digest,omitempty"`
	Total     int64  `json:"total,omitempty"`
	Completed int64  `json:"completed,omitempty"`
	Error     string `json:"error,omitempty"`
}

// GenerateRequest is the body of POST /api/generate
type GenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	System string `json:"system,omitempty"`
	Stream bool   `json:"stream"`
}

// GenerateChunk is one line of the generate stream
type GenerateChunk struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// ListModels returns the models the daemon has locally
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/tags", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, errs.Upstream(err, "decode model list")
	}
	return tags.Models, nil
}

// Pull downloads a model, reporting each progress line to fn. It returns
// once the daemon reports success, or an error line arrives.
func (c *Client) Pull(ctx context.Context, model string, fn func(PullProgress)) error {
	if strings.TrimSpace(model) == "" {
		return errs.Invalid("model name is required")
	}
	resp, err := c.do(ctx, http.MethodPost, "/api/pull", PullRequest{Model: model, Stream: true})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	dec := json.NewDecoder(resp.Body)
	for {
		var p PullProgress
		if err := dec.Decode(&p); err != nil {
			if errors.Is(err, io.EOF) {
				return errs.Upstream(nil, "pull of %s ended without success", model)
			}
			return errs.Upstream(err, "read pull stream")
		}
		if p.Error != "" {
			return errs.Upstream(nil, "pull %s: %s", model, p.Error)
		}
		if fn != nil {
			fn(p)
		}
		if p.Status == "success" {
			return nil
		}
	}
}

// Generate streams completion fragments to fn until the daemon marks the
// response done.
func (c *Client) Generate(ctx context.Context, req GenerateRequest, fn func(string)) error {
	if strings.TrimSpace(req.Model) == "" {
		return errs.Invalid("model name is required")
	}
	req.Stream = true
	resp, err := c.do(ctx, http.MethodPost, "/api/generate", req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return readGenerate(resp.Body, fn)
}

func readGenerate(body io.Reader, fn func(string)) error {
	dec := json.NewDecoder(body)
	for {
		var chunk GenerateChunk
		if err := dec.Decode(&chunk); err != nil {
			if errors.Is(err, io.EOF) {
				return errs.Upstream(nil, "generate stream ended early")
			}
			return errs.Upstream(err, "read generate stream")
		}
		if chunk.Error != "" {
			return errs.Upstream(nil, "%s", chunk.Error)
		}
		if chunk.Response != "" && fn != nil {
			fn(chunk.Response)
		}
		if chunk.Done {
			return nil
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, errs.Upstream(err, "%s %s", method, path)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, errs.Upstream(nil, "%s %s: %d %s", method, path, resp.StatusCode, errorMessage(resp.Body))
	}
	return resp, nil
}

// errorMessage pulls the "error" field out of a daemon error body, falling
// back to the raw body cut to 500 bytes.
func errorMessage(r io.Reader) string {
	body, _ := io.ReadAll(io.LimitReader(r, 64<<10))
	var errResp map[string]interface{}
	if json.Unmarshal(body, &errResp) == nil {
		if msg, ok := errResp["error"].(string); ok {
			return msg
		}
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 500 {
		s = s[:500] + "..."
	}
	return s
}
