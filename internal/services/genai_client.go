package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/veripack/veripack-backend/internal/logger"
	pkgerr "github.com/veripack/veripack-backend/internal/pkg/errors"
	"github.com/veripack/veripack-backend/internal/utils"
)

// GenAIClient is the single choke point for all model calls. Every generator
// and verifier below depends on this interface, never on the vendor API.
type GenAIClient interface {
	GenerateText(ctx context.Context, req GenAIRequest) (string, error)
	GenerateJSON(ctx context.Context, req GenAIRequest, out any) error
	StreamText(ctx context.Context, req GenAIRequest, sink func(chunk string) error) error
}

type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

type GenAIConfig struct {
	Temperature     float64
	MaxOutputTokens int
	Retry           *RetryPolicy
}

type GenAIRequest struct {
	APIKey string
	Model  string
	Prompt string
	System string
	// SchemaName labels the expected response shape; fakes key off it in tests
	// and it shows up in logs.
	SchemaName string
	Schema     map[string]any
	Tools      []map[string]any
	Config     GenAIConfig
}

type genaiClient struct {
	log        *logger.Logger
	baseURL    string
	httpClient *http.Client
	maxRetries int
}

func NewGenAIClient(log *logger.Logger) GenAIClient {
	baseURL := utils.GetEnv("GENAI_BASE_URL", "https://generativelanguage.googleapis.com", log)
	timeoutSec := utils.GetEnvAsInt("GENAI_TIMEOUT_SECONDS", 180, log)
	maxRetries := utils.GetEnvAsInt("GENAI_MAX_RETRIES", 2, log)
	return &genaiClient{
		log:        log.With("service", "GenAIClient"),
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		maxRetries: maxRetries,
	}
}

type genaiHTTPError struct {
	StatusCode int
	Body       string
}

func (e *genaiHTTPError) Error() string {
	return fmt.Sprintf("genai http %d: %s", e.StatusCode, utils.Truncate(e.Body, 400))
}

func isRetryableHTTP(code int) bool {
	if code == 408 || code == 429 {
		return true
	}
	return code >= 500 && code <= 599
}

func isRetryableErr(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var httpErr *genaiHTTPError
	if errors.As(err, &httpErr) {
		return isRetryableHTTP(httpErr.StatusCode)
	}
	// malformed or schema-violating model output is retried as well
	var decodeErr *malformedOutputError
	return errors.As(err, &decodeErr)
}

type malformedOutputError struct{ err error }

func (e *malformedOutputError) Error() string { return e.err.Error() }
func (e *malformedOutputError) Unwrap() error { return e.err }

func jitterSleep(base time.Duration) time.Duration {
	// +/- 20%
	if base <= 0 {
		return 0
	}
	delta := base.Seconds() * 0.2
	low := base.Seconds() - delta
	v := low + rand.Float64()*2*delta
	return time.Duration(v * float64(time.Second))
}

// ---- wire types (Gemini generateContent) ----

type genaiPart struct {
	Text string `json:"text,omitempty"`
}

type genaiContent struct {
	Role  string      `json:"role,omitempty"`
	Parts []genaiPart `json:"parts"`
}

type genaiGenerationConfig struct {
	Temperature      float64        `json:"temperature,omitempty"`
	MaxOutputTokens  int            `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string         `json:"responseMimeType,omitempty"`
	ResponseSchema   map[string]any `json:"responseSchema,omitempty"`
}

type genaiWireRequest struct {
	SystemInstruction *genaiContent         `json:"systemInstruction,omitempty"`
	Contents          []genaiContent        `json:"contents"`
	Tools             []map[string]any      `json:"tools,omitempty"`
	GenerationConfig  genaiGenerationConfig `json:"generationConfig"`
}

type genaiWireResponse struct {
	Candidates []struct {
		Content genaiContent `json:"content"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason,omitempty"`
	} `json:"promptFeedback,omitempty"`
}

func buildWireRequest(req GenAIRequest, jsonMode bool) genaiWireRequest {
	wire := genaiWireRequest{
		Contents: []genaiContent{{Role: "user", Parts: []genaiPart{{Text: req.Prompt}}}},
		Tools:    req.Tools,
		GenerationConfig: genaiGenerationConfig{
			Temperature:     req.Config.Temperature,
			MaxOutputTokens: req.Config.MaxOutputTokens,
		},
	}
	if req.System != "" {
		wire.SystemInstruction = &genaiContent{Parts: []genaiPart{{Text: req.System}}}
	}
	if jsonMode {
		wire.GenerationConfig.ResponseMimeType = "application/json"
		wire.GenerationConfig.ResponseSchema = req.Schema
	}
	return wire
}

func (r genaiWireResponse) text() string {
	var b strings.Builder
	for _, cand := range r.Candidates {
		for _, part := range cand.Content.Parts {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}

func (c *genaiClient) doOnce(ctx context.Context, req GenAIRequest, path string, body genaiWireRequest) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", req.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &genaiHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

// do runs one generation call with exponential backoff. Per-request retry
// policy wins over the client default; Retry-After is honored; the sleep is
// capped at 10s and jittered.
func (c *genaiClient) do(ctx context.Context, req GenAIRequest, decode func([]byte) error) error {
	maxRetries := c.maxRetries
	backoff := 1 * time.Second
	if req.Config.Retry != nil {
		maxRetries = req.Config.Retry.MaxRetries
		if req.Config.Retry.BaseDelay > 0 {
			backoff = req.Config.Retry.BaseDelay
		}
	}
	path := "/v1beta/models/" + req.Model + ":generateContent"

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		resp, raw, err := c.doOnce(ctx, req, path, buildWireRequest(req, req.Schema != nil))
		if err == nil {
			if err = decode(raw); err == nil {
				return nil
			}
		}
		lastErr = err
		if !isRetryableErr(err) {
			return fmt.Errorf("%w: %v", pkgerr.ErrGeneration, err)
		}
		if attempt == maxRetries {
			break
		}

		sleepFor := backoff
		if resp != nil {
			if ra := strings.TrimSpace(resp.Header.Get("Retry-After")); ra != "" {
				if secs, parseErr := strconv.Atoi(ra); parseErr == nil && secs > 0 {
					sleepFor = time.Duration(secs) * time.Second
				}
			}
		}
		if sleepFor > 10*time.Second {
			sleepFor = 10 * time.Second
		}
		sleepFor = jitterSleep(sleepFor)

		c.log.Warn("GenAI request retrying",
			"model", req.Model,
			"schema", req.SchemaName,
			"attempt", attempt+1,
			"max_retries", maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleepFor):
		}
		backoff *= 2
	}
	return fmt.Errorf("%w: %v", pkgerr.ErrGeneration, lastErr)
}

func (c *genaiClient) GenerateText(ctx context.Context, req GenAIRequest) (string, error) {
	var out string
	err := c.do(ctx, req, func(raw []byte) error {
		var wire genaiWireResponse
		if err := json.Unmarshal(raw, &wire); err != nil {
			return &malformedOutputError{err: fmt.Errorf("decode response: %w", err)}
		}
		if wire.PromptFeedback != nil && wire.PromptFeedback.BlockReason != "" {
			return fmt.Errorf("prompt blocked: %s", wire.PromptFeedback.BlockReason)
		}
		text := wire.text()
		if text == "" {
			return &malformedOutputError{err: errors.New("empty completion")}
		}
		out = text
		return nil
	})
	if err != nil {
		return "", err
	}
	return out, nil
}

// GenerateJSON decodes the model's JSON-mode output into out. Output that
// fails to decode counts as a retryable attempt.
func (c *genaiClient) GenerateJSON(ctx context.Context, req GenAIRequest, out any) error {
	if req.Schema == nil {
		return fmt.Errorf("%w: schema required", pkgerr.ErrInvalidArgument)
	}
	if req.SchemaName == "" {
		return fmt.Errorf("%w: schemaName required", pkgerr.ErrInvalidArgument)
	}
	return c.do(ctx, req, func(raw []byte) error {
		var wire genaiWireResponse
		if err := json.Unmarshal(raw, &wire); err != nil {
			return &malformedOutputError{err: fmt.Errorf("decode response: %w", err)}
		}
		text := wire.text()
		if text == "" {
			return &malformedOutputError{err: errors.New("empty JSON completion")}
		}
		if err := json.Unmarshal([]byte(text), out); err != nil {
			return &malformedOutputError{err: fmt.Errorf("model output does not match schema %s: %w", req.SchemaName, err)}
		}
		return nil
	})
}

// StreamText forwards text chunks to sink as they arrive. No transport
// retries once streaming has begun.
func (c *genaiClient) StreamText(ctx context.Context, req GenAIRequest, sink func(chunk string) error) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(buildWireRequest(req, false)); err != nil {
		return err
	}
	path := c.baseURL + "/v1beta/models/" + req.Model + ":streamGenerateContent?alt=sse"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, path, &buf)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("x-goog-api-key", req.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", pkgerr.ErrGeneration, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: %v", pkgerr.ErrGeneration, &genaiHTTPError{StatusCode: resp.StatusCode, Body: string(raw)})
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == "[DONE]" {
			continue
		}
		var wire genaiWireResponse
		if err := json.Unmarshal([]byte(payload), &wire); err != nil {
			c.log.Warn("Skipping undecodable stream chunk", "error", err)
			continue
		}
		if chunk := wire.text(); chunk != "" {
			if err := sink(chunk); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%w: stream read: %v", pkgerr.ErrGeneration, err)
	}
	return nil
}
