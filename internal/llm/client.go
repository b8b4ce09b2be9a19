// Package llm provides a multi-provider text-generation client with a
// classified fallback cascade, one-shot transient retry, and a deterministic
// last resort, plus cost tracking to metrics.db.
package llm

import (
	"context"
	"log/slog"
	"time"
)

// Message represents a chat message (system/user/assistant).
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a provider-agnostic completion request.
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	TopP        float64   `json:"top_p,omitempty"`
}

// Response is a provider-agnostic completion response.
type Response struct {
	Provider     string        `json:"provider"`
	Model        string        `json:"model"`
	Content      string        `json:"content"`
	TokensIn     int           `json:"tokens_in"`
	TokensOut    int           `json:"tokens_out"`
	FinishReason string        `json:"finish_reason"`
	Latency      time.Duration `json:"latency_ms"`
}

// Provider is a single text-generation backend.
type Provider interface {
	// Name returns the provider identifier (e.g. "anthropic", "groq").
	Name() string
	// Models returns the list of model IDs available on this provider.
	Models() []string
	// Complete sends a chat completion request and returns the response.
	Complete(ctx context.Context, req Request) (*Response, error)
}

// CallRecorder receives per-call metrics. *db.MetricsDB satisfies it.
type CallRecorder interface {
	RecordLLMCall(provider, model string, tokensIn, tokensOut, latencyMs int, success bool, errMsg string)
}

// Result is the outcome of a cascaded Generate call. When a deterministic
// fallback applies, Success is true and ProviderUsed is "none"; Success is
// false only when no provider is configured and no fallback was supplied.
type Result struct {
	Success      bool   `json:"success"`
	Content      string `json:"content"`
	ProviderUsed string `json:"provider_used"`
	Err          error  `json:"-"`
}

// GenerateOptions tunes a cascaded Generate call.
type GenerateOptions struct {
	History  []Message // prior conversation, oldest first
	System   string    // optional system prompt
	Fallback string    // deterministic content returned if every provider fails
	Model    string    // optional model hint, normally left to each provider
}

// Client sends requests across providers in fixed priority order.
type Client struct {
	providers map[string]Provider
	order     []string // provider names in priority order
	backoff   time.Duration
	recorder  CallRecorder
	logger    *slog.Logger
}

// New creates a multi-provider client. Provider order is priority order.
func New(providers []Provider) *Client {
	m := make(map[string]Provider, len(providers))
	order := make([]string, 0, len(providers))
	for _, p := range providers {
		m[p.Name()] = p
		order = append(order, p.Name())
	}
	return &Client{
		providers: m,
		order:     order,
		backoff:   time.Second,
		logger:    slog.Default(),
	}
}

// SetRecorder attaches a metrics recorder for provider calls.
func (c *Client) SetRecorder(r CallRecorder) { c.recorder = r }

// SetBackoff overrides the transient-retry backoff (tests use a short one).
func (c *Client) SetBackoff(d time.Duration) { c.backoff = d }

// SetLogger overrides the default slog logger.
func (c *Client) SetLogger(l *slog.Logger) { c.logger = l }

// Providers returns the names of all configured providers in priority order.
func (c *Client) Providers() []string { return c.order }

// HasProvider checks if a named provider is configured.
func (c *Client) HasProvider(name string) bool {
	_, ok := c.providers[name]
	return ok
}

// Generate runs the cascading fallback state machine over the configured
// providers:
//
//	TRY(i) -> success              -> DONE
//	TRY(i) -> exhausted (quota)    -> TRY(i+1), no delay
//	TRY(i) -> transient, 1st try   -> RETRY(i) after backoff
//	TRY(i) -> transient, retried   -> TRY(i+1)
//	no more providers              -> deterministic fallback, provider "none"
//
// The retry budget is explicit data (retries counter), never recursion.
func (c *Client) Generate(ctx context.Context, prompt string, opts GenerateOptions) Result {
	if len(c.order) == 0 {
		if opts.Fallback != "" {
			return Result{Success: true, Content: opts.Fallback, ProviderUsed: "none"}
		}
		return Result{Success: false, ProviderUsed: "none", Err: ErrNoProviders}
	}

	req := Request{Model: opts.Model, Messages: buildMessages(prompt, opts)}

	var lastErr error
	for _, name := range c.order {
		p := c.providers[name]

		retries := 1
		for {
			resp, err := c.attempt(ctx, p, req)
			if err == nil && resp.Content != "" {
				return Result{Success: true, Content: resp.Content, ProviderUsed: name}
			}
			if err == nil {
				err = &ProviderError{Provider: name, Model: resp.Model, Err: ErrEmptyResponse}
			}
			lastErr = err

			if isExhausted(err) {
				c.logger.Warn("provider exhausted, advancing", "provider", name, "error", err)
				break // next provider, no retry
			}
			if retries == 0 {
				c.logger.Warn("provider failed after retry, advancing", "provider", name, "error", err)
				break
			}
			retries--
			c.logger.Debug("transient provider failure, retrying once", "provider", name, "error", err)
			select {
			case <-time.After(c.backoff):
			case <-ctx.Done():
				return c.fallbackResult(prompt, opts, ctx.Err())
			}
		}
	}

	return c.fallbackResult(prompt, opts, lastErr)
}

func (c *Client) fallbackResult(prompt string, opts GenerateOptions, lastErr error) Result {
	content := opts.Fallback
	if content == "" {
		// Bare generation request: echo the unmodified input so callers
		// always receive non-empty content.
		content = prompt
	}
	return Result{Success: true, Content: content, ProviderUsed: "none", Err: lastErr}
}

// attempt issues one provider call and records its metrics.
func (c *Client) attempt(ctx context.Context, p Provider, req Request) (*Response, error) {
	start := time.Now()
	resp, err := p.Complete(ctx, req)
	if c.recorder != nil {
		latency := int(time.Since(start).Milliseconds())
		if err != nil {
			c.recorder.RecordLLMCall(p.Name(), req.Model, 0, 0, latency, false, err.Error())
		} else {
			c.recorder.RecordLLMCall(resp.Provider, resp.Model, resp.TokensIn, resp.TokensOut,
				int(resp.Latency.Milliseconds()), true, "")
		}
	}
	return resp, err
}

func buildMessages(prompt string, opts GenerateOptions) []Message {
	var messages []Message
	if opts.System != "" {
		messages = append(messages, Message{Role: "system", Content: opts.System})
	}
	messages = append(messages, opts.History...)
	messages = append(messages, Message{Role: "user", Content: prompt})
	return messages
}

// Complete sends a request to the providers in priority order without the
// classified retry machinery, returning the first successful response. Used
// where the caller wants the raw error rather than a deterministic fallback.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	if len(c.order) == 0 {
		return nil, ErrNoProviders
	}
	var lastErr error
	for _, name := range c.order {
		resp, err := c.attempt(ctx, c.providers[name], req)
		if err != nil {
			lastErr = err
			continue
		}
		return resp, nil
	}
	return nil, lastErr
}

// CompleteWith sends a request to a specific named provider.
func (c *Client) CompleteWith(ctx context.Context, providerName string, req Request) (*Response, error) {
	p, ok := c.providers[providerName]
	if !ok {
		return nil, &ProviderError{Provider: providerName, Err: ErrProviderNotFound}
	}
	return c.attempt(ctx, p, req)
}
