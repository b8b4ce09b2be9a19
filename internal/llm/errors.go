package llm

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrProviderNotFound = errors.New("provider not found")
	ErrNoProviders      = errors.New("no providers configured")
	ErrRateLimited      = errors.New("rate limited")
	ErrEmptyResponse    = errors.New("empty response")
)

// ProviderError wraps an error with provider context.
type ProviderError struct {
	Provider string
	Model    string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("%s/%s: %v", e.Provider, e.Model, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// quotaIndicators are substrings a provider error carries when the account
// has hit a quota or rate ceiling rather than a transient fault.
var quotaIndicators = []string{
	"quota",
	"rate limit",
	"rate_limit",
	"resource_exhausted",
	"limit exceeded",
	"too many requests",
	"insufficient_quota",
}

// isExhausted reports whether an error means the provider's quota or rate
// limit is spent. Exhausted providers are skipped without retry; everything
// else is treated as transient and retried once.
func isExhausted(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, ind := range quotaIndicators {
		if strings.Contains(msg, ind) {
			return true
		}
	}
	return false
}
