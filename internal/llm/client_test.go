package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// fakeProvider scripts a sequence of responses; each Complete call consumes
// the next one.
type fakeProvider struct {
	name    string
	replies []fakeReply
	calls   int
}

type fakeReply struct {
	content string
	err     error
}

func (f *fakeProvider) Name() string     { return f.name }
func (f *fakeProvider) Models() []string { return []string{f.name + "-model"} }

func (f *fakeProvider) Complete(_ context.Context, _ Request) (*Response, error) {
	i := f.calls
	f.calls++
	if i >= len(f.replies) {
		return nil, fmt.Errorf("unexpected call %d to %s", i, f.name)
	}
	r := f.replies[i]
	if r.err != nil {
		return nil, r.err
	}
	return &Response{Provider: f.name, Model: f.name + "-model", Content: r.content}, nil
}

func fastClient(providers ...Provider) *Client {
	c := New(providers)
	c.SetBackoff(time.Millisecond)
	return c
}

func TestGenerateFirstProviderSucceeds(t *testing.T) {
	p1 := &fakeProvider{name: "alpha", replies: []fakeReply{{content: "hello"}}}
	p2 := &fakeProvider{name: "beta"}
	c := fastClient(p1, p2)

	res := c.Generate(context.Background(), "hi", GenerateOptions{})
	if !res.Success || res.Content != "hello" || res.ProviderUsed != "alpha" {
		t.Errorf("res = %+v, want success from alpha", res)
	}
	if p2.calls != 0 {
		t.Errorf("beta called %d times, want 0", p2.calls)
	}
}

func TestGenerateQuotaAdvancesWithoutRetry(t *testing.T) {
	p1 := &fakeProvider{name: "alpha", replies: []fakeReply{{err: ErrRateLimited}}}
	p2 := &fakeProvider{name: "beta", replies: []fakeReply{{content: "from beta"}}}
	c := fastClient(p1, p2)

	res := c.Generate(context.Background(), "hi", GenerateOptions{})
	if !res.Success || res.ProviderUsed != "beta" {
		t.Fatalf("res = %+v, want success from beta", res)
	}
	if p1.calls != 1 {
		t.Errorf("exhausted provider called %d times, want exactly 1 (no retry)", p1.calls)
	}
}

func TestGenerateQuotaByMessageSubstring(t *testing.T) {
	p1 := &fakeProvider{name: "alpha", replies: []fakeReply{
		{err: errors.New("429: insufficient_quota for this billing period")},
	}}
	p2 := &fakeProvider{name: "beta", replies: []fakeReply{{content: "ok"}}}
	c := fastClient(p1, p2)

	res := c.Generate(context.Background(), "hi", GenerateOptions{})
	if res.ProviderUsed != "beta" {
		t.Fatalf("res = %+v, want beta", res)
	}
	if p1.calls != 1 {
		t.Errorf("quota-by-message provider called %d times, want 1", p1.calls)
	}
}

func TestGenerateTransientRetriesOnce(t *testing.T) {
	p1 := &fakeProvider{name: "alpha", replies: []fakeReply{
		{err: errors.New("connection reset")},
		{content: "recovered"},
	}}
	c := fastClient(p1)

	res := c.Generate(context.Background(), "hi", GenerateOptions{})
	if !res.Success || res.Content != "recovered" {
		t.Fatalf("res = %+v, want recovery on retry", res)
	}
	if p1.calls != 2 {
		t.Errorf("provider called %d times, want 2", p1.calls)
	}
}

func TestGenerateTransientAdvancesAfterSecondFailure(t *testing.T) {
	p1 := &fakeProvider{name: "alpha", replies: []fakeReply{
		{err: errors.New("connection reset")},
		{err: errors.New("connection reset")},
	}}
	p2 := &fakeProvider{name: "beta", replies: []fakeReply{{content: "from beta"}}}
	c := fastClient(p1, p2)

	res := c.Generate(context.Background(), "hi", GenerateOptions{})
	if res.ProviderUsed != "beta" {
		t.Fatalf("res = %+v, want beta after alpha's retry budget spent", res)
	}
	if p1.calls != 2 {
		t.Errorf("failing provider called %d times, want 2 (one retry)", p1.calls)
	}
}

func TestGenerateAllFailUsesFallback(t *testing.T) {
	p1 := &fakeProvider{name: "alpha", replies: []fakeReply{{err: ErrRateLimited}}}
	p2 := &fakeProvider{name: "beta", replies: []fakeReply{{err: ErrRateLimited}}}
	c := fastClient(p1, p2)

	res := c.Generate(context.Background(), "hi", GenerateOptions{Fallback: "canned answer"})
	if !res.Success {
		t.Fatal("fallback result not successful")
	}
	if res.Content != "canned answer" || res.ProviderUsed != "none" {
		t.Errorf("res = %+v, want fallback content with provider none", res)
	}
	if res.Err == nil {
		t.Error("fallback result should carry the last provider error")
	}
}

func TestGenerateAllFailEchoesPromptWithoutFallback(t *testing.T) {
	p1 := &fakeProvider{name: "alpha", replies: []fakeReply{{err: ErrRateLimited}}}
	c := fastClient(p1)

	res := c.Generate(context.Background(), "the prompt", GenerateOptions{})
	if !res.Success || res.Content != "the prompt" || res.ProviderUsed != "none" {
		t.Errorf("res = %+v, want echoed prompt", res)
	}
}

func TestGenerateNoProvidersNoFallback(t *testing.T) {
	c := fastClient()

	res := c.Generate(context.Background(), "hi", GenerateOptions{})
	if res.Success {
		t.Error("success with no providers and no fallback")
	}
	if !errors.Is(res.Err, ErrNoProviders) {
		t.Errorf("Err = %v, want ErrNoProviders", res.Err)
	}
}

func TestGenerateNoProvidersWithFallback(t *testing.T) {
	c := fastClient()

	res := c.Generate(context.Background(), "hi", GenerateOptions{Fallback: "canned"})
	if !res.Success || res.Content != "canned" || res.ProviderUsed != "none" {
		t.Errorf("res = %+v, want fallback", res)
	}
}

func TestGenerateEmptyResponseIsFailure(t *testing.T) {
	p1 := &fakeProvider{name: "alpha", replies: []fakeReply{
		{content: ""},
		{content: ""},
	}}
	p2 := &fakeProvider{name: "beta", replies: []fakeReply{{content: "real"}}}
	c := fastClient(p1, p2)

	res := c.Generate(context.Background(), "hi", GenerateOptions{})
	if res.ProviderUsed != "beta" {
		t.Errorf("res = %+v, want beta after empty responses", res)
	}
}

func TestCompleteWithUnknownProvider(t *testing.T) {
	c := fastClient(&fakeProvider{name: "alpha", replies: []fakeReply{{content: "x"}}})

	_, err := c.CompleteWith(context.Background(), "nope", Request{})
	if !errors.Is(err, ErrProviderNotFound) {
		t.Errorf("err = %v, want ErrProviderNotFound", err)
	}
}

func TestIsExhausted(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{ErrRateLimited, true},
		{&ProviderError{Provider: "p", Err: ErrRateLimited}, true},
		{errors.New("Resource_Exhausted: try later"), true},
		{errors.New("too many requests"), true},
		{errors.New("connection refused"), false},
	}
	for _, tt := range tests {
		if got := isExhausted(tt.err); got != tt.want {
			t.Errorf("isExhausted(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestBuildMessages(t *testing.T) {
	msgs := buildMessages("question", GenerateOptions{
		System:  "be brief",
		History: []Message{{Role: "user", Content: "earlier"}, {Role: "assistant", Content: "reply"}},
	})
	if len(msgs) != 4 {
		t.Fatalf("len = %d, want 4", len(msgs))
	}
	if msgs[0].Role != "system" || msgs[3].Content != "question" {
		t.Errorf("order wrong: %+v", msgs)
	}
}
