package llms

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/onemcp/onemcp/pkg/config"
	"github.com/onemcp/onemcp/pkg/httpclient"
)

// Role is the author of a chat message.
type Role string

const (
	RoleSystem    Role = "SYSTEM"
	RoleUser      Role = "USER"
	RoleAssistant Role = "ASSISTANT"
)

// Message is one turn in a chat exchange.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// System, User, and Assistant are message constructors.
func System(content string) Message    { return Message{Role: RoleSystem, Content: content} }
func User(content string) Message      { return Message{Role: RoleUser, Content: content} }
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// ChatOptions tunes a single chat call. Tools stay disabled for extraction
// calls; Cacheable marks prompts whose prefix providers may cache.
type ChatOptions struct {
	Cacheable bool
}

// Provider is the chat-completion capability the indexer depends on.
// Implementations return the raw assistant text, possibly wrapped in code
// fences; no streaming is required.
type Provider interface {
	Chat(ctx context.Context, messages []Message, opts ChatOptions) (string, error)
	ModelName() string
	Close() error
}

// ErrorKind classifies provider failures per the coordinator's taxonomy.
type ErrorKind string

const (
	ErrKindProvider  ErrorKind = "provider-error"
	ErrKindTimeout   ErrorKind = "timeout"
	ErrKindMalformed ErrorKind = "malformed-response"
)

// ProviderError wraps a failed chat call with its kind and provider name.
type ProviderError struct {
	Kind     ErrorKind
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Kind, e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// KindOf returns the error kind of a chat failure, defaulting to
// provider-error for unclassified errors.
func KindOf(err error) ErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrKindTimeout
	}
	return ErrKindProvider
}

func classify(provider string, err error) error {
	if err == nil {
		return nil
	}
	kind := ErrKindProvider
	if errors.Is(err, context.DeadlineExceeded) {
		kind = ErrKindTimeout
	}
	return &ProviderError{Kind: kind, Provider: provider, Err: err}
}

func newHTTPClient(cfg *config.LLMProviderConfig, parser httpclient.RateLimitHeaderParser) *httpclient.Client {
	return httpclient.New(
		httpclient.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second}),
		httpclient.WithMaxRetries(cfg.MaxRetries),
		httpclient.WithBaseDelay(time.Duration(cfg.RetryDelay)*time.Second),
		httpclient.WithHeaderParser(parser),
	)
}
