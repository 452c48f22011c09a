package ai

import (
	"context"
	"errors"
	"fmt"
)

// Message is one turn of conversation history passed to a provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider turns an ordered message history into one assistant reply.
//
// Implementations must respect ctx: once it is cancelled or its deadline
// passes, Complete returns a KindAborted or KindTimeout error promptly and
// never completes silently afterwards. All failures are normalized into
// *Error so callers can classify without knowing the transport.
type Provider interface {
	Complete(ctx context.Context, history []Message) (string, error)
}

// Kind is the closed failure taxonomy shared by all provider variants.
type Kind string

const (
	// KindUpstream: the provider reported an internal fault. Retryable.
	KindUpstream Kind = "upstream"
	// KindTimeout: the per-attempt deadline expired. Not retried.
	KindTimeout Kind = "timeout"
	// KindAborted: the caller cancelled. Not retried, never responded to.
	KindAborted Kind = "aborted"
	// KindUnavailable: connection refused or host unresolvable.
	KindUnavailable Kind = "unavailable"
	// KindProvider: any other provider failure. Terminal.
	KindProvider Kind = "provider"
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func Errf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf classifies any error. Errors that are not *Error fall back to
// KindProvider; nil has no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindProvider
}

// Retryable reports whether err is worth another attempt. Only provider
// internal faults qualify; timeouts and aborts must propagate immediately.
func Retryable(err error) bool {
	return KindOf(err) == KindUpstream
}

// classifyTransport maps an outbound HTTP transport failure onto the
// taxonomy. Context state decides between timeout and abort; everything
// else from the dialer is treated as the backend being unreachable.
func classifyTransport(ctx context.Context, op string, err error) *Error {
	switch {
	case errors.Is(err, context.Canceled), ctx.Err() == context.Canceled:
		return &Error{Kind: KindAborted, Message: op + " cancelled", Err: context.Canceled}
	case errors.Is(err, context.DeadlineExceeded), ctx.Err() == context.DeadlineExceeded:
		return &Error{Kind: KindTimeout, Message: op + " deadline exceeded", Err: context.DeadlineExceeded}
	default:
		return &Error{Kind: KindUnavailable, Message: op + " unreachable", Err: err}
	}
}
