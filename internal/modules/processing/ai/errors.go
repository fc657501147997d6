package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies a failed external call.
type ErrorKind string

const (
	// KindTimeout: the call exceeded its deadline. Retriable.
	KindTimeout ErrorKind = "timeout"
	// KindUpstream: transport failure or provider error status. Retriable.
	KindUpstream ErrorKind = "upstream"
	// KindMalformed: the provider answered but the payload failed validation.
	KindMalformed ErrorKind = "malformed"
)

// ExternalError is returned by Summarizer implementations for every failure.
type ExternalError struct {
	Kind     ErrorKind
	Provider string
	Err      error
}

func (e *ExternalError) Error() string {
	return fmt.Sprintf("%s summarizer %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ExternalError) Unwrap() error { return e.Err }

// Retriable reports whether repeating the same request may succeed.
func (e *ExternalError) Retriable() bool {
	return e.Kind == KindTimeout || e.Kind == KindUpstream
}

// KindOf returns the kind of err when it is an *ExternalError.
func KindOf(err error) (ErrorKind, bool) {
	var ext *ExternalError
	if errors.As(err, &ext) {
		return ext.Kind, true
	}
	return "", false
}

func malformed(provider string, err error) *ExternalError {
	return &ExternalError{Kind: KindMalformed, Provider: provider, Err: err}
}

// classify turns a transport/SDK error into an ExternalError. ctx is the
// call's context; its state wins over whatever the SDK wrapped.
func classify(ctx context.Context, provider string, err error) *ExternalError {
	var ext *ExternalError
	if errors.As(err, &ext) {
		return ext
	}
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &ExternalError{Kind: KindTimeout, Provider: provider, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &ExternalError{Kind: KindTimeout, Provider: provider, Err: err}
	}
	return &ExternalError{Kind: KindUpstream, Provider: provider, Err: err}
}
