// Package ondevice probes and drives the local, text-only model.
package ondevice

import (
	"context"
	"errors"
)

// Availability is the capability probe result.
type Availability string

const (
	Unsupported     Availability = "unsupported"
	DownloadPending Availability = "download-pending"
	Ready           Availability = "ready"
)

// ErrSessionClosed is returned by Complete after Close.
var ErrSessionClosed = errors.New("ondevice: session closed")

// Provider reports readiness and opens sessions on the local model.
type Provider interface {
	// Probe reports whether the local model can be used right now.
	Probe(ctx context.Context) (Availability, error)

	// Open creates a session. Callers own the session and must Close it.
	Open(ctx context.Context) (Session, error)
}

// Session is a single-owner handle to the local model.
type Session interface {
	// Complete sends a text prompt and returns the raw reply.
	Complete(ctx context.Context, prompt string) (string, error)

	// Close releases the session. Calling it more than once is safe.
	Close() error
}

// Disabled is a Provider for hosts without a local model.
type Disabled struct{}

// Probe always reports Unsupported.
func (Disabled) Probe(context.Context) (Availability, error) {
	return Unsupported, nil
}

// Open always fails.
func (Disabled) Open(context.Context) (Session, error) {
	return nil, errors.New("ondevice: local model disabled")
}
