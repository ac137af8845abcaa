// Package processing defines the pluggable provider behind downstream
// evidence processing (OCR, transcription). Providers form a closed set
// selected by configuration at startup; real extraction engines are
// external and out of scope, so the shipped implementation records a
// placeholder artifact.
package processing

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Provider is the single capability interface all processing variants
// implement.
type Provider interface {
	// Extract derives machine-readable text from an evidence blob.
	Extract(ctx context.Context, contentType string, r io.Reader) (string, error)
	// Name identifies the variant for job records and logs.
	Name() string
}

// Provider names accepted by configuration.
const (
	ProviderNoop = "noop"
)

// FromConfig selects a provider variant by name.
func FromConfig(name string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", ProviderNoop:
		return NoopProvider{}, nil
	default:
		return nil, fmt.Errorf("unknown processing provider %q", name)
	}
}

// NoopProvider consumes the blob and records that no extraction engine is
// configured. It keeps the job pipeline exercisable without an external
// dependency.
type NoopProvider struct{}

var _ Provider = NoopProvider{}

// Extract drains r and returns a placeholder marker.
func (NoopProvider) Extract(_ context.Context, contentType string, r io.Reader) (string, error) {
	n, err := io.Copy(io.Discard, r)
	if err != nil {
		return "", fmt.Errorf("reading blob for extraction: %w", err)
	}
	return fmt.Sprintf("[no extraction engine configured; %d bytes of %s examined]", n, contentType), nil
}

// Name implements Provider.
func (NoopProvider) Name() string { return ProviderNoop }
