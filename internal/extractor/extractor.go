// Package extractor derives a compressed audio artifact from arbitrary input
// media. The pipeline only depends on the Extractor interface so the
// encoder can be swapped for a library or a test double.
package extractor

import (
	"context"
	"fmt"
)

// Artifact is a successfully extracted audio file.
type Artifact struct {
	Path string
	Size int64
}

type Extractor interface {
	// Available probes the encoder. A non-nil error is always an *Error of
	// kind KindUnavailable.
	Available(ctx context.Context) error
	// Extract writes audio derived from inputPath to outputPath. Failures are *Error.
	Extract(ctx context.Context, inputPath, outputPath string) (Artifact, error)
}

type Kind string

const (
	KindUnavailable Kind = "unavailable"
	KindTimeout     Kind = "timeout"
	KindFailed      Kind = "failed"
	KindEmptyOutput Kind = "empty_output"
)

type Error struct {
	Kind Kind
	// Reason is human readable; for KindFailed it carries the encoder diagnostics.
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract %s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("extract %s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }
