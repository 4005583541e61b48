package transcription

import "fmt"

// Kind buckets a relay failure. Callers render different guidance for
// timeouts (retry later) and connection failures (check the webhook).
type Kind string

const (
	KindStatus          Kind = "status"
	KindInvalidResponse Kind = "invalid_response"
	KindTimeout         Kind = "timeout"
	KindConnection      Kind = "connection"
	KindOther           Kind = "other"
	// KindValidation is a client-side rejection; no request was sent.
	KindValidation Kind = "validation"
)

type Error struct {
	Kind Kind
	// Status is the upstream HTTP status when one was received.
	Status int
	// Body is a bounded excerpt of the upstream response.
	Body string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == KindStatus:
		return fmt.Sprintf("relay: upstream status %d", e.Status)
	case e.Kind == KindInvalidResponse:
		return "relay: invalid upstream response"
	case e.Err != nil:
		return fmt.Sprintf("relay %s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("relay %s", e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }
