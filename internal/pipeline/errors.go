package pipeline

import (
	"errors"
	"fmt"
	"net/http"

	"audio-relay-go/internal/extractor"
	"audio-relay-go/internal/transcription"
)

// Kind classifies a failed request. Every kind maps to one HTTP status.
type Kind string

const (
	KindInvalidInput          Kind = "invalid_input"
	KindTooLarge              Kind = "too_large"
	KindDependencyUnavailable Kind = "dependency_unavailable"
	KindStorage               Kind = "storage_error"
	KindExtraction            Kind = "extraction_error"
	KindUpstreamRejected      Kind = "upstream_rejected"
	KindUpstreamUnreachable   Kind = "upstream_unreachable"
	KindUpstreamTimeout       Kind = "upstream_timeout"
	KindInternal              Kind = "internal"
)

func (k Kind) HTTPStatus() int {
	switch k {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindUpstreamRejected:
		return http.StatusBadGateway
	case KindUpstreamUnreachable:
		return http.StatusServiceUnavailable
	case KindUpstreamTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Error is the single structured outcome of a failed request.
type Error struct {
	Kind  Kind
	Stage State
	// Message is safe to show to the caller.
	Message string
	// Detail carries a bounded diagnostic: encoder stderr or an upstream body excerpt.
	Detail string
	// UpstreamStatus is set when a collaborator answered with a non-200.
	UpstreamStatus int
	Err            error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s at %s: %s: %v", e.Kind, e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("%s at %s: %s", e.Kind, e.Stage, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) HTTPStatus() int { return e.Kind.HTTPStatus() }

// AsError converts any error into an *Error, defaulting to KindInternal.
func AsError(err error, stage State) *Error {
	if err == nil {
		return nil
	}
	var perr *Error
	if errors.As(err, &perr) {
		return perr
	}
	return &Error{Kind: KindInternal, Stage: stage, Message: "Erro interno.", Err: err}
}

func invalidInput(stage State, msg string) *Error {
	return &Error{Kind: KindInvalidInput, Stage: stage, Message: msg}
}

func fromExtraction(err error, stage State) *Error {
	var xerr *extractor.Error
	if !errors.As(err, &xerr) {
		return &Error{Kind: KindExtraction, Stage: stage, Message: "Falha ao extrair o áudio.", Err: err}
	}
	switch xerr.Kind {
	case extractor.KindUnavailable:
		return &Error{Kind: KindDependencyUnavailable, Stage: stage,
			Message: "ffmpeg não está disponível no servidor.", Detail: xerr.Reason, Err: err}
	case extractor.KindTimeout:
		return &Error{Kind: KindExtraction, Stage: stage,
			Message: "Tempo esgotado ao extrair o áudio.", Detail: xerr.Reason, Err: err}
	case extractor.KindEmptyOutput:
		return &Error{Kind: KindExtraction, Stage: stage,
			Message: "A extração não gerou áudio.", Detail: xerr.Reason, Err: err}
	default:
		return &Error{Kind: KindExtraction, Stage: stage,
			Message: "Falha ao extrair o áudio.", Detail: xerr.Reason, Err: err}
	}
}

// FromRelay maps a relay failure to the request outcome. service names the
// webhook in the caller-facing message.
func FromRelay(err error, stage State, service string) *Error {
	var rerr *transcription.Error
	if !errors.As(err, &rerr) {
		return &Error{Kind: KindInternal, Stage: stage, Message: "Falha ao contatar " + service + ".", Err: err}
	}
	switch rerr.Kind {
	case transcription.KindValidation:
		return &Error{Kind: KindInvalidInput, Stage: stage, Message: "Campo 'transcricao' ausente ou vazio.", Err: err}
	case transcription.KindStatus:
		return &Error{Kind: KindUpstreamRejected, Stage: stage,
			Message:        fmt.Sprintf("Erro no %s: %d", service, rerr.Status),
			Detail:         rerr.Body,
			UpstreamStatus: rerr.Status, Err: err}
	case transcription.KindInvalidResponse:
		return &Error{Kind: KindUpstreamRejected, Stage: stage,
			Message: "Resposta inválida do " + service + ".", Detail: rerr.Body,
			UpstreamStatus: rerr.Status, Err: err}
	case transcription.KindTimeout:
		return &Error{Kind: KindUpstreamTimeout, Stage: stage,
			Message: "Tempo esgotado aguardando o " + service + ". Tente novamente mais tarde.", Err: err}
	case transcription.KindConnection:
		return &Error{Kind: KindUpstreamUnreachable, Stage: stage,
			Message: "Não foi possível conectar ao " + service + ". Verifique se o serviço está disponível.", Err: err}
	default:
		return &Error{Kind: KindInternal, Stage: stage, Message: "Falha ao contatar " + service + ".", Err: err}
	}
}

// TooLarge is the outcome for an upload over the size ceiling.
func TooLarge(maxBytes int64, stage State) *Error {
	return &Error{
		Kind:    KindTooLarge,
		Stage:   stage,
		Message: fmt.Sprintf("Arquivo excede o tamanho máximo de %d MB.", maxBytes>>20),
	}
}
