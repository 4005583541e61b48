package types

import (
	"encoding/json"

	"audio-relay-go/internal/transcription"
)

// ProcessResponse is returned by POST /processar on success.
type ProcessResponse struct {
	Success          bool                     `json:"success"`
	Utterances       transcription.Utterances `json:"utterances"`
	AudioSize        int64                    `json:"audio_size"`
	OriginalFilename string                   `json:"original_filename"`
}

// ProcessError is returned by POST /processar on failure.
type ProcessError struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Kind    string `json:"kind"`
	Stage   string `json:"stage,omitempty"`
	Body    string `json:"body,omitempty"`
}

// TranscriptRequest is the body of POST /enviar_solar and POST /exportar.
type TranscriptRequest struct {
	Transcricao []json.RawMessage `json:"transcricao"`
}

type OKResponse struct {
	OK bool `json:"ok"`
}

type OKError struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
	Body  string `json:"body,omitempty"`
}

type HealthResponse struct {
	Status           string `json:"status"`
	EncoderAvailable bool   `json:"encoder_available"`
	Platform         string `json:"platform"`
	MaxFileSize      int64  `json:"max_file_size"`
}
