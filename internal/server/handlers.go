package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"audio-relay-go/internal/logger"
	"audio-relay-go/internal/pipeline"
	"audio-relay-go/internal/spreadsheet"
	"audio-relay-go/internal/types"
)

const (
	// TranscriptService names the transcript webhook in caller-facing messages.
	TranscriptService = "n8n transcricao"

	// multipartSlack covers boundaries and form fields around the file part.
	multipartSlack = 1 << 20
	maxJSONBody    = 32 << 20
	fileField      = "file"
	exportFilename = "transcricao.xlsx"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	err := s.encoder.Available(r.Context())
	s.metrics.EncoderAvailable(err == nil)
	if err != nil {
		logger.FromContext(r.Context()).WithField("error", err.Error()).Warn("encoder unavailable")
	}
	writeJSON(w, http.StatusOK, types.HealthResponse{
		Status:           "ok",
		EncoderAvailable: err == nil,
		Platform:         runtime.GOOS,
		MaxFileSize:      s.cfg.MaxFileSize,
	})
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	const endpoint = "processar"
	maxBody := s.cfg.MaxFileSize + multipartSlack
	if r.ContentLength > maxBody {
		s.processFailed(w, pipeline.TooLarge(s.cfg.MaxFileSize, pipeline.StateReceived))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)

	up, err := filePart(r)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.processFailed(w, pipeline.TooLarge(s.cfg.MaxFileSize, pipeline.StateReceived))
			return
		}
		s.processFailed(w, &pipeline.Error{
			Kind:    pipeline.KindInvalidInput,
			Stage:   pipeline.StateReceived,
			Message: "Requisição multipart inválida.",
			Err:     err,
		})
		return
	}

	res, err := s.pipeline.Process(r.Context(), up)
	if err != nil {
		s.processFailed(w, pipeline.AsError(err, pipeline.StateFailed))
		return
	}
	s.metrics.ObserveRequest(endpoint, "ok")
	writeJSON(w, http.StatusOK, types.ProcessResponse{
		Success:          true,
		Utterances:       res.Utterances,
		AudioSize:        res.AudioSize,
		OriginalFilename: res.OriginalFilename,
	})
}

func (s *Server) processFailed(w http.ResponseWriter, perr *pipeline.Error) {
	s.metrics.ObserveRequest("processar", string(perr.Kind))
	writeJSON(w, perr.HTTPStatus(), types.ProcessError{
		Success: false,
		Error:   perr.Message,
		Kind:    string(perr.Kind),
		Stage:   string(perr.Stage),
		Body:    perr.Detail,
	})
}

// filePart advances the multipart stream to the file field and returns it
// unread. A request with no file field yields a nil upload.
func filePart(r *http.Request) (*pipeline.Upload, error) {
	mr, err := r.MultipartReader()
	if errors.Is(err, http.ErrNotMultipart) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if part.FormName() == fileField {
			return &pipeline.Upload{
				Filename:     part.FileName(),
				Body:         part,
				DeclaredSize: declaredSize(part),
			}, nil
		}
		if _, err := io.Copy(io.Discard, part); err != nil {
			return nil, err
		}
	}
}

// declaredSize reads an optional per-part Content-Length.
func declaredSize(part *multipart.Part) int64 {
	if v := part.Header.Get("Content-Length"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			return n
		}
	}
	return -1
}

func (s *Server) handleSendTranscript(w http.ResponseWriter, r *http.Request) {
	const endpoint = "enviar_solar"
	log := logger.FromContext(r.Context())

	req, ok := s.decodeTranscript(w, r, endpoint)
	if !ok {
		return
	}

	start := time.Now()
	err := s.transcript.SendTranscript(r.Context(), req.Transcricao)
	s.metrics.ObserveStage("relay_transcript", start)
	if err != nil {
		perr := pipeline.FromRelay(err, pipeline.StateRelaying, TranscriptService)
		entry := log.WithFields(logrus.Fields{"kind": perr.Kind, "upstream_status": perr.UpstreamStatus})
		if perr.Kind == pipeline.KindInvalidInput {
			entry.Warn("transcript rejected")
		} else {
			entry.WithField("error", perr.Error()).Error("transcript relay failed")
		}
		s.okFailed(w, endpoint, perr)
		return
	}

	log.WithField("records", len(req.Transcricao)).Info("transcript relayed")
	s.metrics.ObserveRequest(endpoint, "ok")
	writeJSON(w, http.StatusOK, types.OKResponse{OK: true})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	const endpoint = "exportar"
	log := logger.FromContext(r.Context())

	req, ok := s.decodeTranscript(w, r, endpoint)
	if !ok {
		return
	}
	if len(req.Transcricao) == 0 {
		s.okFailed(w, endpoint, &pipeline.Error{
			Kind:    pipeline.KindInvalidInput,
			Message: "Campo 'transcricao' ausente ou vazio.",
		})
		return
	}

	var buf bytes.Buffer
	if err := spreadsheet.Write(&buf, req.Transcricao); err != nil {
		log.WithField("error", err.Error()).Error("build spreadsheet")
		s.okFailed(w, endpoint, &pipeline.Error{Kind: pipeline.KindInternal, Message: "Falha ao gerar a planilha.", Err: err})
		return
	}

	s.metrics.ObserveRequest(endpoint, "ok")
	w.Header().Set("Content-Type", spreadsheet.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+exportFilename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		log.WithField("error", err.Error()).Warn("write spreadsheet")
	}
}

func (s *Server) decodeTranscript(w http.ResponseWriter, r *http.Request, endpoint string) (types.TranscriptRequest, bool) {
	var req types.TranscriptRequest
	body := http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		logger.FromContext(r.Context()).WithField("error", err.Error()).Warn("invalid json body")
		s.okFailed(w, endpoint, &pipeline.Error{Kind: pipeline.KindInvalidInput, Message: "JSON inválido.", Err: err})
		return req, false
	}
	return req, true
}

func (s *Server) okFailed(w http.ResponseWriter, endpoint string, perr *pipeline.Error) {
	s.metrics.ObserveRequest(endpoint, string(perr.Kind))
	writeJSON(w, perr.HTTPStatus(), types.OKError{OK: false, Error: perr.Message, Body: perr.Detail})
}

