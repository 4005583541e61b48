package server

import (
	"context"
	"embed"
	"encoding/json"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"audio-relay-go/internal/config"
	"audio-relay-go/internal/logger"
	"audio-relay-go/internal/media"
	"audio-relay-go/internal/metrics"
	"audio-relay-go/internal/pipeline"
)

//go:embed web/index.html
var webFS embed.FS

var indexTmpl = template.Must(template.ParseFS(webFS, "web/index.html"))

// EncoderProbe reports whether the audio encoder can be used.
type EncoderProbe interface {
	Available(ctx context.Context) error
}

// TranscriptRelay forwards a finished transcript.
type TranscriptRelay interface {
	SendTranscript(ctx context.Context, records []json.RawMessage) error
}

type Server struct {
	cfg        config.Config
	log        *logger.Logger
	pipeline   *pipeline.Orchestrator
	encoder    EncoderProbe
	transcript TranscriptRelay
	metrics    *metrics.Metrics
}

func New(cfg config.Config, log *logger.Logger, p *pipeline.Orchestrator, encoder EncoderProbe, transcript TranscriptRelay, m *metrics.Metrics) *Server {
	return &Server{
		cfg:        cfg,
		log:        log,
		pipeline:   p,
		encoder:    encoder,
		transcript: transcript,
		metrics:    m,
	}
}

// Handler returns the routed handler with request logging and panic recovery.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.HandleFunc("POST /processar", s.handleProcess)
	mux.HandleFunc("POST /enviar_solar", s.handleSendTranscript)
	mux.HandleFunc("POST /exportar", s.handleExport)
	return s.withRequest(mux)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// withRequest attaches a request-scoped logger and converts panics into a
// JSON 500. Deferred workspace cleanup has already run by the time a panic
// reaches this point.
func (s *Server) withRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := logger.RequestID(r)
		w.Header().Set(logger.RequestIDHeader, reqID)
		reqLog := s.log.WithRequest(r, reqID)
		ctx := logger.IntoContext(r.Context(), reqLog)

		rec := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		defer func() {
			if p := recover(); p != nil {
				if p == http.ErrAbortHandler {
					panic(p)
				}
				reqLog.WithField("panic", p).Error("handler panicked")
				if rec.status == 0 {
					writeJSON(rec, http.StatusInternalServerError, map[string]any{
						"success": false,
						"ok":      false,
						"error":   "Erro interno.",
						"kind":    pipeline.KindInternal,
					})
				}
			}
			reqLog.WithFields(logrus.Fields{
				"status":      rec.status,
				"duration_ms": time.Since(start).Milliseconds(),
			}).Info("request finished")
		}()

		next.ServeHTTP(rec, r.WithContext(ctx))
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	exts := media.AllowedExtensions()
	accept := lo.Map(exts, func(e string, _ int) string { return "." + e })
	data := struct {
		Extensions string
		Accept     string
		MaxMB      int64
	}{
		Extensions: strings.Join(exts, ", "),
		Accept:     strings.Join(accept, ","),
		MaxMB:      s.cfg.MaxFileSize >> 20,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTmpl.Execute(w, data); err != nil {
		logger.FromContext(r.Context()).WithField("error", err.Error()).Error("render index")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
