// Package pipeline sequences one media upload through validation, storage,
// audio extraction and the audio relay, and guarantees the request
// workspace is removed on every exit path.
package pipeline

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"audio-relay-go/internal/aggregator"
	"audio-relay-go/internal/config"
	"audio-relay-go/internal/extractor"
	"audio-relay-go/internal/logger"
	"audio-relay-go/internal/media"
	"audio-relay-go/internal/metrics"
	"audio-relay-go/internal/transcription"
	"audio-relay-go/internal/workspace"
)

// AudioService is the name of the audio webhook in caller-facing messages.
const AudioService = "n8n audio"

type State string

const (
	StateReceived   State = "received"
	StateValidated  State = "validated"
	StateStored     State = "stored"
	StateExtracting State = "extracting"
	StateAudioReady State = "audio_ready"
	StateRelaying   State = "relaying"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// AudioRelay uploads a prepared audio file and returns the utterance list.
type AudioRelay interface {
	SendAudio(ctx context.Context, audioPath, originalFilename string, size int64) (transcription.Utterances, error)
}

// Upload is one inbound file. A nil *Upload means the file field was missing.
type Upload struct {
	Filename string
	Body     io.Reader
	// DeclaredSize is the client-declared size, or -1 when unknown.
	DeclaredSize int64
}

type Result struct {
	Utterances       transcription.Utterances
	AudioSize        int64
	OriginalFilename string
	// WorkspaceDir is the directory used for this request. It no longer
	// exists once Process returns.
	WorkspaceDir string
}

type Orchestrator struct {
	workspaces  *workspace.Manager
	extractor   extractor.Extractor
	relay       AudioRelay
	maxFileSize int64
	metrics     *metrics.Metrics
}

func New(cfg config.Config, ws *workspace.Manager, ex extractor.Extractor, relay AudioRelay, m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{
		workspaces:  ws,
		extractor:   ex,
		relay:       relay,
		maxFileSize: cfg.MaxFileSize,
		metrics:     m,
	}
}

// Process runs the upload to completion. A non-nil error is always an *Error.
func (o *Orchestrator) Process(ctx context.Context, up *Upload) (Result, error) {
	log := logger.FromContext(ctx).WithField("component", "pipeline")
	run := &run{o: o, log: log, state: StateReceived}

	res, err := run.process(ctx, up)
	if err != nil {
		perr := AsError(err, run.state)
		run.transition(StateFailed)
		entry := log.WithFields(logrus.Fields{"kind": perr.Kind, "stage": perr.Stage})
		if perr.Kind == KindInvalidInput || perr.Kind == KindTooLarge {
			entry.WithField("reason", perr.Message).Warn("upload rejected")
		} else {
			entry.WithField("error", perr.Error()).Error("pipeline failed")
		}
		return res, perr
	}
	run.transition(StateCompleted)
	return res, nil
}

type run struct {
	o     *Orchestrator
	log   *logrus.Entry
	state State
}

func (r *run) transition(to State) {
	r.log.WithFields(logrus.Fields{"from": r.state, "to": to}).Debug("pipeline transition")
	r.state = to
}

func (r *run) process(ctx context.Context, up *Upload) (Result, error) {
	var res Result
	format, err := r.validate(up)
	if err != nil {
		return Result{}, err
	}
	r.transition(StateValidated)
	res.OriginalFilename = up.Filename

	ws, err := r.o.workspaces.Acquire(format.Ext)
	if err != nil {
		return res, &Error{Kind: KindStorage, Stage: r.state, Message: "Falha ao criar área temporária.", Err: err}
	}
	res.WorkspaceDir = ws.Dir
	// Release runs on success, handled errors and panics alike.
	defer ws.Release(r.log)
	r.log = r.log.WithField("workspace_id", ws.ID)

	stored, err := r.store(ws.InputPath(), up.Body)
	if err != nil {
		return res, err
	}
	r.transition(StateStored)
	r.log.WithFields(logrus.Fields{"filename": up.Filename, "bytes": stored, "class": format.Class}).Info("upload stored")

	audioPath, audioSize := ws.InputPath(), stored
	if !format.PassThrough() {
		r.transition(StateExtracting)
		art, err := r.extract(ctx, ws.InputPath(), ws.AudioPath())
		if err != nil {
			return res, err
		}
		audioPath, audioSize = art.Path, art.Size
	}
	r.transition(StateAudioReady)
	res.AudioSize = audioSize

	r.transition(StateRelaying)
	start := time.Now()
	utterances, err := r.o.relay.SendAudio(ctx, audioPath, up.Filename, audioSize)
	r.o.metrics.ObserveStage("relay_audio", start)
	if err != nil {
		return res, FromRelay(err, r.state, AudioService)
	}
	res.Utterances = utterances

	summary := aggregator.Summarize(utterances)
	r.log.WithFields(logrus.Fields{
		"utterances": summary.Total,
		"speakers":   len(summary.Speakers),
		"audio_size": audioSize,
	}).Info("upload transcribed")
	return res, nil
}

func (r *run) validate(up *Upload) (media.Format, error) {
	if up == nil {
		return media.Format{}, invalidInput(r.state, "Arquivo não enviado (campo file).")
	}
	if strings.TrimSpace(up.Filename) == "" {
		return media.Format{}, invalidInput(r.state, "Nome de arquivo vazio.")
	}
	format := media.Classify(up.Filename)
	if !format.Accepted() {
		return format, invalidInput(r.state, "Formato não suportado.")
	}
	if up.DeclaredSize > r.o.maxFileSize {
		return format, r.tooLarge()
	}
	if up.Body == nil {
		return format, invalidInput(r.state, "Arquivo não enviado (campo file).")
	}
	return format, nil
}

func (r *run) tooLarge() *Error {
	return TooLarge(r.o.maxFileSize, r.state)
}

// store copies at most maxFileSize bytes into path.
func (r *run) store(path string, body io.Reader) (int64, error) {
	defer r.o.metrics.ObserveStage("store", time.Now())

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, &Error{Kind: KindStorage, Stage: r.state, Message: "Falha ao salvar o arquivo.", Err: err}
	}
	n, copyErr := io.Copy(f, io.LimitReader(body, r.o.maxFileSize+1))
	closeErr := f.Close()

	var maxErr *http.MaxBytesError
	switch {
	case errors.As(copyErr, &maxErr), n > r.o.maxFileSize:
		return n, r.tooLarge()
	case copyErr != nil:
		return n, &Error{Kind: KindStorage, Stage: r.state, Message: "Falha ao salvar o arquivo.", Err: copyErr}
	case closeErr != nil:
		return n, &Error{Kind: KindStorage, Stage: r.state, Message: "Falha ao salvar o arquivo.", Err: closeErr}
	case n == 0:
		return 0, &Error{Kind: KindStorage, Stage: r.state, Message: "Arquivo vazio."}
	}
	return n, nil
}

func (r *run) extract(ctx context.Context, in, out string) (extractor.Artifact, error) {
	if err := r.o.extractor.Available(ctx); err != nil {
		r.o.metrics.EncoderAvailable(false)
		var xerr *extractor.Error
		if !errors.As(err, &xerr) {
			err = &extractor.Error{Kind: extractor.KindUnavailable, Reason: "encoder probe failed", Err: err}
		}
		return extractor.Artifact{}, fromExtraction(err, r.state)
	}
	r.o.metrics.EncoderAvailable(true)

	defer r.o.metrics.ObserveStage("extract", time.Now())
	art, err := r.o.extractor.Extract(ctx, in, out)
	if err != nil {
		return extractor.Artifact{}, fromExtraction(err, r.state)
	}
	return art, nil
}
