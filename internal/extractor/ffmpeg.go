package extractor

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"audio-relay-go/internal/logger"
)

const (
	SampleRate = 44100
	Channels   = 2
	Bitrate    = "128k"

	// diagnosticsLimit bounds how much encoder stderr is kept; the tail is
	// where ffmpeg reports the actual failure.
	diagnosticsLimit = 4 << 10
	waitDelay        = 2 * time.Second
)

// FFmpeg shells out to an ffmpeg binary.
type FFmpeg struct {
	bin          string
	timeout      time.Duration
	probeTimeout time.Duration
}

func NewFFmpeg(bin string, timeout, probeTimeout time.Duration) *FFmpeg {
	if bin == "" {
		bin = "ffmpeg"
	}
	return &FFmpeg{bin: bin, timeout: timeout, probeTimeout: probeTimeout}
}

// Args returns the fixed argument template for one extraction.
func Args(inputPath, outputPath string) []string {
	return []string{
		"-hide_banner", "-nostdin",
		"-y",
		"-i", inputPath,
		"-vn",
		"-acodec", "libmp3lame",
		"-ar", strconv.Itoa(SampleRate),
		"-ac", strconv.Itoa(Channels),
		"-b:a", Bitrate,
		outputPath,
	}
}

func (f *FFmpeg) Available(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, f.probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, f.bin, "-version")
	cmd.WaitDelay = waitDelay
	if err := cmd.Run(); err != nil {
		reason := "encoder not found"
		if ctx.Err() == context.DeadlineExceeded {
			reason = "encoder probe timed out"
		} else if !notFound(err) {
			reason = "encoder probe failed"
		}
		return &Error{Kind: KindUnavailable, Reason: reason, Err: err}
	}
	return nil
}

func (f *FFmpeg) Extract(ctx context.Context, inputPath, outputPath string) (Artifact, error) {
	log := logger.FromContext(ctx).WithField("component", "extractor")

	runCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	stderr := &tailBuffer{limit: diagnosticsLimit}
	cmd := exec.CommandContext(runCtx, f.bin, Args(inputPath, outputPath)...)
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay

	start := time.Now()
	err := cmd.Run()
	log = log.WithField("duration_ms", time.Since(start).Milliseconds())

	switch {
	case err == nil:
	case runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil:
		log.WithField("timeout", f.timeout.String()).Warn("encoder timed out")
		return Artifact{}, &Error{Kind: KindTimeout, Reason: "encoder exceeded " + f.timeout.String(), Err: err}
	case ctx.Err() != nil:
		return Artifact{}, &Error{Kind: KindFailed, Reason: "extraction cancelled", Err: ctx.Err()}
	case notFound(err):
		return Artifact{}, &Error{Kind: KindUnavailable, Reason: "encoder not found", Err: err}
	default:
		diag := stderr.String()
		log.WithField("diagnostics", diag).Warn("encoder exited with error")
		if diag == "" {
			diag = "encoder failed without diagnostics"
		}
		return Artifact{}, &Error{Kind: KindFailed, Reason: diag, Err: err}
	}

	info, statErr := os.Stat(outputPath)
	if statErr != nil {
		return Artifact{}, &Error{Kind: KindEmptyOutput, Reason: "encoder produced no output", Err: statErr}
	}
	if info.Size() == 0 {
		return Artifact{}, &Error{Kind: KindEmptyOutput, Reason: "encoder produced an empty file"}
	}

	log.WithField("audio_size", info.Size()).Info("audio extracted")
	return Artifact{Path: outputPath, Size: info.Size()}, nil
}

func notFound(err error) bool {
	return errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist)
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	limit int
	buf   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return n, nil
}

// String decodes permissively: invalid UTF-8 is dropped.
func (t *tailBuffer) String() string {
	return strings.TrimSpace(strings.ToValidUTF8(string(t.buf), ""))
}
