package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"audio-relay-go/internal/logger"
)

const (
	// excerptLimit bounds the upstream body carried in errors.
	excerptLimit = 500
	// responseLimit bounds a successful upstream body.
	responseLimit = 32 << 20
)

var utf8BOM = []byte("\xEF\xBB\xBF")

// Utterances is the ordered list returned by the transcription webhook.
// Records are opaque and kept byte for byte.
type Utterances []json.RawMessage

// MarshalJSON renders a nil list as [] rather than null.
func (u Utterances) MarshalJSON() ([]byte, error) {
	if u == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]json.RawMessage(u))
}

type Client struct {
	audioURL      string
	transcriptURL string

	audioHTTP      *http.Client
	transcriptHTTP *http.Client
}

// ClientOption is a function type that allows to set options for the Client.
type ClientOption func(*Client)

// WithAudioHTTPClient replaces the client used for the audio webhook.
func WithAudioHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.audioHTTP = hc }
}

// WithTranscriptHTTPClient replaces the client used for the transcript webhook.
func WithTranscriptHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.transcriptHTTP = hc }
}

// NewClient builds a relay to both webhooks. Each call is attempted once.
func NewClient(audioURL, transcriptURL string, audioTimeout, transcriptTimeout time.Duration, opts ...ClientOption) *Client {
	c := &Client{
		audioURL:       audioURL,
		transcriptURL:  transcriptURL,
		audioHTTP:      &http.Client{Timeout: audioTimeout},
		transcriptHTTP: &http.Client{Timeout: transcriptTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SendAudio uploads the audio file as multipart/form-data and returns the
// normalized utterance list.
func (c *Client) SendAudio(ctx context.Context, audioPath, originalFilename string, size int64) (Utterances, error) {
	log := logger.FromContext(ctx).WithField("component", "relay").WithField("webhook", "audio")

	f, err := os.Open(audioPath)
	if err != nil {
		return nil, &Error{Kind: KindOther, Err: fmt.Errorf("open audio: %w", err)}
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		defer f.Close()
		pw.CloseWithError(writeAudioForm(mw, f, originalFilename, size))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.audioURL, pr)
	if err != nil {
		pr.Close()
		return nil, &Error{Kind: KindOther, Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	start := time.Now()
	resp, err := c.audioHTTP.Do(req)
	if err != nil {
		e := &Error{Kind: classify(err), Err: err}
		log.WithField("kind", e.Kind).WithField("error", err.Error()).Warn("audio relay failed")
		return nil, e
	}
	defer resp.Body.Close()

	log = log.WithField("status", resp.StatusCode).WithField("duration_ms", time.Since(start).Milliseconds())
	if resp.StatusCode != http.StatusOK {
		excerpt := readExcerpt(resp.Body)
		log.WithField("body", excerpt).Warn("audio webhook rejected upload")
		return nil, &Error{Kind: KindStatus, Status: resp.StatusCode, Body: excerpt}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, responseLimit))
	if err != nil {
		return nil, &Error{Kind: classify(err), Status: resp.StatusCode, Err: err}
	}
	utterances, err := NormalizeUtterances(body)
	if err != nil {
		log.WithField("body", bodyExcerpt(body)).Warn("audio webhook returned invalid json")
		return nil, &Error{Kind: KindInvalidResponse, Status: resp.StatusCode, Body: bodyExcerpt(body), Err: err}
	}
	log.WithField("utterances", len(utterances)).Info("audio relayed")
	return utterances, nil
}

func writeAudioForm(mw *multipart.Writer, audio io.Reader, originalFilename string, size int64) error {
	if err := mw.WriteField("video_filename", originalFilename); err != nil {
		return err
	}
	if err := mw.WriteField("audio_size", strconv.FormatInt(size, 10)); err != nil {
		return err
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, audioFilename(originalFilename)))
	h.Set("Content-Type", "audio/mpeg")
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, audio); err != nil {
		return err
	}
	return mw.Close()
}

// audioFilename names the relayed file after the upload, with an mp3 extension.
func audioFilename(original string) string {
	base := filepath.Base(strings.ReplaceAll(original, `\`, "/"))
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" || stem == "." || stem == "/" {
		stem = "audio"
	}
	return stem + ".mp3"
}

// SendTranscript posts {"transcricao": records} to the transcript webhook.
// An empty list is rejected before any network call.
func (c *Client) SendTranscript(ctx context.Context, records []json.RawMessage) error {
	log := logger.FromContext(ctx).WithField("component", "relay").WithField("webhook", "transcript")

	if len(records) == 0 {
		return &Error{Kind: KindValidation, Err: errors.New("transcricao is empty")}
	}

	payload, err := json.Marshal(map[string][]json.RawMessage{"transcricao": records})
	if err != nil {
		return &Error{Kind: KindValidation, Err: fmt.Errorf("encode transcript: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.transcriptURL, bytes.NewReader(payload))
	if err != nil {
		return &Error{Kind: KindOther, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.transcriptHTTP.Do(req)
	if err != nil {
		e := &Error{Kind: classify(err), Err: err}
		log.WithField("kind", e.Kind).WithField("error", err.Error()).Warn("transcript relay failed")
		return e
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		excerpt := readExcerpt(resp.Body)
		log.WithField("status", resp.StatusCode).WithField("body", excerpt).Warn("transcript webhook rejected payload")
		return &Error{Kind: KindStatus, Status: resp.StatusCode, Body: excerpt}
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, responseLimit))
	log.WithField("records", len(records)).Info("transcript relayed")
	return nil
}

// NormalizeUtterances extracts the utterance list from either response shape:
// an array whose first element carries "utterances", or an object carrying it
// directly. Any other valid JSON yields an empty list. Only invalid JSON is an error.
func NormalizeUtterances(body []byte) (Utterances, error) {
	// some upstreams prefix a UTF-8 byte order mark
	trimmed := bytes.TrimSpace(bytes.TrimPrefix(bytes.TrimSpace(body), utf8BOM))
	if !json.Valid(trimmed) {
		return nil, errors.New("invalid upstream response")
	}

	switch trimmed[0] {
	case '[':
		var arr []json.RawMessage
		if err := json.Unmarshal(trimmed, &arr); err != nil || len(arr) == 0 {
			return Utterances{}, nil
		}
		return utterancesField(arr[0]), nil
	case '{':
		return utterancesField(trimmed), nil
	default:
		return Utterances{}, nil
	}
}

func utterancesField(raw json.RawMessage) Utterances {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return Utterances{}
	}
	field, ok := obj["utterances"]
	if !ok {
		return Utterances{}
	}
	var list []json.RawMessage
	if err := json.Unmarshal(field, &list); err != nil || list == nil {
		return Utterances{}
	}
	return Utterances(list)
}

func readExcerpt(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, excerptLimit))
	return strings.ToValidUTF8(string(b), "")
}

func bodyExcerpt(b []byte) string {
	if len(b) > excerptLimit {
		b = b[:excerptLimit]
	}
	return strings.ToValidUTF8(string(b), "")
}

func classify(err error) Kind {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return KindTimeout
	}
	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) ||
		errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return KindConnection
	}
	return KindOther
}
