package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultAudioWebhookURL      = "https://laboratorio-n8n.nu7ixt.easypanel.host/webhook/audio"
	DefaultTranscriptWebhookURL = "https://laboratorio-n8n.nu7ixt.easypanel.host/webhook/trancricao"
)

// Config is built once at startup and only read afterwards.
type Config struct {
	Port string

	AudioWebhookURL      string
	TranscriptWebhookURL string

	// MaxFileSize is the per-request upload ceiling in bytes.
	MaxFileSize int64

	EncoderPath         string
	EncoderTimeout      time.Duration
	EncoderProbeTimeout time.Duration

	AudioRelayTimeout      time.Duration
	TranscriptRelayTimeout time.Duration

	// UploadTimeout bounds reading one request body, the upload itself.
	UploadTimeout time.Duration

	// WorkspaceRoot is where per-request directories are created. Empty means os.TempDir().
	WorkspaceRoot string

	Environment string
	LogLevel    string
}

// Default returns the configuration used when no environment overrides are set.
func Default() Config {
	return Config{
		Port:                   "8080",
		AudioWebhookURL:        DefaultAudioWebhookURL,
		TranscriptWebhookURL:   DefaultTranscriptWebhookURL,
		MaxFileSize:            500 << 20,
		EncoderPath:            "ffmpeg",
		EncoderTimeout:         10 * time.Minute,
		EncoderProbeTimeout:    5 * time.Second,
		AudioRelayTimeout:      125 * time.Second,
		TranscriptRelayTimeout: 30 * time.Second,
		UploadTimeout:          15 * time.Minute,
		Environment:            "local",
		LogLevel:               "info",
	}
}

// Load reads the process environment on top of Default.
func Load() (Config, error) {
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from an arbitrary key lookup, e.g. os.LookupEnv.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	c := Default()
	get := func(k string) (string, bool) {
		v, ok := lookup(k)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get("PORT"); ok {
		c.Port = v
	}
	if v, ok := get("AUDIO_WEBHOOK_URL"); ok {
		c.AudioWebhookURL = v
	}
	if v, ok := get("TRANSCRIPT_WEBHOOK_URL"); ok {
		c.TranscriptWebhookURL = v
	}
	if v, ok := get("MAX_FILE_SIZE_MB"); ok {
		mb, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("MAX_FILE_SIZE_MB: %w", err)
		}
		c.MaxFileSize = mb << 20
	}
	if v, ok := get("FFMPEG_PATH"); ok {
		c.EncoderPath = v
	}
	if v, ok := get("WORKSPACE_ROOT"); ok {
		c.WorkspaceRoot = v
	}
	if v, ok := get("ENVIRONMENT"); ok {
		c.Environment = v
	}
	if v, ok := get("LOG_LEVEL"); ok {
		c.LogLevel = strings.ToLower(v)
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"ENCODER_TIMEOUT", &c.EncoderTimeout},
		{"ENCODER_PROBE_TIMEOUT", &c.EncoderProbeTimeout},
		{"AUDIO_RELAY_TIMEOUT", &c.AudioRelayTimeout},
		{"TRANSCRIPT_RELAY_TIMEOUT", &c.TranscriptRelayTimeout},
		{"UPLOAD_TIMEOUT", &c.UploadTimeout},
	}
	for _, d := range durations {
		v, ok := get(d.key)
		if !ok {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", d.key, err)
		}
		*d.dst = parsed
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.AudioWebhookURL == "" {
		errs = append(errs, errors.New("audio webhook url is empty"))
	}
	if c.TranscriptWebhookURL == "" {
		errs = append(errs, errors.New("transcript webhook url is empty"))
	}
	if c.MaxFileSize <= 0 {
		errs = append(errs, fmt.Errorf("max file size must be positive, got %d", c.MaxFileSize))
	}
	if c.EncoderPath == "" {
		errs = append(errs, errors.New("encoder path is empty"))
	}
	for name, d := range map[string]time.Duration{
		"encoder timeout":          c.EncoderTimeout,
		"encoder probe timeout":    c.EncoderProbeTimeout,
		"audio relay timeout":      c.AudioRelayTimeout,
		"transcript relay timeout": c.TranscriptRelayTimeout,
		"upload timeout":           c.UploadTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	return errors.Join(errs...)
}

// responseSlack covers everything after the relay returns: cleanup and
// encoding the JSON response.
const responseSlack = time.Minute

// ServerTimeouts returns the read and write deadlines for the HTTP server.
// net/http starts the write deadline when the request headers are read, so
// the write budget has to include the upload as well as extraction and the
// audio relay.
func (c Config) ServerTimeouts() (read, write time.Duration) {
	read = c.UploadTimeout
	write = c.UploadTimeout + c.EncoderTimeout + c.AudioRelayTimeout + responseSlack
	return read, write
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return ":" + c.Port
}
