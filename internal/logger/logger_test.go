package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONOutsideLocal(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithOutput("production", "debug", &buf)
	assert.Equal(t, logrus.DebugLevel, l.Logger.GetLevel())

	l.WithError(errors.New("boom")).Info("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello", line["msg"])
	assert.Equal(t, "boom", line["error"])
}

func TestNew_LevelDefaultsToInfo(t *testing.T) {
	l := NewWithOutput("local", "verbose", &bytes.Buffer{})
	assert.Equal(t, logrus.InfoLevel, l.Logger.GetLevel())
}

func TestRequestID(t *testing.T) {
	r := httptest.NewRequest("GET", "/health", nil)
	generated := RequestID(r)
	assert.Len(t, generated, 36)

	r.Header.Set(RequestIDHeader, "abc-123")
	assert.Equal(t, "abc-123", RequestID(r))
}

func TestWithRequest(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithOutput("production", "info", &buf)
	r := httptest.NewRequest("POST", "/processar", nil)

	l.WithRequest(r, "req-1").Info("received")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "req-1", line["req_id"])
	assert.Equal(t, "POST", line["method"])
	assert.Equal(t, "/processar", line["path"])
}

func TestContextRoundTrip(t *testing.T) {
	l := Discard()
	e := l.WithField("req_id", "xyz")
	ctx := IntoContext(context.Background(), e)

	assert.Same(t, e, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}
