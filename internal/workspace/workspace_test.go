package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

func TestAcquire_PathsInsideDir(t *testing.T) {
	m := NewManager(t.TempDir(), Hooks{})
	ws, err := m.Acquire("mp4")
	require.NoError(t, err)
	defer ws.Release(quietLog())

	info, err := os.Stat(ws.Dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	assert.Equal(t, ws.Dir, filepath.Dir(ws.InputPath()))
	assert.Equal(t, ws.Dir, filepath.Dir(ws.AudioPath()))
	assert.Equal(t, "input.mp4", filepath.Base(ws.InputPath()))
	assert.Equal(t, "audio.mp3", filepath.Base(ws.AudioPath()))
	assert.True(t, strings.HasPrefix(filepath.Base(ws.Dir), "ingest-"+ws.ID))
}

func TestAcquire_MP3InputDoesNotCollideWithAudio(t *testing.T) {
	m := NewManager(t.TempDir(), Hooks{})
	ws, err := m.Acquire("mp3")
	require.NoError(t, err)
	defer ws.Release(quietLog())

	assert.NotEqual(t, ws.InputPath(), ws.AudioPath())
}

func TestAcquire_IndependentWorkspaces(t *testing.T) {
	m := NewManager(t.TempDir(), Hooks{})
	a, err := m.Acquire("mp4")
	require.NoError(t, err)
	b, err := m.Acquire("mp4")
	require.NoError(t, err)
	defer a.Release(quietLog())
	defer b.Release(quietLog())

	assert.NotEqual(t, a.Dir, b.Dir)
	assert.NotEqual(t, a.ID, b.ID)
	assert.NotEqual(t, a.InputPath(), b.InputPath())
}

func TestRelease_RemovesEverything(t *testing.T) {
	m := NewManager(t.TempDir(), Hooks{})
	ws, err := m.Acquire("mkv")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(ws.InputPath(), []byte("video"), 0o644))
	require.NoError(t, os.WriteFile(ws.AudioPath(), []byte("audio"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(ws.Dir, "nested", "deeper"), 0o755))

	require.NoError(t, ws.Release(quietLog()))
	_, err = os.Stat(ws.Dir)
	assert.True(t, os.IsNotExist(err))
}

func TestRelease_OnlyOnce(t *testing.T) {
	acquired, released := 0, 0
	m := NewManager(t.TempDir(), Hooks{
		Acquired: func() { acquired++ },
		Released: func() { released++ },
	})
	ws, err := m.Acquire("wav")
	require.NoError(t, err)

	require.NoError(t, ws.Release(quietLog()))
	require.NoError(t, os.MkdirAll(ws.Dir, 0o755))
	require.NoError(t, ws.Release(nil))

	// the second call must not touch a directory recreated at the same path
	_, err = os.Stat(ws.Dir)
	assert.NoError(t, err)
	assert.Equal(t, 1, acquired)
	assert.Equal(t, 1, released)
	os.RemoveAll(ws.Dir)
}

func TestRelease_AlreadyGoneIsFine(t *testing.T) {
	m := NewManager(t.TempDir(), Hooks{})
	ws, err := m.Acquire("")
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(ws.Dir))

	assert.NoError(t, ws.Release(quietLog()))
	assert.Equal(t, "input", filepath.Base(ws.InputPath()))
}

func TestAcquire_RootIsAFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	_, err := NewManager(file, Hooks{}).Acquire("mp4")
	assert.Error(t, err)
}

func TestRelease_FailedRemovalKeepsWorkspaceCounted(t *testing.T) {
	released := 0
	m := NewManager(t.TempDir(), Hooks{Released: func() { released++ }})
	attempts := 0
	m.remove = func(string) error {
		attempts++
		return syscall.EBUSY
	}
	ws, err := m.Acquire("mp4")
	require.NoError(t, err)

	err = ws.Release(quietLog())
	require.ErrorIs(t, err, syscall.EBUSY)
	assert.Equal(t, releaseRetries+1, attempts)
	assert.Zero(t, released, "directory is still on disk")

	_, statErr := os.Stat(ws.Dir)
	assert.NoError(t, statErr)
}

func TestRelease_RetriesTransientFailure(t *testing.T) {
	released := 0
	m := NewManager(t.TempDir(), Hooks{Released: func() { released++ }})
	attempts := 0
	m.remove = func(dir string) error {
		attempts++
		if attempts == 1 {
			return syscall.EBUSY
		}
		return os.RemoveAll(dir)
	}
	ws, err := m.Acquire("mp4")
	require.NoError(t, err)

	require.NoError(t, ws.Release(quietLog()))
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 1, released)
	_, err = os.Stat(ws.Dir)
	assert.True(t, os.IsNotExist(err))
}
