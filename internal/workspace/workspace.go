// Package workspace provides request-scoped temporary directories that are
// removed with everything inside them when the request ends.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	audioFileName   = "audio.mp3"
	inputFileStem   = "input"
	releaseRetries  = 3
	releaseInterval = 100 * time.Millisecond
)

// Hooks lets callers observe the workspace lifecycle. Either field may be nil.
// Released only fires once the directory is gone from disk.
type Hooks struct {
	Acquired func()
	Released func()
}

type Manager struct {
	root   string
	hooks  Hooks
	remove func(string) error
}

// NewManager creates workspaces under root; "" means os.TempDir().
func NewManager(root string, hooks Hooks) *Manager {
	return &Manager{root: root, hooks: hooks, remove: os.RemoveAll}
}

// Workspace owns one directory holding at most the raw input and the derived audio.
type Workspace struct {
	ID  string
	Dir string

	inputExt string
	hooks    Hooks
	remove   func(string) error
	once     sync.Once
	err      error
}

// Acquire creates a fresh isolated directory. ext is the input file
// extension without the dot and only affects the input file name.
func (m *Manager) Acquire(ext string) (*Workspace, error) {
	root := m.root
	if root == "" {
		root = os.TempDir()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("workspace root: %w", err)
	}

	id := uuid.New().String()
	dir, err := os.MkdirTemp(root, "ingest-"+id+"-")
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	if m.hooks.Acquired != nil {
		m.hooks.Acquired()
	}
	return &Workspace{ID: id, Dir: dir, inputExt: ext, hooks: m.hooks, remove: m.remove}, nil
}

// InputPath is where the uploaded bytes are stored.
func (w *Workspace) InputPath() string {
	name := inputFileStem
	if w.inputExt != "" {
		name += "." + w.inputExt
	}
	return filepath.Join(w.Dir, name)
}

// AudioPath is where extracted audio is written.
func (w *Workspace) AudioPath() string {
	return filepath.Join(w.Dir, audioFileName)
}

// Release deletes the directory and everything in it. Only the first call
// does any work; later calls return the first result. Failures are logged
// through log and returned for inspection, callers are not expected to surface them.
func (w *Workspace) Release(log *logrus.Entry) error {
	w.once.Do(func() {
		op := func() error {
			err := w.remove(w.Dir)
			if err == nil {
				return nil
			}
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		bo := backoff.WithMaxRetries(backoff.NewConstantBackOff(releaseInterval), releaseRetries)
		w.err = backoff.Retry(op, bo)

		if w.err == nil && w.hooks.Released != nil {
			w.hooks.Released()
		}
		if log == nil {
			return
		}
		if w.err != nil {
			log.WithField("workspace", w.Dir).WithError(w.err).Warn("workspace cleanup failed")
			return
		}
		log.WithField("workspace", w.Dir).Debug("workspace released")
	})
	return w.err
}
