// Package autosave periodically writes unsaved buffers to a per-user
// directory and offers them back as recovery when a file is reopened.
//
// Each file maps to <dir>/<xxhash64 of its absolute path>.autosave. A file
// exists only while its buffer has unsaved edits: saving, reloading,
// discarding recovery and closing all remove it.
package autosave

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/sirupsen/logrus"

	"github.com/dshills/keysync/internal/logging"
	"github.com/dshills/keysync/internal/project/filestore"
)

// DefaultInterval is the time between autosave passes.
const DefaultInterval = 2 * time.Second

// Ext is the autosave file extension.
const Ext = ".autosave"

// Manager writes autosave files for dirty documents.
type Manager struct {
	dir       string
	interval  time.Duration
	lastWrite time.Time
	log       *logrus.Entry
}

// NewManager creates a Manager storing files under dir. A non-positive
// interval uses DefaultInterval.
func NewManager(dir string, interval time.Duration) *Manager {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Manager{
		dir:      dir,
		interval: interval,
		log:      logging.NewLogger("autosave"),
	}
}

// Dir returns the autosave directory.
func (m *Manager) Dir() string {
	return m.dir
}

// PathFor returns the autosave file for the document at abs.
func (m *Manager) PathFor(abs string) string {
	return filepath.Join(m.dir, fmt.Sprintf("%016x%s", xxhash.Sum64String(abs), Ext))
}

// Tick writes every dirty document when the interval has elapsed since the
// previous pass and returns the number of files written. The first call
// only starts the clock. Failures do not stop the pass; they are joined
// into the returned error.
func (m *Manager) Tick(now time.Time, docs []*filestore.Document) (int, error) {
	if m.lastWrite.IsZero() {
		m.lastWrite = now
		return 0, nil
	}
	if now.Sub(m.lastWrite) < m.interval {
		return 0, nil
	}
	m.lastWrite = now

	var errs []error
	written := 0
	for _, doc := range docs {
		if !doc.IsDirty() {
			continue
		}
		if err := m.write(doc); err != nil {
			errs = append(errs, err)
			continue
		}
		written++
	}
	if written > 0 {
		m.log.WithField("files", written).Debug("autosaved")
	}
	return written, errors.Join(errs...)
}

func (m *Manager) write(doc *filestore.Document) error {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return &filestore.PathError{Op: "autosave", Path: doc.Path, Err: err}
	}
	if err := os.WriteFile(m.PathFor(doc.Path), []byte(doc.Text()), 0o600); err != nil {
		return &filestore.PathError{Op: "autosave", Path: doc.Path, Err: err}
	}
	return nil
}

// Check offers recovery on doc when an autosave exists and differs from the
// buffer. It reports whether a recovery prompt was opened. A missing or
// unreadable autosave means nothing to recover.
func (m *Manager) Check(doc *filestore.Document) bool {
	data, err := os.ReadFile(m.PathFor(doc.Path))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			m.log.WithError(err).WithField("path", doc.Path).Warn("autosave unreadable")
		}
		return false
	}
	recovered := string(data)
	if recovered == doc.Text() {
		return false
	}
	doc.OfferRecovery(recovered)
	return true
}

// Clear removes the autosave for the document at abs. A missing file is
// not an error.
func (m *Manager) Clear(abs string) error {
	if err := os.Remove(m.PathFor(abs)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &filestore.PathError{Op: "clear autosave", Path: abs, Err: err}
	}
	return nil
}

// Exists reports whether an autosave is stored for abs.
func (m *Manager) Exists(abs string) bool {
	_, err := os.Stat(m.PathFor(abs))
	return err == nil
}
