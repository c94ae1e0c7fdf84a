package git

import (
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dshills/keysync/internal/integration/task"
	"github.com/dshills/keysync/internal/logging"
)

// Worker computes Snapshots in the background, one run at a time.
//
// Spawn and Poll are meant to be called from the consumer loop. Every step
// of a run shells out to git separately; a step that fails contributes no
// data instead of failing the run.
type Worker struct {
	root     string
	runner   Runner
	lookPath func(string) (string, error)
	log      *logrus.Entry

	slot      task.Slot[Snapshot]
	checked   bool
	available bool
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithRunner replaces the git command runner.
func WithRunner(r Runner) WorkerOption {
	return func(w *Worker) {
		w.runner = r
	}
}

// WithLookPath replaces the executable lookup used to detect a missing git.
func WithLookPath(fn func(string) (string, error)) WorkerOption {
	return func(w *Worker) {
		w.lookPath = fn
	}
}

// NewWorker creates a worker for the repository at root.
func NewWorker(root string, opts ...WorkerOption) *Worker {
	w := &Worker{
		root:     root,
		runner:   ExecRunner{},
		lookPath: exec.LookPath,
		log:      logging.NewLogger("git"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Root returns the repository root.
func (w *Worker) Root() string {
	return w.root
}

// Available reports whether the git executable was found. The lookup runs
// once; a missing git is not retried.
func (w *Worker) Available() bool {
	if !w.checked {
		_, err := w.lookPath("git")
		w.available = err == nil
		w.checked = true
		if !w.available {
			w.log.WithError(err).Warn("git not found, repository state disabled")
		}
	}
	return w.available
}

// Busy reports whether a run is in flight or awaiting Poll.
func (w *Worker) Busy() bool {
	return w.slot.Busy()
}

// Live returns the number of running worker goroutines (0 or 1).
func (w *Worker) Live() int {
	return w.slot.Live()
}

// Spawn starts a run for the given open documents. It returns ErrWorkerBusy
// if the previous run has not been collected with Poll.
func (w *Worker) Spawn(ctx context.Context, docs []DocumentRequest) error {
	reqs := append([]DocumentRequest(nil), docs...)
	available := w.Available()
	runID := uuid.NewString()

	err := w.slot.Spawn(ctx, func(ctx context.Context) Snapshot {
		if !available {
			return Snapshot{Root: w.root, Unavailable: true}
		}
		start := time.Now()
		snap := w.Collect(ctx, reqs)
		w.log.WithFields(logrus.Fields{
			"run":     runID,
			"files":   len(snap.Files),
			"docs":    len(snap.Lines),
			"elapsed": time.Since(start),
		}).Debug("git snapshot collected")
		return snap
	})
	if errors.Is(err, task.ErrSlotBusy) {
		return ErrWorkerBusy
	}
	return err
}

// Poll returns the finished run's snapshot without blocking. A panic inside
// the run comes back as err with ok true.
func (w *Worker) Poll() (Snapshot, bool, error) {
	return w.slot.Poll()
}

// Wait blocks until the in-flight run, if any, finishes.
func (w *Worker) Wait() (Snapshot, bool, error) {
	return w.slot.Wait()
}

// Collect runs every git step synchronously and assembles a Snapshot.
func (w *Worker) Collect(ctx context.Context, docs []DocumentRequest) Snapshot {
	snap := Snapshot{Root: w.root}

	if out, err := w.git(ctx, "rev-parse", "--abbrev-ref", "HEAD"); err == nil {
		snap.Branch = strings.TrimSpace(out)
	}

	if out, err := w.git(ctx, "status", "--porcelain", "-z"); err == nil {
		snap.Files = ParsePorcelainZ(out)
		PropagateToParents(snap.Files)
	} else {
		snap.Files = make(map[string]StatusCode)
	}

	if out, err := w.git(ctx, "diff", "--numstat", "HEAD"); err == nil {
		snap.Summary = ParseNumstat(out)
	}

	for _, doc := range docs {
		snap.Lines = append(snap.Lines, w.documentLines(ctx, doc))
	}
	return snap
}

// documentLines computes the line status of one document, falling back to
// all-Added for untracked files that have no diff against HEAD.
func (w *Worker) documentLines(ctx context.Context, doc DocumentRequest) DocumentLines {
	dl := DocumentLines{Path: doc.Path, Status: make([]LineStatus, doc.LineCount)}
	if doc.LineCount == 0 {
		return dl
	}

	rel := w.relPath(doc.Path)
	diff, err := w.git(ctx, "diff", "HEAD", "--", rel)
	if err == nil && diff != "" {
		dl.Status = ParseLineStatus(diff, doc.LineCount)
		dl.Hunks = ParseHunks(diff)
		return dl
	}

	if out, err := w.git(ctx, "status", "--porcelain", "--", rel); err == nil && isUntrackedPorcelain(out) {
		dl.Status = AllAdded(doc.LineCount)
	}
	return dl
}

func (w *Worker) relPath(path string) string {
	if rel, err := filepath.Rel(w.root, path); err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(rel)
	}
	return path
}

func (w *Worker) git(ctx context.Context, args ...string) (string, error) {
	out, err := w.runner.Run(ctx, w.root, args...)
	if err != nil {
		w.log.WithError(err).Debug("git step produced no data")
	}
	return out, err
}
