package filestore

import (
	"errors"
	"fmt"
	"io/fs"
)

// Status texts reported by Reconcile and ResolveConflict.
const (
	StatusRemovedDirty     = "Open file was removed externally (unsaved buffer preserved)"
	StatusRemovedClean     = "Open file was removed externally"
	StatusConflict         = "File changed on disk: resolve conflict"
	StatusConflictReload   = "Reloaded file from disk"
	StatusConflictKeep     = "Keeping local edits"
	StatusConflictDeferred = "Conflict deferred"
)

// Outcome is what Reconcile did to a document.
type Outcome int

const (
	// Unchanged means no action was needed.
	Unchanged Outcome = iota

	// Reloaded means a clean buffer was replaced with the disk text. The
	// caller should notify the language server and drop the autosave.
	Reloaded

	// ConflictRaised means a conflict prompt was opened.
	ConflictRaised

	// RemovedKept means the file is gone but unsaved edits were kept open.
	RemovedKept

	// RemovedClosed means the file is gone and the clean document should
	// be closed by the caller.
	RemovedClosed

	// ReadFailed means the file exists but could not be read.
	ReadFailed
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case Unchanged:
		return "unchanged"
	case Reloaded:
		return "reloaded"
	case ConflictRaised:
		return "conflict"
	case RemovedKept:
		return "removed-kept"
	case RemovedClosed:
		return "removed-closed"
	case ReadFailed:
		return "read-failed"
	default:
		return "unknown"
	}
}

// Reconciliation is the result of reconciling a document with disk.
type Reconciliation struct {
	Outcome Outcome

	// Status is the user-facing status text; empty for Unchanged.
	Status string

	// Err is set for ReadFailed.
	Err error
}

// Reconcile compares an open document with its file on disk after an
// external change. rel is the display path used in status texts.
//
// The rules apply in order:
//
//   - the file is missing: a dirty buffer is kept, a clean one is to be closed
//   - the buffer is clean and differs from disk: it is reloaded
//   - the buffer is dirty: a conflict is raised when no conflict prompt is
//     open and the disk text differs from both the snapshot and the buffer
//   - the file cannot be read: the error is reported and nothing changes
//
// Raising is idempotent: once the disk text is recorded as the snapshot, or
// while the prompt is open, the same disk text never raises again.
func Reconcile(doc *Document, rel string) Reconciliation {
	disk, crlf, err := readDisk(doc.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if doc.IsDirty() {
				return Reconciliation{Outcome: RemovedKept, Status: StatusRemovedDirty}
			}
			return Reconciliation{Outcome: RemovedClosed, Status: StatusRemovedClean}
		}
		return Reconciliation{
			Outcome: ReadFailed,
			Status:  fmt.Sprintf("Failed to read %s: %v", rel, err),
			Err:     &PathError{Op: "read", Path: doc.Path, Err: err},
		}
	}

	if !doc.IsDirty() {
		if disk == doc.Text() {
			return Reconciliation{Outcome: Unchanged}
		}
		doc.Reload(disk)
		doc.CRLF = crlf
		return Reconciliation{Outcome: Reloaded, Status: fmt.Sprintf("Reloaded %s from disk", rel)}
	}

	if doc.Conflict.Open {
		return Reconciliation{Outcome: Unchanged}
	}
	if disk != doc.DiskSnapshot && disk != doc.Text() {
		doc.Conflict = ConflictState{Open: true, DiskText: disk}
		return Reconciliation{Outcome: ConflictRaised, Status: StatusConflict}
	}
	return Reconciliation{Outcome: Unchanged}
}

// ConflictResolution represents how to resolve a conflict.
type ConflictResolution int

const (
	// ResolveReloadDisk discards local edits in favour of the disk text.
	ResolveReloadDisk ConflictResolution = iota

	// ResolveKeepLocal keeps the local edits; the next save overwrites disk.
	ResolveKeepLocal

	// ResolveDefer closes the prompt without choosing. The disk text stays
	// recorded on the conflict.
	ResolveDefer
)

// String returns the resolution name.
func (r ConflictResolution) String() string {
	switch r {
	case ResolveReloadDisk:
		return "reload"
	case ResolveKeepLocal:
		return "keep"
	case ResolveDefer:
		return "defer"
	default:
		return "unknown"
	}
}

// ResolveConflict applies r to the open conflict and returns the status
// text. Every resolution records the conflicting disk text as the snapshot
// so that unchanged disk content is not raised again.
func (d *Document) ResolveConflict(r ConflictResolution) (string, error) {
	if !d.Conflict.Open {
		return "", ErrNoConflict
	}
	disk := d.Conflict.DiskText

	switch r {
	case ResolveReloadDisk:
		d.Reload(disk)
		d.Conflict = ConflictState{}
		return StatusConflictReload, nil
	case ResolveKeepLocal:
		d.DiskSnapshot = disk
		d.Conflict = ConflictState{}
		return StatusConflictKeep, nil
	case ResolveDefer:
		d.DiskSnapshot = disk
		d.Conflict.Open = false
		return StatusConflictDeferred, nil
	default:
		return "", fmt.Errorf("unknown conflict resolution %d", r)
	}
}
