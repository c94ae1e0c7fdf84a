package git

import (
	"path/filepath"
	"strings"
)

// StatusCode is the coarse working-tree status of a file or directory.
// Values are ordered by priority so a larger code always wins when
// statuses are combined.
type StatusCode int

const (
	// StatusNone means no reportable change.
	StatusNone StatusCode = iota
	// StatusUntracked indicates the file is not tracked by git.
	StatusUntracked
	// StatusAdded indicates the file is newly added to the index.
	StatusAdded
	// StatusModified indicates a modified, renamed or copied file.
	StatusModified
)

// String returns the string representation of a StatusCode.
func (s StatusCode) String() string {
	switch s {
	case StatusNone:
		return "none"
	case StatusUntracked:
		return "untracked"
	case StatusAdded:
		return "added"
	case StatusModified:
		return "modified"
	default:
		return "unknown"
	}
}

// LineStatus is the gutter status of one line of an open document.
type LineStatus int

const (
	LineNone LineStatus = iota
	LineAdded
	LineModified
	LineDeleted
)

// String returns the string representation of a LineStatus.
func (s LineStatus) String() string {
	switch s {
	case LineNone:
		return "none"
	case LineAdded:
		return "added"
	case LineModified:
		return "modified"
	case LineDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Summary totals the working tree changes against HEAD.
type Summary struct {
	FilesChanged int
	Insertions   int
	Deletions    int
}

// IsZero reports whether the summary records no changes.
func (s Summary) IsZero() bool {
	return s == Summary{}
}

// DocumentRequest names an open document whose line status is wanted.
type DocumentRequest struct {
	// Path is the absolute document path.
	Path string
	// LineCount is the number of lines in the document's current text.
	LineCount int
}

// DocumentLines carries the per-line status of one open document.
type DocumentLines struct {
	// Path is the absolute document path.
	Path string
	// Status has one entry per line.
	Status []LineStatus
	// Hunks lists changed regions for next/previous change navigation.
	Hunks []Hunk
}

// Snapshot is the result of one git worker run. It is always replaced as a
// whole; fields of a failed step are left empty.
type Snapshot struct {
	// Root is the repository root the snapshot was computed for.
	Root string

	// Branch is the current branch name, empty when unknown.
	Branch string

	// Files maps slash-separated root-relative paths to their status.
	// Directories carry the highest status of any descendant.
	Files map[string]StatusCode

	// Summary totals `git diff --numstat HEAD`.
	Summary Summary

	// Lines holds line status for the documents requested.
	Lines []DocumentLines

	// Unavailable is set when the git executable could not be found.
	Unavailable bool
}

// StatusOf returns the status recorded for an absolute or root-relative path.
func (s *Snapshot) StatusOf(path string) StatusCode {
	if s.Files == nil {
		return StatusNone
	}
	return s.Files[s.relKey(path)]
}

// LinesFor returns the line status computed for an absolute document path.
func (s *Snapshot) LinesFor(path string) (DocumentLines, bool) {
	for _, dl := range s.Lines {
		if dl.Path == path {
			return dl, true
		}
	}
	return DocumentLines{}, false
}

func (s *Snapshot) relKey(path string) string {
	if s.Root != "" && filepath.IsAbs(path) {
		if rel, err := filepath.Rel(s.Root, path); err == nil && !strings.HasPrefix(rel, "..") {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.ToSlash(path)
}
