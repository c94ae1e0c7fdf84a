package git

import (
	"strconv"
	"strings"

	godiff "github.com/sourcegraph/go-diff/diff"
)

// ParseNumstat sums `git diff --numstat` output. Lines with fewer than three
// whitespace-separated fields are skipped. Counts that are not numbers, such
// as the "-" git prints for binary files, count as zero while the file still
// counts as changed.
func ParseNumstat(out string) Summary {
	var s Summary
	for _, line := range splitLines(out) {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		s.FilesChanged++
		s.Insertions += atoiOrZero(fields[0])
		s.Deletions += atoiOrZero(fields[1])
	}
	return s
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// ParseLineStatus maps a unified diff of one file onto the file's lines.
//
// Deleted lines are counted, not placed: a following added line consumes one
// pending deletion and becomes Modified, and a following context line takes a
// Deleted mark for the whole run. A run of deletions at the end of the diff
// marks the last line reached if it has no other status. Lines outside a hunk
// and "\ No newline" markers are ignored. The result always has lineCount
// entries; marks past the end are dropped.
func ParseLineStatus(diff string, lineCount int) []LineStatus {
	result := make([]LineStatus, lineCount)
	if lineCount == 0 {
		return result
	}

	newLine := 0
	inHunk := false
	pendingDeletes := 0

	mark := func(status LineStatus) {
		idx := newLine - 1
		if idx < 0 {
			idx = 0
		}
		if idx < len(result) {
			result[idx] = status
		}
	}

	for _, line := range splitLines(diff) {
		if strings.HasPrefix(line, "@@") {
			inHunk = false
			if start, ok := parseNewStart(line); ok {
				newLine = start
				inHunk = true
				pendingDeletes = 0
			}
			continue
		}
		if !inHunk || strings.HasPrefix(line, `\`) {
			continue
		}

		switch {
		case strings.HasPrefix(line, "-"):
			pendingDeletes++
		case strings.HasPrefix(line, "+"):
			if pendingDeletes > 0 {
				mark(LineModified)
				pendingDeletes--
			} else {
				mark(LineAdded)
			}
			newLine++
		default:
			if pendingDeletes > 0 {
				mark(LineDeleted)
				pendingDeletes = 0
			}
			newLine++
		}
	}

	if pendingDeletes > 0 {
		idx := newLine - 1
		if idx < 0 {
			idx = 0
		}
		if idx > len(result)-1 {
			idx = len(result) - 1
		}
		if result[idx] == LineNone {
			result[idx] = LineDeleted
		}
	}
	return result
}

// AllAdded returns a status vector marking every line Added.
func AllAdded(lineCount int) []LineStatus {
	result := make([]LineStatus, lineCount)
	for i := range result {
		result[i] = LineAdded
	}
	return result
}

// parseNewStart extracts c from a "@@ -a,b +c,d @@" header.
func parseNewStart(header string) (int, bool) {
	_, after, ok := strings.Cut(header, "+")
	if !ok {
		return 0, false
	}
	after, _, _ = strings.Cut(after, "+")
	fields := strings.Fields(after)
	if len(fields) == 0 {
		return 0, false
	}
	startStr, _, _ := strings.Cut(fields[0], ",")
	start, err := strconv.Atoi(startStr)
	if err != nil || start < 0 {
		return 0, false
	}
	return start, true
}

// splitLines splits on newlines, dropping a trailing carriage return from each
// line and the empty element after a final newline.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	s = strings.TrimSuffix(s, "\n")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// Hunk is one changed region of a file diff, in 1-based line numbers.
type Hunk struct {
	OrigStart int
	OrigLines int
	NewStart  int
	NewLines  int
}

// ParseHunks returns the hunk ranges of a single-file unified diff as printed
// by `git diff`. Output that does not parse yields no hunks.
func ParseHunks(diff string) []Hunk {
	if strings.TrimSpace(diff) == "" {
		return nil
	}
	fd, err := godiff.ParseFileDiff([]byte(diff))
	if err != nil || fd == nil {
		return nil
	}
	hunks := make([]Hunk, 0, len(fd.Hunks))
	for _, h := range fd.Hunks {
		hunks = append(hunks, Hunk{
			OrigStart: int(h.OrigStartLine),
			OrigLines: int(h.OrigLines),
			NewStart:  int(h.NewStartLine),
			NewLines:  int(h.NewLines),
		})
	}
	return hunks
}

// anchor is the first new-side line a hunk touches. Pure deletions report
// the line before the removed block, so they anchor on the line after it.
func (h Hunk) anchor() int {
	if h.NewLines == 0 {
		return h.NewStart + 1
	}
	if h.NewStart < 1 {
		return 1
	}
	return h.NewStart
}

// NextChange returns the first hunk anchor after the 1-based line, wrapping
// to the first hunk.
func NextChange(hunks []Hunk, line int) (int, bool) {
	if len(hunks) == 0 {
		return 0, false
	}
	for _, h := range hunks {
		if a := h.anchor(); a > line {
			return a, true
		}
	}
	return hunks[0].anchor(), true
}

// PrevChange returns the last hunk anchor before the 1-based line, wrapping
// to the last hunk.
func PrevChange(hunks []Hunk, line int) (int, bool) {
	if len(hunks) == 0 {
		return 0, false
	}
	for i := len(hunks) - 1; i >= 0; i-- {
		if a := hunks[i].anchor(); a < line {
			return a, true
		}
	}
	return hunks[len(hunks)-1].anchor(), true
}
