package git

import (
	"path"
	"strings"
)

// ParsePorcelainZ parses `git status --porcelain -z` output into a map keyed
// by the root-relative path git reports.
//
// Records are NUL separated and look like "XY path". Rename and copy records
// are followed by an extra record holding the old path, which is skipped.
// Records too short to carry a status and path, and status codes outside
// untracked/added/modified/renamed/copied, are ignored. The trailing slash
// git prints for untracked directories is dropped.
func ParsePorcelainZ(out string) map[string]StatusCode {
	statuses := make(map[string]StatusCode)
	records := strings.Split(out, "\x00")
	for i := 0; i < len(records); i++ {
		rec := records[i]
		if len(rec) < 3 {
			continue
		}
		x, y := rec[0], rec[1]
		p := strings.TrimSuffix(rec[3:], "/")
		if x == 'R' || x == 'C' {
			i++
		}

		var code StatusCode
		switch {
		case x == '?' && y == '?':
			code = StatusUntracked
		case x == 'A':
			code = StatusAdded
		case x == 'M' || y == 'M':
			code = StatusModified
		case x == 'R' || x == 'C':
			code = StatusModified
		default:
			continue
		}
		statuses[p] = code
	}
	return statuses
}

// PropagateToParents gives every ancestor directory of each file the highest
// status among its descendants. The repository root itself gets no entry.
// Existing entries are only ever escalated.
func PropagateToParents(statuses map[string]StatusCode) {
	type entry struct {
		path string
		code StatusCode
	}
	files := make([]entry, 0, len(statuses))
	for p, code := range statuses {
		files = append(files, entry{p, code})
	}
	for _, f := range files {
		code := f.code
		dir := path.Dir(f.path)
		for dir != "." && dir != "/" && dir != "" {
			if code > statuses[dir] {
				statuses[dir] = code
			}
			dir = path.Dir(dir)
		}
	}
}

// isUntrackedPorcelain reports whether plain `git status --porcelain -- <path>`
// output marks the path untracked.
func isUntrackedPorcelain(out string) bool {
	return strings.HasPrefix(strings.TrimLeft(out, " \t\r\n"), "??")
}
