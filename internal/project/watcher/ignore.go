package watcher

import (
	"os"
	"path/filepath"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// DefaultIgnorePatterns name directories that never get a watch of their own.
var DefaultIgnorePatterns = []string{
	"**/node_modules/",
	"**/target/",
	"**/.idea/",
	"**/.vscode/",
}

// Ignorer decides which directories under a root are not worth watching.
// Paths under the repository metadata directory are never ignored; the
// watcher treats them separately.
type Ignorer struct {
	root    string
	gitDir  string
	matcher *ignore.GitIgnore
}

// NewIgnorer builds an Ignorer from the default patterns, extra patterns and
// optionally the root .gitignore. A missing or unreadable .gitignore is
// treated as empty.
func NewIgnorer(root string, extra []string, useGitignore bool) *Ignorer {
	lines := append(append([]string(nil), DefaultIgnorePatterns...), extra...)
	if useGitignore {
		if data, err := os.ReadFile(filepath.Join(root, ".gitignore")); err == nil {
			lines = append(lines, strings.Split(string(data), "\n")...)
		}
	}
	return &Ignorer{
		root:    root,
		gitDir:  filepath.Join(root, ".git"),
		matcher: ignore.CompileIgnoreLines(lines...),
	}
}

// IsGitPath reports whether path is the metadata directory or inside it.
func (ig *Ignorer) IsGitPath(path string) bool {
	return path == ig.gitDir || strings.HasPrefix(path, ig.gitDir+string(filepath.Separator))
}

// Match reports whether an absolute path should be ignored.
func (ig *Ignorer) Match(path string, isDir bool) bool {
	if ig.IsGitPath(path) {
		return false
	}
	rel, err := filepath.Rel(ig.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return false
	}
	rel = filepath.ToSlash(rel)
	if isDir {
		rel += "/"
	}
	return ig.matcher.MatchesPath(rel)
}
