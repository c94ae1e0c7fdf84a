package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/keysync/internal/integration/git"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "keysync dev")
	assert.Contains(t, out, "commit: unknown")
}

func TestMissingConfigFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.toml")
	_, err := execute(t, "--config", missing, "git", t.TempDir())
	require.Error(t, err)
}

func TestRootRejectsFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(file, []byte("a\n"), 0o644))
	cfg := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(cfg, []byte("[paths]\nconfig_dir = \""+filepath.ToSlash(dir)+"\"\n"), 0o644))

	_, err := execute(t, "--config", cfg, "--no-lsp", "--no-git", "--no-watch", file)
	require.Error(t, err)
}

func TestPrintSnapshot(t *testing.T) {
	var out bytes.Buffer
	snap := git.Snapshot{
		Root:   "/repo",
		Branch: "main",
		Files: map[string]git.StatusCode{
			"b.txt": git.StatusUntracked,
			"a.txt": git.StatusModified,
		},
		Summary: git.Summary{FilesChanged: 1, Insertions: 2, Deletions: 1},
		Lines: []git.DocumentLines{{
			Path:   "/repo/a.txt",
			Status: []git.LineStatus{git.LineNone, git.LineModified},
			Hunks:  []git.Hunk{{OrigStart: 2, OrigLines: 1, NewStart: 2, NewLines: 1}},
		}},
	}
	require.NoError(t, printSnapshot(&out, snap))

	s := out.String()
	assert.Contains(t, s, "branch: main\n")
	assert.Contains(t, s, "changes: 1 files, +2 -1\n")
	assert.Less(t, bytes.Index(out.Bytes(), []byte("a.txt")), bytes.Index(out.Bytes(), []byte("b.txt")))
	assert.Contains(t, s, "a.txt (1 hunks)\n")
	assert.Contains(t, s, "     2 modified\n")
	assert.NotContains(t, s, "     1 none")
}

func TestPrintSnapshotUnavailable(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printSnapshot(&out, git.Snapshot{Unavailable: true}))
	assert.Equal(t, "Missing tools: git\n", out.String())
}
