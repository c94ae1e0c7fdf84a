package git

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testRepo creates an empty repository with a committer identity.
// The test is skipped when git is not installed.
func testRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	dir := t.TempDir()
	// Resolve symlinks so paths match what git reports (macOS /var -> /private/var).
	dir, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)

	gitCmd(t, dir, "init", "-q")
	gitCmd(t, dir, "config", "user.email", "test@example.com")
	gitCmd(t, dir, "config", "user.name", "Test User")
	gitCmd(t, dir, "config", "commit.gpgsign", "false")
	return dir
}

// createFile creates a file in the repo.
func createFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// gitCmd runs a git command in the repo.
func gitCmd(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %s\n%s", strings.Join(args, " "), out)
	return string(out)
}

func TestStatusCode_Priority(t *testing.T) {
	assert.Greater(t, StatusModified, StatusAdded)
	assert.Greater(t, StatusAdded, StatusUntracked)
	assert.Greater(t, StatusUntracked, StatusNone)
	assert.Equal(t, "modified", StatusModified.String())
	assert.Equal(t, "unknown", StatusCode(42).String())
}

func TestSnapshot_StatusOf(t *testing.T) {
	snap := Snapshot{
		Root:  "/repo",
		Files: map[string]StatusCode{"src/a.go": StatusModified, "src": StatusModified},
	}

	assert.Equal(t, StatusModified, snap.StatusOf("/repo/src/a.go"))
	assert.Equal(t, StatusModified, snap.StatusOf("src"))
	assert.Equal(t, StatusNone, snap.StatusOf("/repo/other.go"))
	assert.Equal(t, StatusNone, snap.StatusOf("/elsewhere/src/a.go"))

	var empty Snapshot
	assert.Equal(t, StatusNone, empty.StatusOf("x"))
}

func TestSummary_IsZero(t *testing.T) {
	assert.True(t, Summary{}.IsZero())
	assert.False(t, Summary{FilesChanged: 1}.IsZero())
}
