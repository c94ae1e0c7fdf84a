package git

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePorcelainZ(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want map[string]StatusCode
	}{
		{
			name: "untracked",
			in:   "?? b.txt\x00",
			want: map[string]StatusCode{"b.txt": StatusUntracked},
		},
		{
			name: "worktree and index modifications",
			in:   " M a.go\x00M  b.go\x00MM c.go\x00",
			want: map[string]StatusCode{"a.go": StatusModified, "b.go": StatusModified, "c.go": StatusModified},
		},
		{
			name: "added",
			in:   "A  new.go\x00AM newer.go\x00",
			want: map[string]StatusCode{"new.go": StatusAdded, "newer.go": StatusAdded},
		},
		{
			name: "rename consumes old path",
			in:   "R  dst.go\x00src.go\x00?? z.txt\x00",
			want: map[string]StatusCode{"dst.go": StatusModified, "z.txt": StatusUntracked},
		},
		{
			name: "copy consumes old path",
			in:   "C  copy.go\x00orig.go\x00",
			want: map[string]StatusCode{"copy.go": StatusModified},
		},
		{
			name: "deleted and unmerged are skipped",
			in:   " D gone.go\x00D  gone2.go\x00UU both.go\x00",
			want: map[string]StatusCode{},
		},
		{
			name: "short records skipped",
			in:   "\x00ab\x00?? ok\x00",
			want: map[string]StatusCode{"ok": StatusUntracked},
		},
		{
			name: "untracked directory trailing slash",
			in:   "?? newdir/\x00",
			want: map[string]StatusCode{"newdir": StatusUntracked},
		},
		{
			name: "path with spaces",
			in:   " M my file.txt\x00",
			want: map[string]StatusCode{"my file.txt": StatusModified},
		},
		{
			name: "empty",
			in:   "",
			want: map[string]StatusCode{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParsePorcelainZ(tt.in))
		})
	}
}

func TestPropagateToParents(t *testing.T) {
	statuses := map[string]StatusCode{
		"a/b/untracked.txt": StatusUntracked,
		"a/b/added.txt":     StatusAdded,
		"a/c/mod.txt":       StatusModified,
		"top.txt":           StatusUntracked,
	}
	PropagateToParents(statuses)

	assert.Equal(t, StatusAdded, statuses["a/b"])
	assert.Equal(t, StatusModified, statuses["a/c"])
	assert.Equal(t, StatusModified, statuses["a"])
	assert.Equal(t, StatusUntracked, statuses["top.txt"])
	_, hasRoot := statuses["."]
	assert.False(t, hasRoot)
	assert.Len(t, statuses, 7)
}

func TestPropagateToParents_OnlyEscalates(t *testing.T) {
	statuses := map[string]StatusCode{
		"dir":           StatusModified,
		"dir/fresh.txt": StatusUntracked,
	}
	PropagateToParents(statuses)
	assert.Equal(t, StatusModified, statuses["dir"])
}

func TestIsUntrackedPorcelain(t *testing.T) {
	assert.True(t, isUntrackedPorcelain("?? b.txt\n"))
	assert.True(t, isUntrackedPorcelain("\n?? b.txt"))
	assert.False(t, isUntrackedPorcelain(" M b.txt\n"))
	assert.False(t, isUntrackedPorcelain(""))
}
