package filestore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextToLines(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"", []string{""}},
		{"a", []string{"a"}},
		{"a\nb", []string{"a", "b"}},
		{"a\nb\n", []string{"a", "b", ""}},
		{"a\r\nb\r\n", []string{"a", "b", ""}},
		{"\n", []string{"", ""}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TextToLines(tt.text), "text %q", tt.text)
	}
}

func TestNewDocument(t *testing.T) {
	doc := NewDocument("/r/a.txt", "one\ntwo\n")

	assert.Equal(t, "/r/a.txt", doc.Path)
	assert.Equal(t, "one\ntwo\n", doc.Text())
	assert.Equal(t, "one\ntwo\n", doc.DiskSnapshot)
	assert.Equal(t, 3, doc.LineCount())
	assert.False(t, doc.IsDirty())
	assert.False(t, doc.Conflict.Open)
	assert.False(t, doc.Recovery.Open)
}

func TestDocument_SetTextMarksDirty(t *testing.T) {
	doc := NewDocument("/r/a.txt", "one")
	doc.SetText("one\ntwo")

	assert.True(t, doc.IsDirty())
	assert.Equal(t, []string{"one", "two"}, doc.Lines())
	assert.Equal(t, "one", doc.DiskSnapshot, "mutation leaves the snapshot alone")
}

func TestDocument_CursorClamping(t *testing.T) {
	doc := NewDocument("/r/a.txt", "héllo\nworld\nlast line")
	doc.SetCursor(Cursor{Row: 2, Col: 9})
	assert.Equal(t, Cursor{Row: 2, Col: 9}, doc.Cursor())

	doc.Reload("héllo")
	assert.Equal(t, Cursor{Row: 0, Col: 5}, doc.Cursor())

	doc.SetCursor(Cursor{Row: -3, Col: -1})
	assert.Equal(t, Cursor{}, doc.Cursor())

	doc.SetCursor(Cursor{Row: 10, Col: 100})
	assert.Equal(t, Cursor{Row: 0, Col: 5}, doc.Cursor())
}

func TestDocument_ContentForSave(t *testing.T) {
	assert.Equal(t, "a\nb\n", NewDocument("/r/x", "a\nb").ContentForSave())
	assert.Equal(t, "a\nb\n", NewDocument("/r/x", "a\nb\n").ContentForSave())
	assert.Equal(t, "\n", NewDocument("/r/x", "").ContentForSave())
}

func TestDocument_MarkSavedClearsConflict(t *testing.T) {
	doc := NewDocument("/r/x", "a")
	doc.SetText("b")
	doc.Conflict = ConflictState{Open: true, DiskText: "c"}

	doc.MarkSaved("b\n")
	assert.False(t, doc.IsDirty())
	assert.Equal(t, "b\n", doc.DiskSnapshot)
	assert.Equal(t, "b\n", doc.Text())
	assert.Equal(t, ConflictState{}, doc.Conflict)
}

func TestDocument_Recovery(t *testing.T) {
	doc := NewDocument("/r/x", "saved")
	assert.ErrorIs(t, doc.AcceptRecovery(), ErrNoRecovery)
	assert.ErrorIs(t, doc.DiscardRecovery(), ErrNoRecovery)

	doc.OfferRecovery("recovered")
	assert.Equal(t, "saved", doc.Text(), "recovery is never applied automatically")

	require.NoError(t, doc.AcceptRecovery())
	assert.Equal(t, "recovered", doc.Text())
	assert.True(t, doc.IsDirty())
	assert.False(t, doc.Recovery.Open)

	doc.OfferRecovery("other")
	require.NoError(t, doc.DiscardRecovery())
	assert.Equal(t, "recovered", doc.Text())
	assert.False(t, doc.Recovery.Open)
}

func TestIsBinary(t *testing.T) {
	assert.False(t, IsBinary([]byte("plain text\n")))
	assert.False(t, IsBinary(nil))
	assert.True(t, IsBinary([]byte{'a', 0, 'b'}))

	late := make([]byte, binarySniffLen+10)
	for i := range late {
		late[i] = 'x'
	}
	late[binarySniffLen+5] = 0
	assert.False(t, IsBinary(late), "only the first 8 KiB are inspected")
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	text := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(text, []byte("hello\n"), 0o644))
	doc, err := Load(text)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", doc.Text())
	assert.False(t, doc.IsDirty())

	bin := filepath.Join(dir, "a.bin")
	require.NoError(t, os.WriteFile(bin, []byte{0x7f, 'E', 'L', 'F', 0, 1}, 0o644))
	_, err = Load(bin)
	assert.ErrorIs(t, err, ErrBinaryFile)

	_, err = Load(filepath.Join(dir, "missing"))
	var pe *PathError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "open", pe.Op)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReadText_InvalidUTF8(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latin1.txt")
	require.NoError(t, os.WriteFile(path, []byte("caf\xe9"), 0o644))

	text, err := ReadText(path)
	require.NoError(t, err)
	assert.Equal(t, "caf�", text)
}

func TestSave_KeepsCRLF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "win.txt")
	require.NoError(t, os.WriteFile(path, []byte("a\r\nb\r\n"), 0o644))
	doc, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", doc.Text())

	doc.SetText("a\nc")
	require.NoError(t, Save(doc))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a\r\nc\r\n", string(data))
	assert.Equal(t, "a\nc\n", doc.Text())
	assert.Equal(t, "a\nc\n", doc.DiskSnapshot)

	text, err := ReadText(path)
	require.NoError(t, err)
	assert.Equal(t, doc.Text(), text)
}

func TestReadText_ByteOrderMark(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bom.txt")
	require.NoError(t, os.WriteFile(path, []byte("\xef\xbb\xbfhello\n"), 0o644))

	text, err := ReadText(path)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", text)

	doc, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"hello", ""}, doc.Lines())
}

func TestSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("old\n"), 0o644))
	doc, err := Load(path)
	require.NoError(t, err)

	doc.SetText("new")
	require.NoError(t, Save(doc))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new\n", string(data))
	assert.False(t, doc.IsDirty())
	assert.Equal(t, "new\n", doc.DiskSnapshot)
	assert.Equal(t, "new\n", doc.Text(), "the buffer matches the file after save")
}

func TestSave_Failure(t *testing.T) {
	doc := NewDocument(filepath.Join(t.TempDir(), "no", "such", "dir.txt"), "x")
	doc.SetText("y")

	err := Save(doc)
	var pe *PathError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "write", pe.Op)
	assert.True(t, doc.IsDirty(), "a failed save leaves the buffer dirty")
}
