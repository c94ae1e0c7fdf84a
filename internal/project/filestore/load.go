package filestore

import (
	"bytes"
	"os"
	"strings"

	"golang.org/x/text/encoding/unicode"
)

// binarySniffLen is how much of a file is inspected for NUL bytes.
const binarySniffLen = 8192

// IsBinary reports whether data looks binary: a NUL byte within the first
// 8 KiB.
func IsBinary(data []byte) bool {
	if len(data) > binarySniffLen {
		data = data[:binarySniffLen]
	}
	return bytes.IndexByte(data, 0) >= 0
}

// ReadText reads a file as text. A leading UTF-8 byte order mark is dropped,
// CRLF line endings become LF and invalid UTF-8 is replaced rather than
// rejected.
func ReadText(path string) (string, error) {
	text, _, err := readDisk(path)
	return text, err
}

func readDisk(path string) (string, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false, err
	}
	text, crlf := decode(data)
	return text, crlf, nil
}

// Load reads path into a new clean Document. Binary files are refused with
// ErrBinaryFile.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &PathError{Op: "open", Path: path, Err: err}
	}
	if IsBinary(data) {
		return nil, &PathError{Op: "open", Path: path, Err: ErrBinaryFile}
	}
	text, crlf := decode(data)
	doc := NewDocument(path, text)
	doc.CRLF = crlf
	return doc, nil
}

// Save writes the document's content to disk and marks it saved. Documents
// loaded with CRLF line endings are written back with CRLF.
func Save(doc *Document) error {
	content := doc.ContentForSave()
	data := content
	if doc.CRLF {
		data = strings.ReplaceAll(content, "\n", "\r\n")
	}
	if err := os.WriteFile(doc.Path, []byte(data), 0o644); err != nil {
		return &PathError{Op: "write", Path: doc.Path, Err: err}
	}
	doc.MarkSaved(content)
	return nil
}

// decode converts file bytes to buffer text and reports whether the file
// used CRLF line endings.
func decode(data []byte) (string, bool) {
	out, err := unicode.UTF8BOM.NewDecoder().Bytes(data)
	if err != nil {
		out = []byte(strings.ToValidUTF8(string(data), "\uFFFD"))
	}
	crlf := bytes.Contains(out, []byte("\r\n"))
	if crlf {
		out = bytes.ReplaceAll(out, []byte("\r\n"), []byte("\n"))
	}
	return string(out), crlf
}
