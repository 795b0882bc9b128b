package corpus

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/nao1215/corpuscrawl/internal/model"
)

// headerSeparator is the blank line between the JSON header and the text.
const headerSeparator = "\n\n"

// ErrNoHeader is returned by ReadDocument when the content does not start
// with a JSON header.
var ErrNoHeader = errors.New("document has no JSON header")

// WriteDocument writes header as indented JSON, a blank line, then text
// exactly as given. The header never contains a blank line itself, so the
// first "\n\n" in the file is always the boundary.
func WriteDocument(w io.Writer, header model.DocumentHeader, text string) error {
	data, err := json.MarshalIndent(header, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode document header: %w", err)
	}
	data = append(data, headerSeparator...)
	data = append(data, text...)
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write document: %w", err)
	}
	return nil
}

// ReadDocument splits a document at the first blank line and decodes the
// header. The returned text is everything after the boundary, byte for byte.
// Content with no boundary is treated as a header with empty text.
func ReadDocument(r io.Reader) (model.DocumentHeader, string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return model.DocumentHeader{}, "", fmt.Errorf("failed to read document: %w", err)
	}

	headerPart, text := data, []byte(nil)
	if i := bytes.Index(data, []byte(headerSeparator)); i >= 0 {
		headerPart, text = data[:i], data[i+len(headerSeparator):]
	}

	var header model.DocumentHeader
	if err := json.Unmarshal(headerPart, &header); err != nil {
		return model.DocumentHeader{}, string(text), fmt.Errorf("%w: %w", ErrNoHeader, err)
	}
	return header, string(text), nil
}

// WriteDocumentFile writes a document to path through a temporary file, so
// a crash never leaves a half-written document that resume would skip.
func WriteDocumentFile(path string, header model.DocumentHeader, text string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create document directory: %w", err)
	}
	var buf bytes.Buffer
	if err := WriteDocument(&buf, header, text); err != nil {
		return err
	}
	return WriteFileAtomic(path, buf.Bytes())
}

// ReadDocumentFile reads a document written by WriteDocumentFile.
func ReadDocumentFile(path string) (model.DocumentHeader, string, error) {
	f, err := os.Open(path) //nolint:gosec // Document paths come from a user-provided directory
	if err != nil {
		return model.DocumentHeader{}, "", err
	}
	defer f.Close()
	return ReadDocument(f)
}

// DocumentFilename returns the file name used for rec: the title reduced to
// letters, digits, '-' and '_', followed by the first eight characters of
// the identifier so equal titles from different works do not collide.
func DocumentFilename(rec *model.CorpusRecord) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(rec.Metadata.Title) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune('_')
		}
	}
	name := strings.Trim(b.String(), "_")
	if len(name) > 100 {
		name = name[:100]
		name = strings.ToValidUTF8(name, "")
	}
	id := rec.Identifier
	if len(id) > 8 {
		id = id[:8]
	}
	if name == "" {
		return id + ".txt"
	}
	return name + "_" + id + ".txt"
}

// DocumentSink writes each record as a per-document file under a
// directory. Existing files are left alone, so re-running a harvest only
// fills in what is missing.
type DocumentSink struct {
	dir string
}

// NewDocumentSink creates a sink writing into dir.
func NewDocumentSink(dir string) *DocumentSink {
	return &DocumentSink{dir: dir}
}

// Write implements Sink.
func (s *DocumentSink) Write(rec *model.CorpusRecord) error {
	path := filepath.Join(s.dir, DocumentFilename(rec))
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return WriteDocumentFile(path, rec.Metadata.Header(), rec.Text)
}

// WriteFileAtomic writes data to a temporary file beside path and renames
// it into place, so readers never see a half-written file.
func WriteFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
