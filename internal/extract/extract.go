// Package extract converts uploaded files into plain text.
package extract

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/fyrsmithlabs/ragd/internal/ragerr"
	"github.com/ledongthuc/pdf"
)

// DefaultMaxBytes bounds uploads when no limit is configured.
const DefaultMaxBytes = 10 << 20

// Extractor turns file contents into text.
type Extractor interface {
	Extract(data []byte) (string, error)
}

// Registry selects an Extractor by file extension.
type Registry struct {
	maxBytes int64
	byExt    map[string]Extractor
}

// New returns a Registry for .txt, .md and .pdf files. maxBytes <= 0 uses
// DefaultMaxBytes.
func New(maxBytes int64) *Registry {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Registry{
		maxBytes: maxBytes,
		byExt: map[string]Extractor{
			".txt":      PlainText{},
			".md":       PlainText{},
			".markdown": PlainText{},
			".pdf":      PDF{},
		},
	}
}

// Extensions lists the supported extensions, sorted.
func (r *Registry) Extensions() []string {
	out := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Supported reports whether filename has a known extension.
func (r *Registry) Supported(filename string) bool {
	_, ok := r.byExt[ext(filename)]
	return ok
}

// MaxBytes returns the upload limit.
func (r *Registry) MaxBytes() int64 { return r.maxBytes }

// Extract returns the text of data, interpreted by the extension of filename.
func (r *Registry) Extract(filename string, data []byte) (string, error) {
	e, ok := r.byExt[ext(filename)]
	if !ok {
		return "", fmt.Errorf("%w: %q (supported: %s)", ragerr.ErrUnsupportedFormat, filepath.Ext(filename), strings.Join(r.Extensions(), ", "))
	}
	if int64(len(data)) > r.maxBytes {
		return "", fmt.Errorf("%w: file exceeds %d bytes", ragerr.ErrValidation, r.maxBytes)
	}
	return e.Extract(data)
}

// ExtractReader reads at most the upload limit from rd and extracts it.
func (r *Registry) ExtractReader(filename string, rd io.Reader) (string, error) {
	if !r.Supported(filename) {
		return r.Extract(filename, nil)
	}
	data, err := io.ReadAll(io.LimitReader(rd, r.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("%w: reading upload: %v", ragerr.ErrExtractionFailed, err)
	}
	return r.Extract(filename, data)
}

func ext(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}

// PlainText accepts UTF-8 text as is.
type PlainText struct{}

func (PlainText) Extract(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: text is not valid UTF-8", ragerr.ErrExtractionFailed)
	}
	return string(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))), nil
}

// PDF extracts the text layer of a PDF document. Scanned pages without a
// text layer yield nothing.
type PDF struct{}

func (PDF) Extract(data []byte) (text string, err error) {
	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("%w: malformed PDF: %v", ragerr.ErrExtractionFailed, r)
		}
	}()

	rdr, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: opening PDF: %v", ragerr.ErrExtractionFailed, err)
	}
	plain, err := rdr.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("%w: reading PDF text: %v", ragerr.ErrExtractionFailed, err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("%w: reading PDF text: %v", ragerr.ErrExtractionFailed, err)
	}
	if strings.TrimSpace(buf.String()) == "" {
		return "", fmt.Errorf("%w: no text layer in PDF", ragerr.ErrExtractionFailed)
	}
	return buf.String(), nil
}
