package extract

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/fyrsmithlabs/ragd/internal/ragerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// minimalPDF builds a one-page PDF whose content stream shows text.
func minimalPDF(text string) []byte {
	content := fmt.Sprintf("BT /F1 12 Tf 72 712 Td (%s) Tj ET", text)
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestRegistry_Extract(t *testing.T) {
	r := New(0)

	tests := []struct {
		name     string
		filename string
		data     []byte
		want     string
		wantErr  error
	}{
		{"text", "notes.txt", []byte("plain notes"), "plain notes", nil},
		{"markdown upper-case extension", "README.MD", []byte("# Title"), "# Title", nil},
		{"byte order mark stripped", "bom.txt", []byte("\xef\xbb\xbfhello"), "hello", nil},
		{"invalid utf-8", "bin.txt", []byte{0xff, 0xfe, 0x00}, "", ragerr.ErrExtractionFailed},
		{"unsupported", "image.png", []byte{0x89, 'P', 'N', 'G'}, "", ragerr.ErrUnsupportedFormat},
		{"no extension", "Makefile", []byte("all:"), "", ragerr.ErrUnsupportedFormat},
		{"garbage pdf", "broken.pdf", []byte("not a pdf at all"), "", ragerr.ErrExtractionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Extract(tt.filename, tt.data)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, ragerr.KindValidation, ragerr.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPDF_Extract(t *testing.T) {
	got, err := PDF{}.Extract(minimalPDF("Hello PDF world"))
	require.NoError(t, err)
	assert.Contains(t, got, "Hello PDF world")
}

func TestRegistry_MaxBytes(t *testing.T) {
	r := New(8)

	_, err := r.Extract("big.txt", []byte("more than eight bytes"))
	assert.ErrorIs(t, err, ragerr.ErrValidation)

	_, err = r.ExtractReader("big.txt", strings.NewReader("more than eight bytes"))
	assert.ErrorIs(t, err, ragerr.ErrValidation)

	got, err := r.ExtractReader("small.txt", strings.NewReader("tiny"))
	require.NoError(t, err)
	assert.Equal(t, "tiny", got)
}

func TestRegistry_Supported(t *testing.T) {
	r := New(0)
	assert.True(t, r.Supported("a.pdf"))
	assert.True(t, r.Supported("dir/b.Markdown"))
	assert.False(t, r.Supported("c.docx"))
	assert.Equal(t, []string{".markdown", ".md", ".pdf", ".txt"}, r.Extensions())
	assert.Equal(t, int64(DefaultMaxBytes), r.MaxBytes())
}
