// Package segment splits document text into overlapping fixed-size fragments.
package segment

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/ragd/internal/ragerr"
)

// Default window parameters, in runes.
const (
	DefaultSize    = 2000
	DefaultOverlap = 300
)

// Normalize collapses every run of whitespace into a single space and trims
// both ends, so window boundaries do not depend on source formatting.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Validate checks that size and overlap describe an advancing window.
func Validate(size, overlap int) error {
	if size <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ragerr.ErrConfiguration, size)
	}
	if overlap < 0 {
		return fmt.Errorf("%w: overlap must not be negative, got %d", ragerr.ErrConfiguration, overlap)
	}
	if overlap >= size {
		return fmt.Errorf("%w: overlap (%d) must be smaller than chunk size (%d)", ragerr.ErrConfiguration, overlap, size)
	}
	return nil
}

// Split normalizes text and returns windows of size runes, where window i
// starts at i*(size-overlap). The last window is truncated to the remaining
// text. Text shorter than size yields a single fragment; text that is empty
// after normalization yields none.
func Split(text string, size, overlap int) ([]string, error) {
	if err := Validate(size, overlap); err != nil {
		return nil, err
	}

	normalized := Normalize(text)
	if normalized == "" {
		return nil, nil
	}

	runes := []rune(normalized)
	if len(runes) < size {
		return []string{normalized}, nil
	}

	step := size - overlap
	fragments := make([]string, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := min(start+size, len(runes))
		fragments = append(fragments, string(runes[start:end]))
	}
	return fragments, nil
}

// Segmenter binds a validated window configuration.
type Segmenter struct {
	size    int
	overlap int
}

// New returns a Segmenter, or a configuration error if overlap >= size.
func New(size, overlap int) (*Segmenter, error) {
	if err := Validate(size, overlap); err != nil {
		return nil, err
	}
	return &Segmenter{size: size, overlap: overlap}, nil
}

// Split segments text with the bound configuration.
func (s *Segmenter) Split(text string) []string {
	// Parameters were validated in New.
	fragments, _ := Split(text, s.size, s.overlap)
	return fragments
}

// Size returns the window size in runes.
func (s *Segmenter) Size() int { return s.size }

// Overlap returns the overlap between consecutive windows in runes.
func (s *Segmenter) Overlap() int { return s.overlap }
