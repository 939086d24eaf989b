// Package synthesis turns retrieved fragments into an answer.
//
// The Synthesizer never fails: when the generator is unavailable, errors or
// returns nothing, the top fragment is returned verbatim as a fallback.
package synthesis

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
	"go.uber.org/zap"
)

// Answer is the response to a query.
type Answer struct {
	Text string `json:"answer"`

	// Generated is false for fallback and no-results answers.
	Generated bool              `json:"generated"`
	Sources   []vectorstore.Hit `json:"sources"`
}

// Synthesizer assembles grounded answers.
type Synthesizer struct {
	gen    Generator
	logger *logging.Logger
}

// New returns a Synthesizer. A nil generator always falls back.
func New(gen Generator, logger *logging.Logger) *Synthesizer {
	if gen == nil {
		gen = NewUnavailable("no generator configured")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Synthesizer{gen: gen, logger: logger}
}

// Synthesize answers query from hits, best first.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, hits []vectorstore.Hit) Answer {
	if hits == nil {
		hits = []vectorstore.Hit{}
	}
	if len(hits) == 0 {
		return Answer{Text: NoResultsMessage(query), Sources: hits}
	}

	out, err := s.generate(ctx, BuildPrompt(query, hits))
	out = strings.TrimSpace(out)
	switch {
	case err != nil:
		s.logger.Warn(ctx, "answer generation failed, using fallback", zap.Error(err))
	case out == "":
		s.logger.Warn(ctx, "answer generation returned no text, using fallback")
	default:
		return Answer{Text: out, Generated: true, Sources: hits}
	}

	return Answer{Text: FallbackMessage(hits[0].Text), Sources: hits}
}

// Summarize returns a summary of at most maxLen runes. Without a working
// generator the text itself is truncated.
func (s *Synthesizer) Summarize(ctx context.Context, text string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}

	prompt := fmt.Sprintf("Summarize the following text in %d characters or less:\n\n%s\n\nSummary:", maxLen, text)
	out, err := s.generate(ctx, prompt)
	out = strings.TrimSpace(out)
	if err != nil || out == "" {
		if err != nil {
			s.logger.Debug(ctx, "summary generation failed, truncating", zap.Error(err))
		}
		return truncate(text, maxLen, "...")
	}
	return truncate(out, maxLen, "")
}

// generate turns a panicking backend into an error so callers fall back.
func (s *Synthesizer) generate(ctx context.Context, prompt string) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = "", fmt.Errorf("generator panicked: %v", r)
		}
	}()
	return s.gen.Generate(ctx, prompt)
}

// NoResultsMessage is the answer when nothing relevant was retrieved.
func NoResultsMessage(query string) string {
	return fmt.Sprintf("I couldn't find any relevant information about '%s' in your uploaded documents. "+
		"Please make sure you've uploaded documents that contain information about this topic.", query)
}

// FallbackMessage quotes the top fragment when generation is unavailable.
func FallbackMessage(top string) string {
	return "Based on your uploaded documents, here's what I found:\n\n" + top +
		"\n\n(Note: this is a fallback response, not a generated answer.)"
}

// BuildPrompt labels fragments [Fragment N] in rank order.
func BuildPrompt(query string, hits []vectorstore.Hit) string {
	var b strings.Builder
	b.WriteString("Based on the following document excerpts, provide an accurate answer to the user's question.\n\n")
	b.WriteString("Context:\n")
	for i, h := range hits {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[Fragment %d]: %s", i+1, h.Text)
	}
	fmt.Fprintf(&b, "\n\nQuestion: %s\n\n", query)
	b.WriteString("Instructions:\n")
	b.WriteString("- Answer only from the fragments above\n")
	b.WriteString("- If the fragments do not contain enough information, say so clearly\n")
	b.WriteString("- Cite the fragment numbers that support your answer\n")
	b.WriteString("- Be concise\n\n")
	b.WriteString("Answer:")
	return b.String()
}

func truncate(s string, n int, suffix string) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + suffix
}
