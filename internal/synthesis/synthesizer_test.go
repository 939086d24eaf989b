package synthesis

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/ragerr"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap/zapcore"
)

type stubGenerator struct {
	out     string
	err     error
	prompts []string
}

func (g *stubGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	return g.out, g.err
}

type panickingGenerator struct{}

func (panickingGenerator) Generate(context.Context, string) (string, error) {
	panic("nil response from backend")
}

var testHits = []vectorstore.Hit{
	{Text: "Paris is the capital of France.", DocumentID: "d1", Score: 0.92},
	{Text: "France is in Europe.", DocumentID: "d1", ChunkIndex: 1, Score: 0.61},
}

func TestSynthesize_NoHits(t *testing.T) {
	gen := &stubGenerator{out: "should not be called"}
	ans := New(gen, nil).Synthesize(context.Background(), "capital of Peru", nil)

	assert.Equal(t, NoResultsMessage("capital of Peru"), ans.Text)
	assert.Contains(t, ans.Text, "'capital of Peru'")
	assert.False(t, ans.Generated)
	assert.Empty(t, ans.Sources)
	assert.Empty(t, gen.prompts, "generator must not be called without hits")
}

func TestSynthesize_Generated(t *testing.T) {
	gen := &stubGenerator{out: "  Paris [Fragment 1].\n"}
	ans := New(gen, nil).Synthesize(context.Background(), "capital of France?", testHits)

	assert.True(t, ans.Generated)
	assert.Equal(t, "Paris [Fragment 1].", ans.Text)
	assert.Equal(t, testHits, ans.Sources)

	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "[Fragment 1]: Paris is the capital of France.")
	assert.Contains(t, gen.prompts[0], "[Fragment 2]: France is in Europe.")
	assert.Contains(t, gen.prompts[0], "Question: capital of France?")
}

func TestSynthesize_Fallback(t *testing.T) {
	tests := []struct {
		name string
		gen  Generator
	}{
		{"generator error", &stubGenerator{err: errors.New("quota exceeded")}},
		{"empty output", &stubGenerator{out: "   "}},
		{"unavailable", NewUnavailable("no api key")},
		{"nil generator", nil},
		{"generator panics", panickingGenerator{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := logging.NewTestLogger()
			ans := New(tt.gen, logger.Logger).Synthesize(context.Background(), "capital?", testHits)

			assert.False(t, ans.Generated)
			assert.Equal(t, FallbackMessage(testHits[0].Text), ans.Text)
			assert.True(t, strings.HasPrefix(ans.Text, "Based on your uploaded documents, here's what I found:\n\nParis"))
			assert.Equal(t, testHits, ans.Sources)
			logger.AssertLogged(t, zapcore.WarnLevel, "using fallback")
		})
	}
}

func TestSummarize(t *testing.T) {
	long := strings.Repeat("é", 300)

	t.Run("generated summary is bounded", func(t *testing.T) {
		gen := &stubGenerator{out: strings.Repeat("s", 500)}
		out := New(gen, nil).Summarize(context.Background(), long, 200)
		assert.Equal(t, strings.Repeat("s", 200), out)
		assert.Contains(t, gen.prompts[0], "in 200 characters or less")
	})

	t.Run("fallback truncates with ellipsis", func(t *testing.T) {
		out := New(NewUnavailable("off"), nil).Summarize(context.Background(), long, 200)
		assert.Equal(t, strings.Repeat("é", 200)+"...", out)
	})

	t.Run("panicking generator truncates", func(t *testing.T) {
		out := New(panickingGenerator{}, nil).Summarize(context.Background(), long, 200)
		assert.Equal(t, strings.Repeat("é", 200)+"...", out)
	})

	t.Run("short text is unchanged", func(t *testing.T) {
		out := New(nil, nil).Summarize(context.Background(), "short", 200)
		assert.Equal(t, "short", out)
	})
}

// fakeModel is an llms.Model returning a fixed completion.
type fakeModel struct {
	text  string
	err   error
	calls int
}

func (m *fakeModel) GenerateContent(_ context.Context, _ []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.text}}}, nil
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func TestLLMGenerator(t *testing.T) {
	t.Run("returns model output", func(t *testing.T) {
		m := &fakeModel{text: "answer"}
		out, err := NewLLMGenerator(m, GeneratorConfig{Temperature: 0.2}).Generate(context.Background(), "prompt")
		require.NoError(t, err)
		assert.Equal(t, "answer", out)
	})

	t.Run("wraps model errors", func(t *testing.T) {
		m := &fakeModel{err: errors.New("503")}
		_, err := NewLLMGenerator(m, GeneratorConfig{}).Generate(context.Background(), "prompt")
		assert.ErrorIs(t, err, ragerr.ErrGenerationFailed)
	})

	t.Run("rate limiter honours cancellation", func(t *testing.T) {
		m := &fakeModel{text: "x"}
		g := NewLLMGenerator(m, GeneratorConfig{RequestsPerSecond: 0.001, Burst: 1})
		_, err := g.Generate(context.Background(), "first")
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = g.Generate(ctx, "second")
		assert.ErrorIs(t, err, ragerr.ErrGenerationFailed)
		assert.Equal(t, 1, m.calls)
	})
}

func TestNewGenerator(t *testing.T) {
	tests := []struct {
		name     string
		cfg      GeneratorConfig
		wantKind ragerr.Kind
	}{
		{"gemini without key", GeneratorConfig{Provider: "gemini", Model: "gemini-2.0-flash"}, ragerr.KindDependencyUnavailable},
		{"gemini with key", GeneratorConfig{Provider: "gemini", Model: "gemini-2.0-flash", APIKey: "k"}, ragerr.KindUnknown},
		{"openai with key", GeneratorConfig{Provider: "openai", Model: "gpt-4o-mini", APIKey: "k"}, ragerr.KindUnknown},
		{"ollama", GeneratorConfig{Provider: "ollama", Model: "llama3", BaseURL: "http://localhost:11434"}, ragerr.KindUnknown},
		{"none", GeneratorConfig{Provider: "none"}, ragerr.KindUnknown},
		{"unknown", GeneratorConfig{Provider: "palm"}, ragerr.KindConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewGenerator(tt.cfg)
			if tt.wantKind != ragerr.KindUnknown {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, ragerr.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, g)
		})
	}
}

func TestResolveGenerator(t *testing.T) {
	logger := logging.NewTestLogger()

	g, err := ResolveGenerator(context.Background(), GeneratorConfig{Provider: "gemini"}, logger.Logger)
	require.NoError(t, err)
	assert.IsType(t, &Unavailable{}, g)
	logger.AssertLogged(t, zapcore.WarnLevel, "generation backend unavailable")

	_, err = ResolveGenerator(context.Background(), GeneratorConfig{Provider: "palm"}, nil)
	assert.ErrorIs(t, err, ragerr.ErrConfiguration)
}
