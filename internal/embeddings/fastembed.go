//go:build cgo

package embeddings

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	fastembed "github.com/anush008/fastembed-go"
	"github.com/fyrsmithlabs/ragd/internal/ragerr"
)

// FastEmbedConfig holds configuration for the FastEmbed provider.
type FastEmbedConfig struct {
	// Model defaults to sentence-transformers/all-MiniLM-L6-v2.
	Model string

	// CacheDir holds downloaded ONNX model files.
	CacheDir string

	// MaxLength is the maximum input sequence length. Defaults to 512.
	MaxLength int
}

// FastEmbedProvider runs a local ONNX model in-process.
type FastEmbedProvider struct {
	model     *fastembed.FlagEmbedding
	modelName string
	dimension int
	mu        sync.RWMutex
}

var modelMapping = map[string]fastembed.EmbeddingModel{
	"sentence-transformers/all-MiniLM-L6-v2": fastembed.AllMiniLML6V2,
	"all-MiniLM-L6-v2":                       fastembed.AllMiniLML6V2,
	"BAAI/bge-small-en-v1.5":                 fastembed.BGESmallENV15,
	"BAAI/bge-base-en-v1.5":                  fastembed.BGEBaseENV15,
	"fast-all-MiniLM-L6-v2":                  fastembed.AllMiniLML6V2,
	"fast-bge-small-en-v1.5":                 fastembed.BGESmallENV15,
	"fast-bge-base-en-v1.5":                  fastembed.BGEBaseENV15,
}

// NewFastEmbedProvider loads the model, downloading it on first use.
func NewFastEmbedProvider(cfg FastEmbedConfig) (*FastEmbedProvider, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	model, ok := modelMapping[cfg.Model]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported fastembed model %q", ragerr.ErrConfiguration, cfg.Model)
	}
	dimension, _ := modelDimension(cfg.Model)

	cacheDir := cfg.CacheDir
	if cacheDir == "" {
		cacheDir = filepath.Join(".", "local_cache")
	}
	maxLength := cfg.MaxLength
	if maxLength == 0 {
		maxLength = 512
	}

	showProgress := false
	flagEmbed, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:                model,
		CacheDir:             cacheDir,
		MaxLength:            maxLength,
		ShowDownloadProgress: &showProgress,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: initializing fastembed: %v", ragerr.ErrEmbeddingUnavailable, err)
	}

	return &FastEmbedProvider{
		model:     flagEmbed,
		modelName: cfg.Model,
		dimension: dimension,
	}, nil
}

// EmbedDocuments embeds passages.
func (p *FastEmbedProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	vecs, err := p.model.PassageEmbed(texts, 256)
	if err != nil {
		return nil, fmt.Errorf("fastembed passage embed: %w", err)
	}
	return vecs, nil
}

// EmbedQuery embeds a single query.
func (p *FastEmbedProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	vec, err := p.model.QueryEmbed(text)
	if err != nil {
		return nil, fmt.Errorf("fastembed query embed: %w", err)
	}
	return vec, nil
}

func (p *FastEmbedProvider) Dimension() int { return p.dimension }

// Close releases the ONNX session.
func (p *FastEmbedProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.model == nil {
		return nil
	}
	err := p.model.Destroy()
	p.model = nil
	return err
}
