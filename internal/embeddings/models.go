package embeddings

import "strings"

// DefaultModel is the embedding model used when none is configured.
const DefaultModel = "sentence-transformers/all-MiniLM-L6-v2"

var knownDimensions = map[string]int{
	"sentence-transformers/all-minilm-l6-v2": 384,
	"all-minilm-l6-v2":                       384,
	"fast-all-minilm-l6-v2":                  384,
	"baai/bge-small-en-v1.5":                 384,
	"fast-bge-small-en-v1.5":                 384,
	"baai/bge-base-en-v1.5":                  768,
	"fast-bge-base-en-v1.5":                  768,
	"nomic-embed-text":                       768,
	"text-embedding-3-small":                 1536,
	"text-embedding-3-large":                 3072,
	"text-embedding-ada-002":                 1536,
}

// modelDimension returns the vector length of a known model.
func modelDimension(model string) (int, bool) {
	dim, ok := knownDimensions[strings.ToLower(model)]
	return dim, ok
}
