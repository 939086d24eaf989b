package vectorstore

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/ragerr"
)

// Config selects a Store implementation.
type Config struct {
	// Provider is qdrant (default) or chromem.
	Provider string
	Qdrant   QdrantConfig
	Chromem  ChromemConfig
}

// New creates the configured Store.
func New(cfg Config, logger *logging.Logger) (Store, error) {
	switch strings.ToLower(cfg.Provider) {
	case "qdrant", "":
		return NewQdrantStore(cfg.Qdrant, logger)
	case "chromem":
		return NewChromemStore(cfg.Chromem, logger)
	default:
		return nil, fmt.Errorf("%w: unsupported vector store provider %q (supported: qdrant, chromem)", ragerr.ErrConfiguration, cfg.Provider)
	}
}
