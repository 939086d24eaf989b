package http_test

import (
	"context"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/ragd/internal/auth"
	"github.com/fyrsmithlabs/ragd/internal/embeddings"
	httpserver "github.com/fyrsmithlabs/ragd/internal/http"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/pipeline"
	"github.com/fyrsmithlabs/ragd/internal/retrieval"
	"github.com/fyrsmithlabs/ragd/internal/segment"
	"github.com/fyrsmithlabs/ragd/internal/synthesis"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// ExampleNewServer wires an in-memory store into a server and shuts it down.
func ExampleNewServer() {
	logger := logging.NewNop()

	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{Collection: "document_chunks", Dimension: 384}, logger)
	if err != nil {
		panic(err)
	}
	provider := embeddings.NewUnavailable(384, "no embedding backend in this example")
	seg, err := segment.New(segment.DefaultSize, segment.DefaultOverlap)
	if err != nil {
		panic(err)
	}

	svc := httpserver.Services{
		Ingestor: pipeline.NewIngestor(pipeline.DefaultIngestConfig(), seg, provider, store),
		Responder: pipeline.NewResponder(pipeline.DefaultQueryConfig(), provider,
			retrieval.NewExact(store, 384, retrieval.DefaultPoolSize), synthesis.New(nil, logger), logger),
		Provider: provider,
		Store:    store,
	}

	server, err := httpserver.NewServer(svc, logger, &httpserver.Config{
		Host:     "localhost",
		Port:     18080,
		AuthMode: auth.ModeHeader,
	})
	if err != nil {
		panic(err)
	}

	go func() {
		if err := server.Start(); err != nil {
			fmt.Println("server error:", err)
		}
	}()
	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		fmt.Println("shutdown error:", err)
	}
	fmt.Println("server stopped")
}
