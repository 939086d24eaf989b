// Package pipeline orchestrates ingestion and question answering.
//
// An Ingestor turns raw text into stored fragments of one tenant partition:
//
//	text -> redact -> segment -> embed (bounded parallelism) -> upsert
//
// A Responder answers questions from the same partition:
//
//	query -> embed -> retrieve -> synthesize
//
// Both are stateless and safe for concurrent use. Collaborators are injected
// at construction; nothing in this package opens connections.
package pipeline
