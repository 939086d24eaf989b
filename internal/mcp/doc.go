// Package mcp exposes ragd ingestion and retrieval as MCP tools.
//
// The server uses the MCP SDK (github.com/modelcontextprotocol/go-sdk/mcp)
// and calls the pipeline directly. Every tool takes an explicit tenant_id,
// validated before any work is done, so one stdio session can serve several
// tenants without sharing data between them.
//
// Tools:
//   - ingest_document: segment, embed and store text
//   - query_documents: answer a question from stored fragments
//   - search_documents: ranked fragments without an answer
//   - delete_documents: remove one document or the whole partition
package mcp
