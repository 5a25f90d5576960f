// Package mcp exposes tenant search, ingest and question answering as
// Model Context Protocol tools over stdio.
//
// Tools:
//   - tenant_search: hybrid, plain or keyword search of one tenant store
//   - tenant_fanout: deduplicated search across every domain of a user
//   - tenant_ingest: append or replace chunks in a tenant store
//   - tenant_ask: answer a question from retrieved context
//   - tool_search: discover tools by name, description or keyword
package mcp
