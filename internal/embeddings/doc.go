// Package embeddings turns derived chunk text into fixed-length vectors.
//
// Providers: FastEmbed (local ONNX, cgo builds only), TEI (text-embeddings-
// inference over HTTP), OpenAI-compatible APIs, and a deterministic hashing
// provider for offline use. Every provider handed to a tenant store is
// wrapped in a Guard, which bounds each call with a timeout and reports
// failures as ErrUpstreamUnavailable.
package embeddings
