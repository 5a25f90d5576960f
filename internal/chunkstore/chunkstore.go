// Package chunkstore holds the ordered chunk list of one tenant store. Row i
// describes the vector at row i of the tenant's vector index.
package chunkstore

import (
	"fmt"

	"github.com/fyrsmithlabs/tenantrag/internal/chunk"
)

// Store is an ordered, append-only (or wholly replaced) chunk list with
// cached derived texts. Callers serialize access.
type Store struct {
	chunks []chunk.Chunk
	texts  []string
}

// New creates a store holding chunks.
func New(chunks []chunk.Chunk) *Store {
	s := &Store{}
	s.Replace(chunks)
	return s
}

// Len returns the number of rows.
func (s *Store) Len() int {
	return len(s.chunks)
}

// At returns the chunk at row i.
func (s *Store) At(i int) (chunk.Chunk, error) {
	if i < 0 || i >= len(s.chunks) {
		return nil, fmt.Errorf("chunk row %d out of range [0,%d)", i, len(s.chunks))
	}
	return s.chunks[i], nil
}

// Text returns the derived text at row i.
func (s *Store) Text(i int) string {
	return s.texts[i]
}

// Texts returns the derived text of every row. The slice must not be modified.
func (s *Store) Texts() []string {
	return s.texts
}

// Chunks returns a copy of the chunk list.
func (s *Store) Chunks() []chunk.Chunk {
	out := make([]chunk.Chunk, len(s.chunks))
	copy(out, s.chunks)
	return out
}

// Append adds chunks after the existing rows.
func (s *Store) Append(chunks []chunk.Chunk) {
	s.chunks = append(s.chunks, chunks...)
	s.texts = append(s.texts, chunk.Texts(chunks)...)
}

// Replace discards every row and stores chunks instead.
func (s *Store) Replace(chunks []chunk.Chunk) {
	s.chunks = make([]chunk.Chunk, len(chunks))
	copy(s.chunks, chunks)
	s.texts = chunk.Texts(s.chunks)
}

// Clone returns an independent copy. Chunk values are immutable and shared.
func (s *Store) Clone() *Store {
	return &Store{
		chunks: append([]chunk.Chunk(nil), s.chunks...),
		texts:  append([]string(nil), s.texts...),
	}
}
