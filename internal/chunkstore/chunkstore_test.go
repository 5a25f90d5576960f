package chunkstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/tenantrag/internal/chunk"
)

func TestStore_AppendKeepsOrder(t *testing.T) {
	s := New(nil)
	assert.Equal(t, 0, s.Len())

	s.Append([]chunk.Chunk{chunk.QA{Question: "q1", Answer: "a1"}})
	s.Append([]chunk.Chunk{chunk.FileFragment{Content: "frag"}, chunk.QA{Question: "q2", Answer: "a2"}})

	require.Equal(t, 3, s.Len())
	assert.Equal(t, []string{"Q: q1\nA: a1", "frag", "Q: q2\nA: a2"}, s.Texts())

	c, err := s.At(1)
	require.NoError(t, err)
	assert.Equal(t, chunk.FileFragment{Content: "frag"}, c)

	_, err = s.At(3)
	assert.Error(t, err)
}

func TestStore_Replace(t *testing.T) {
	s := New([]chunk.Chunk{chunk.FileFragment{Content: "a"}, chunk.FileFragment{Content: "b"}})
	s.Replace([]chunk.Chunk{chunk.FileFragment{Content: "c"}})

	assert.Equal(t, 1, s.Len())
	assert.Equal(t, "c", s.Text(0))

	s.Replace(nil)
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.Texts())
}

func TestStore_CloneIsIndependent(t *testing.T) {
	s := New([]chunk.Chunk{chunk.FileFragment{Content: "a"}})
	c := s.Clone()
	c.Append([]chunk.Chunk{chunk.FileFragment{Content: "b"}})

	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 2, c.Len())
}

func TestStore_ChunksReturnsCopy(t *testing.T) {
	s := New([]chunk.Chunk{chunk.FileFragment{Content: "a"}})
	out := s.Chunks()
	out[0] = chunk.FileFragment{Content: "mutated"}

	assert.Equal(t, "a", s.Text(0))
}
