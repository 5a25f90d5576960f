// Package chunk defines the units of knowledge held by a tenant store and
// the single text derivation used for both embedding and keyword matching.
package chunk

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Type is the chunk_type discriminator.
type Type string

const (
	TypeQA           Type = "qa"
	TypeFileFragment Type = "file_fragment"
	TypeOther        Type = "other"
)

// Chunk is one ingested unit of knowledge. The set of implementations is
// closed: QA, FileFragment and Other.
type Chunk interface {
	Type() Type
	sealed()
}

// QA is a question/answer pair collected from a tenant.
type QA struct {
	Question string
	Answer   string
}

// FileFragment is one segment of an uploaded file.
type FileFragment struct {
	Content       string
	SourceFile    string
	SourceType    string
	SequenceIndex int
}

// Other carries an opaque key/value mapping.
type Other struct {
	Fields map[string]any
}

func (QA) Type() Type           { return TypeQA }
func (FileFragment) Type() Type { return TypeFileFragment }
func (Other) Type() Type        { return TypeOther }

func (QA) sealed()           {}
func (FileFragment) sealed() {}
func (Other) sealed()        {}

// DeriveText returns the display text of a chunk. The same text is embedded
// and scanned by keyword matching.
func DeriveText(c Chunk) string {
	switch v := c.(type) {
	case QA:
		return "Q: " + v.Question + "\nA: " + v.Answer
	case FileFragment:
		return v.Content
	case Other:
		return canonicalJSON(v.Fields)
	default:
		panic(fmt.Sprintf("chunk: unknown variant %T", c))
	}
}

// Texts derives the display text of every chunk, in order.
func Texts(chunks []Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = DeriveText(c)
	}
	return out
}

// Equal reports whether two chunks are the same variant with the same
// derived content. Map key order in Other does not matter.
func Equal(a, b Chunk) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Type() != b.Type() {
		return false
	}
	if fa, ok := a.(FileFragment); ok {
		return fa == b.(FileFragment)
	}
	return DeriveText(a) == DeriveText(b)
}

// canonicalJSON serializes fields with sorted keys at every level.
// encoding/json already sorts map keys; HTML escaping is disabled so the
// text matches what a tenant typed.
func canonicalJSON(fields map[string]any) string {
	if fields == nil {
		return "{}"
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(fields); err != nil {
		return fmt.Sprintf("%v", fields)
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n"))
}
