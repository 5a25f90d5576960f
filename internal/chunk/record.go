package chunk

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownType is returned when decoding a record with an unknown chunk_type.
var ErrUnknownType = errors.New("unknown chunk type")

// Record is the persisted and wire form of a Chunk.
//
//	{"chunk_type":"qa","question":"...","answer":"..."}
//	{"chunk_type":"file_fragment","content":"...","source_file":"...","source_type":"...","sequence_index":0}
//	{"chunk_type":"other","fields":{...}}
type Record struct {
	Chunk Chunk
}

type recordJSON struct {
	ChunkType     Type            `json:"chunk_type"`
	Question      string          `json:"question,omitempty"`
	Answer        string          `json:"answer,omitempty"`
	Content       string          `json:"content,omitempty"`
	SourceFile    string          `json:"source_file,omitempty"`
	SourceType    string          `json:"source_type,omitempty"`
	SequenceIndex *int            `json:"sequence_index,omitempty"`
	Fields        json.RawMessage `json:"fields,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (r Record) MarshalJSON() ([]byte, error) {
	var out recordJSON
	switch v := r.Chunk.(type) {
	case QA:
		out = recordJSON{ChunkType: TypeQA, Question: v.Question, Answer: v.Answer}
	case FileFragment:
		idx := v.SequenceIndex
		out = recordJSON{
			ChunkType:     TypeFileFragment,
			Content:       v.Content,
			SourceFile:    v.SourceFile,
			SourceType:    v.SourceType,
			SequenceIndex: &idx,
		}
	case Other:
		fields, err := json.Marshal(v.Fields)
		if err != nil {
			return nil, fmt.Errorf("marshaling other fields: %w", err)
		}
		out = recordJSON{ChunkType: TypeOther, Fields: fields}
	case nil:
		return nil, errors.New("chunk: nil record")
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, r.Chunk)
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Record) UnmarshalJSON(data []byte) error {
	var in recordJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	switch in.ChunkType {
	case TypeQA:
		r.Chunk = QA{Question: in.Question, Answer: in.Answer}
	case TypeFileFragment:
		f := FileFragment{Content: in.Content, SourceFile: in.SourceFile, SourceType: in.SourceType}
		if in.SequenceIndex != nil {
			f.SequenceIndex = *in.SequenceIndex
		}
		r.Chunk = f
	case TypeOther:
		fields := map[string]any{}
		if len(in.Fields) > 0 && !bytes.Equal(in.Fields, []byte("null")) {
			dec := json.NewDecoder(bytes.NewReader(in.Fields))
			dec.UseNumber()
			if err := dec.Decode(&fields); err != nil {
				return fmt.Errorf("decoding other fields: %w", err)
			}
		}
		r.Chunk = Other{Fields: fields}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownType, in.ChunkType)
	}
	return nil
}

// ToRecords wraps chunks for serialization.
func ToRecords(chunks []Chunk) []Record {
	out := make([]Record, len(chunks))
	for i, c := range chunks {
		out[i] = Record{Chunk: c}
	}
	return out
}

// FromRecords unwraps decoded records.
func FromRecords(records []Record) []Chunk {
	out := make([]Chunk, len(records))
	for i, r := range records {
		out[i] = r.Chunk
	}
	return out
}
