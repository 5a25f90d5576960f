// Package ingest turns uploaded files into ordered file-fragment chunks.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"

	"github.com/fyrsmithlabs/tenantrag/internal/chunk"
)

const (
	// DefaultChunkSize is the target fragment length in characters.
	DefaultChunkSize = 1000
	// DefaultChunkOverlap is the number of characters shared by
	// neighbouring fragments.
	DefaultChunkOverlap = 200
)

var (
	// ErrUnsupportedFile is returned for extensions without a loader.
	ErrUnsupportedFile = errors.New("unsupported file type")
	// ErrEmptyFile is returned when a file yields no text.
	ErrEmptyFile = errors.New("file contains no text")
)

type loadFunc func(ctx context.Context, r io.Reader) ([]schema.Document, error)

var loaders = map[string]loadFunc{
	".txt":  loadText,
	".md":   loadText,
	".csv":  loadCSV,
	".json": loadJSON,
	".pdf":  loadPDF,
	".docx": loadDOCX,
	".xlsx": loadXLSX,
}

// SupportedExtensions lists accepted file extensions, sorted.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(loaders))
	for ext := range loaders {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Upload is the result of splitting one file.
type Upload struct {
	ID       string        `json:"id"`
	Filename string        `json:"filename"`
	Chunks   []chunk.Chunk `json:"-"`
}

// Splitter loads files and splits them with a recursive character
// splitter.
type Splitter struct {
	size     int
	overlap  int
	splitter textsplitter.TextSplitter
}

// NewSplitter creates a splitter. Overlap must be smaller than size.
func NewSplitter(size, overlap int) (*Splitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", size, overlap)
	}
	return &Splitter{
		size:    size,
		overlap: overlap,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(size),
			textsplitter.WithChunkOverlap(overlap),
		),
	}, nil
}

// Split loads r according to the extension of filename and returns the
// fragments in document order with SequenceIndex set from 0.
func (s *Splitter) Split(ctx context.Context, filename string, r io.Reader) (*Upload, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	load, ok := loaders[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedFile, ext, strings.Join(SupportedExtensions(), ", "))
	}

	docs, err := load(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", filepath.Base(filename), err)
	}
	parts, err := textsplitter.SplitDocuments(s.splitter, docs)
	if err != nil {
		return nil, fmt.Errorf("splitting %s: %w", filepath.Base(filename), err)
	}

	base := filepath.Base(filename)
	sourceType := strings.TrimPrefix(ext, ".")
	chunks := make([]chunk.Chunk, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p.PageContent) == "" {
			continue
		}
		chunks = append(chunks, chunk.FileFragment{
			Content:       p.PageContent,
			SourceFile:    base,
			SourceType:    sourceType,
			SequenceIndex: len(chunks),
		})
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyFile, base)
	}

	return &Upload{ID: uuid.NewString(), Filename: base, Chunks: chunks}, nil
}

func loadText(ctx context.Context, r io.Reader) ([]schema.Document, error) {
	return documentloaders.NewText(r).Load(ctx)
}

// loadCSV yields one document per row, "column: value" per line.
func loadCSV(ctx context.Context, r io.Reader) ([]schema.Document, error) {
	return documentloaders.NewCSV(r).Load(ctx)
}

// loadJSON re-indents the document so the splitter can break on lines.
func loadJSON(_ context.Context, r io.Reader) ([]schema.Document, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return []schema.Document{{PageContent: buf.String()}}, nil
}
