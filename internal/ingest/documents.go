package ingest

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
	"github.com/xuri/excelize/v2"
)

// loadPDF yields one document per page.
func loadPDF(ctx context.Context, r io.Reader) ([]schema.Document, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	docs, err := documentloaders.NewPDF(bytes.NewReader(raw), int64(len(raw))).Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("invalid PDF: %w", err)
	}
	return docs, nil
}

// loadXLSX yields one document per sheet with one line per row and cells
// separated by ", ".
func loadXLSX(_ context.Context, r io.Reader) ([]schema.Document, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("invalid spreadsheet: %w", err)
	}
	defer f.Close()

	var docs []schema.Document
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("reading sheet %s: %w", sheet, err)
		}
		lines := make([]string, 0, len(rows))
		for _, row := range rows {
			if line := strings.Join(row, ", "); strings.TrimSpace(strings.ReplaceAll(line, ",", "")) != "" {
				lines = append(lines, line)
			}
		}
		if len(lines) == 0 {
			continue
		}
		docs = append(docs, schema.Document{
			PageContent: strings.Join(lines, "\n"),
			Metadata:    map[string]any{"sheet": sheet},
		})
	}
	return docs, nil
}

const docxBody = "word/document.xml"

// loadDOCX extracts paragraph text from the main document part, one line
// per paragraph.
func loadDOCX(_ context.Context, r io.Reader) ([]schema.Document, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("invalid docx: %w", err)
	}
	for _, f := range zr.File {
		if f.Name != docxBody {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("invalid docx: %w", err)
		}
		defer rc.Close()
		text, err := docxText(rc)
		if err != nil {
			return nil, fmt.Errorf("invalid docx: %w", err)
		}
		return []schema.Document{{PageContent: text}}, nil
	}
	return nil, fmt.Errorf("invalid docx: missing %s", docxBody)
}

func docxText(r io.Reader) (string, error) {
	var b strings.Builder
	dec := xml.NewDecoder(r)
	inText := false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return strings.TrimSpace(b.String()), nil
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteByte('\t')
			case "br":
				b.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
}
