package ingest

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/fyrsmithlabs/tenantrag/internal/chunk"
)

func newSplitter(t *testing.T) *Splitter {
	t.Helper()
	s, err := NewSplitter(DefaultChunkSize, DefaultChunkOverlap)
	require.NoError(t, err)
	return s
}

func fragmentsOf(t *testing.T, u *Upload) []chunk.FileFragment {
	t.Helper()
	out := make([]chunk.FileFragment, len(u.Chunks))
	for i, c := range u.Chunks {
		ff, ok := c.(chunk.FileFragment)
		require.True(t, ok, "chunk %d is %T", i, c)
		out[i] = ff
	}
	return out
}

func TestSplit_ShortText(t *testing.T) {
	u, err := newSplitter(t).Split(context.Background(), "prices.TXT", strings.NewReader("Milk: Rs. 90/L"))
	require.NoError(t, err)

	_, err = uuid.Parse(u.ID)
	assert.NoError(t, err)
	assert.Equal(t, "prices.TXT", u.Filename)

	frags := fragmentsOf(t, u)
	require.Len(t, frags, 1)
	assert.Equal(t, chunk.FileFragment{
		Content:       "Milk: Rs. 90/L",
		SourceFile:    "prices.TXT",
		SourceType:    "txt",
		SequenceIndex: 0,
	}, frags[0])
}

func TestSplit_LongTextRespectsSize(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 400; i++ {
		b.WriteString("paddy ")
		if i%40 == 39 {
			b.WriteString("\n\n")
		}
	}

	u, err := newSplitter(t).Split(context.Background(), "notes.md", strings.NewReader(b.String()))
	require.NoError(t, err)

	frags := fragmentsOf(t, u)
	require.Greater(t, len(frags), 1)
	for i, f := range frags {
		assert.Equal(t, i, f.SequenceIndex)
		assert.Equal(t, "md", f.SourceType)
		assert.LessOrEqual(t, utf8.RuneCountInString(f.Content), DefaultChunkSize)
	}
}

func TestSplit_CSVOneFragmentPerRow(t *testing.T) {
	csv := "item,price\nRice,120\nMilk,90\n"
	u, err := newSplitter(t).Split(context.Background(), "prices.csv", strings.NewReader(csv))
	require.NoError(t, err)

	frags := fragmentsOf(t, u)
	require.Len(t, frags, 2)
	assert.Contains(t, frags[0].Content, "Rice")
	assert.Contains(t, frags[1].Content, "Milk")
	assert.Equal(t, 1, frags[1].SequenceIndex)
}

func TestSplit_JSON(t *testing.T) {
	u, err := newSplitter(t).Split(context.Background(), "farm.json", strings.NewReader(`{"crop":"tea","acres":12}`))
	require.NoError(t, err)
	frags := fragmentsOf(t, u)
	require.Len(t, frags, 1)
	assert.Contains(t, frags[0].Content, `"crop": "tea"`)

	_, err = newSplitter(t).Split(context.Background(), "bad.json", strings.NewReader(`{"crop":`))
	assert.Error(t, err)
}

func TestSplit_Errors(t *testing.T) {
	s := newSplitter(t)

	_, err := s.Split(context.Background(), "deck.pptx", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrUnsupportedFile)

	_, err = s.Split(context.Background(), "noext", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrUnsupportedFile)

	_, err = s.Split(context.Background(), "blank.txt", strings.NewReader("  \n\n "))
	assert.ErrorIs(t, err, ErrEmptyFile)
}

func TestNewSplitter_Validation(t *testing.T) {
	_, err := NewSplitter(0, 0)
	assert.Error(t, err)
	_, err = NewSplitter(100, 100)
	assert.Error(t, err)
	_, err = NewSplitter(100, -1)
	assert.Error(t, err)
}

func TestSupportedExtensions(t *testing.T) {
	assert.Equal(t, []string{".csv", ".docx", ".json", ".md", ".pdf", ".txt", ".xlsx"}, SupportedExtensions())
}

// onePagePDF builds a single-page PDF showing text in Helvetica.
func onePagePDF(text string) []byte {
	content := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 4 0 R >> >> /Contents 5 0 R >>",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
	}

	var b bytes.Buffer
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return b.Bytes()
}

func TestSplit_PDF(t *testing.T) {
	pdf := onePagePDF("Deliveries run on Tuesdays and Fridays.")
	u, err := newSplitter(t).Split(context.Background(), "schedule.pdf", bytes.NewReader(pdf))
	require.NoError(t, err)

	frags := fragmentsOf(t, u)
	require.Len(t, frags, 1)
	assert.Contains(t, frags[0].Content, "Deliveries run on Tuesdays")
	assert.Equal(t, "pdf", frags[0].SourceType)

	_, err = newSplitter(t).Split(context.Background(), "broken.pdf", strings.NewReader("not a pdf"))
	assert.Error(t, err)
}

func TestSplit_XLSXOneFragmentPerSheet(t *testing.T) {
	f := excelize.NewFile()
	t.Cleanup(func() { _ = f.Close() })
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "item"))
	require.NoError(t, f.SetCellValue("Sheet1", "B1", "price"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", "Rice"))
	require.NoError(t, f.SetCellValue("Sheet1", "B2", 120))
	_, err := f.NewSheet("Stock")
	require.NoError(t, err)
	require.NoError(t, f.SetCellValue("Stock", "A1", "Milk"))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	u, err := newSplitter(t).Split(context.Background(), "prices.xlsx", buf)
	require.NoError(t, err)

	frags := fragmentsOf(t, u)
	require.Len(t, frags, 2)
	assert.Equal(t, "item, price\nRice, 120", frags[0].Content)
	assert.Equal(t, "Milk", frags[1].Content)
	assert.Equal(t, "xlsx", frags[1].SourceType)
}

func TestSplit_DOCX(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>
<w:p><w:r><w:t>Tea picking</w:t></w:r><w:r><w:t xml:space="preserve"> starts at dawn.</w:t></w:r></w:p>
<w:p><w:r><w:t>Pay is weekly.</w:t></w:r></w:p>
</w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	u, err := newSplitter(t).Split(context.Background(), "handbook.docx", bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	frags := fragmentsOf(t, u)
	require.Len(t, frags, 1)
	assert.Equal(t, "Tea picking starts at dawn.\nPay is weekly.", frags[0].Content)

	var empty bytes.Buffer
	require.NoError(t, zip.NewWriter(&empty).Close())
	_, err = newSplitter(t).Split(context.Background(), "empty.docx", bytes.NewReader(empty.Bytes()))
	assert.ErrorContains(t, err, "missing word/document.xml")
}
