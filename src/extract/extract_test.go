package extract_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfrag/src/core/rag"
	"pdfrag/src/extract"
)

type stubPDF struct {
	calls int
}

func (s *stubPDF) ExtractPages(ctx context.Context, filename string, content []byte) ([]rag.PageText, error) {
	s.calls++
	return []rag.PageText{{PageNumber: 1, Text: "pdf text"}}, nil
}

func TestPlainText_ExtractPages(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []rag.PageText
	}{
		{
			name:    "single page",
			content: "hello",
			want:    []rag.PageText{{PageNumber: 1, Text: "hello"}},
		},
		{
			name:    "form feed separates pages",
			content: "one\ftwo\f\fthree",
			want: []rag.PageText{
				{PageNumber: 1, Text: "one"},
				{PageNumber: 2, Text: "two"},
				{PageNumber: 3, Text: ""},
				{PageNumber: 4, Text: "three"},
			},
		},
		{
			name:    "trailing form feed does not add a page",
			content: "one\ftwo\f",
			want: []rag.PageText{
				{PageNumber: 1, Text: "one"},
				{PageNumber: 2, Text: "two"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pages, err := extract.PlainText{}.ExtractPages(context.Background(), "a.txt", []byte(tt.content))
			require.NoError(t, err)
			assert.Equal(t, tt.want, pages)
		})
	}

	_, err := extract.PlainText{}.ExtractPages(context.Background(), "bin.txt", []byte{0xff, 0xfe})
	assert.ErrorIs(t, err, rag.ErrValidation)
}

func TestDispatcher_ExtractPages(t *testing.T) {
	ctx := context.Background()
	pdf := &stubPDF{}
	d := extract.NewDispatcher(pdf)

	pages, err := d.ExtractPages(ctx, "Report.PDF", []byte("%PDF"))
	require.NoError(t, err)
	assert.Equal(t, "pdf text", pages[0].Text)
	assert.Equal(t, 1, pdf.calls)

	pages, err = d.ExtractPages(ctx, "notes.txt", []byte("plain"))
	require.NoError(t, err)
	assert.Equal(t, "plain", pages[0].Text)

	_, err = d.ExtractPages(ctx, "image.png", []byte("png"))
	assert.ErrorIs(t, err, rag.ErrValidation)

	_, err = d.ExtractPages(ctx, "empty.txt", nil)
	assert.ErrorIs(t, err, rag.ErrValidation)

	_, err = extract.NewDispatcher(nil).ExtractPages(ctx, "doc.pdf", []byte("%PDF"))
	assert.ErrorIs(t, err, rag.ErrValidation)
}

func TestSupported(t *testing.T) {
	assert.True(t, extract.Supported("a.pdf"))
	assert.True(t, extract.Supported("A.TXT"))
	assert.False(t, extract.Supported("a.docx"))
	assert.False(t, extract.Supported("pdf"))
}
