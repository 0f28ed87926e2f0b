package rag_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfrag/src/core/rag"
)

func TestFixedWindowChunker_Split(t *testing.T) {
	tests := []struct {
		name      string
		pages     []rag.PageText
		wantLens  []int
		wantPages []int
	}{
		{
			name:      "2500 characters on one page",
			pages:     []rag.PageText{{PageNumber: 1, Text: strings.Repeat("a", 2500)}},
			wantLens:  []int{1000, 1000, 500},
			wantPages: []int{1, 1, 1},
		},
		{
			name:      "exact multiple of the window",
			pages:     []rag.PageText{{PageNumber: 1, Text: strings.Repeat("b", 2000)}},
			wantLens:  []int{1000, 1000},
			wantPages: []int{1, 1},
		},
		{
			name: "windows never span pages",
			pages: []rag.PageText{
				{PageNumber: 1, Text: strings.Repeat("c", 1500)},
				{PageNumber: 2, Text: strings.Repeat("d", 300)},
			},
			wantLens:  []int{1000, 500, 300},
			wantPages: []int{1, 1, 2},
		},
		{
			name: "empty page yields nothing",
			pages: []rag.PageText{
				{PageNumber: 1, Text: ""},
				{PageNumber: 2, Text: "hello"},
			},
			wantLens:  []int{5},
			wantPages: []int{2},
		},
		{
			name: "whitespace-only window is dropped",
			pages: []rag.PageText{
				{PageNumber: 1, Text: strings.Repeat("x", 1000) + strings.Repeat(" \n\t", 400) + "tail"},
			},
			// 1000 x, then 1000 whitespace runes (dropped), then 200 whitespace + "tail"
			wantLens:  []int{1000, 204},
			wantPages: []int{1, 1},
		},
		{
			name:  "no pages",
			pages: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			passages, err := rag.NewChunker().Split(tt.pages)
			require.NoError(t, err)
			require.Len(t, passages, len(tt.wantLens))

			for i, p := range passages {
				assert.Equal(t, tt.wantLens[i], utf8.RuneCountInString(p.Text), "passage %d length", i)
				assert.Equal(t, tt.wantPages[i], p.PageNumber, "passage %d page", i)
				assert.NotEmpty(t, strings.TrimSpace(p.Text))
			}
		})
	}
}

func TestFixedWindowChunker_ReproducesPageText(t *testing.T) {
	page := strings.Repeat("lorem ipsum ", 150) // 1800 runes
	blank := strings.Repeat(" ", 1000)
	pages := []rag.PageText{
		{PageNumber: 1, Text: page},
		{PageNumber: 2, Text: blank + page},
	}

	passages, err := rag.NewChunker().Split(pages)
	require.NoError(t, err)

	var byPage = map[int]string{}
	for _, p := range passages {
		byPage[p.PageNumber] += p.Text
	}
	assert.Equal(t, page, byPage[1])
	assert.Equal(t, page, byPage[2], "the leading blank window must be the only thing omitted")
}

func TestFixedWindowChunker_CountsRunes(t *testing.T) {
	text := strings.Repeat("é", 1500)
	passages, err := rag.NewChunker().Split([]rag.PageText{{PageNumber: 1, Text: text}})
	require.NoError(t, err)
	require.Len(t, passages, 2)
	assert.Equal(t, 1000, utf8.RuneCountInString(passages[0].Text))
	assert.Equal(t, 500, utf8.RuneCountInString(passages[1].Text))
}

func TestNewChunker_Options(t *testing.T) {
	t.Run("custom window", func(t *testing.T) {
		passages, err := rag.NewChunker(rag.WithWindowSize(10)).Split([]rag.PageText{{PageNumber: 1, Text: strings.Repeat("z", 25)}})
		require.NoError(t, err)
		assert.Len(t, passages, 3)
	})

	t.Run("non-positive window keeps default", func(t *testing.T) {
		passages, err := rag.NewChunker(rag.WithWindowSize(0)).Split([]rag.PageText{{PageNumber: 1, Text: strings.Repeat("z", 1500)}})
		require.NoError(t, err)
		assert.Len(t, passages, 2)
	})
}

func TestRecursiveChunker_Split(t *testing.T) {
	words := strings.Repeat("alpha beta gamma delta ", 30) // 690 runes

	passages, err := rag.NewRecursiveChunker(100, 0).Split([]rag.PageText{
		{PageNumber: 1, Text: words},
		{PageNumber: 2, Text: "   "},
		{PageNumber: 3, Text: "short page"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, passages)

	last := passages[len(passages)-1]
	assert.Equal(t, 3, last.PageNumber)
	assert.Equal(t, "short page", last.Text)

	for _, p := range passages {
		assert.NotEqual(t, 2, p.PageNumber, "whitespace page must not produce passages")
		assert.LessOrEqual(t, utf8.RuneCountInString(p.Text), 100)
	}
}
