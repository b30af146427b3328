package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewArticle_Defaults(t *testing.T) {
	a := NewArticle("u1", "https://example.com/article", nil, Extracted{
		Title:   "Example",
		Content: "<p>Hello world</p>",
	})

	assert.NotEmpty(t, a.ID)
	assert.Equal(t, "u1", a.UserID)
	assert.Equal(t, "Example", a.Title)
	assert.Equal(t, "<p>Hello world</p>", a.Content)
	assert.False(t, a.Archived)
	assert.False(t, a.Read)
	assert.Equal(t, SyncNotSynced, a.SyncStatus)
	assert.NotNil(t, a.Tags)
	assert.Empty(t, a.Tags)
	assert.False(t, a.CreatedAt.IsZero())
}

func TestNewArticle_TitleFallsBackToHost(t *testing.T) {
	a := NewArticle("u1", "https://blog.example.org/p/1", nil, Extracted{Content: "<p>x</p>"})
	assert.Equal(t, "blog.example.org", a.Title)
}

func TestNormalizeTags(t *testing.T) {
	got := NormalizeTags([]string{" go ", "", "reading", "go", "  "})
	assert.Equal(t, []string{"go", "reading"}, got)
}

func TestHighlight_OffsetsAreStringsOnTheWire(t *testing.T) {
	a := NewArticle("u1", "https://example.com", nil, Extracted{Title: "t", Content: "<p>hello</p>"})
	h := NewHighlight(&a, 1, 4, "ell", "", "")
	assert.Equal(t, ColorYellow, h.Color)

	data, err := json.Marshal(h)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"startOffset":"1"`)
	assert.Contains(t, string(data), `"endOffset":"4"`)

	var back Highlight
	require.NoError(t, json.Unmarshal([]byte(`{"startOffset":"5","endOffset":"10"}`), &back))
	assert.Equal(t, 5, back.StartOffset)
	assert.Equal(t, 10, back.EndOffset)
}

func TestColor_Valid(t *testing.T) {
	assert.True(t, ColorPurple.Valid())
	assert.False(t, Color("red").Valid())
}
