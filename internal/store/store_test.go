package store

import (
	"context"
	"sort"
	"testing"
	"time"

	"readmark/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleArticle(userID, rawURL string) model.Article {
	return model.NewArticle(userID, rawURL, []string{"go", "reading"}, model.Extracted{
		Title:       "Test Article",
		Content:     "<h1>Big Content</h1><p>Some body text.</p>",
		Description: "A short summary",
	})
}

// runStoreContract exercises the behavior every Store driver shares.
func runStoreContract(t *testing.T, st Store) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		article := sampleArticle("alice", "https://example.com/a")
		require.NoError(t, st.CreateArticle(ctx, &article))

		got, err := st.GetArticle(ctx, article.ID)
		require.NoError(t, err)
		assert.Equal(t, article.Title, got.Title)
		assert.Equal(t, article.Content, got.Content)
		assert.Equal(t, article.Tags, got.Tags)
		assert.Equal(t, model.SyncNotSynced, got.SyncStatus)
		assert.True(t, article.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("missing rows", func(t *testing.T) {
		_, err := st.GetArticle(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = st.GetHighlight(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, st.DeleteArticle(ctx, uuid.New()), ErrNotFound)
		assert.ErrorIs(t, st.DeleteHighlight(ctx, uuid.New()), ErrNotFound)

		ghost := sampleArticle("alice", "https://example.com/ghost")
		assert.ErrorIs(t, st.UpdateArticle(ctx, &ghost), ErrNotFound)
		h := model.NewHighlight(&ghost, 0, 3, "Big", "", "")
		assert.ErrorIs(t, st.CreateHighlight(ctx, &h), ErrNotFound, "highlight needs an existing article")
	})

	t.Run("list is per user and newest first", func(t *testing.T) {
		older := sampleArticle("carol", "https://example.com/old")
		older.CreatedAt = time.Now().UTC().Add(-time.Hour)
		newer := sampleArticle("carol", "https://example.com/new")
		other := sampleArticle("dave", "https://example.com/other")
		for _, a := range []*model.Article{&older, &newer, &other} {
			require.NoError(t, st.CreateArticle(ctx, a))
		}

		list, err := st.ListArticles(ctx, "carol", 10)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, newer.ID, list[0].ID)
		assert.Equal(t, older.ID, list[1].ID)

		list, err = st.ListArticles(ctx, "carol", 1)
		require.NoError(t, err)
		assert.Len(t, list, 1)

		list, err = st.ListArticles(ctx, "nobody", 10)
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("update never rewrites content", func(t *testing.T) {
		article := sampleArticle("alice", "https://example.com/u")
		require.NoError(t, st.CreateArticle(ctx, &article))

		changed := article
		changed.Content = "<p>tampered</p>"
		changed.Notes = "# my notes"
		changed.Read = true
		changed.Archived = true
		changed.Tags = []string{"later"}
		require.NoError(t, st.UpdateArticle(ctx, &changed))

		got, err := st.GetArticle(ctx, article.ID)
		require.NoError(t, err)
		assert.Equal(t, article.Content, got.Content)
		assert.Equal(t, "# my notes", got.Notes)
		assert.True(t, got.Read)
		assert.True(t, got.Archived)
		assert.Equal(t, []string{"later"}, got.Tags)
	})

	t.Run("highlights are ordered and cascade", func(t *testing.T) {
		article := sampleArticle("alice", "https://example.com/h")
		require.NoError(t, st.CreateArticle(ctx, &article))
		keep := sampleArticle("alice", "https://example.com/keep")
		require.NoError(t, st.CreateArticle(ctx, &keep))

		late := model.NewHighlight(&article, 10, 14, "body", model.ColorGreen, "second")
		early := model.NewHighlight(&article, 0, 3, "Big", "", "first")
		kept := model.NewHighlight(&keep, 0, 3, "Big", "", "")
		for _, h := range []*model.Highlight{&late, &early, &kept} {
			require.NoError(t, st.CreateHighlight(ctx, h))
		}

		list, err := st.ListHighlights(ctx, article.ID)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, early.ID, list[0].ID)
		assert.Equal(t, model.ColorYellow, list[0].Color)
		assert.Equal(t, late.ID, list[1].ID)

		late.Note = "edited"
		late.Color = model.ColorPink
		require.NoError(t, st.UpdateHighlight(ctx, &late))
		got, err := st.GetHighlight(ctx, late.ID)
		require.NoError(t, err)
		assert.Equal(t, "edited", got.Note)
		assert.Equal(t, model.ColorPink, got.Color)

		require.NoError(t, st.DeleteHighlight(ctx, early.ID))
		_, err = st.GetArticle(ctx, article.ID)
		assert.NoError(t, err, "deleting a highlight leaves the article")

		require.NoError(t, st.DeleteArticle(ctx, article.ID))
		_, err = st.GetHighlight(ctx, late.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		list, err = st.ListHighlights(ctx, article.ID)
		require.NoError(t, err)
		assert.Empty(t, list)

		_, err = st.GetHighlight(ctx, kept.ID)
		assert.NoError(t, err, "other articles keep their highlights")
	})

	t.Run("highlight ties are ordered by id", func(t *testing.T) {
		article := sampleArticle("alice", "https://example.com/ties")
		require.NoError(t, st.CreateArticle(ctx, &article))

		at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		var ids []string
		for i := 0; i < 6; i++ {
			h := model.NewHighlight(&article, 0, 3, "Big", "", "")
			h.CreatedAt = at
			require.NoError(t, st.CreateHighlight(ctx, &h))
			ids = append(ids, h.ID.String())
		}
		sort.Strings(ids)

		for round := 0; round < 3; round++ {
			list, err := st.ListHighlights(ctx, article.ID)
			require.NoError(t, err)
			got := make([]string, len(list))
			for i, h := range list {
				got[i] = h.ID.String()
			}
			assert.Equal(t, ids, got)
		}
	})
}
