package store

import (
	"context"
	"errors"
	"sort"

	"readmark/internal/model"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("record not found")
)

// Store persists articles and their highlights. Article content is written
// once by CreateArticle; UpdateArticle never rewrites it. DeleteArticle
// removes the article's highlights as well.
type Store interface {
	CreateArticle(ctx context.Context, article *model.Article) error
	GetArticle(ctx context.Context, id uuid.UUID) (*model.Article, error)
	ListArticles(ctx context.Context, userID string, limit int) ([]model.Article, error)
	UpdateArticle(ctx context.Context, article *model.Article) error
	DeleteArticle(ctx context.Context, id uuid.UUID) error

	CreateHighlight(ctx context.Context, h *model.Highlight) error
	GetHighlight(ctx context.Context, id uuid.UUID) (*model.Highlight, error)
	ListHighlights(ctx context.Context, articleID uuid.UUID) ([]model.Highlight, error)
	UpdateHighlight(ctx context.Context, h *model.Highlight) error
	DeleteHighlight(ctx context.Context, id uuid.UUID) error

	Close() error
}

// sortHighlights orders highlights by start offset, end offset, creation
// time and finally id, so ties come back in a stable order.
func sortHighlights(hs []model.Highlight) {
	sort.SliceStable(hs, func(i, j int) bool {
		a, b := hs[i], hs[j]
		if a.StartOffset != b.StartOffset {
			return a.StartOffset < b.StartOffset
		}
		if a.EndOffset != b.EndOffset {
			return a.EndOffset < b.EndOffset
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
}
