// Package library implements the article and highlight use cases on top
// of a Store, enforcing ownership and input validation.
package library

import (
	"context"
	"errors"
	"fmt"

	"readmark/internal/export"
	"readmark/internal/extract"
	"readmark/internal/highlight"
	"readmark/internal/metrics"
	"readmark/internal/model"
	"readmark/internal/store"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNotFound covers both missing records and records owned by another
// user, so callers cannot probe for existence.
var ErrNotFound = errors.New("not found")

// DefaultListLimit caps article listings when the caller passes no limit.
const DefaultListLimit = 100

// ContentExtractor produces article fields for a URL.
type ContentExtractor interface {
	Extract(ctx context.Context, rawURL string) (*extract.Result, error)
}

type Service struct {
	store     store.Store
	extractor ContentExtractor
	validate  *validator.Validate
	logger    *zap.Logger
}

func NewService(st store.Store, extractor ContentExtractor, logger *zap.Logger) *Service {
	return &Service{
		store:     st,
		extractor: extractor,
		validate:  newValidator(),
		logger:    logger,
	}
}

// SaveInput is the request to save a URL.
type SaveInput struct {
	URL   string   `json:"url"`
	Tags  []string `json:"tags" validate:"max=50,dive,max=64"`
	Title string   `json:"title" validate:"max=512"`
}

// ArticlePatch lists the user-editable article fields. Content and url
// cannot be patched.
type ArticlePatch struct {
	Tags     *[]string `json:"tags" validate:"omitempty,max=50,dive,max=64"`
	Notes    *string   `json:"notes" validate:"omitempty,max=100000"`
	Archived *bool     `json:"archived"`
	Read     *bool     `json:"read"`
}

// ValidateSave checks a save request without fetching anything, for
// callers that defer the save to the queue.
func (s *Service) ValidateSave(in SaveInput) error {
	if err := s.check(in); err != nil {
		return err
	}
	_, err := extract.ParseURL(in.URL)
	return err
}

// SaveArticle extracts rawURL and persists the article. Extraction errors
// are returned unchanged and nothing is written.
func (s *Service) SaveArticle(ctx context.Context, userID string, in SaveInput) (*model.Article, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	res, err := s.extractor.Extract(ctx, in.URL)
	if err != nil {
		return nil, err
	}

	title := res.Title
	if title == "" {
		title = in.Title
	}
	article := model.NewArticle(userID, in.URL, in.Tags, model.Extracted{
		Title:       title,
		Content:     res.Content,
		Description: res.Description,
	})
	if err := s.store.CreateArticle(ctx, &article); err != nil {
		return nil, fmt.Errorf("save article: %w", err)
	}

	s.logger.Info("Article saved",
		zap.String("id", article.ID.String()),
		zap.String("user_id", userID),
		zap.Stringer("strategy", res.Strategy.Kind),
		zap.String("title", article.Title))
	return &article, nil
}

func (s *Service) ListArticles(ctx context.Context, userID string, limit int) ([]model.Article, error) {
	if limit <= 0 || limit > DefaultListLimit {
		limit = DefaultListLimit
	}
	return s.store.ListArticles(ctx, userID, limit)
}

// GetArticle returns the article if userID owns it.
func (s *Service) GetArticle(ctx context.Context, userID string, id uuid.UUID) (*model.Article, error) {
	article, err := s.store.GetArticle(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if article.UserID != userID {
		return nil, ErrNotFound
	}
	return article, nil
}

func (s *Service) UpdateArticle(ctx context.Context, userID string, id uuid.UUID, patch ArticlePatch) (*model.Article, error) {
	if err := s.check(patch); err != nil {
		return nil, err
	}
	article, err := s.GetArticle(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if patch.Tags != nil {
		article.Tags = model.NormalizeTags(*patch.Tags)
	}
	if patch.Notes != nil {
		article.Notes = *patch.Notes
	}
	if patch.Archived != nil {
		article.Archived = *patch.Archived
	}
	if patch.Read != nil {
		article.Read = *patch.Read
	}

	if err := s.store.UpdateArticle(ctx, article); err != nil {
		return nil, notFound(err)
	}
	return article, nil
}

// DeleteArticle removes the article and all its highlights.
func (s *Service) DeleteArticle(ctx context.Context, userID string, id uuid.UUID) error {
	if _, err := s.GetArticle(ctx, userID, id); err != nil {
		return err
	}
	if err := s.store.DeleteArticle(ctx, id); err != nil {
		return notFound(err)
	}
	s.logger.Info("Article deleted", zap.String("id", id.String()), zap.String("user_id", userID))
	return nil
}

// RenderArticle returns the article content with its highlights applied.
func (s *Service) RenderArticle(ctx context.Context, userID string, id uuid.UUID) (*model.Article, string, error) {
	article, err := s.GetArticle(ctx, userID, id)
	if err != nil {
		return nil, "", err
	}
	highlights, err := s.store.ListHighlights(ctx, id)
	if err != nil {
		return nil, "", err
	}
	rendered, err := highlight.Render(article.Content, highlights)
	if err != nil {
		return nil, "", fmt.Errorf("render highlights: %w", err)
	}
	metrics.HighlightsRendered.Add(float64(len(highlights)))
	return article, rendered, nil
}

// ExportMarkdown serializes the article with its highlights and notes.
func (s *Service) ExportMarkdown(ctx context.Context, userID string, id uuid.UUID) (string, error) {
	article, err := s.GetArticle(ctx, userID, id)
	if err != nil {
		return "", err
	}
	highlights, err := s.store.ListHighlights(ctx, id)
	if err != nil {
		return "", err
	}
	return export.Markdown(article, highlights)
}

func notFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
