package library

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"readmark/internal/highlight"
	"readmark/internal/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// HighlightInput is the create request. Offsets are decimal strings, as
// they travel on the wire.
type HighlightInput struct {
	Text        string `json:"text" validate:"required,max=20000"`
	StartOffset string `json:"startOffset" validate:"required,number"`
	EndOffset   string `json:"endOffset" validate:"required,number"`
	Color       string `json:"color" validate:"omitempty,color"`
	Note        string `json:"note" validate:"max=20000"`
}

// HighlightPatch replaces the given fields of a persisted highlight.
type HighlightPatch struct {
	Text        *string `json:"text" validate:"omitempty,max=20000"`
	StartOffset *string `json:"startOffset" validate:"omitempty,number"`
	EndOffset   *string `json:"endOffset" validate:"omitempty,number"`
	Color       *string `json:"color" validate:"omitempty,color"`
	Note        *string `json:"note" validate:"omitempty,max=20000"`
}

func parseOffset(field, v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, invalid(field, field+" must be a non-negative integer string")
	}
	return n, nil
}

// checkRange enforces 0 <= start < end <= length of the content text.
func checkRange(content string, start, end int) error {
	if start >= end {
		return invalid("endOffset", "endOffset must be greater than startOffset")
	}
	length, err := highlight.TextLength(content)
	if err != nil {
		return fmt.Errorf("measure content: %w", err)
	}
	if end > length {
		return invalid("endOffset", fmt.Sprintf("endOffset must be at most %d", length))
	}
	return nil
}

// quoteFor returns the text the range covers. A supplied quote must match
// it, ignoring differences in whitespace.
func quoteFor(content string, start, end int, supplied *string) (string, error) {
	sub, err := highlight.Substring(content, start, end)
	if err != nil {
		return "", fmt.Errorf("quote range: %w", err)
	}
	if strings.TrimSpace(sub) == "" {
		return "", invalid("text", "selection is empty")
	}
	if supplied == nil {
		return sub, nil
	}
	if strings.TrimSpace(*supplied) == "" {
		return "", invalid("text", "text must not be blank")
	}
	if !sameWords(*supplied, sub) {
		return "", invalid("text", "text does not match the article at these offsets")
	}
	return sub, nil
}

func sameWords(a, b string) bool {
	return strings.Join(strings.Fields(a), " ") == strings.Join(strings.Fields(b), " ")
}

// ListHighlights returns the article's highlights ordered by start offset.
func (s *Service) ListHighlights(ctx context.Context, userID string, articleID uuid.UUID) ([]model.Highlight, error) {
	if _, err := s.GetArticle(ctx, userID, articleID); err != nil {
		return nil, err
	}
	return s.store.ListHighlights(ctx, articleID)
}

// CreateHighlight validates and persists a highlight on an owned article.
func (s *Service) CreateHighlight(ctx context.Context, userID string, articleID uuid.UUID, in HighlightInput) (*model.Highlight, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	start, err := parseOffset("startOffset", in.StartOffset)
	if err != nil {
		return nil, err
	}
	end, err := parseOffset("endOffset", in.EndOffset)
	if err != nil {
		return nil, err
	}

	article, err := s.GetArticle(ctx, userID, articleID)
	if err != nil {
		return nil, err
	}
	if err := checkRange(article.Content, start, end); err != nil {
		return nil, err
	}
	text, err := quoteFor(article.Content, start, end, &in.Text)
	if err != nil {
		return nil, err
	}

	h := model.NewHighlight(article, start, end, text, model.Color(in.Color), in.Note)
	if err := s.store.CreateHighlight(ctx, &h); err != nil {
		return nil, notFound(err)
	}
	s.logger.Debug("Highlight created",
		zap.String("id", h.ID.String()),
		zap.String("article_id", articleID.String()),
		zap.Int("start", start), zap.Int("end", end))
	return &h, nil
}

// GetHighlight returns the highlight if userID owns it.
func (s *Service) GetHighlight(ctx context.Context, userID string, id uuid.UUID) (*model.Highlight, error) {
	h, err := s.store.GetHighlight(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	if h.UserID != userID {
		return nil, ErrNotFound
	}
	return h, nil
}

// UpdateHighlight replaces the persisted record in place. Changed offsets
// are checked against the article content again and the quote follows them.
func (s *Service) UpdateHighlight(ctx context.Context, userID string, id uuid.UUID, patch HighlightPatch) (*model.Highlight, error) {
	if err := s.check(patch); err != nil {
		return nil, err
	}
	h, err := s.GetHighlight(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if patch.StartOffset != nil || patch.EndOffset != nil || patch.Text != nil {
		start, end := h.StartOffset, h.EndOffset
		if patch.StartOffset != nil {
			if start, err = parseOffset("startOffset", *patch.StartOffset); err != nil {
				return nil, err
			}
		}
		if patch.EndOffset != nil {
			if end, err = parseOffset("endOffset", *patch.EndOffset); err != nil {
				return nil, err
			}
		}
		article, err := s.GetArticle(ctx, userID, h.ArticleID)
		if err != nil {
			return nil, err
		}
		if err := checkRange(article.Content, start, end); err != nil {
			return nil, err
		}
		text, err := quoteFor(article.Content, start, end, patch.Text)
		if err != nil {
			return nil, err
		}
		h.StartOffset, h.EndOffset, h.Text = start, end, text
	}
	if patch.Color != nil && *patch.Color != "" {
		h.Color = model.Color(*patch.Color)
	}
	if patch.Note != nil {
		h.Note = *patch.Note
	}

	if err := s.store.UpdateHighlight(ctx, h); err != nil {
		return nil, notFound(err)
	}
	return h, nil
}

// DeleteHighlight removes one highlight; the article is untouched.
func (s *Service) DeleteHighlight(ctx context.Context, userID string, id uuid.UUID) error {
	if _, err := s.GetHighlight(ctx, userID, id); err != nil {
		return err
	}
	return notFound(s.store.DeleteHighlight(ctx, id))
}

// HighlightQuote highlights the occurrence-th match of quote in the
// rendered article, capturing it the same way a browser selection would.
func (s *Service) HighlightQuote(ctx context.Context, userID string, articleID uuid.UUID, quote string, occurrence int, color model.Color, note string) (*model.Highlight, error) {
	_, rendered, err := s.RenderArticle(ctx, userID, articleID)
	if err != nil {
		return nil, err
	}
	doc, err := html.Parse(strings.NewReader(`<div class="` + highlight.ContentClass + `">` + rendered + `</div>`))
	if err != nil {
		return nil, fmt.Errorf("parse rendered article: %w", err)
	}

	sel, err := highlight.FindText(doc, quote, occurrence)
	if err != nil {
		return nil, captureError(err)
	}
	captured, err := highlight.Capture(doc, sel)
	if err != nil {
		return nil, captureError(err)
	}

	return s.CreateHighlight(ctx, userID, articleID, HighlightInput{
		Text:        captured.Text,
		StartOffset: strconv.Itoa(captured.Start),
		EndOffset:   strconv.Itoa(captured.End),
		Color:       string(color),
		Note:        note,
	})
}

func captureError(err error) error {
	switch {
	case errors.Is(err, highlight.ErrEmptySelection):
		return invalid("text", "selection is empty")
	case errors.Is(err, highlight.ErrTextNotFound):
		return invalid("text", "text not found in article")
	}
	return err
}
