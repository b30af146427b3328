package model

import (
	"time"

	"github.com/google/uuid"
)

type Color string

const (
	ColorYellow Color = "yellow"
	ColorGreen  Color = "green"
	ColorBlue   Color = "blue"
	ColorPink   Color = "pink"
	ColorPurple Color = "purple"
)

// Colors is the highlight palette.
var Colors = []Color{ColorYellow, ColorGreen, ColorBlue, ColorPink, ColorPurple}

// Valid reports whether c is part of the palette.
func (c Color) Valid() bool {
	for _, p := range Colors {
		if c == p {
			return true
		}
	}
	return false
}

// Highlight is a user-selected span of an article's content text.
//
// Offsets are 0-based UTF-16 indices into the text of the article's
// canonical content, end exclusive. On the wire they travel as decimal
// strings.
type Highlight struct {
	ID          uuid.UUID `json:"id"`
	ArticleID   uuid.UUID `json:"article_id"`
	UserID      string    `json:"user_id"`
	StartOffset int       `json:"startOffset,string"`
	EndOffset   int       `json:"endOffset,string"`
	Text        string    `json:"text"`
	Color       Color     `json:"color"`
	Note        string    `json:"note,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewHighlight creates a highlight on article with default values.
func NewHighlight(article *Article, start, end int, text string, color Color, note string) Highlight {
	if color == "" {
		color = ColorYellow
	}
	return Highlight{
		ID:          uuid.New(),
		ArticleID:   article.ID,
		UserID:      article.UserID,
		StartOffset: start,
		EndOffset:   end,
		Text:        text,
		Color:       color,
		Note:        note,
		CreatedAt:   time.Now().UTC(),
	}
}
