package model

import (
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SyncNotSynced is the default external sync status of a new article.
const SyncNotSynced = "not_synced"

// Article represents one saved piece of content.
//
// Content is the canonical HTML for the article. Highlight offsets address
// its text, so it is never rewritten after creation.
type Article struct {
	ID          uuid.UUID `json:"id"`
	UserID      string    `json:"user_id"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Content     string    `json:"content,omitempty"`
	Description string    `json:"description,omitempty"`
	Tags        []string  `json:"tags"`
	Notes       string    `json:"notes,omitempty"`
	Archived    bool      `json:"archived"`
	Read        bool      `json:"read"`
	SyncStatus  string    `json:"sync_status"`
	CreatedAt   time.Time `json:"created_at"`
}

// Extracted holds the fields produced by content extraction.
type Extracted struct {
	Title       string
	Content     string
	Description string
}

// NewArticle creates a new Article for userID from extraction output and
// caller supplied fields, applying defaults.
func NewArticle(userID, rawURL string, tags []string, ex Extracted) Article {
	title := strings.TrimSpace(ex.Title)
	if title == "" {
		title = fallbackTitle(rawURL)
	}
	return Article{
		ID:          uuid.New(),
		UserID:      userID,
		URL:         rawURL,
		Title:       title,
		Content:     ex.Content,
		Description: strings.TrimSpace(ex.Description),
		Tags:        NormalizeTags(tags),
		SyncStatus:  SyncNotSynced,
		CreatedAt:   time.Now().UTC(),
	}
}

// NormalizeTags trims tags, drops empty ones and removes duplicates while
// keeping first-seen order. It never returns nil.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func fallbackTitle(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return rawURL
	}
	return u.Hostname()
}
