package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"readmark/internal/model"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps articles and highlights in one SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens or creates the database at path and applies migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Pragmas are per connection.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if err := applyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const articleColumns = `id, user_id, url, title, content, description, tags, notes, archived, read, sync_status, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// timeLayout is fixed width so timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func scanArticle(row rowScanner) (*model.Article, error) {
	var (
		a                  model.Article
		id, tags, created  string
		archived, readFlag bool
	)
	err := row.Scan(&id, &a.UserID, &a.URL, &a.Title, &a.Content, &a.Description,
		&tags, &a.Notes, &archived, &readFlag, &a.SyncStatus, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if a.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse article id: %w", err)
	}
	if err := json.Unmarshal([]byte(tags), &a.Tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	if a.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	a.Archived, a.Read = archived, readFlag
	return &a, nil
}

func (s *SQLiteStore) CreateArticle(ctx context.Context, article *model.Article) error {
	tags, err := json.Marshal(model.NormalizeTags(article.Tags))
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO articles (`+articleColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		article.ID.String(), article.UserID, article.URL, article.Title, article.Content,
		article.Description, string(tags), article.Notes, article.Archived, article.Read,
		article.SyncStatus, formatTime(article.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert article: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetArticle(ctx context.Context, id uuid.UUID) (*model.Article, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+articleColumns+` FROM articles WHERE id = ?`, id.String())
	return scanArticle(row)
}

// ListArticles returns the user's articles newest first. Content is left
// empty, as in list views it is never shown.
func (s *SQLiteStore) ListArticles(ctx context.Context, userID string, limit int) ([]model.Article, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	articles := []model.Article{}
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		a.Content = ""
		articles = append(articles, *a)
	}
	return articles, rows.Err()
}

// UpdateArticle writes the mutable metadata columns. Content and url are
// not part of the statement.
func (s *SQLiteStore) UpdateArticle(ctx context.Context, article *model.Article) error {
	tags, err := json.Marshal(model.NormalizeTags(article.Tags))
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE articles SET title = ?, description = ?, tags = ?, notes = ?, archived = ?, read = ?, sync_status = ?
		 WHERE id = ?`,
		article.Title, article.Description, string(tags), article.Notes, article.Archived,
		article.Read, article.SyncStatus, article.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("update article: %w", err)
	}
	return expectOne(res)
}

// DeleteArticle deletes the article; highlights go with it through the
// foreign key cascade.
func (s *SQLiteStore) DeleteArticle(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM articles WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("delete article: %w", err)
	}
	return expectOne(res)
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const highlightColumns = `id, article_id, user_id, start_offset, end_offset, text, color, note, created_at`

func scanHighlight(row rowScanner) (*model.Highlight, error) {
	var (
		h                        model.Highlight
		id, articleID, color, ts string
	)
	err := row.Scan(&id, &articleID, &h.UserID, &h.StartOffset, &h.EndOffset, &h.Text, &color, &h.Note, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if h.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse highlight id: %w", err)
	}
	if h.ArticleID, err = uuid.Parse(articleID); err != nil {
		return nil, fmt.Errorf("parse article id: %w", err)
	}
	if h.CreatedAt, err = parseTime(ts); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	h.Color = model.Color(color)
	return &h, nil
}

func (s *SQLiteStore) CreateHighlight(ctx context.Context, h *model.Highlight) error {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM articles WHERE id = ?`, h.ArticleID.String()).Scan(&exists)
	if err != nil {
		return err
	}
	if exists == 0 {
		return ErrNotFound
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO highlights (`+highlightColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID.String(), h.ArticleID.String(), h.UserID, h.StartOffset, h.EndOffset,
		h.Text, string(h.Color), h.Note, formatTime(h.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert highlight: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetHighlight(ctx context.Context, id uuid.UUID) (*model.Highlight, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+highlightColumns+` FROM highlights WHERE id = ?`, id.String())
	return scanHighlight(row)
}

func (s *SQLiteStore) ListHighlights(ctx context.Context, articleID uuid.UUID) ([]model.Highlight, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+highlightColumns+` FROM highlights WHERE article_id = ?
		 ORDER BY start_offset, end_offset, created_at, id`,
		articleID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Highlight{}
	for rows.Next() {
		h, err := scanHighlight(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *h)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdateHighlight(ctx context.Context, h *model.Highlight) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE highlights SET start_offset = ?, end_offset = ?, text = ?, color = ?, note = ? WHERE id = ?`,
		h.StartOffset, h.EndOffset, h.Text, string(h.Color), h.Note, h.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("update highlight: %w", err)
	}
	return expectOne(res)
}

func (s *SQLiteStore) DeleteHighlight(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM highlights WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("delete highlight: %w", err)
	}
	return expectOne(res)
}
