package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"readmark/internal/model"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// HybridStore combines Redis (metadata, highlights, indexes) and Badger
// (article content).
type HybridStore struct {
	rdb *redis.Client
	db  *badger.DB
}

// NewHybridStore initializes databases.
// Pass badgerPath="" to run in "Redis-Only" mode (for CLI tools that only
// read metadata or enqueue jobs).
func NewHybridStore(redisAddr string, badgerPath string) (*HybridStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	var db *badger.DB
	if badgerPath != "" {
		opts := badger.DefaultOptions(badgerPath)
		opts.Logger = nil // Silence default logger
		var err error
		db, err = badger.Open(opts)
		if err != nil {
			rdb.Close()
			return nil, fmt.Errorf("failed to open badger: %w", err)
		}
	}

	return &HybridStore{rdb: rdb, db: db}, nil
}

// Redis exposes the client so the queue can share the connection.
func (s *HybridStore) Redis() *redis.Client {
	return s.rdb
}

// Close cleans up connections
func (s *HybridStore) Close() error {
	var errs []error
	if s.rdb != nil {
		errs = append(errs, s.rdb.Close())
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	return errors.Join(errs...)
}

func articleKey(id uuid.UUID) string           { return "article:" + id.String() }
func articleHighlightsKey(id uuid.UUID) string { return "article:" + id.String() + ":highlights" }
func highlightKey(id uuid.UUID) string         { return "highlight:" + id.String() }
func userArticlesKey(userID string) string     { return "user:" + userID + ":articles" }
func contentKey(id uuid.UUID) []byte           { return []byte("content:" + id.String()) }

// CreateArticle writes content to Badger first, then metadata to Redis, so
// a failure never leaves metadata pointing at missing content.
func (s *HybridStore) CreateArticle(ctx context.Context, article *model.Article) error {
	meta := *article
	meta.Content = ""
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}

	if article.Content != "" {
		if s.db == nil {
			return fmt.Errorf("cannot save content: badgerdb is not initialized")
		}
		err = s.db.Update(func(txn *badger.Txn) error {
			return txn.Set(contentKey(article.ID), []byte(article.Content))
		})
		if err != nil {
			return fmt.Errorf("save content: %w", err)
		}
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, articleKey(article.ID), data, 0)
	pipe.LPush(ctx, userArticlesKey(article.UserID), article.ID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		if article.Content != "" {
			_ = s.db.Update(func(txn *badger.Txn) error {
				return txn.Delete(contentKey(article.ID))
			})
		}
		return fmt.Errorf("save metadata: %w", err)
	}
	return nil
}

func (s *HybridStore) getMeta(ctx context.Context, id uuid.UUID) (*model.Article, error) {
	val, err := s.rdb.Get(ctx, articleKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}

	var article model.Article
	if err := json.Unmarshal(val, &article); err != nil {
		return nil, err
	}
	return &article, nil
}

// GetArticle combines data: Metadata from Redis + Content from Badger
func (s *HybridStore) GetArticle(ctx context.Context, id uuid.UUID) (*model.Article, error) {
	article, err := s.getMeta(ctx, id)
	if err != nil {
		return nil, err
	}

	// Content is only available when Badger is configured
	if s.db != nil {
		err = s.db.View(func(txn *badger.Txn) error {
			item, err := txn.Get(contentKey(id))
			if err != nil {
				return err
			}
			return item.Value(func(val []byte) error {
				article.Content = string(val)
				return nil
			})
		})
		if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return nil, err
		}
	}

	return article, nil
}

// ListArticles returns the user's articles newest first, without content.
func (s *HybridStore) ListArticles(ctx context.Context, userID string, limit int) ([]model.Article, error) {
	ids, err := s.rdb.LRange(ctx, userArticlesKey(userID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []model.Article{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = "article:" + id
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	articles := make([]model.Article, 0, len(vals))
	for _, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var a model.Article
		if err := json.Unmarshal([]byte(str), &a); err == nil {
			articles = append(articles, a)
		}
	}
	return articles, nil
}

// UpdateArticle replaces the article metadata. Content in Badger is left
// as it was written at creation.
func (s *HybridStore) UpdateArticle(ctx context.Context, article *model.Article) error {
	meta := *article
	meta.Content = ""
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	ok, err := s.rdb.SetXX(ctx, articleKey(article.ID), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// DeleteArticle removes the article, its content and all its highlights.
func (s *HybridStore) DeleteArticle(ctx context.Context, id uuid.UUID) error {
	article, err := s.getMeta(ctx, id)
	if err != nil {
		return err
	}
	// A highlight added after SMEMBERS aborts the transaction and the
	// member list is read again.
	err = s.watch(ctx, func(tx *redis.Tx) error {
		hids, err := tx.SMembers(ctx, articleHighlightsKey(id)).Result()
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, articleKey(id), articleHighlightsKey(id))
			pipe.LRem(ctx, userArticlesKey(article.UserID), 0, id.String())
			for _, hid := range hids {
				pipe.Del(ctx, "highlight:"+hid)
			}
			return nil
		})
		return err
	}, articleKey(id), articleHighlightsKey(id))
	if err != nil {
		return err
	}

	if s.db != nil {
		err = s.db.Update(func(txn *badger.Txn) error {
			return txn.Delete(contentKey(id))
		})
		if err != nil {
			return fmt.Errorf("delete content: %w", err)
		}
	}
	return nil
}

// CreateHighlight stores h and indexes it under its article. The write
// only commits if the article still exists.
func (s *HybridStore) CreateHighlight(ctx context.Context, h *model.Highlight) error {
	data, err := json.Marshal(h)
	if err != nil {
		return err
	}
	return s.watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, articleKey(h.ArticleID)).Result()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, highlightKey(h.ID), data, 0)
			pipe.SAdd(ctx, articleHighlightsKey(h.ArticleID), h.ID.String())
			return nil
		})
		return err
	}, articleKey(h.ArticleID))
}

const maxTxRetries = 16

// watch runs fn under WATCH on keys, retrying when another client
// touched them before EXEC.
func (s *HybridStore) watch(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error {
	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, fn, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return fmt.Errorf("watch %v: %w", keys, redis.TxFailedErr)
}

func (s *HybridStore) GetHighlight(ctx context.Context, id uuid.UUID) (*model.Highlight, error) {
	val, err := s.rdb.Get(ctx, highlightKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	var h model.Highlight
	if err := json.Unmarshal(val, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// ListHighlights returns the article's highlights ordered by start offset.
func (s *HybridStore) ListHighlights(ctx context.Context, articleID uuid.UUID) ([]model.Highlight, error) {
	ids, err := s.rdb.SMembers(ctx, articleHighlightsKey(articleID)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]model.Highlight, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = "highlight:" + id
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for _, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var h model.Highlight
		if err := json.Unmarshal([]byte(str), &h); err == nil {
			out = append(out, h)
		}
	}
	sortHighlights(out)
	return out, nil
}

func (s *HybridStore) UpdateHighlight(ctx context.Context, h *model.Highlight) error {
	data, err := json.Marshal(h)
	if err != nil {
		return err
	}
	ok, err := s.rdb.SetXX(ctx, highlightKey(h.ID), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// DeleteHighlight removes one highlight; the article is untouched.
func (s *HybridStore) DeleteHighlight(ctx context.Context, id uuid.UUID) error {
	h, err := s.GetHighlight(ctx, id)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, highlightKey(id))
	pipe.SRem(ctx, articleHighlightsKey(h.ArticleID), id.String())
	_, err = pipe.Exec(ctx)
	return err
}

// RunGC reclaims Badger value log space every interval until ctx is done.
// Without Badger it just waits for ctx.
func (s *HybridStore) RunGC(ctx context.Context, interval time.Duration, discardRatio float64, logger *zap.Logger) error {
	if s.db == nil || interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			rewrites := 0
			for {
				err := s.db.RunValueLogGC(discardRatio)
				if err != nil {
					if !errors.Is(err, badger.ErrNoRewrite) {
						logger.Warn("Value log GC failed", zap.Error(err))
					}
					break
				}
				rewrites++
			}
			if rewrites > 0 {
				logger.Debug("Value log GC complete", zap.Int("rewrites", rewrites))
			}
		}
	}
}
