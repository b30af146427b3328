package extract

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"readmark/internal/metrics"

	"go.uber.org/zap"
)

// PageFetcher retrieves raw page bytes.
type PageFetcher interface {
	Fetch(ctx context.Context, u *url.URL) ([]byte, error)
}

// VideoSource produces articles for classified video URLs.
type VideoSource interface {
	Extract(ctx context.Context, u *url.URL, videoID string) (*Result, error)
}

// Extractor runs the full pipeline: validate, classify, then fetch and
// extract with the matching strategy.
type Extractor struct {
	fetcher  PageFetcher
	document DocumentExtractor
	video    VideoSource
	logger   *zap.Logger
}

// NewExtractor wires an Extractor from its collaborators.
func NewExtractor(fetcher PageFetcher, document DocumentExtractor, video VideoSource, logger *zap.Logger) *Extractor {
	return &Extractor{
		fetcher:  fetcher,
		document: document,
		video:    video,
		logger:   logger,
	}
}

// Extract turns rawURL into article fields. It writes nothing; callers
// persist only on success.
func (e *Extractor) Extract(ctx context.Context, rawURL string) (*Result, error) {
	u, err := ParseURL(rawURL)
	if err != nil {
		return nil, err
	}

	strategy, err := Classify(u)
	if err != nil {
		metrics.RecordExtraction(KindVideo.String(), Kind(err), 0)
		return nil, err
	}

	logger := e.logger.With(zap.String("url", u.String()), zap.Stringer("strategy", strategy.Kind))
	start := time.Now()

	res, err := e.run(ctx, u, strategy)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		metrics.RecordExtraction(strategy.Kind.String(), Kind(err), elapsed)
		logger.Warn("Extraction failed", zap.String("kind", Kind(err)), zap.Error(err))
		return nil, err
	}

	metrics.RecordExtraction(strategy.Kind.String(), "ok", elapsed)
	logger.Debug("Extraction complete", zap.String("title", res.Title), zap.Int("content_bytes", len(res.Content)))
	return res, nil
}

func (e *Extractor) run(ctx context.Context, u *url.URL, strategy Strategy) (*Result, error) {
	switch strategy.Kind {
	case KindVideo:
		return e.video.Extract(ctx, u, strategy.VideoID)
	case KindDocument:
		body, err := e.fetcher.Fetch(ctx, u)
		if err != nil {
			return nil, err
		}
		return e.document.ExtractDocument(body, u)
	}
	return nil, fmt.Errorf("unknown strategy %d", strategy.Kind)
}
