package extract

import (
	"fmt"
	"net/url"
	"strings"
)

// StrategyKind selects how a URL is turned into an article.
type StrategyKind int

const (
	KindDocument StrategyKind = iota
	KindVideo
)

func (k StrategyKind) String() string {
	if k == KindVideo {
		return "video"
	}
	return "document"
}

// Strategy is the result of classifying a URL. VideoID is set only for
// KindVideo.
type Strategy struct {
	Kind    StrategyKind
	VideoID string
}

// ParseURL validates rawURL as an absolute http(s) URL.
func ParseURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	return u, nil
}

// Classify decides the extraction strategy for u. YouTube hosts are
// videos; everything else is a generic document.
func Classify(u *url.URL) (Strategy, error) {
	host := strings.ToLower(u.Hostname())
	if !strings.Contains(host, "youtube.com") && !strings.Contains(host, "youtu.be") {
		return Strategy{Kind: KindDocument}, nil
	}
	id, err := VideoID(u)
	if err != nil {
		return Strategy{}, err
	}
	return Strategy{Kind: KindVideo, VideoID: id}, nil
}

// VideoID extracts the video identifier from a YouTube URL: the first path
// segment on the short host, the "v" query parameter otherwise.
func VideoID(u *url.URL) (string, error) {
	var id string
	if strings.Contains(strings.ToLower(u.Hostname()), "youtu.be") {
		id, _, _ = strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
	} else {
		id = u.Query().Get("v")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("%w: %s", ErrInvalidVideoURL, u)
	}
	return id, nil
}
