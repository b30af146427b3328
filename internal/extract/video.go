package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"net/url"

	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultOEmbedEndpoint = "https://www.youtube.com/oembed"

type oembedResponse struct {
	Title       string `json:"title"`
	AuthorName  string `json:"author_name"`
	Description string `json:"description"`
}

// VideoExtractor builds articles for YouTube videos from oEmbed metadata.
type VideoExtractor struct {
	client   *http.Client
	endpoint string
	cache    *lru.Cache[string, oembedResponse]
}

// NewVideoExtractor creates a VideoExtractor that queries endpoint with
// client. cacheSize <= 0 disables the metadata cache.
func NewVideoExtractor(client *http.Client, endpoint string, cacheSize int) *VideoExtractor {
	if endpoint == "" {
		endpoint = DefaultOEmbedEndpoint
	}
	v := &VideoExtractor{client: client, endpoint: endpoint}
	if cacheSize > 0 {
		v.cache, _ = lru.New[string, oembedResponse](cacheSize)
	}
	return v
}

// Extract fetches metadata for the video at u and synthesizes an embed.
func (v *VideoExtractor) Extract(ctx context.Context, u *url.URL, videoID string) (*Result, error) {
	meta, err := v.metadata(ctx, u.String())
	if err != nil {
		return nil, err
	}
	return &Result{
		Title:       meta.Title,
		Content:     EmbedHTML(videoID, meta.Description),
		Description: meta.Description,
		Strategy:    Strategy{Kind: KindVideo, VideoID: videoID},
	}, nil
}

func (v *VideoExtractor) metadata(ctx context.Context, videoURL string) (oembedResponse, error) {
	if v.cache != nil {
		if meta, ok := v.cache.Get(videoURL); ok {
			return meta, nil
		}
	}

	q := url.Values{}
	q.Set("url", videoURL)
	q.Set("format", "json")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return oembedResponse{}, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return oembedResponse{}, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return oembedResponse{}, fmt.Errorf("%w: %w: HTTP %d", ErrMetadataFetchFailed, ErrFetchFailed, resp.StatusCode)
	}

	var meta oembedResponse
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return oembedResponse{}, fmt.Errorf("%w: %w: decode: %v", ErrMetadataFetchFailed, ErrFetchFailed, err)
	}

	if v.cache != nil {
		v.cache.Add(videoURL, meta)
	}
	return meta, nil
}

// EmbedHTML returns a responsive player for videoID followed by the
// description paragraph.
func EmbedHTML(videoID, description string) string {
	src := "https://www.youtube.com/embed/" + url.PathEscape(videoID)
	return `<div class="video-embed" style="position:relative;padding-bottom:56.25%;height:0;overflow:hidden;">` +
		`<iframe src="` + html.EscapeString(src) + `" style="position:absolute;top:0;left:0;width:100%;height:100%;border:0;" ` +
		`allow="accelerometer; autoplay; clipboard-write; encrypted-media; gyroscope; picture-in-picture" allowfullscreen></iframe>` +
		`</div><p>` + html.EscapeString(description) + `</p>`
}
