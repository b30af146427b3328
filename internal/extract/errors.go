package extract

import "errors"

var (
	ErrInvalidURL          = errors.New("invalid url")
	ErrFetchFailed         = errors.New("fetch failed")
	ErrExtractionFailed    = errors.New("could not parse article content")
	ErrInvalidVideoURL     = errors.New("invalid video url")
	ErrMetadataFetchFailed = errors.New("video metadata fetch failed")
)

// Kind returns the taxonomy name of an extraction error, or "" when err
// is not one of this package's errors.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidURL):
		return "InvalidUrl"
	case errors.Is(err, ErrInvalidVideoURL):
		return "InvalidVideoUrl"
	case errors.Is(err, ErrMetadataFetchFailed):
		return "MetadataFetchFailed"
	case errors.Is(err, ErrFetchFailed):
		return "FetchFailed"
	case errors.Is(err, ErrExtractionFailed):
		return "ExtractionFailed"
	}
	return ""
}

// Message returns the user facing message for an extraction error.
func Message(err error) string {
	switch Kind(err) {
	case "InvalidUrl":
		return "Please enter a valid URL"
	case "InvalidVideoUrl":
		return "Could not find a video id in the URL"
	case "MetadataFetchFailed":
		return "Could not fetch video details"
	case "FetchFailed":
		return "Could not fetch the page"
	case "ExtractionFailed":
		return "Could not parse article content"
	}
	return "Could not save article"
}
