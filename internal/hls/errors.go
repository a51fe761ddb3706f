package hls

import "fmt"

// ManifestFetchError means the root playlist could not be fetched.
type ManifestFetchError struct {
	URL string
	Err error
}

func (e *ManifestFetchError) Error() string {
	return fmt.Sprintf("fetching playlist %s: %v", e.URL, e.Err)
}

func (e *ManifestFetchError) Unwrap() error { return e.Err }

// ManifestParseError means a fetched body is not an HLS playlist.
type ManifestParseError struct {
	URL string
	Err error
}

func (e *ManifestParseError) Error() string {
	return fmt.Sprintf("parsing playlist %s: %v", e.URL, e.Err)
}

func (e *ManifestParseError) Unwrap() error { return e.Err }
