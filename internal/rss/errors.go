package rss

import (
	"errors"
	"fmt"
)

var (
	// ErrFetch is matched by every *FetchError.
	ErrFetch = errors.New("feed fetch failed")
	// ErrParse is matched by every *ParseError.
	ErrParse = errors.New("feed parse failed")
	// ErrInvalidURL is matched by every *ArgumentError.
	ErrInvalidURL = errors.New("invalid feed URL")
)

// FetchError reports that a feed could not be retrieved: network, HTTP status,
// timeout or cancellation.
type FetchError struct {
	URL        string
	StatusCode int // non-zero for HTTP status failures
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: http status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == ErrFetch }

// ParseError reports that the retrieved content is not a valid feed.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrParse }

// ArgumentError reports a malformed feed URL.
type ArgumentError struct {
	URL    string
	Reason string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("%v %q: %s", ErrInvalidURL, e.URL, e.Reason)
}

func (e *ArgumentError) Is(target error) bool { return target == ErrInvalidURL }

// IsSourceError reports whether err came from fetching, parsing or URL validation.
func IsSourceError(err error) bool {
	return errors.Is(err, ErrFetch) || errors.Is(err, ErrParse) || errors.Is(err, ErrInvalidURL)
}
