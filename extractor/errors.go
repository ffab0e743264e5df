package extractor

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidURL marks input rejected before any network call.
	ErrInvalidURL = errors.New("invalid url")

	// ErrNotMedia marks a fetched body that turned out to be an HTML
	// document (login page, error page) instead of real content.
	ErrNotMedia = errors.New("content is not media")

	// ErrNoMediaFound is returned once every resolution strategy is exhausted.
	ErrNoMediaFound = errors.New("no supported media found")
)

// OversizeError reports a transfer that exceeded the byte ceiling, either
// up front (declared Content-Length) or mid-stream.
type OversizeError struct {
	Size  int64 // bytes observed so far; may be partial when the transfer was aborted
	Limit int64
}

func (e *OversizeError) Error() string {
	return fmt.Sprintf("file too large: %d bytes (max %d)", e.Size, e.Limit)
}
