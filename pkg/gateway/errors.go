package gateway

import (
	"errors"
	"fmt"
)

// Sentinel errors for the block classes a source can respond with.
// Adapters and the engine test for these with errors.Is.
var (
	// ErrBlocked means the source answered 403
	ErrBlocked = errors.New("blocked")
	// ErrRateLimited means the source answered 429
	ErrRateLimited = errors.New("rate limited")
	// ErrCaptcha means the response body carried a CAPTCHA or challenge page
	ErrCaptcha = errors.New("captcha detected")
	// ErrCircuitOpen means the source breaker tripped and requests are
	// being rejected locally
	ErrCircuitOpen = errors.New("circuit open")
)

// FetchError is a classified gateway failure for one request
type FetchError struct {
	Source string
	URL    string
	Status int
	Kind   error
}

func (e *FetchError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: %v (status %d)", e.Source, e.Kind, e.Status)
	}
	return fmt.Sprintf("%s: %v", e.Source, e.Kind)
}

func (e *FetchError) Unwrap() error {
	return e.Kind
}

// IsBlock reports whether an error is any of the block classes
// (403, 429, or CAPTCHA)
func IsBlock(err error) bool {
	return errors.Is(err, ErrBlocked) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrCaptcha)
}
