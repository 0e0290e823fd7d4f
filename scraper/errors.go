package scraper

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNetwork          = errors.New("network error")
	ErrSoftBlock        = errors.New("soft block")
	ErrUnexpectedStatus = errors.New("unexpected status")
	ErrParse            = errors.New("parse error")
	ErrZeroResults      = errors.New("zero results")
	ErrPersistence      = errors.New("persistence error")
	ErrTimeout          = errors.New("source timed out")
	ErrSuspended        = errors.New("source suspended")
)

// FetchError describes a failed page fetch. It matches both its Kind and its
// cause with errors.Is.
type FetchError struct {
	URL        string
	StatusCode int
	Kind       error
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("%v: %s returned %d", e.Kind, e.URL, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%v: %s: %v", e.Kind, e.URL, e.Err)
	default:
		return fmt.Sprintf("%v: %s", e.Kind, e.URL)
	}
}

func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// IsRetryable reports whether another attempt could help. Only network level
// failures qualify; a soft block is never retried within the same fetch.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNetwork) && !errors.Is(err, ErrSoftBlock)
}

// Kind maps err to a short label used in error manifests.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSuspended):
		return "suspended"
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrSoftBlock):
		return "soft_block"
	case errors.Is(err, ErrUnexpectedStatus):
		return "unexpected_status"
	case errors.Is(err, ErrNetwork):
		return "network"
	case errors.Is(err, ErrParse):
		return "parse"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "internal"
	}
}
