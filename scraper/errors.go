package scraper

import (
	"errors"
	"fmt"
)

// Source-level failures. Record-level problems (validation, persistence)
// never surface as errors here; they are absorbed into run counters.
var (
	// ErrChallenge marks an anti-bot pushback: rate-limit status, CAPTCHA
	// markers, or an unexpected redirect to a challenge page.
	ErrChallenge = errors.New("anti-bot challenge detected")

	// ErrStructuralFailure marks a non-empty page from which no records
	// could be extracted; the site's markup has likely changed and the
	// source is aborted for the run pending human review.
	ErrStructuralFailure = errors.New("no listings extracted from non-empty page")

	// ErrRunLocked means another run of the same job holds the persisted
	// lock and has not crossed the crash-recovery timeout.
	ErrRunLocked = errors.New("run already in progress")
)

// FetchError wraps a transport-level fetch problem (timeout, connection
// failure, unexpected status). Retried up to the configured bound before
// the page is skipped.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
