package model

import "errors"

var (
	// ErrAmbiguousResolution marks a draft with multiple equally plausible
	// matches; it needs human review before merging.
	ErrAmbiguousResolution = errors.New("ambiguous resolution")

	// ErrDanglingEndpoint marks a relationship draft whose endpoint never
	// resolved to an entity.
	ErrDanglingEndpoint = errors.New("relationship endpoint does not resolve")

	// ErrResolutionFailed is returned when optimistic-concurrency retries are
	// exhausted.
	ErrResolutionFailed = errors.New("resolution failed after retries")
)
