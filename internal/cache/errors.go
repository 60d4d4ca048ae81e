package cache

import "errors"

// Error taxonomy for the cache client (§4.1/§7).
var (
	ErrCommandFailed = errors.New("cache: command failed")
	ErrTypeMismatch  = errors.New("cache: stored value has an unexpected type")
	ErrProbeFailed   = errors.New("cache: readiness probe failed")
)
