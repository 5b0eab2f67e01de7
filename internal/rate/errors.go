package rate

import "errors"

var (
	// ErrRateLimited is returned once an email or IP exhausted its attempts.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps Redis command failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
