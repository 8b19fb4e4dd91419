// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates the entity is in a state that forbids the operation.
var ErrConflict = errors.New("conflict")

// ErrValidation indicates malformed or unsafe caller input.
var ErrValidation = errors.New("validation failed")

// ErrNotReady indicates a runtime operation against a session that is not READY.
var ErrNotReady = errors.New("session is not ready")

// ErrRateLimited indicates the per-session request budget is exhausted.
var ErrRateLimited = errors.New("rate limit exceeded")

// ErrCommandFailed indicates a container or git command exited nonzero
// during a synchronous runtime operation. The wrapped message is sanitized.
var ErrCommandFailed = errors.New("command failed")

// ErrUnavailable indicates a dependency (queue, provider API) is unavailable.
var ErrUnavailable = errors.New("unavailable")
