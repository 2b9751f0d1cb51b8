package session

import "errors"

// Pagination limits for message and session listing.
const (
	// DefaultListLimit is the default page size.
	DefaultListLimit int32 = 100

	// MaxListLimit is the absolute maximum page size to prevent OOM.
	MaxListLimit int32 = 10000
)

// Sentinel errors for session operations, checked with errors.Is().
var (
	// ErrSessionNotFound indicates the requested session does not exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidRole indicates a message role outside the known set.
	ErrInvalidRole = errors.New("invalid message role")
)

// NormalizeListLimit clamps a page size to the allowed range. Zero or
// negative values fall back to the default.
func NormalizeListLimit(limit int32) int32 {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
