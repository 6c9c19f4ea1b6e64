package taglog

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidQuery is returned when a query names more than one tag or
	// tagging attribute, or has a negative limit.
	ErrInvalidQuery = errors.New("taglog: invalid query")
	// ErrInvalidTag rejects empty tags and the reserved flow names.
	ErrInvalidTag = errors.New("taglog: invalid tag")
	// ErrCorruptRecord marks a stored body that does not decode.
	ErrCorruptRecord = errors.New("taglog: corrupt record")
	// ErrSubscriptionClosed is returned by Next once the subscription is closed.
	ErrSubscriptionClosed = errors.New("taglog: subscription closed")
)

// ArchiveError reports a record a sweep could not remove: the archiver
// failed, or the body is corrupt (wrapping ErrCorruptRecord). The record is
// left in place for a later sweep.
type ArchiveError struct {
	ID  uint64
	Err error
}

func (e *ArchiveError) Error() string {
	return fmt.Sprintf("taglog: archive record %d: %v", e.ID, e.Err)
}

func (e *ArchiveError) Unwrap() error { return e.Err }
