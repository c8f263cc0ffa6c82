package types

import "errors"

// Error kinds from spec §7. NotFound is returned as an absent result by
// get/remove and is not meant to be raised by callers that check it with
// errors.Is; the rest propagate and trigger rollback in the durability
// adapter.
var (
	ErrNotFound        = errors.New("sbtree: key not found")
	ErrEntryTooLarge   = errors.New("sbtree: entry exceeds MAX_ENTRY_SIZE")
	ErrRegionFull      = errors.New("sbtree: bucket region full")
	ErrUnsupported     = errors.New("sbtree: unsupported operation")
	ErrIO              = errors.New("sbtree: io failure")
	ErrStateViolation  = errors.New("sbtree: storage state violation")
)

// MaxEntrySize is the fixed per-entry ceiling from spec §6.
const MaxEntrySize = 24_576_000
