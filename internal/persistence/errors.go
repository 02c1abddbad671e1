package persistence

import "errors"

// ErrNotFound is returned by mutating operations that target a missing
// record. Lookup methods return nil without error instead.
var ErrNotFound = errors.New("persistence: record not found")
