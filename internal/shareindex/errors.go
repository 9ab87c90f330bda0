package shareindex

import "errors"

var (
	// ErrNotFound is returned when a share-code has no matching entry.
	ErrNotFound = errors.New("shareindex: share-code not found")
	// ErrRevoked is returned when a share-code refers to an entry that
	// has since been unshared.
	ErrRevoked = errors.New("shareindex: share-code revoked")
)
