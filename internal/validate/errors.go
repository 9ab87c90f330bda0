package validate

import "errors"

var (
	// ErrInvalidNickname is returned when a nickname does not match the
	// 1-64 char alphanumeric+hyphen+underscore format (§3 PeerRecord).
	ErrInvalidNickname = errors.New("invalid nickname")

	// ErrInvalidMultiaddr is returned when a transport address string
	// does not look like a multi-address (§3 PeerRecord, GLOSSARY).
	ErrInvalidMultiaddr = errors.New("invalid multiaddr")
)
