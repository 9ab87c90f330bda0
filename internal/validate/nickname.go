package validate

import (
	"fmt"
	"regexp"
)

// nicknameRe matches the §3 PeerRecord nickname format: 1-64 chars,
// alphanumerics plus '-' and '_', never starting or ending with one of
// those two separators.
var nicknameRe = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9_-]{0,62}[a-zA-Z0-9])?$`)

// Nickname checks that a nickname is well-formed.
func Nickname(name string) error {
	if name == "" {
		return fmt.Errorf("%w: nickname cannot be empty", ErrInvalidNickname)
	}
	if len(name) > 64 {
		return fmt.Errorf("%w: %q exceeds 64 characters", ErrInvalidNickname, name)
	}
	if !nicknameRe.MatchString(name) {
		return fmt.Errorf("%w: %q must be 1-64 alphanumeric, '-', or '_' characters, not starting or ending with '-'/'_'", ErrInvalidNickname, name)
	}
	return nil
}
