package credential

import "errors"

var (
	ErrAccountExists    = errors.New("credential: account already exists")
	ErrPhraseInvalid    = errors.New("credential: recovery phrase invalid")
	ErrStoreWriteFailed = errors.New("credential: store write failed")
	ErrStoreReadFailed  = errors.New("credential: store read failed")
	ErrInvalidPassword  = errors.New("credential: invalid password")
	ErrNoAccount        = errors.New("credential: no account present")
)
