package models

import "errors"

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrGpgKeyNotFound       = errors.New("gpg key not found")
	ErrConfirmationNotFound = errors.New("confirmation not found")
	ErrUserBlocked          = errors.New("user is blocked")
)
