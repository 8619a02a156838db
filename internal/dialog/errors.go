package dialog

import "errors"

var (
	ErrExtractionFailed    = errors.New("extraction failed")
	ErrExtractionAmbiguous = errors.New("extraction result below usable confidence")
	ErrValidation          = errors.New("invalid expense fields")
	ErrCommitFailed        = errors.New("commit failed")
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionExpired      = errors.New("session expired")
)
