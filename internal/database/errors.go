package database

import "errors"

// Sentinel errors surfaced by the store services. gorm.ErrRecordNotFound is
// translated at this boundary and never escapes to callers.
var (
	ErrPrinterNotFound  = errors.New("printer not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrGroupNotFound    = errors.New("group not found")
	ErrFirmwareNotFound = errors.New("firmware version not found")
	ErrRolloutNotFound  = errors.New("rollout not found")
	ErrDuplicateVersion = errors.New("firmware version already exists for platform")
	ErrBadTransition    = errors.New("invalid status transition")
)
