package notifications

import "errors"

var (
	// ErrNotificationNotFound is returned when no notification matches the id
	ErrNotificationNotFound = errors.New("notification not found")

	ErrMessageRequired = errors.New("notification message is required")
	ErrInvalidType     = errors.New("notification type is invalid")
)
