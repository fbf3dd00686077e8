package appointments

import "errors"

var (
	// ErrAppointmentNotFound is returned when no appointment matches the lookup
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrIllegalTransition is returned when a status change is not allowed from the current status
	ErrIllegalTransition = errors.New("status transition not allowed")

	ErrNameRequired      = errors.New("name is required")
	ErrEmailRequired     = errors.New("email is required")
	ErrPhoneRequired     = errors.New("phone is required")
	ErrInvalidEmail      = errors.New("email is invalid")
	ErrInvalidPhone      = errors.New("phone must have at least 10 characters")
	ErrInvalidTime       = errors.New("time must be HH:MM in 24 hour format")
	ErrInvalidDate       = errors.New("date must be YYYY-MM-DD")
	ErrInvalidStatus     = errors.New("status is invalid")
	ErrInvalidType       = errors.New("appointment type is invalid")
	ErrScheduleRequired  = errors.New("scheduled appointments need both date and time")
	ErrScheduleOnPending = errors.New("pending appointments cannot carry a date or time")
)
