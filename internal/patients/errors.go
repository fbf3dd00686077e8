package patients

import "errors"

var (
	// ErrPatientNotFound is returned when no patient matches the lookup
	ErrPatientNotFound = errors.New("patient not found")

	// ErrDuplicatePatient is returned when the email or phone is already on file
	ErrDuplicatePatient = errors.New("patient with this email or phone already exists")

	ErrFullNameRequired  = errors.New("full name is required")
	ErrPhoneRequired     = errors.New("phone is required")
	ErrInvalidAge        = errors.New("age must be between 1 and 150")
	ErrInvalidGender     = errors.New("gender must be Male, Female or Other")
	ErrInvalidEmail      = errors.New("email is invalid")
	ErrProblemRequired   = errors.New("problem is required")
	ErrDiagnosisRequired = errors.New("diagnosis is required")
)
