package patients

import (
	"regexp"
	"strings"
	"time"
)

// Gender is the self-reported gender stored on a patient record.
type Gender string

const (
	GenderMale   Gender = "Male"
	GenderFemale Gender = "Female"
	GenderOther  Gender = "Other"
)

// Valid reports whether g is one of the accepted values. Empty is valid (unset).
func (g Gender) Valid() bool {
	switch g {
	case "", GenderMale, GenderFemale, GenderOther:
		return true
	}
	return false
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidEmail reports whether email looks like a deliverable address.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// MedicineTimings marks which parts of the day a medicine is taken.
type MedicineTimings struct {
	Morning   bool `json:"morning"`
	Afternoon bool `json:"afternoon"`
	Evening   bool `json:"evening"`
}

// Medicine is one line of a prescription.
type Medicine struct {
	Name    string          `json:"name"`
	Timings MedicineTimings `json:"timings"`
}

// Prescription is attached to a visit when the doctor prescribes medication.
type Prescription struct {
	StartDate       *time.Time `json:"startDate,omitempty"`
	EndDate         *time.Time `json:"endDate,omitempty"`
	Medicines       []Medicine `json:"medicines"`
	RevisitRequired bool       `json:"revisitRequired"`
}

// Visit records a single consultation. Visits are owned by their patient.
type Visit struct {
	ID           string        `json:"id"`
	PatientID    string        `json:"-"`
	Date         time.Time     `json:"date"`
	Problem      string        `json:"problem"`
	Diagnosis    string        `json:"diagnosis"`
	Prescription *Prescription `json:"prescription,omitempty"`
	CreatedBy    string        `json:"createdBy,omitempty"`
}

// Patient is a person known to the clinic. Patients are never deleted.
type Patient struct {
	ID          string    `json:"id"`
	FullName    string    `json:"fullName"`
	Phone       string    `json:"phone"`
	Email       string    `json:"email,omitempty"`
	Age         *int      `json:"age,omitempty"`
	Gender      Gender    `json:"gender,omitempty"`
	Address     string    `json:"address,omitempty"`
	OnboardedAt time.Time `json:"onboardedAt"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	Visits      []Visit `json:"visits,omitempty"`
	TotalVisits int     `json:"totalVisits,omitempty"`
}

// CreatePatientRequest is the payload for registering a patient from the dashboard.
type CreatePatientRequest struct {
	FullName string `json:"fullName"`
	Phone    string `json:"phone"`
	Email    string `json:"email,omitempty"`
	Age      *int   `json:"age,omitempty"`
	Gender   Gender `json:"gender,omitempty"`
	Address  string `json:"address,omitempty"`
}

// Normalize trims strings and lower-cases the email in place.
func (r *CreatePatientRequest) Normalize() {
	r.FullName = strings.TrimSpace(r.FullName)
	r.Phone = strings.TrimSpace(r.Phone)
	r.Email = NormalizeEmail(r.Email)
	r.Address = strings.TrimSpace(r.Address)
}

// Validate checks required fields and value ranges.
func (r *CreatePatientRequest) Validate() error {
	if r.FullName == "" {
		return ErrFullNameRequired
	}
	if r.Phone == "" {
		return ErrPhoneRequired
	}
	if r.Email != "" && !ValidEmail(r.Email) {
		return ErrInvalidEmail
	}
	if err := ValidateAge(r.Age); err != nil {
		return err
	}
	if !r.Gender.Valid() {
		return ErrInvalidGender
	}
	return nil
}

// ValidateAge accepts nil or a value in 1..150.
func ValidateAge(age *int) error {
	if age != nil && (*age < 1 || *age > 150) {
		return ErrInvalidAge
	}
	return nil
}

// UpdatePatientRequest changes only the fields that are set.
type UpdatePatientRequest struct {
	FullName *string `json:"fullName,omitempty"`
	Phone    *string `json:"phone,omitempty"`
	Email    *string `json:"email,omitempty"`
	Age      *int    `json:"age,omitempty"`
	Gender   *Gender `json:"gender,omitempty"`
	Address  *string `json:"address,omitempty"`
}

// Apply copies set fields onto p after normalizing them.
func (r *UpdatePatientRequest) Apply(p *Patient) error {
	if r.FullName != nil {
		name := strings.TrimSpace(*r.FullName)
		if name == "" {
			return ErrFullNameRequired
		}
		p.FullName = name
	}
	if r.Phone != nil {
		phone := strings.TrimSpace(*r.Phone)
		if phone == "" {
			return ErrPhoneRequired
		}
		p.Phone = phone
	}
	if r.Email != nil {
		email := NormalizeEmail(*r.Email)
		if email != "" && !ValidEmail(email) {
			return ErrInvalidEmail
		}
		p.Email = email
	}
	if r.Age != nil {
		if err := ValidateAge(r.Age); err != nil {
			return err
		}
		age := *r.Age
		p.Age = &age
	}
	if r.Gender != nil {
		if !r.Gender.Valid() {
			return ErrInvalidGender
		}
		p.Gender = *r.Gender
	}
	if r.Address != nil {
		p.Address = strings.TrimSpace(*r.Address)
	}
	return nil
}

// AddVisitRequest records a consultation against an existing patient.
type AddVisitRequest struct {
	Problem      string        `json:"problem"`
	Diagnosis    string        `json:"diagnosis"`
	Prescription *Prescription `json:"prescription,omitempty"`
}

// Validate requires problem and diagnosis.
func (r *AddVisitRequest) Validate() error {
	if strings.TrimSpace(r.Problem) == "" {
		return ErrProblemRequired
	}
	if strings.TrimSpace(r.Diagnosis) == "" {
		return ErrDiagnosisRequired
	}
	return nil
}

// ListFilter pages through patients, optionally narrowed by a search term
// matched against name, email and phone.
type ListFilter struct {
	Search string
	Page   int
	Limit  int
}

func (f ListFilter) normalized() ListFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = 10
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	f.Search = strings.TrimSpace(f.Search)
	return f
}

// Offset returns the row offset for the filter's page.
func (f ListFilter) Offset() int {
	f = f.normalized()
	return (f.Page - 1) * f.Limit
}
