package appointments

import (
	"regexp"
	"strings"
	"time"
)

// Status is the lifecycle position of an appointment.
type Status string

const (
	StatusPending   Status = "pending"
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusScheduled, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Type classifies the visit being booked.
type Type string

const (
	TypeNew          Type = "new"
	TypeFollowUp     Type = "follow-up"
	TypeConsultation Type = "consultation"
)

func (t Type) Valid() bool {
	switch t {
	case TypeNew, TypeFollowUp, TypeConsultation:
		return true
	}
	return false
}

// Source records where an appointment was created.
type Source string

const (
	SourcePublic    Source = "public"
	SourceDashboard Source = "dashboard"
)

// PatientInfo is a copy of the patient's contact details taken at booking
// time. Later patient edits do not flow back into it.
type PatientInfo struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Appointment is a request for, or a confirmed, slot with the doctor.
//
// Date and Time are both unset while the appointment is pending and both set
// once it has been scheduled.
type Appointment struct {
	ID               string      `json:"id"`
	PatientID        string      `json:"patientId,omitempty"`
	PatientInfo      PatientInfo `json:"patientInfo"`
	Message          string      `json:"message,omitempty"`
	Status           Status      `json:"status"`
	Date             *time.Time  `json:"date,omitempty"`
	Time             string      `json:"time,omitempty"`
	Type             Type        `json:"type"`
	Notes            string      `json:"notes,omitempty"`
	ExternalEventID  string      `json:"calendlyEventId,omitempty"`
	CorrelationToken string      `json:"-"`
	Source           Source      `json:"source"`
	CreatedAt        time.Time   `json:"createdAt"`
	UpdatedAt        time.Time   `json:"updatedAt"`
}

// HasSchedule reports whether both date and time are set.
func (a *Appointment) HasSchedule() bool {
	return a.Date != nil && a.Time != ""
}

// CheckSchedule enforces the pending/date-time pairing. A cancelled
// appointment keeps whatever schedule it had, which is none when the request
// was cancelled while still pending.
func (a *Appointment) CheckSchedule() error {
	switch a.Status {
	case StatusPending:
		if a.Date != nil || a.Time != "" {
			return ErrScheduleOnPending
		}
		return nil
	case StatusCancelled:
		if a.Date == nil && a.Time == "" {
			return nil
		}
	}
	if !a.HasSchedule() {
		return ErrScheduleRequired
	}
	return nil
}

// Clone returns a deep copy.
func (a *Appointment) Clone() *Appointment {
	if a == nil {
		return nil
	}
	cp := *a
	if a.Date != nil {
		d := *a.Date
		cp.Date = &d
	}
	return &cp
}

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	timePattern  = regexp.MustCompile(`^([0-1]?[0-9]|2[0-3]):[0-5][0-9]$`)
)

// ValidTime reports whether s is a 24 hour HH:MM value.
func ValidTime(s string) bool {
	return timePattern.MatchString(s)
}

// FormatClock renders t as HH:MM in loc.
func FormatClock(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("15:04")
}

// BookingRequest is the public booking form.
type BookingRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Message string `json:"message,omitempty"`
	Age     *int   `json:"age,omitempty"`
	Gender  string `json:"gender,omitempty"`
	Address string `json:"address,omitempty"`
}

// Normalize trims every field and lower-cases the email.
func (r *BookingRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Phone = strings.TrimSpace(r.Phone)
	r.Message = strings.TrimSpace(r.Message)
	r.Gender = strings.TrimSpace(r.Gender)
	r.Address = strings.TrimSpace(r.Address)
}

// Validate checks the booking form. Call Normalize first.
func (r *BookingRequest) Validate() error {
	switch {
	case r.Name == "":
		return ErrNameRequired
	case r.Email == "":
		return ErrEmailRequired
	case r.Phone == "":
		return ErrPhoneRequired
	case !emailPattern.MatchString(r.Email):
		return ErrInvalidEmail
	case len(r.Phone) < 10:
		return ErrInvalidPhone
	}
	return nil
}

// BookingResult is returned to the public form after a successful request.
type BookingResult struct {
	SchedulingLink string `json:"calendlyLink"`
	PatientID      string `json:"patientId"`
	AppointmentID  string `json:"appointmentId"`
	// LinkFallback is true when the direct booking URL was used instead of a
	// one-time link.
	LinkFallback bool `json:"-"`
}

// CreateRequest books a confirmed slot from the dashboard.
type CreateRequest struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone"`
	Date  string `json:"date"`
	Time  string `json:"time"`
	Type  Type   `json:"type,omitempty"`
	Notes string `json:"notes,omitempty"`
}

// UpdateRequest is a partial update from the dashboard. Only set fields change.
type UpdateRequest struct {
	Status *Status `json:"status,omitempty"`
	Notes  *string `json:"notes,omitempty"`
	Date   *string `json:"date,omitempty"`
	Time   *string `json:"time,omitempty"`
}

// ListFilter narrows an appointment listing. From/To bound the appointment
// date as a half-open range.
type ListFilter struct {
	From   *time.Time
	To     *time.Time
	Status Status
	Offset int
	Limit  int
}

// NormalizeClock validates s and zero-pads the hour so values sort as text.
func NormalizeClock(s string) (string, error) {
	s = strings.TrimSpace(s)
	if !ValidTime(s) {
		return "", ErrInvalidTime
	}
	if len(s) == 4 {
		s = "0" + s
	}
	return s, nil
}
