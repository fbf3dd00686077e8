package notifications

import (
	"time"

	"github.com/wolfman30/clinic-crm/internal/appointments"
)

// Type classifies a dashboard notification.
type Type string

const (
	TypeNewAppointment         Type = "new_appointment"
	TypeAppointmentConfirmed   Type = "appointment_confirmed"
	TypeAppointmentCancelled   Type = "appointment_cancelled"
	TypeAppointmentRescheduled Type = "appointment_rescheduled"
	TypeSystem                 Type = "system"
)

func (t Type) Valid() bool {
	switch t {
	case TypeNewAppointment, TypeAppointmentConfirmed, TypeAppointmentCancelled, TypeAppointmentRescheduled, TypeSystem:
		return true
	}
	return false
}

// Broadcast event names.
const (
	EventNotification         = "notification"
	EventNotificationRead     = "notification_read"
	EventAllNotificationsRead = "all_notifications_read"
)

// Notification is one entry in the dashboard feed. Message is rendered when
// the notification is created and never recomputed. AppointmentID is a weak
// reference and may point at an appointment that no longer exists.
type Notification struct {
	ID            string    `json:"id"`
	Type          Type      `json:"type"`
	Message       string    `json:"message"`
	AppointmentID string    `json:"appointmentId,omitempty"`
	Read          bool      `json:"read"`
	CreatedAt     time.Time `json:"createdAt"`
}

// View is a notification with its appointment expanded for the dashboard.
type View struct {
	Notification
	Appointment *appointments.Appointment `json:"appointment"`
}

// Page is one List result.
type Page struct {
	Items       []View
	UnreadCount int
}
