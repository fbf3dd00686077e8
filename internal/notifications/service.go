package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-crm/internal/apperr"
	"github.com/wolfman30/clinic-crm/internal/appointments"
	"github.com/wolfman30/clinic-crm/internal/observability/metrics"
	"github.com/wolfman30/clinic-crm/internal/realtime"
	"github.com/wolfman30/clinic-crm/pkg/logging"
)

var tracer = otel.Tracer("clinic.internal.notifications")

const (
	defaultListLimit     = 20
	maxListLimit         = 100
	DefaultRetentionDays = 30
	broadcastTimeout     = 3 * time.Second
)

// AppointmentLookup resolves the appointments referenced by a page of
// notifications. Missing ids are simply absent from the map.
type AppointmentLookup interface {
	GetByIDs(ctx context.Context, ids []string) (map[string]*appointments.Appointment, error)
}

// Service records dashboard notifications and pushes them to the dashboard room.
type Service struct {
	store        Store
	broadcaster  realtime.Broadcaster
	appointments AppointmentLookup
	metrics      *metrics.ClinicMetrics
	logger       *logging.Logger
	loc          *time.Location
	now          func() time.Time
}

// NewService wires the notification store. The broadcaster and appointment
// lookup may be nil: notifications are then only persisted, or listed
// without their appointment.
func NewService(store Store, broadcaster realtime.Broadcaster, lookup AppointmentLookup, logger *logging.Logger) *Service {
	if store == nil {
		panic("notifications: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		store:        store,
		broadcaster:  broadcaster,
		appointments: lookup,
		logger:       logger,
		loc:          time.UTC,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) WithMetrics(m *metrics.ClinicMetrics) *Service {
	s.metrics = m
	return s
}

// WithLocation sets the clinic timezone used when rendering dates into messages.
func (s *Service) WithLocation(loc *time.Location) *Service {
	if loc != nil {
		s.loc = loc
	}
	return s
}

// Emit persists a notification and broadcasts it to the dashboard room. Only
// the persistence step can fail the call.
func (s *Service) Emit(ctx context.Context, typ Type, message, appointmentID string) (*Notification, error) {
	ctx, span := tracer.Start(ctx, "notifications.emit")
	defer span.End()
	span.SetAttributes(attribute.String("notification.type", string(typ)))

	if !typ.Valid() {
		return nil, apperr.Validation(ErrInvalidType.Error(), ErrInvalidType)
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, apperr.Validation(ErrMessageRequired.Error(), ErrMessageRequired)
	}

	n := &Notification{
		Type:          typ,
		Message:       message,
		AppointmentID: strings.TrimSpace(appointmentID),
		CreatedAt:     s.now(),
	}
	if err := s.store.Create(ctx, n); err != nil {
		span.RecordError(err)
		return nil, apperr.Dependency("could not save notification", err)
	}
	s.metrics.ObserveNotification(string(typ))
	s.logger.Info("notification emitted", "notification_id", n.ID, "type", string(typ), "appointment_id", n.AppointmentID)

	s.broadcast(ctx, realtime.Event{Name: EventNotification, Data: n})
	return n, nil
}

// NotifyLifecycle renders the message for an appointment lifecycle event and
// emits it.
func (s *Service) NotifyLifecycle(ctx context.Context, event appointments.LifecycleEvent, appt *appointments.Appointment) error {
	if appt == nil {
		return errors.New("notifications: appointment required")
	}
	typ, message := s.render(event, appt)
	_, err := s.Emit(ctx, typ, message, appt.ID)
	return err
}

func (s *Service) render(event appointments.LifecycleEvent, appt *appointments.Appointment) (Type, string) {
	name := appt.PatientInfo.Name
	switch event {
	case appointments.EventRequested:
		return TypeNewAppointment, fmt.Sprintf("New appointment request from %s (%s)", name, appt.PatientInfo.Phone)
	case appointments.EventConfirmed:
		return TypeAppointmentConfirmed, fmt.Sprintf("Appointment confirmed for %s on %s", name, s.when(appt))
	case appointments.EventCancelled:
		return TypeAppointmentCancelled, fmt.Sprintf("Appointment cancelled for %s", name)
	case appointments.EventRescheduled:
		return TypeAppointmentRescheduled, fmt.Sprintf("Appointment rescheduled for %s to %s", name, s.when(appt))
	case appointments.EventCompleted:
		return TypeSystem, fmt.Sprintf("Appointment completed for %s", name)
	default:
		return TypeSystem, fmt.Sprintf("Appointment update for %s", name)
	}
}

// when renders the appointment slot in clinic time, e.g. "Jun 1, 2024 at 14:30".
func (s *Service) when(appt *appointments.Appointment) string {
	if appt.Date == nil {
		return "an unscheduled date"
	}
	day := appt.Date.In(s.loc).Format("Jan 2, 2006")
	if appt.Time == "" {
		return day
	}
	return day + " at " + appt.Time
}

// SystemNotice emits an operator notice with no appointment attached.
func (s *Service) SystemNotice(ctx context.Context, message string) (*Notification, error) {
	return s.Emit(ctx, TypeSystem, message, "")
}

// List returns a page of notifications, newest first, with their appointments
// expanded, plus the total unread count.
func (s *Service) List(ctx context.Context, limit, offset int) (Page, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	items, err := s.store.List(ctx, limit, offset)
	if err != nil {
		return Page{}, apperr.Dependency("could not load notifications", err)
	}
	unread, err := s.store.CountUnread(ctx)
	if err != nil {
		return Page{}, apperr.Dependency("could not count unread notifications", err)
	}

	linked := s.expand(ctx, items)
	views := make([]View, 0, len(items))
	for _, n := range items {
		views = append(views, View{Notification: *n, Appointment: linked[n.AppointmentID]})
	}
	return Page{Items: views, UnreadCount: unread}, nil
}

// expand loads referenced appointments. A failed lookup degrades to null
// appointments rather than failing the list.
func (s *Service) expand(ctx context.Context, items []*Notification) map[string]*appointments.Appointment {
	if s.appointments == nil {
		return nil
	}
	seen := make(map[string]struct{})
	ids := make([]string, 0, len(items))
	for _, n := range items {
		if n.AppointmentID == "" {
			continue
		}
		if _, dup := seen[n.AppointmentID]; dup {
			continue
		}
		seen[n.AppointmentID] = struct{}{}
		ids = append(ids, n.AppointmentID)
	}
	if len(ids) == 0 {
		return nil
	}
	linked, err := s.appointments.GetByIDs(ctx, ids)
	if err != nil {
		s.logger.Warn("notifications: appointment expansion failed", "error", err, "count", len(ids))
		return nil
	}
	return linked
}

// MarkRead marks one notification read and tells every dashboard session.
// Marking an already read notification succeeds again.
func (s *Service) MarkRead(ctx context.Context, id string) (*Notification, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperr.NotFound(ErrNotificationNotFound.Error(), ErrNotificationNotFound)
	}
	n, err := s.store.MarkRead(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotificationNotFound) {
			return nil, apperr.NotFound(ErrNotificationNotFound.Error(), err)
		}
		return nil, apperr.Dependency("could not update notification", err)
	}
	s.broadcast(ctx, realtime.Event{Name: EventNotificationRead, Data: map[string]string{"notificationId": n.ID}})
	return n, nil
}

// MarkAllRead marks every unread notification read in one store call and
// sends a single all_notifications_read event.
func (s *Service) MarkAllRead(ctx context.Context) (int64, error) {
	changed, err := s.store.MarkAllRead(ctx)
	if err != nil {
		return 0, apperr.Dependency("could not update notifications", err)
	}
	s.broadcast(ctx, realtime.Event{Name: EventAllNotificationsRead})
	return changed, nil
}

func (s *Service) UnreadCount(ctx context.Context) (int, error) {
	count, err := s.store.CountUnread(ctx)
	if err != nil {
		return 0, apperr.Dependency("could not count unread notifications", err)
	}
	return count, nil
}

// Cleanup deletes notifications older than retentionDays. Zero or negative
// means the default of 30 days.
func (s *Service) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	cutoff := s.now().AddDate(0, 0, -retentionDays)
	removed, err := s.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, apperr.Dependency("could not purge notifications", err)
	}
	s.metrics.ObservePurged(removed)
	s.logger.Info("notifications purged", "removed", removed, "retention_days", retentionDays, "cutoff", cutoff)
	return removed, nil
}

func (s *Service) broadcast(ctx context.Context, evt realtime.Event) {
	if s.broadcaster == nil {
		return
	}
	bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), broadcastTimeout)
	defer cancel()
	if _, err := s.broadcaster.Broadcast(bctx, evt); err != nil {
		s.metrics.ObserveSideEffectFailure("broadcast")
		s.logger.Warn("notifications: broadcast failed", "event", evt.Name, "error", err)
	}
}
