package appointments

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-crm/internal/apperr"
	"github.com/wolfman30/clinic-crm/internal/calendly"
	"github.com/wolfman30/clinic-crm/internal/patients"
)

// ProviderEvent is a scheduling provider notification about an invitee.
type ProviderEvent struct {
	Type             string
	InviteeEmail     string
	InviteeName      string
	StartTime        time.Time
	ExternalEventID  string
	Notes            string
	CorrelationToken string
}

// ProviderEventFromWebhook maps a decoded Calendly webhook onto a ProviderEvent.
func ProviderEventFromWebhook(evt calendly.WebhookEvent) ProviderEvent {
	return ProviderEvent{
		Type:             evt.Type(),
		InviteeEmail:     patients.NormalizeEmail(evt.Payload.Invitee.Email),
		InviteeName:      strings.TrimSpace(evt.Payload.Invitee.Name),
		StartTime:        evt.Payload.Event.StartTime,
		ExternalEventID:  strings.TrimSpace(evt.Payload.Event.UUID),
		Notes:            evt.Payload.Invitee.Notes(),
		CorrelationToken: strings.TrimSpace(evt.Payload.Tracking.UTMContent),
	}
}

// ProviderOutcome describes what a provider event did.
type ProviderOutcome string

const (
	OutcomeApplied   ProviderOutcome = "applied"
	OutcomeCreated   ProviderOutcome = "created"
	OutcomeDuplicate ProviderOutcome = "duplicate"
	OutcomeUnmatched ProviderOutcome = "unmatched"
	OutcomeNoop      ProviderOutcome = "noop"
	OutcomeIgnored   ProviderOutcome = "ignored"
)

// HandleProviderEvent applies an invitee.created, invitee.canceled or
// invitee.rescheduled event. Unknown types are ignored.
func (c *Coordinator) HandleProviderEvent(ctx context.Context, evt ProviderEvent) (ProviderOutcome, error) {
	ctx, span := tracer.Start(ctx, "appointments.provider_event")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinic.provider_event", evt.Type),
		attribute.String("clinic.external_event_id", evt.ExternalEventID),
	)

	switch evt.Type {
	case calendly.EventInviteeCreated:
		return c.inviteeCreated(ctx, evt)
	case calendly.EventInviteeCanceled:
		return c.inviteeCanceled(ctx, evt)
	case calendly.EventInviteeRescheduled:
		return c.inviteeRescheduled(ctx, evt)
	default:
		c.logger.Info("ignoring provider event", "event_type", evt.Type)
		return OutcomeIgnored, nil
	}
}

func (c *Coordinator) inviteeCreated(ctx context.Context, evt ProviderEvent) (ProviderOutcome, error) {
	if evt.InviteeEmail == "" {
		return "", apperr.Validation("invitee email is required", ErrEmailRequired)
	}
	if evt.StartTime.IsZero() {
		return "", apperr.Validation("event start time is required", ErrScheduleRequired)
	}

	if evt.ExternalEventID != "" {
		existing, err := c.repo.FindByExternalID(ctx, evt.ExternalEventID)
		switch {
		case err == nil:
			c.logger.Info("provider event already applied", "appointment_id", existing.ID, "external_event_id", evt.ExternalEventID)
			return OutcomeDuplicate, nil
		case !errors.Is(err, ErrAppointmentNotFound):
			return "", apperr.Dependency("appointment lookup failed", err)
		}
	}

	patient, err := c.resolvePatient(ctx, evt.InviteeEmail, func() *patients.Patient {
		return &patients.Patient{FullName: evt.InviteeName, Email: evt.InviteeEmail}
	})
	if err != nil {
		return "", err
	}

	appt, err := c.correlate(ctx, evt)
	if err != nil {
		return "", err
	}

	start := evt.StartTime.UTC()
	clock := FormatClock(evt.StartTime, c.loc)
	outcome := OutcomeApplied
	if appt != nil {
		from := appt.Status
		appt.Status = StatusScheduled
		appt.Date = &start
		appt.Time = clock
		appt.ExternalEventID = evt.ExternalEventID
		if evt.Notes != "" {
			appt.Notes = evt.Notes
		}
		if appt.PatientID == "" {
			appt.PatientID = patient.ID
		}
		if err := c.repo.Update(ctx, appt); err != nil {
			return "", apperr.Dependency("appointment could not be confirmed", err)
		}
		c.metrics.ObserveTransition(string(from), string(StatusScheduled))
	} else {
		name := evt.InviteeName
		if name == "" {
			name = patient.FullName
		}
		appt = &Appointment{
			PatientID:       patient.ID,
			PatientInfo:     PatientInfo{Name: name, Email: evt.InviteeEmail, Phone: patient.Phone},
			Status:          StatusScheduled,
			Date:            &start,
			Time:            clock,
			Type:            TypeNew,
			Notes:           evt.Notes,
			ExternalEventID: evt.ExternalEventID,
			Source:          SourcePublic,
		}
		if err := c.repo.Create(ctx, appt); err != nil {
			return "", apperr.Dependency("appointment could not be created", err)
		}
		c.metrics.ObserveTransition("", string(StatusScheduled))
		outcome = OutcomeCreated
	}

	c.logger.Info("appointment confirmed by provider", "appointment_id", appt.ID, "external_event_id", evt.ExternalEventID, "outcome", outcome)
	c.notify(ctx, EventConfirmed, appt)
	c.mail(ctx, "appointment_confirmed", appt, Mailer.AppointmentConfirmed)
	return outcome, nil
}

// correlate finds the pending appointment an invitee.created event belongs
// to: first by the correlation token carried through the booking link, then
// by the invitee's most recent pending request.
func (c *Coordinator) correlate(ctx context.Context, evt ProviderEvent) (*Appointment, error) {
	if evt.CorrelationToken != "" {
		appt, err := c.repo.FindByCorrelationToken(ctx, evt.CorrelationToken)
		switch {
		case err == nil && appt.Status == StatusPending:
			return appt, nil
		case err == nil:
			c.logger.Warn("correlation token matched a non-pending appointment; falling back to invitee email",
				"appointment_id", appt.ID, "status", appt.Status, "event_id", evt.ExternalEventID)
		case !errors.Is(err, ErrAppointmentNotFound):
			return nil, apperr.Dependency("appointment lookup failed", err)
		}
	}
	appt, err := c.repo.LatestPendingByEmail(ctx, evt.InviteeEmail)
	if errors.Is(err, ErrAppointmentNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Dependency("appointment lookup failed", err)
	}
	return appt, nil
}

func (c *Coordinator) inviteeCanceled(ctx context.Context, evt ProviderEvent) (ProviderOutcome, error) {
	appt, outcome, err := c.byExternalID(ctx, evt)
	if appt == nil {
		return outcome, err
	}
	if appt.Status == StatusCancelled {
		return OutcomeNoop, nil
	}
	if !CanTransition(appt.Status, StatusCancelled) {
		c.logger.Warn("provider cancel ignored", "appointment_id", appt.ID, "status", appt.Status)
		return OutcomeNoop, nil
	}
	from := appt.Status
	appt.Status = StatusCancelled
	if err := c.repo.Update(ctx, appt); err != nil {
		return "", apperr.Dependency("appointment could not be cancelled", err)
	}
	c.metrics.ObserveTransition(string(from), string(StatusCancelled))
	c.notify(ctx, EventCancelled, appt)
	c.mail(ctx, "status_update", appt, Mailer.AppointmentStatusChanged)
	return OutcomeApplied, nil
}

func (c *Coordinator) inviteeRescheduled(ctx context.Context, evt ProviderEvent) (ProviderOutcome, error) {
	if evt.StartTime.IsZero() {
		return "", apperr.Validation("event start time is required", ErrScheduleRequired)
	}
	appt, outcome, err := c.byExternalID(ctx, evt)
	if appt == nil {
		return outcome, err
	}
	if appt.Status != StatusScheduled {
		c.logger.Warn("provider reschedule ignored", "appointment_id", appt.ID, "status", appt.Status)
		return OutcomeNoop, nil
	}
	start := evt.StartTime.UTC()
	appt.Date = &start
	appt.Time = FormatClock(evt.StartTime, c.loc)
	if err := c.repo.Update(ctx, appt); err != nil {
		return "", apperr.Dependency("appointment could not be rescheduled", err)
	}
	c.notify(ctx, EventRescheduled, appt)
	return OutcomeApplied, nil
}

// byExternalID loads the appointment for evt. A nil appointment with a nil
// error means there is nothing to do.
func (c *Coordinator) byExternalID(ctx context.Context, evt ProviderEvent) (*Appointment, ProviderOutcome, error) {
	if evt.ExternalEventID == "" {
		return nil, OutcomeUnmatched, nil
	}
	appt, err := c.repo.FindByExternalID(ctx, evt.ExternalEventID)
	if errors.Is(err, ErrAppointmentNotFound) {
		c.logger.Info("provider event for unknown appointment", "event_type", evt.Type, "external_event_id", evt.ExternalEventID)
		return nil, OutcomeUnmatched, nil
	}
	if err != nil {
		return nil, "", apperr.Dependency("appointment lookup failed", err)
	}
	return appt, "", nil
}
