package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/wolfman30/clinic-crm/internal/appointments"
	"github.com/wolfman30/clinic-crm/internal/observability/metrics"
	"github.com/wolfman30/clinic-crm/internal/patients"
	"github.com/wolfman30/clinic-crm/pkg/logging"
)

// Mailer renders patient emails and enqueues them for the worker. Enqueueing
// is the only thing a caller waits for; delivery and its retries happen on
// the worker.
type Mailer struct {
	queue    Queue
	renderer *Renderer
	metrics  *metrics.ClinicMetrics
	logger   *logging.Logger
}

var (
	_ appointments.Mailer           = (*Mailer)(nil)
	_ patients.PrescriptionNotifier = (*Mailer)(nil)
)

func NewMailer(queue Queue, renderer *Renderer, logger *logging.Logger) *Mailer {
	if queue == nil || renderer == nil {
		panic("notify: mailer needs a queue and a renderer")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Mailer{queue: queue, renderer: renderer, logger: logger}
}

func (m *Mailer) WithMetrics(mx *metrics.ClinicMetrics) *Mailer {
	m.metrics = mx
	return m
}

// AppointmentRequested acknowledges a public booking request.
func (m *Mailer) AppointmentRequested(ctx context.Context, appt *appointments.Appointment) error {
	return m.enqueueRendered(ctx, func() (EmailMessage, error) { return m.renderer.AppointmentRequested(appt) })
}

// AppointmentConfirmed tells the patient the slot they booked.
func (m *Mailer) AppointmentConfirmed(ctx context.Context, appt *appointments.Appointment) error {
	return m.enqueueRendered(ctx, func() (EmailMessage, error) { return m.renderer.AppointmentConfirmed(appt) })
}

// AppointmentStatusChanged covers cancellations, completions and moves.
func (m *Mailer) AppointmentStatusChanged(ctx context.Context, appt *appointments.Appointment) error {
	return m.enqueueRendered(ctx, func() (EmailMessage, error) { return m.renderer.AppointmentStatus(appt) })
}

// PrescriptionIssued sends the prescription reminder for a new visit.
func (m *Mailer) PrescriptionIssued(ctx context.Context, p *patients.Patient, visit *patients.Visit) error {
	if p == nil || p.Email == "" {
		return nil
	}
	return m.enqueueRendered(ctx, func() (EmailMessage, error) { return m.renderer.Prescription(p, visit) })
}

// Enqueue places an already rendered message on the queue.
func (m *Mailer) Enqueue(ctx context.Context, msg EmailMessage) error {
	if msg.To == "" {
		return fmt.Errorf("notify: %s email has no recipient", msg.Template)
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("notify: encode email job: %w", err)
	}
	if err := m.queue.Send(ctx, string(body)); err != nil {
		m.metrics.ObserveEmail(msg.Template, "enqueue_failed")
		return fmt.Errorf("notify: enqueue %s email: %w", msg.Template, err)
	}
	m.metrics.ObserveEmail(msg.Template, "queued")
	m.logger.Debug("email queued", "template", msg.Template)
	return nil
}

func (m *Mailer) enqueueRendered(ctx context.Context, render func() (EmailMessage, error)) error {
	msg, err := render()
	if err != nil {
		return err
	}
	return m.Enqueue(ctx, msg)
}
