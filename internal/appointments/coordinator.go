package appointments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-crm/internal/apperr"
	"github.com/wolfman30/clinic-crm/internal/calendly"
	"github.com/wolfman30/clinic-crm/internal/observability/metrics"
	"github.com/wolfman30/clinic-crm/internal/patients"
	"github.com/wolfman30/clinic-crm/pkg/logging"
)

var tracer = otel.Tracer("clinic.internal.appointments")

// LifecycleEvent names an appointment change the dashboard is told about.
type LifecycleEvent string

const (
	EventRequested   LifecycleEvent = "requested"
	EventConfirmed   LifecycleEvent = "confirmed"
	EventCancelled   LifecycleEvent = "cancelled"
	EventRescheduled LifecycleEvent = "rescheduled"
	EventCompleted   LifecycleEvent = "completed"
)

// Notifier receives lifecycle events for the dashboard feed.
type Notifier interface {
	NotifyLifecycle(ctx context.Context, event LifecycleEvent, appt *Appointment) error
}

// Mailer sends patient-facing emails for lifecycle changes.
type Mailer interface {
	AppointmentRequested(ctx context.Context, appt *Appointment) error
	AppointmentConfirmed(ctx context.Context, appt *Appointment) error
	AppointmentStatusChanged(ctx context.Context, appt *Appointment) error
}

// PatientStore is the subset of patient storage the coordinator needs.
type PatientStore interface {
	FindByEmail(ctx context.Context, email string) (*patients.Patient, error)
	Create(ctx context.Context, p *patients.Patient) error
}

// LinkProvider mints scheduling links.
type LinkProvider interface {
	Configured() bool
	CreateSchedulingLink(ctx context.Context, inv calendly.Invitee) (string, error)
	DirectURL(inv calendly.Invitee) string
}

const (
	defaultPageSize      = 10
	maxPageSize          = 100
	upcomingLimit        = 10
	defaultLinkTimeout   = 5 * time.Second
	defaultEffectTimeout = 5 * time.Second
)

// Coordinator owns the appointment state machine and its side effects.
type Coordinator struct {
	repo     Repository
	patients PatientStore
	links    LinkProvider
	notifier Notifier
	mailer   Mailer
	metrics  *metrics.ClinicMetrics
	logger   *logging.Logger

	loc           *time.Location
	linkTimeout   time.Duration
	effectTimeout time.Duration
	now           func() time.Time
}

// NewCoordinator wires the required collaborators. Notifier, mailer and
// metrics are optional and set with the With* methods.
func NewCoordinator(repo Repository, patientStore PatientStore, links LinkProvider, logger *logging.Logger) *Coordinator {
	if repo == nil {
		panic("appointments: repository required")
	}
	if patientStore == nil {
		panic("appointments: patient store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Coordinator{
		repo:          repo,
		patients:      patientStore,
		links:         links,
		logger:        logger,
		loc:           time.UTC,
		linkTimeout:   defaultLinkTimeout,
		effectTimeout: defaultEffectTimeout,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (c *Coordinator) WithNotifier(n Notifier) *Coordinator {
	c.notifier = n
	return c
}

func (c *Coordinator) WithMailer(m Mailer) *Coordinator {
	c.mailer = m
	return c
}

func (c *Coordinator) WithMetrics(m *metrics.ClinicMetrics) *Coordinator {
	c.metrics = m
	return c
}

// WithLocation sets the clinic timezone used for HH:MM rendering and day filters.
func (c *Coordinator) WithLocation(loc *time.Location) *Coordinator {
	if loc != nil {
		c.loc = loc
	}
	return c
}

func (c *Coordinator) WithLinkTimeout(d time.Duration) *Coordinator {
	if d > 0 {
		c.linkTimeout = d
	}
	return c
}

func (c *Coordinator) WithClock(now func() time.Time) *Coordinator {
	if now != nil {
		c.now = now
	}
	return c
}

// Location returns the clinic timezone.
func (c *Coordinator) Location() *time.Location {
	return c.loc
}

// RequestAppointment handles a public booking: it resolves or creates the
// patient, records a pending appointment and returns a scheduling link.
func (c *Coordinator) RequestAppointment(ctx context.Context, req BookingRequest) (*BookingResult, error) {
	ctx, span := tracer.Start(ctx, "appointments.request")
	defer span.End()

	req.Normalize()
	if err := validateBooking(req); err != nil {
		c.metrics.ObserveBooking("invalid")
		return nil, apperr.Validation(err.Error(), err)
	}
	span.SetAttributes(attribute.String("clinic.patient_email", req.Email))

	patient, err := c.resolvePatient(ctx, req.Email, func() *patients.Patient {
		return &patients.Patient{
			FullName: req.Name,
			Email:    req.Email,
			Phone:    req.Phone,
			Age:      req.Age,
			Gender:   patients.Gender(req.Gender),
			Address:  req.Address,
		}
	})
	if err != nil {
		c.metrics.ObserveBooking("failed")
		span.RecordError(err)
		return nil, err
	}

	appt := &Appointment{
		PatientID: patient.ID,
		PatientInfo: PatientInfo{
			Name:  req.Name,
			Email: req.Email,
			Phone: req.Phone,
		},
		Message:          req.Message,
		Status:           StatusPending,
		Type:             TypeNew,
		Source:           SourcePublic,
		CorrelationToken: uuid.New().String(),
	}
	if err := c.repo.Create(ctx, appt); err != nil {
		c.metrics.ObserveBooking("failed")
		span.RecordError(err)
		c.logger.Error("appointment not recorded after patient resolved", "patient_id", patient.ID, "error", err)
		return nil, apperr.Dependency("your details were saved but the appointment request could not be recorded", err).
			With("patientId", patient.ID)
	}
	c.logger.Info("appointment requested", "appointment_id", appt.ID, "patient_id", patient.ID)

	c.notify(ctx, EventRequested, appt)
	c.mail(ctx, "request_received", appt, Mailer.AppointmentRequested)

	link, fallback := c.schedulingLink(ctx, calendly.Invitee{Name: req.Name, Email: req.Email, Token: appt.CorrelationToken})
	c.metrics.ObserveBooking("accepted")

	return &BookingResult{
		SchedulingLink: link,
		PatientID:      patient.ID,
		AppointmentID:  appt.ID,
		LinkFallback:   fallback,
	}, nil
}

func validateBooking(req BookingRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if err := patients.ValidateAge(req.Age); err != nil {
		return err
	}
	if !patients.Gender(req.Gender).Valid() {
		return patients.ErrInvalidGender
	}
	return nil
}

// resolvePatient finds a patient by email or creates one from build().
func (c *Coordinator) resolvePatient(ctx context.Context, email string, build func() *patients.Patient) (*patients.Patient, error) {
	p, err := c.patients.FindByEmail(ctx, email)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, patients.ErrPatientNotFound) {
		return nil, apperr.Dependency("patient lookup failed, please try again shortly", err)
	}
	p = build()
	if err := c.patients.Create(ctx, p); err != nil {
		return nil, apperr.Dependency("patient could not be saved, please try again shortly", err)
	}
	c.logger.Info("patient created from booking", "patient_id", p.ID)
	return p, nil
}

// schedulingLink asks the provider for a one-time link and falls back to the
// direct booking URL on any failure. The second result reports the fallback.
func (c *Coordinator) schedulingLink(ctx context.Context, inv calendly.Invitee) (string, bool) {
	if c.links == nil {
		return "", true
	}
	if c.links.Configured() {
		linkCtx, cancel := context.WithTimeout(ctx, c.linkTimeout)
		link, err := c.links.CreateSchedulingLink(linkCtx, inv)
		cancel()
		if err == nil && link != "" {
			c.metrics.ObserveSchedulingLink("api")
			return link, false
		}
		c.logger.Warn("scheduling link api failed, using direct url", "error", err)
	}
	c.metrics.ObserveSchedulingLink("fallback")
	return c.links.DirectURL(inv), true
}

// GetAppointment returns one appointment.
func (c *Coordinator) GetAppointment(ctx context.Context, id string) (*Appointment, error) {
	appt, err := c.repo.GetByID(ctx, id)
	if errors.Is(err, ErrAppointmentNotFound) {
		return nil, apperr.NotFound("appointment not found", err)
	}
	if err != nil {
		return nil, apperr.Dependency("appointment could not be loaded", err)
	}
	return appt, nil
}

// CreateAppointment books a confirmed slot directly from the dashboard.
func (c *Coordinator) CreateAppointment(ctx context.Context, req CreateRequest) (*Appointment, error) {
	name := strings.TrimSpace(req.Name)
	phone := strings.TrimSpace(req.Phone)
	email := patients.NormalizeEmail(req.Email)
	switch {
	case name == "":
		return nil, apperr.Validation(ErrNameRequired.Error(), ErrNameRequired)
	case phone == "":
		return nil, apperr.Validation(ErrPhoneRequired.Error(), ErrPhoneRequired)
	case email != "" && !patients.ValidEmail(email):
		return nil, apperr.Validation(ErrInvalidEmail.Error(), ErrInvalidEmail)
	}
	typ := req.Type
	if typ == "" {
		typ = TypeConsultation
	}
	if !typ.Valid() {
		return nil, apperr.Validation(ErrInvalidType.Error(), ErrInvalidType)
	}
	start, clock, err := c.parseSchedule(req.Date, req.Time)
	if err != nil {
		return nil, apperr.Validation(err.Error(), err)
	}

	appt := &Appointment{
		PatientInfo: PatientInfo{Name: name, Email: email, Phone: phone},
		Status:      StatusScheduled,
		Date:        &start,
		Time:        clock,
		Type:        typ,
		Notes:       strings.TrimSpace(req.Notes),
		Source:      SourceDashboard,
	}
	if email != "" {
		p, err := c.resolvePatient(ctx, email, func() *patients.Patient {
			return &patients.Patient{FullName: name, Email: email, Phone: phone}
		})
		if err != nil {
			return nil, err
		}
		appt.PatientID = p.ID
	}
	if err := c.repo.Create(ctx, appt); err != nil {
		return nil, apperr.Dependency("appointment could not be saved", err)
	}
	c.metrics.ObserveTransition("", string(StatusScheduled))
	c.notify(ctx, EventConfirmed, appt)
	return appt, nil
}

// UpdateStatus applies a partial dashboard update: status, notes, date and time.
func (c *Coordinator) UpdateStatus(ctx context.Context, id string, req UpdateRequest) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointments.update")
	defer span.End()
	span.SetAttributes(attribute.String("clinic.appointment_id", id))

	appt, err := c.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	prev := appt.Clone()

	if req.Status != nil {
		next := *req.Status
		if !next.Valid() {
			return nil, apperr.Validation(ErrInvalidStatus.Error(), ErrInvalidStatus)
		}
		if !CanTransition(appt.Status, next) {
			return nil, apperr.Validation(fmt.Sprintf("cannot move appointment from %s to %s", appt.Status, next), ErrIllegalTransition)
		}
		appt.Status = next
	}
	if req.Date != nil || req.Time != nil {
		if err := c.applySchedule(appt, req.Date, req.Time); err != nil {
			return nil, apperr.Validation(err.Error(), err)
		}
	}
	if req.Notes != nil {
		appt.Notes = strings.TrimSpace(*req.Notes)
	}
	if err := appt.CheckSchedule(); err != nil {
		return nil, apperr.Validation(err.Error(), err)
	}

	if err := c.repo.Update(ctx, appt); err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, apperr.NotFound("appointment not found", err)
		}
		return nil, apperr.Dependency("appointment could not be updated", err)
	}

	statusChanged := prev.Status != appt.Status
	scheduleChanged := !sameSchedule(prev, appt)
	switch {
	case statusChanged && appt.Status == StatusCompleted:
		c.notify(ctx, EventCompleted, appt)
	case statusChanged && appt.Status == StatusCancelled:
		c.notify(ctx, EventCancelled, appt)
	case statusChanged && appt.Status == StatusScheduled:
		c.notify(ctx, EventConfirmed, appt)
	case scheduleChanged && appt.Status == StatusScheduled:
		c.notify(ctx, EventRescheduled, appt)
	}
	if statusChanged {
		c.metrics.ObserveTransition(string(prev.Status), string(appt.Status))
		c.mail(ctx, "status_update", appt, Mailer.AppointmentStatusChanged)
		c.logger.Info("appointment status changed", "appointment_id", appt.ID, "from", prev.Status, "to", appt.Status)
	}
	return appt, nil
}

// CancelAppointment cancels from the dashboard. Cancelling an already
// cancelled appointment succeeds without emitting anything.
func (c *Coordinator) CancelAppointment(ctx context.Context, id string) (*Appointment, error) {
	appt, err := c.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status == StatusCancelled {
		return appt, nil
	}
	if !CanTransition(appt.Status, StatusCancelled) {
		return nil, apperr.Validation(fmt.Sprintf("cannot cancel a %s appointment", appt.Status), ErrIllegalTransition)
	}
	from := appt.Status
	appt.Status = StatusCancelled
	if err := appt.CheckSchedule(); err != nil {
		return nil, apperr.Validation(err.Error(), err)
	}
	if err := c.repo.Update(ctx, appt); err != nil {
		return nil, apperr.Dependency("appointment could not be cancelled", err)
	}
	c.metrics.ObserveTransition(string(from), string(StatusCancelled))
	c.notify(ctx, EventCancelled, appt)
	c.mail(ctx, "status_update", appt, Mailer.AppointmentStatusChanged)
	return appt, nil
}

// ListQuery is the dashboard listing request. Date is YYYY-MM-DD in the
// clinic timezone.
type ListQuery struct {
	Date   string
	Status string
	Page   int
	Limit  int
}

// Pagination describes one page of a listing.
type Pagination struct {
	Current int `json:"current"`
	Pages   int `json:"pages"`
	Total   int `json:"total"`
}

// ListAppointments returns one page ordered by date, time, then newest first.
func (c *Coordinator) ListAppointments(ctx context.Context, q ListQuery) ([]*Appointment, Pagination, error) {
	page, limit := q.Page, q.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	filter := ListFilter{Offset: (page - 1) * limit, Limit: limit}
	if q.Status != "" {
		status := Status(q.Status)
		if !status.Valid() {
			return nil, Pagination{}, apperr.Validation(ErrInvalidStatus.Error(), ErrInvalidStatus)
		}
		filter.Status = status
	}
	if q.Date != "" {
		day, err := time.ParseInLocation("2006-01-02", q.Date, c.loc)
		if err != nil {
			return nil, Pagination{}, apperr.Validation(ErrInvalidDate.Error(), ErrInvalidDate)
		}
		next := day.AddDate(0, 0, 1)
		filter.From, filter.To = &day, &next
	}

	items, total, err := c.repo.List(ctx, filter)
	if err != nil {
		return nil, Pagination{}, apperr.Dependency("appointments could not be listed", err)
	}
	return items, Pagination{Current: page, Pages: (total + limit - 1) / limit, Total: total}, nil
}

// ListUpcoming returns pending requests and future scheduled appointments.
func (c *Coordinator) ListUpcoming(ctx context.Context) ([]*Appointment, error) {
	items, err := c.repo.ListUpcoming(ctx, c.now(), upcomingLimit)
	if err != nil {
		return nil, apperr.Dependency("upcoming appointments could not be listed", err)
	}
	return items, nil
}

// parseSchedule turns a YYYY-MM-DD date and HH:MM time into the start
// instant in the clinic timezone.
func (c *Coordinator) parseSchedule(date, clock string) (time.Time, string, error) {
	clock, err := NormalizeClock(clock)
	if err != nil {
		return time.Time{}, "", err
	}
	start, err := time.ParseInLocation("2006-01-02 15:04", strings.TrimSpace(date)+" "+clock, c.loc)
	if err != nil {
		return time.Time{}, "", ErrInvalidDate
	}
	return start.UTC(), clock, nil
}

func (c *Coordinator) applySchedule(appt *Appointment, date, clock *string) error {
	var curDate, curClock string
	if appt.Date != nil {
		curDate = appt.Date.In(c.loc).Format("2006-01-02")
	}
	curClock = appt.Time
	if date != nil {
		curDate = *date
	}
	if clock != nil {
		curClock = *clock
	}
	if curDate == "" || curClock == "" {
		return ErrScheduleRequired
	}
	start, normalized, err := c.parseSchedule(curDate, curClock)
	if err != nil {
		return err
	}
	appt.Date = &start
	appt.Time = normalized
	return nil
}

func sameSchedule(a, b *Appointment) bool {
	if (a.Date == nil) != (b.Date == nil) {
		return false
	}
	if a.Date != nil && !a.Date.Equal(*b.Date) {
		return false
	}
	return a.Time == b.Time
}

// notify emits a dashboard notification. Failures are logged and counted but
// never undo the transition that triggered them.
func (c *Coordinator) notify(ctx context.Context, event LifecycleEvent, appt *Appointment) {
	if c.notifier == nil {
		return
	}
	c.bestEffort(ctx, "notification", func(ctx context.Context) error {
		return c.notifier.NotifyLifecycle(ctx, event, appt)
	}, "event", string(event), "appointment_id", appt.ID)
}

func (c *Coordinator) mail(ctx context.Context, template string, appt *Appointment, send func(Mailer, context.Context, *Appointment) error) {
	if c.mailer == nil || appt.PatientInfo.Email == "" {
		return
	}
	c.bestEffort(ctx, "email", func(ctx context.Context) error {
		return send(c.mailer, ctx, appt)
	}, "template", template, "appointment_id", appt.ID)
}

func (c *Coordinator) bestEffort(ctx context.Context, kind string, fn func(context.Context) error, attrs ...any) {
	effectCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.effectTimeout)
	defer cancel()
	if err := fn(effectCtx); err != nil {
		c.metrics.ObserveSideEffectFailure(kind)
		c.logger.Warn("best-effort side effect failed", append([]any{"kind", kind, "error", err}, attrs...)...)
	}
}
