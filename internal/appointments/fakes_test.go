package appointments

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wolfman30/clinic-crm/internal/calendly"
	"github.com/wolfman30/clinic-crm/internal/patients"
	"github.com/wolfman30/clinic-crm/pkg/logging"
)

type recordedEvent struct {
	Event         LifecycleEvent
	AppointmentID string
	Status        Status
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
	err    error
}

func (f *fakeNotifier) NotifyLifecycle(ctx context.Context, event LifecycleEvent, appt *Appointment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{Event: event, AppointmentID: appt.ID, Status: appt.Status})
	return f.err
}

func (f *fakeNotifier) count(event LifecycleEvent) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e.Event == event {
			n++
		}
	}
	return n
}

type fakeMailer struct {
	mu    sync.Mutex
	sent  []string
	err   error
	calls int
}

func (f *fakeMailer) record(kind string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, kind)
	return nil
}

func (f *fakeMailer) AppointmentRequested(ctx context.Context, appt *Appointment) error {
	return f.record("requested")
}

func (f *fakeMailer) AppointmentConfirmed(ctx context.Context, appt *Appointment) error {
	return f.record("confirmed")
}

func (f *fakeMailer) AppointmentStatusChanged(ctx context.Context, appt *Appointment) error {
	return f.record("status:" + string(appt.Status))
}

type fakeLinks struct {
	configured bool
	link       string
	err        error
	delay      time.Duration
	lastToken  string
}

func (f *fakeLinks) Configured() bool { return f.configured }

func (f *fakeLinks) CreateSchedulingLink(ctx context.Context, inv calendly.Invitee) (string, error) {
	f.lastToken = inv.Token
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.link, f.err
}

func (f *fakeLinks) DirectURL(inv calendly.Invitee) string {
	f.lastToken = inv.Token
	return "https://calendly.com/clinic/30min?email=" + inv.Email
}

type failingPatientStore struct {
	*patients.InMemoryRepository
	createErr error
}

func (f *failingPatientStore) Create(ctx context.Context, p *patients.Patient) error {
	if f.createErr != nil {
		return f.createErr
	}
	return f.InMemoryRepository.Create(ctx, p)
}

type failingRepo struct {
	*InMemoryRepository
	createErr error
}

func (f *failingRepo) Create(ctx context.Context, appt *Appointment) error {
	if f.createErr != nil {
		return f.createErr
	}
	return f.InMemoryRepository.Create(ctx, appt)
}

var errStoreDown = errors.New("connection refused")

type harness struct {
	coord    *Coordinator
	repo     *InMemoryRepository
	patients *patients.InMemoryRepository
	notifier *fakeNotifier
	mailer   *fakeMailer
	links    *fakeLinks
	now      time.Time
}

func newHarness() *harness {
	h := &harness{
		repo:     NewInMemoryRepository(),
		patients: patients.NewInMemoryRepository(),
		notifier: &fakeNotifier{},
		mailer:   &fakeMailer{},
		links:    &fakeLinks{},
		now:      time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC),
	}
	h.coord = NewCoordinator(h.repo, h.patients, h.links, logging.Default()).
		WithNotifier(h.notifier).
		WithMailer(h.mailer).
		WithClock(func() time.Time { return h.now })
	return h
}

func (h *harness) book(name, email, phone string) *BookingResult {
	res, err := h.coord.RequestAppointment(context.Background(), BookingRequest{Name: name, Email: email, Phone: phone})
	if err != nil {
		panic(err)
	}
	return res
}
