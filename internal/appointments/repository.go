package appointments

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for appointment storage
type Repository interface {
	Create(ctx context.Context, appt *Appointment) error
	Update(ctx context.Context, appt *Appointment) error
	GetByID(ctx context.Context, id string) (*Appointment, error)
	GetByIDs(ctx context.Context, ids []string) (map[string]*Appointment, error)
	FindByExternalID(ctx context.Context, externalID string) (*Appointment, error)
	FindByCorrelationToken(ctx context.Context, token string) (*Appointment, error)
	LatestPendingByEmail(ctx context.Context, email string) (*Appointment, error)
	List(ctx context.Context, filter ListFilter) ([]*Appointment, int, error)
	ListUpcoming(ctx context.Context, now time.Time, limit int) ([]*Appointment, error)
}

// InMemoryRepository keeps appointments in process memory.
type InMemoryRepository struct {
	mu    sync.RWMutex
	items map[string]*Appointment
	now   func() time.Time
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		items: make(map[string]*Appointment),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (r *InMemoryRepository) Create(ctx context.Context, appt *Appointment) error {
	if appt.ID == "" {
		appt.ID = uuid.New().String()
	}
	now := r.now()
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = now
	}
	appt.UpdatedAt = now

	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[appt.ID] = appt.Clone()
	return nil
}

func (r *InMemoryRepository) Update(ctx context.Context, appt *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[appt.ID]; !ok {
		return ErrAppointmentNotFound
	}
	appt.UpdatedAt = r.now()
	r.items[appt.ID] = appt.Clone()
	return nil
}

func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	appt, ok := r.items[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return appt.Clone(), nil
}

func (r *InMemoryRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*Appointment, len(ids))
	for _, id := range ids {
		if appt, ok := r.items[id]; ok {
			out[id] = appt.Clone()
		}
	}
	return out, nil
}

func (r *InMemoryRepository) FindByExternalID(ctx context.Context, externalID string) (*Appointment, error) {
	return r.findOne(func(a *Appointment) bool {
		return externalID != "" && a.ExternalEventID == externalID
	})
}

func (r *InMemoryRepository) FindByCorrelationToken(ctx context.Context, token string) (*Appointment, error) {
	return r.findOne(func(a *Appointment) bool {
		return token != "" && a.CorrelationToken == token
	})
}

func (r *InMemoryRepository) LatestPendingByEmail(ctx context.Context, email string) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest *Appointment
	for _, a := range r.items {
		if a.Status != StatusPending || a.PatientInfo.Email != email {
			continue
		}
		if latest == nil || a.CreatedAt.After(latest.CreatedAt) {
			latest = a
		}
	}
	if latest == nil {
		return nil, ErrAppointmentNotFound
	}
	return latest.Clone(), nil
}

func (r *InMemoryRepository) findOne(match func(*Appointment) bool) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.items {
		if match(a) {
			return a.Clone(), nil
		}
	}
	return nil, ErrAppointmentNotFound
}

func (r *InMemoryRepository) List(ctx context.Context, filter ListFilter) ([]*Appointment, int, error) {
	r.mu.RLock()
	matched := make([]*Appointment, 0, len(r.items))
	for _, a := range r.items {
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		if filter.From != nil || filter.To != nil {
			if a.Date == nil {
				continue
			}
			if filter.From != nil && a.Date.Before(*filter.From) {
				continue
			}
			if filter.To != nil && !a.Date.Before(*filter.To) {
				continue
			}
		}
		matched = append(matched, a.Clone())
	}
	r.mu.RUnlock()

	SortForListing(matched)
	total := len(matched)
	if filter.Offset >= total {
		return []*Appointment{}, total, nil
	}
	end := total
	if filter.Limit > 0 && filter.Offset+filter.Limit < end {
		end = filter.Offset + filter.Limit
	}
	return matched[filter.Offset:end], total, nil
}

func (r *InMemoryRepository) ListUpcoming(ctx context.Context, now time.Time, limit int) ([]*Appointment, error) {
	r.mu.RLock()
	var out []*Appointment
	for _, a := range r.items {
		switch {
		case a.Status == StatusPending:
			out = append(out, a.Clone())
		case a.Status == StatusScheduled && a.Date != nil && !a.Date.Before(now):
			out = append(out, a.Clone())
		}
	}
	r.mu.RUnlock()

	SortUpcoming(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SortForListing orders by date asc, time asc, then newest created first.
// Dateless (pending) appointments sort after dated ones.
func SortForListing(items []*Appointment) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		switch {
		case a.Date != nil && b.Date == nil:
			return true
		case a.Date == nil && b.Date != nil:
			return false
		case a.Date != nil && b.Date != nil && !a.Date.Equal(*b.Date):
			return a.Date.Before(*b.Date)
		}
		if a.Time != b.Time {
			return a.Time < b.Time
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
}

// SortUpcoming puts pending requests first (newest first), then scheduled
// appointments by date.
func SortUpcoming(items []*Appointment) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		aPending, bPending := a.Status == StatusPending, b.Status == StatusPending
		switch {
		case aPending && !bPending:
			return true
		case !aPending && bPending:
			return false
		case aPending && bPending:
			return a.CreatedAt.After(b.CreatedAt)
		}
		if !a.Date.Equal(*b.Date) {
			return a.Date.Before(*b.Date)
		}
		return a.Time < b.Time
	})
}
