package patients

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for patient storage
type Repository interface {
	Create(ctx context.Context, p *Patient) error
	Update(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id string) (*Patient, error)
	FindByEmail(ctx context.Context, email string) (*Patient, error)
	FindByEmailOrPhone(ctx context.Context, email, phone string) (*Patient, error)
	List(ctx context.Context, filter ListFilter) ([]*Patient, int, error)
	Search(ctx context.Context, query string, limit int) ([]*Patient, error)
	AddVisit(ctx context.Context, patientID string, visit *Visit) error
	ListVisits(ctx context.Context, patientID string, offset, limit int) ([]Visit, int, error)
}

// InMemoryRepository keeps patients in process memory. Used by tests and
// when no DATABASE_URL is configured.
type InMemoryRepository struct {
	mu       sync.RWMutex
	patients map[string]*Patient
	visits   map[string][]Visit
	now      func() time.Time
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		patients: make(map[string]*Patient),
		visits:   make(map[string][]Visit),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (r *InMemoryRepository) Create(ctx context.Context, p *Patient) error {
	now := r.now()
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.OnboardedAt.IsZero() {
		p.OnboardedAt = now
	}
	p.CreatedAt = now
	p.UpdatedAt = now

	r.mu.Lock()
	defer r.mu.Unlock()
	r.patients[p.ID] = clonePatient(p)
	return nil
}

func (r *InMemoryRepository) Update(ctx context.Context, p *Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.patients[p.ID]; !ok {
		return ErrPatientNotFound
	}
	p.UpdatedAt = r.now()
	r.patients[p.ID] = clonePatient(p)
	return nil
}

func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return clonePatient(p), nil
}

func (r *InMemoryRepository) FindByEmail(ctx context.Context, email string) (*Patient, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, ErrPatientNotFound
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.patients {
		if p.Email == email {
			return clonePatient(p), nil
		}
	}
	return nil, ErrPatientNotFound
}

func (r *InMemoryRepository) FindByEmailOrPhone(ctx context.Context, email, phone string) (*Patient, error) {
	email = NormalizeEmail(email)
	phone = strings.TrimSpace(phone)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.patients {
		if (email != "" && p.Email == email) || (phone != "" && p.Phone == phone) {
			return clonePatient(p), nil
		}
	}
	return nil, ErrPatientNotFound
}

func (r *InMemoryRepository) List(ctx context.Context, filter ListFilter) ([]*Patient, int, error) {
	filter = filter.normalized()
	r.mu.RLock()
	matched := make([]*Patient, 0, len(r.patients))
	for _, p := range r.patients {
		if filter.Search == "" || matchesSearch(p, filter.Search) {
			matched = append(matched, clonePatient(p))
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := len(matched)
	return pageSlice(matched, filter.Offset(), filter.Limit), total, nil
}

func (r *InMemoryRepository) Search(ctx context.Context, query string, limit int) ([]*Patient, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []*Patient{}, nil
	}
	r.mu.RLock()
	var matched []*Patient
	for _, p := range r.patients {
		if matchesSearch(p, query) {
			matched = append(matched, clonePatient(p))
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return strings.ToLower(matched[i].FullName) < strings.ToLower(matched[j].FullName)
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (r *InMemoryRepository) AddVisit(ctx context.Context, patientID string, visit *Visit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patients[patientID]
	if !ok {
		return ErrPatientNotFound
	}
	if visit.ID == "" {
		visit.ID = uuid.New().String()
	}
	if visit.Date.IsZero() {
		visit.Date = r.now()
	}
	visit.PatientID = patientID
	r.visits[patientID] = append(r.visits[patientID], *visit)
	p.UpdatedAt = r.now()
	return nil
}

func (r *InMemoryRepository) ListVisits(ctx context.Context, patientID string, offset, limit int) ([]Visit, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.patients[patientID]; !ok {
		return nil, 0, ErrPatientNotFound
	}
	visits := append([]Visit(nil), r.visits[patientID]...)
	sort.SliceStable(visits, func(i, j int) bool {
		return visits[i].Date.After(visits[j].Date)
	})
	total := len(visits)
	return pageSlice(visits, offset, limit), total, nil
}

func matchesSearch(p *Patient, query string) bool {
	q := strings.ToLower(query)
	return strings.Contains(strings.ToLower(p.FullName), q) ||
		strings.Contains(strings.ToLower(p.Email), q) ||
		strings.Contains(p.Phone, q)
}

func pageSlice[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}

func clonePatient(p *Patient) *Patient {
	cp := *p
	if p.Age != nil {
		age := *p.Age
		cp.Age = &age
	}
	cp.Visits = nil
	return &cp
}
