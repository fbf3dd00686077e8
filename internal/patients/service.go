package patients

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/clinic-crm/internal/apperr"
	"github.com/wolfman30/clinic-crm/pkg/logging"
)

// PrescriptionNotifier is told when a visit with a prescription is recorded.
type PrescriptionNotifier interface {
	PrescriptionIssued(ctx context.Context, patient *Patient, visit *Visit) error
}

const (
	defaultVisitPageSize = 5
	searchLimit          = 20
)

// Service implements the dashboard-facing patient record operations.
type Service struct {
	repo     Repository
	notifier PrescriptionNotifier
	logger   *logging.Logger
}

// NewService builds a patient service. notifier may be nil.
func NewService(repo Repository, notifier PrescriptionNotifier, logger *logging.Logger) *Service {
	if repo == nil {
		panic("patients: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{repo: repo, notifier: notifier, logger: logger}
}

// Create registers a patient, rejecting duplicates by email or phone.
func (s *Service) Create(ctx context.Context, req CreatePatientRequest) (*Patient, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, apperr.Validation(err.Error(), err)
	}

	existing, err := s.repo.FindByEmailOrPhone(ctx, req.Email, req.Phone)
	switch {
	case err == nil && existing != nil:
		return nil, apperr.Validation(ErrDuplicatePatient.Error(), ErrDuplicatePatient)
	case err != nil && !errors.Is(err, ErrPatientNotFound):
		return nil, apperr.Dependency("patient lookup failed", err)
	}

	p := &Patient{
		FullName: req.FullName,
		Phone:    req.Phone,
		Email:    req.Email,
		Age:      req.Age,
		Gender:   req.Gender,
		Address:  req.Address,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, apperr.Dependency("patient could not be saved", err)
	}
	s.logger.Info("patient created", "patient_id", p.ID)
	return p, nil
}

// Update applies a partial update.
func (s *Service) Update(ctx context.Context, id string, req UpdatePatientRequest) (*Patient, error) {
	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := req.Apply(p); err != nil {
		return nil, apperr.Validation(err.Error(), err)
	}
	if err := s.repo.Update(ctx, p); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, apperr.NotFound("patient not found", err)
		}
		return nil, apperr.Dependency("patient could not be updated", err)
	}
	return p, nil
}

// Get returns a patient with one page of visits, newest first.
func (s *Service) Get(ctx context.Context, id string, page, limit int) (*Patient, error) {
	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultVisitPageSize
	}
	visits, total, err := s.repo.ListVisits(ctx, id, (page-1)*limit, limit)
	if err != nil {
		return nil, apperr.Dependency("visits could not be loaded", err)
	}
	p.Visits = visits
	p.TotalVisits = total
	return p, nil
}

// List pages through patients, optionally filtered by a search term.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Patient, Pagination, error) {
	filter = filter.normalized()
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, Pagination{}, apperr.Dependency("patients could not be listed", err)
	}
	return items, NewPagination(filter.Page, filter.Limit, total), nil
}

// Search returns up to 20 patients whose name, email or phone contains query.
func (s *Service) Search(ctx context.Context, query string) ([]*Patient, error) {
	if strings.TrimSpace(query) == "" {
		return nil, apperr.Validation("search query is required", nil)
	}
	out, err := s.repo.Search(ctx, query, searchLimit)
	if err != nil {
		return nil, apperr.Dependency("patient search failed", err)
	}
	return out, nil
}

// AddVisit records a consultation authored by createdBy.
func (s *Service) AddVisit(ctx context.Context, patientID string, req AddVisitRequest, createdBy string) (*Visit, error) {
	if err := req.Validate(); err != nil {
		return nil, apperr.Validation(err.Error(), err)
	}
	p, err := s.load(ctx, patientID)
	if err != nil {
		return nil, err
	}

	visit := &Visit{
		Problem:      strings.TrimSpace(req.Problem),
		Diagnosis:    strings.TrimSpace(req.Diagnosis),
		Prescription: req.Prescription,
		CreatedBy:    createdBy,
	}
	if err := s.repo.AddVisit(ctx, patientID, visit); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, apperr.NotFound("patient not found", err)
		}
		return nil, apperr.Dependency("visit could not be saved", err)
	}

	if visit.Prescription != nil && p.Email != "" && s.notifier != nil {
		if err := s.notifier.PrescriptionIssued(ctx, p, visit); err != nil {
			s.logger.Warn("prescription reminder not sent", "patient_id", p.ID, "error", err)
		}
	}
	return visit, nil
}

func (s *Service) load(ctx context.Context, id string) (*Patient, error) {
	p, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, ErrPatientNotFound) {
		return nil, apperr.NotFound("patient not found", err)
	}
	if err != nil {
		return nil, apperr.Dependency(fmt.Sprintf("patient %s could not be loaded", id), err)
	}
	return p, nil
}

// Pagination describes one page of a listing.
type Pagination struct {
	Current int `json:"current"`
	Pages   int `json:"pages"`
	Total   int `json:"total"`
}

// NewPagination computes the page count for total items.
func NewPagination(page, limit, total int) Pagination {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return Pagination{Current: page, Pages: pages, Total: total}
}
