package patients

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-crm/internal/apperr"
	"github.com/wolfman30/clinic-crm/pkg/logging"
)

type recordingNotifier struct {
	calls []string
}

func (n *recordingNotifier) PrescriptionIssued(ctx context.Context, p *Patient, v *Visit) error {
	n.calls = append(n.calls, p.ID+":"+v.ID)
	return nil
}

func intPtr(v int) *int { return &v }

func TestServiceCreateNormalizesAndRejectsDuplicates(t *testing.T) {
	svc := NewService(NewInMemoryRepository(), nil, logging.Default())
	ctx := context.Background()

	p, err := svc.Create(ctx, CreatePatientRequest{
		FullName: "  Jane Doe ",
		Phone:    "5551234567",
		Email:    " Jane@Example.com ",
		Age:      intPtr(34),
		Gender:   GenderFemale,
	})
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", p.FullName)
	assert.Equal(t, "jane@example.com", p.Email)
	assert.NotEmpty(t, p.ID)
	assert.False(t, p.OnboardedAt.IsZero())

	_, err = svc.Create(ctx, CreatePatientRequest{FullName: "Other", Phone: "5551234567"})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.ErrorIs(t, err, ErrDuplicatePatient)
}

func TestServiceCreateValidation(t *testing.T) {
	svc := NewService(NewInMemoryRepository(), nil, nil)
	cases := map[string]CreatePatientRequest{
		"missing name":  {Phone: "5551234567"},
		"missing phone": {FullName: "A"},
		"age too high":  {FullName: "A", Phone: "1", Age: intPtr(151)},
		"age zero":      {FullName: "A", Phone: "1", Age: intPtr(0)},
		"bad gender":    {FullName: "A", Phone: "1", Gender: "unknown"},
		"bad email":     {FullName: "A", Phone: "1", Email: "nope"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), req)
			require.Error(t, err)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		})
	}
}

func TestServiceGetPaginatesVisitsNewestFirst(t *testing.T) {
	repo := NewInMemoryRepository()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	p, err := svc.Create(ctx, CreatePatientRequest{FullName: "Sam", Phone: "5550000000"})
	require.NoError(t, err)

	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		v := &Visit{Problem: "p", Diagnosis: "d", Date: base.Add(time.Duration(i) * 24 * time.Hour)}
		require.NoError(t, repo.AddVisit(ctx, p.ID, v))
	}

	got, err := svc.Get(ctx, p.ID, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 7, got.TotalVisits)
	require.Len(t, got.Visits, 5)
	assert.Equal(t, base.Add(6*24*time.Hour), got.Visits[0].Date)

	second, err := svc.Get(ctx, p.ID, 2, 5)
	require.NoError(t, err)
	assert.Len(t, second.Visits, 2)

	_, err = svc.Get(ctx, "missing", 1, 5)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestServiceAddVisitNotifiesOnPrescription(t *testing.T) {
	notifier := &recordingNotifier{}
	svc := NewService(NewInMemoryRepository(), notifier, nil)
	ctx := context.Background()

	withEmail, err := svc.Create(ctx, CreatePatientRequest{FullName: "Ann", Phone: "111", Email: "ann@example.com"})
	require.NoError(t, err)
	noEmail, err := svc.Create(ctx, CreatePatientRequest{FullName: "Bob", Phone: "222"})
	require.NoError(t, err)

	rx := &Prescription{Medicines: []Medicine{{Name: "Amoxicillin", Timings: MedicineTimings{Morning: true}}}}

	v, err := svc.AddVisit(ctx, withEmail.ID, AddVisitRequest{Problem: "cough", Diagnosis: "bronchitis", Prescription: rx}, "dr-1")
	require.NoError(t, err)
	assert.Equal(t, "dr-1", v.CreatedBy)

	_, err = svc.AddVisit(ctx, noEmail.ID, AddVisitRequest{Problem: "cough", Diagnosis: "cold", Prescription: rx}, "dr-1")
	require.NoError(t, err)

	_, err = svc.AddVisit(ctx, withEmail.ID, AddVisitRequest{Problem: "checkup", Diagnosis: "fine"}, "dr-1")
	require.NoError(t, err)

	assert.Equal(t, []string{withEmail.ID + ":" + v.ID}, notifier.calls)

	_, err = svc.AddVisit(ctx, withEmail.ID, AddVisitRequest{Problem: "x"}, "dr-1")
	assert.ErrorIs(t, err, ErrDiagnosisRequired)
}

func TestServiceUpdatePartial(t *testing.T) {
	svc := NewService(NewInMemoryRepository(), nil, nil)
	ctx := context.Background()
	p, err := svc.Create(ctx, CreatePatientRequest{FullName: "Ann", Phone: "111", Address: "1 Main St"})
	require.NoError(t, err)

	email := " ANN@EXAMPLE.COM "
	updated, err := svc.Update(ctx, p.ID, UpdatePatientRequest{Email: &email})
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", updated.Email)
	assert.Equal(t, "1 Main St", updated.Address)
	assert.Equal(t, "Ann", updated.FullName)

	blank := " "
	_, err = svc.Update(ctx, p.ID, UpdatePatientRequest{FullName: &blank})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestServiceListAndSearch(t *testing.T) {
	svc := NewService(NewInMemoryRepository(), nil, nil)
	ctx := context.Background()
	for _, name := range []string{"Zoe Smith", "Adam Smith", "Carla Jones"} {
		_, err := svc.Create(ctx, CreatePatientRequest{FullName: name, Phone: name})
		require.NoError(t, err)
	}

	items, page, err := svc.List(ctx, ListFilter{Search: "smith", Page: 1, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, Pagination{Current: 1, Pages: 2, Total: 2}, page)

	found, err := svc.Search(ctx, "SMITH")
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "Adam Smith", found[0].FullName)

	_, err = svc.Search(ctx, "  ")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}
