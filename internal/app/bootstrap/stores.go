package bootstrap

import (
	"context"
	"time"

	"github.com/wolfman30/clinic-crm/internal/appointments"
	"github.com/wolfman30/clinic-crm/internal/events"
	"github.com/wolfman30/clinic-crm/internal/notifications"
	"github.com/wolfman30/clinic-crm/internal/patients"
)

// ProcessedTracker de-duplicates provider webhook deliveries.
type ProcessedTracker interface {
	AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Stores is the storage layer used by the API and the operator CLI.
type Stores struct {
	Appointments  appointments.Repository
	Patients      patients.Repository
	Notifications notifications.Store
	Processed     ProcessedTracker
	Backend       string
}

// BuildStores returns Postgres-backed stores when db is set and in-memory
// stores otherwise.
func BuildStores(db *Database) Stores {
	if db == nil || db.Pool == nil {
		return Stores{
			Appointments:  appointments.NewInMemoryRepository(),
			Patients:      patients.NewInMemoryRepository(),
			Notifications: notifications.NewMemoryStore(),
			Processed:     events.NewMemoryProcessedStore(),
			Backend:       "memory",
		}
	}
	return Stores{
		Appointments:  appointments.NewPostgresRepository(db.Pool),
		Patients:      patients.NewPostgresRepository(db.SQL),
		Notifications: notifications.NewPostgresStore(db.Pool),
		Processed:     events.NewProcessedStore(db.Pool),
		Backend:       "postgres",
	}
}
