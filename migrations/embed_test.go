package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEveryUpMigrationHasADown(t *testing.T) {
	ups, err := fs.Glob(FS, "*.up.sql")
	require.NoError(t, err)
	require.NotEmpty(t, ups)

	for _, up := range ups {
		down := strings.TrimSuffix(up, ".up.sql") + ".down.sql"
		_, err := fs.Stat(FS, down)
		assert.NoError(t, err, "missing %s", down)
	}
}

func TestSchemaCreatesClinicTables(t *testing.T) {
	raw, err := fs.ReadFile(FS, "000001_clinic_schema.up.sql")
	require.NoError(t, err)
	schema := string(raw)
	for _, table := range []string{"patients", "patient_visits", "appointments", "notifications", "processed_events"} {
		assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS "+table+" ")
	}
}

func TestSchemaLetsPendingRequestsBeCancelled(t *testing.T) {
	raw, err := fs.ReadFile(FS, "000001_clinic_schema.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(raw), "(status = 'cancelled' AND appointment_date IS NULL AND appointment_time IS NULL)")
}
