package powershelf_test

import (
	"context"
	"testing"

	"site-controller/core/controller"
	"site-controller/core/database"
	"site-controller/core/resource"
	"site-controller/feature/powershelf"
	"site-controller/feature/powershelf/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setup(t *testing.T) (*gorm.DB, *powershelf.Feature) {
	t.Helper()
	db, err := database.Connect(database.Config{Driver: database.DriverSQLite, Name: ":memory:"})
	require.NoError(t, err)

	cfg := controller.DefaultConfig()
	cfg.RecoveryGracePeriod = 0
	f := powershelf.NewFeature(controller.Dependencies{
		Config:   cfg,
		Services: &controller.Services{DB: db},
		Logger:   zap.NewNop(),
	})
	require.NoError(t, f.Migrate(context.Background(), db))
	return db, f
}

func seed(t *testing.T, db *gorm.DB, name string, cfg models.Config) string {
	t.Helper()
	id := models.NewPowerShelfID().String()
	require.NoError(t, db.Create(&models.PowerShelf{
		ID:                id,
		Name:              name,
		Config:            database.NewJSON(cfg),
		Status:            database.NewJSON(models.Status{}),
		ControllerColumns: controller.InitialColumns(models.ControllerState{State: models.StateInitializing}),
	}).Error)
	return id
}

func stateOf(t *testing.T, db *gorm.DB, id string) models.ControllerState {
	t.Helper()
	var shelf models.PowerShelf
	require.NoError(t, db.Where("id = ?", id).Take(&shelf).Error)
	return shelf.ControllerState.Data
}

func TestPowerShelfStates(t *testing.T) {
	ctx := context.Background()
	db, f := setup(t)

	tests := []struct {
		name       string
		cfg        models.Config
		wantState  string
		wantReason string
	}{
		{"Valid", models.Config{PSUCount: 6, BMCMac: "02:00:00:00:01:01"}, models.StateReady, ""},
		{"NoPSUs", models.Config{PSUCount: 0, BMCMac: "02:00:00:00:01:02"}, models.StateError, "psu_count must be positive"},
		{"BadMAC", models.Config{PSUCount: 4, BMCMac: "zz"}, models.StateError, "invalid bmc mac"},
	}

	ids := make(map[string]string)
	for _, tt := range tests {
		ids[tt.name] = seed(t, db, tt.name, tt.cfg)
	}
	for i := 0; i < 3; i++ {
		summary, err := f.Runner().RunIteration(ctx)
		require.NoError(t, err)
		assert.Equal(t, len(tests), summary.Objects)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cs := stateOf(t, db, ids[tt.name])
			assert.Equal(t, tt.wantState, cs.State)
			assert.Contains(t, cs.Reason, tt.wantReason)
		})
	}
}

func TestPowerShelfDeletion(t *testing.T) {
	ctx := context.Background()
	db, f := setup(t)
	id := seed(t, db, "shelf", models.Config{PSUCount: 6, BMCMac: "02:00:00:00:01:01"})

	for i := 0; i < 3; i++ {
		_, err := f.Runner().RunIteration(ctx)
		require.NoError(t, err)
	}
	require.NoError(t, resource.NewStore[models.PowerShelf](db, powershelf.Table).MarkDeleted(ctx, id))

	_, err := f.Runner().RunIteration(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.StateDeleting, stateOf(t, db, id).State)

	summary, err := f.Runner().RunIteration(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Outcomes[controller.OutcomeDeleted])

	var count int64
	require.NoError(t, db.Table(powershelf.Table).Count(&count).Error)
	assert.Zero(t, count)
}
