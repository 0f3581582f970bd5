package switches_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"site-controller/core/controller"
	"site-controller/core/database"
	"site-controller/feature/switches"
	"site-controller/feature/switches/models"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupFeature(t *testing.T) (*gorm.DB, *switches.Feature) {
	t.Helper()
	db, err := database.Connect(database.Config{Driver: database.DriverSQLite, Name: ":memory:"})
	require.NoError(t, err)

	cfg := controller.DefaultConfig()
	cfg.Enabled = []string{switches.Kind}
	cfg.RecoveryGracePeriod = 0
	f := switches.NewFeature(controller.Dependencies{
		Config:   cfg,
		Services: &controller.Services{DB: db},
		Logger:   zap.NewNop(),
	})
	require.NoError(t, f.Migrate(context.Background(), db))
	require.NoError(t, controller.VerifySchema(db, f.Runner().Descriptor()))
	return db, f
}

func createSwitch(t *testing.T, app *fiber.App, body string) models.Switch {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/switches", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var sw models.Switch
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sw))
	return sw
}

func loadSwitch(t *testing.T, db *gorm.DB, id string) (models.Switch, bool) {
	t.Helper()
	var sw models.Switch
	res := db.Where("id = ?", id).Limit(1).Find(&sw)
	require.NoError(t, res.Error)
	return sw, res.RowsAffected == 1
}

func TestSwitchLifecycle(t *testing.T) {
	ctx := context.Background()
	db, f := setupFeature(t)
	app := fiber.New()
	require.NoError(t, f.Load(app))

	created := createSwitch(t, app, `{"name":"leaf-01","config":{"bmc_mac":"02:00:00:00:00:01","management_ip":"10.0.0.10"}}`)
	assert.Equal(t, uint64(1), created.ControllerStateVersion.Nr)
	assert.Equal(t, models.StateInitializing, created.ControllerState.Data.State)

	steps := []struct {
		wantState   string
		wantVersion uint64
	}{
		{models.StateFetchingData, 2},
		{models.StateConfiguring, 3},
		{models.StateReady, 4},
		{models.StateReady, 4},
	}
	for _, step := range steps {
		summary, err := f.Runner().RunIteration(ctx)
		require.NoError(t, err)
		assert.Zero(t, summary.Errors)

		sw, ok := loadSwitch(t, db, created.ID)
		require.True(t, ok)
		assert.Equal(t, step.wantState, sw.ControllerState.Data.State)
		assert.Equal(t, step.wantVersion, sw.ControllerStateVersion.Nr)
	}

	sw, _ := loadSwitch(t, db, created.ID)
	require.NotNil(t, sw.Status.Data.LastFetchedAt)
	assert.True(t, sw.Status.Data.Reachable)

	resp, err := app.Test(httptest.NewRequest(http.MethodDelete, "/switches/"+created.ID, nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	_, err = f.Runner().RunIteration(ctx)
	require.NoError(t, err)
	sw, ok := loadSwitch(t, db, created.ID)
	require.True(t, ok)
	assert.Equal(t, models.StateDeleting, sw.ControllerState.Data.State)
	assert.Equal(t, uint64(5), sw.ControllerStateVersion.Nr)

	summary, err := f.Runner().RunIteration(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Outcomes[controller.OutcomeDeleted])
	_, ok = loadSwitch(t, db, created.ID)
	assert.False(t, ok, "row must be removed")

	queued, err := controller.ListQueued(ctx, db, f.Runner().Descriptor(), summary.IterationID)
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, controller.OutcomeDeleted, queued[0].Outcome)
	assert.Equal(t, controller.QueueStatusCompleted, queued[0].Status)

	history, err := f.Runner().History(ctx, created.ID, 0)
	require.NoError(t, err)
	assert.Len(t, history, 4)
}

func TestSwitchInvalidConfig(t *testing.T) {
	ctx := context.Background()
	db, f := setupFeature(t)
	app := fiber.New()
	require.NoError(t, f.Load(app))

	created := createSwitch(t, app, `{"name":"leaf-02","config":{"bmc_mac":"not-a-mac","management_ip":"10.0.0.11"}}`)

	for i := 0; i < 3; i++ {
		_, err := f.Runner().RunIteration(ctx)
		require.NoError(t, err)
	}

	sw, _ := loadSwitch(t, db, created.ID)
	assert.Equal(t, models.StateError, sw.ControllerState.Data.State)
	assert.Contains(t, sw.ControllerState.Data.Reason, "invalid bmc mac")

	report, err := f.Runner().Inspect(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateError, report.State)
	assert.False(t, report.SLA.HasSLA())
}

func TestSwitchSLA(t *testing.T) {
	a := switches.NewAdapter()
	cs := controller.InitialColumns(models.ControllerState{State: models.StateConfiguring}).Versioned()

	assert.False(t, a.StateSLA(cs, cs.Version.Timestamp.Add(29*time.Minute)).TimeInStateAboveSLA)
	assert.True(t, a.StateSLA(cs, cs.Version.Timestamp.Add(31*time.Minute)).TimeInStateAboveSLA)

	ready := controller.InitialColumns(models.ControllerState{State: models.StateReady}).Versioned()
	assert.False(t, a.StateSLA(ready, ready.Version.Timestamp.Add(48*time.Hour)).HasSLA())
}

func TestCreateValidation(t *testing.T) {
	_, f := setupFeature(t)
	app := fiber.New()
	require.NoError(t, f.Load(app))

	for name, body := range map[string]string{
		"MissingName": `{"config":{}}`,
		"BadID":       `{"id":"switch-1","name":"x"}`,
		"BadJSON":     `{`,
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/switches", strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		})
	}
}
