package networksegment_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"site-controller/core/controller"
	"site-controller/core/database"
	"site-controller/feature/networksegment"
	"site-controller/feature/networksegment/models"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db    *gorm.DB
	f     *networksegment.Feature
	app   *fiber.App
	clock time.Time
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Connect(database.Config{Driver: database.DriverSQLite, Name: ":memory:"})
	require.NoError(t, err)

	fx := &fixture{db: db, clock: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	cfg := controller.DefaultConfig()
	cfg.RecoveryGracePeriod = 0
	fx.f = networksegment.NewFeature(controller.Dependencies{
		Config:   cfg,
		Services: &controller.Services{DB: db, Now: func() time.Time { return fx.clock }},
		Logger:   zap.NewNop(),
	})
	require.NoError(t, fx.f.Migrate(context.Background(), db))
	fx.app = fiber.New()
	require.NoError(t, fx.f.Load(fx.app))
	return fx
}

func (fx *fixture) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	resp, err := fx.app.Test(req)
	require.NoError(t, err)
	return resp
}

func (fx *fixture) iterate(t *testing.T) *controller.IterationSummary {
	t.Helper()
	summary, err := fx.f.Runner().RunIteration(context.Background())
	require.NoError(t, err)
	return summary
}

func (fx *fixture) state(t *testing.T, id string) models.ControllerState {
	t.Helper()
	var seg models.NetworkSegment
	require.NoError(t, fx.db.Where("id = ?", id).Take(&seg).Error)
	return seg.ControllerState.Data
}

func (fx *fixture) create(t *testing.T, body string) string {
	t.Helper()
	resp := fx.do(t, http.MethodPost, "/network-segments", body)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var seg models.NetworkSegment
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&seg))
	return seg.ID
}

func TestSegmentLifecycle(t *testing.T) {
	fx := setup(t)
	id := fx.create(t, `{"name":"tenant-a","prefix":"10.1.0.0/24","reserved_ips":3}`)

	fx.iterate(t)
	assert.Equal(t, models.StateReady, fx.state(t, id).State)

	resp := fx.do(t, http.MethodPost, "/network-segments/"+id+"/addresses", "")
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var addr models.Address
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&addr))
	assert.Equal(t, "10.1.0.3", addr.Address)

	fx.iterate(t)
	expected := `
# HELP site_network_segment_available_ips The number of addresses that can still be allocated in a network segment
# TYPE site_network_segment_available_ips gauge
site_network_segment_available_ips{fresh="true",name="tenant-a",prefix="10.1.0.0/24",type="tenant"} 252
# HELP site_network_segment_total_ips The total number of addresses in a network segment
# TYPE site_network_segment_total_ips gauge
site_network_segment_total_ips{fresh="true",name="tenant-a",prefix="10.1.0.0/24",type="tenant"} 256
`
	require.NoError(t, testutil.CollectAndCompare(fx.f.Runner(), strings.NewReader(expected),
		"site_network_segment_available_ips", "site_network_segment_total_ips"))

	require.Equal(t, fiber.StatusAccepted, fx.do(t, http.MethodDelete, "/network-segments/"+id, "").StatusCode)
	fx.iterate(t)
	cs := fx.state(t, id)
	assert.Equal(t, models.StateDeleting, cs.State)
	require.NotNil(t, cs.Deleting)
	assert.Equal(t, models.DeletingDrainAllocatedIPs, cs.Deleting.Phase)

	// Waits for the allocated address.
	fx.clock = fx.clock.Add(time.Hour)
	summary := fx.iterate(t)
	assert.Equal(t, 1, summary.Outcomes[controller.OutcomeWait])
	report, err := fx.f.Runner().Inspect(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "1 addresses still allocated", report.Outcome.Reason)
	assert.Equal(t, "deleting/drain_allocated_ips", report.State)

	require.Equal(t, fiber.StatusNoContent, fx.do(t, http.MethodDelete, "/network-segments/"+id+"/addresses/10.1.0.3", "").StatusCode)
	fx.iterate(t)
	assert.Equal(t, models.DeletingDBDelete, fx.state(t, id).Deleting.Phase)

	summary = fx.iterate(t)
	assert.Equal(t, 1, summary.Outcomes[controller.OutcomeDeleted])
	var n int64
	require.NoError(t, fx.db.Table(networksegment.Table).Count(&n).Error)
	assert.Zero(t, n)
}

func TestSegmentDrainPeriod(t *testing.T) {
	fx := setup(t)
	id := fx.create(t, `{"name":"admin","segment_type":"admin","prefix":"192.168.0.0/28"}`)
	fx.iterate(t)
	require.Equal(t, fiber.StatusAccepted, fx.do(t, http.MethodDelete, "/network-segments/"+id, "").StatusCode)
	fx.iterate(t)

	fx.clock = fx.clock.Add(networksegment.DefaultDrainPeriod / 2)
	fx.iterate(t)
	assert.Equal(t, models.DeletingDrainAllocatedIPs, fx.state(t, id).Deleting.Phase)

	fx.clock = fx.clock.Add(networksegment.DefaultDrainPeriod)
	fx.iterate(t)
	assert.Equal(t, models.DeletingDBDelete, fx.state(t, id).Deleting.Phase)
}

func TestSegmentInvalidPrefixWaits(t *testing.T) {
	fx := setup(t)
	id := fx.create(t, `{"name":"broken","prefix":"10.0.0.0/33"}`)

	summary := fx.iterate(t)
	assert.Equal(t, 1, summary.Outcomes[controller.OutcomeWait])
	assert.Equal(t, models.StateProvisioning, fx.state(t, id).State)
	assert.Equal(t, fiber.StatusConflict, fx.do(t, http.MethodPost, "/network-segments/"+id+"/addresses", "").StatusCode)
}

func TestAllocateExhaustsPool(t *testing.T) {
	fx := setup(t)
	id := fx.create(t, `{"name":"tiny","prefix":"10.9.0.0/30","reserved_ips":2}`)
	fx.iterate(t)

	for _, want := range []string{"10.9.0.2", "10.9.0.3"} {
		addr, err := networksegment.Allocate(context.Background(), fx.db, id, fx.clock)
		require.NoError(t, err)
		assert.Equal(t, want, addr.Address)
	}
	_, err := networksegment.Allocate(context.Background(), fx.db, id, fx.clock)
	assert.ErrorIs(t, err, networksegment.ErrPoolExhausted)

	assert.Equal(t, fiber.StatusNotFound, fx.do(t, http.MethodPost, "/network-segments/00000000-0000-0000-0000-000000000000/addresses", "").StatusCode)
}

func TestCreateValidation(t *testing.T) {
	fx := setup(t)
	for name, body := range map[string]string{
		"MissingPrefix": `{"name":"x"}`,
		"UnknownType":   `{"name":"x","prefix":"10.0.0.0/24","segment_type":"storage"}`,
		"NegativeRes":   `{"name":"x","prefix":"10.0.0.0/24","reserved_ips":-1}`,
	} {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, fiber.StatusBadRequest, fx.do(t, http.MethodPost, "/network-segments", body).StatusCode)
		})
	}
}
