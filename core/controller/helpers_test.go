package controller

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"site-controller/core/configversion"
	"site-controller/core/database"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type widgetID string

func (id widgetID) String() string { return string(id) }

type widgetState struct {
	State  string `json:"state"`
	Reason string `json:"reason,omitempty"`
}

type widget struct {
	ID      string `gorm:"primaryKey;size:64"`
	Name    string
	Deleted *time.Time
	ControllerColumns[widgetState]
}

func (widget) TableName() string { return "widgets" }

type widgetMetrics struct {
	Visited bool
}

type widgetAdapter struct {
	desc   Descriptor
	sla    time.Duration
	listFn func(ctx context.Context, tx *gorm.DB) ([]widgetID, error)
}

func newWidgetAdapter() *widgetAdapter {
	return &widgetAdapter{desc: NewDescriptor("widget", "widgets"), sla: 5 * time.Minute}
}

func (a *widgetAdapter) Descriptor() Descriptor { return a.desc }

func (a *widgetAdapter) ParseObjectID(raw string) (widgetID, error) {
	if raw == "" {
		return "", errors.New("empty widget id")
	}
	return widgetID(raw), nil
}

func (a *widgetAdapter) ListObjects(ctx context.Context, tx *gorm.DB) ([]widgetID, error) {
	if a.listFn != nil {
		return a.listFn(ctx, tx)
	}
	var ids []string
	if err := tx.WithContext(ctx).Model(&widget{}).Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	out := make([]widgetID, 0, len(ids))
	for _, id := range ids {
		out = append(out, widgetID(id))
	}
	return out, nil
}

func (a *widgetAdapter) LoadObjectState(ctx context.Context, tx *gorm.DB, id widgetID) (*widget, error) {
	var w widget
	err := tx.WithContext(ctx).Where("id = ?", string(id)).Take(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (a *widgetAdapter) LoadControllerState(_ context.Context, _ *gorm.DB, _ widgetID, state *widget) (configversion.Versioned[widgetState], error) {
	return state.Versioned(), nil
}

func (a *widgetAdapter) PersistControllerState(ctx context.Context, tx *gorm.DB, id widgetID, expected configversion.ConfigVersion, next widgetState) error {
	return PersistWithHistory(ctx, tx, a.desc, map[string]any{"id": string(id)}, id.String(), expected, next)
}

func (a *widgetAdapter) PersistOutcome(ctx context.Context, tx *gorm.DB, id widgetID, outcome PersistentOutcome) error {
	return UpdateOutcome(ctx, tx, a.desc.ObjectTable, map[string]any{"id": string(id)}, outcome)
}

func (a *widgetAdapter) LoadOutcome(ctx context.Context, tx *gorm.DB, id widgetID) (*PersistentOutcome, error) {
	return LoadOutcome(ctx, tx, a.desc.ObjectTable, map[string]any{"id": string(id)})
}

func (a *widgetAdapter) MetricStateNames(cs widgetState) (string, string) {
	return cs.State, ""
}

func (a *widgetAdapter) StateSLA(cs configversion.Versioned[widgetState], now time.Time) SLA {
	if cs.Value.State == "syncing" {
		return SLAFor(a.sla, cs.Version, now)
	}
	return NoSLA()
}

// lifecycleHandler walks new -> syncing -> ready and then does nothing.
func lifecycleHandler() StateHandlerFunc[widgetID, widget, widgetState, widgetMetrics] {
	return func(_ context.Context, _ widgetID, _ *widget, cs configversion.Versioned[widgetState], hctx *HandlerContext[widgetMetrics]) (Outcome[widgetState], error) {
		hctx.Metrics.Visited = true
		switch cs.Value.State {
		case "new":
			return Transition(widgetState{State: "syncing"}), nil
		case "syncing":
			return Transition(widgetState{State: "ready"}), nil
		default:
			return DoNothing[widgetState](), nil
		}
	}
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Connect(database.Config{Driver: database.DriverSQLite, Name: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&widget{}))
	require.NoError(t, EnsureTables(context.Background(), db, newWidgetAdapter().Descriptor()))
	return db
}

func seedWidgets(t *testing.T, db *gorm.DB, state string, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("w%02d", i)
		require.NoError(t, db.Create(&widget{
			ID:                id,
			Name:              "widget " + id,
			ControllerColumns: InitialColumns(widgetState{State: state}),
		}).Error)
		ids = append(ids, id)
	}
	return ids
}

func loadWidget(t *testing.T, db *gorm.DB, id string) widget {
	t.Helper()
	var w widget
	require.NoError(t, db.Where("id = ?", id).Take(&w).Error)
	return w
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RecoveryGracePeriod = 0
	cfg.MinIterationGap = 10 * time.Millisecond
	return cfg
}

func newWidgetController(t *testing.T, db *gorm.DB, handler StateHandler[widgetID, widget, widgetState, widgetMetrics], cfg Config) *Controller[widgetID, widget, widgetState, widgetMetrics] {
	t.Helper()
	return New[widgetID, widget, widgetState, widgetMetrics](newWidgetAdapter(), handler, &widgetEmitter{}, Dependencies{
		Config:   cfg,
		Services: &Services{DB: db},
	})
}
