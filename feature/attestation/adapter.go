package attestation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"site-controller/core/configversion"
	"site-controller/core/controller"
	"site-controller/feature/attestation/models"

	"gorm.io/gorm"
)

const (
	// Kind is the controller kind of attestation sessions.
	Kind = "attestation"
	// Table is the attestation session table.
	Table = "attestation_sessions"
)

// Adapter loads and persists attestation sessions. Sessions are keyed by
// machine_id and device_id.
type Adapter struct {
	desc controller.Descriptor
}

// NewAdapter creates the attestation adapter.
func NewAdapter() *Adapter {
	return &Adapter{desc: controller.NewDescriptor(Kind, Table)}
}

func keys(id models.SessionID) map[string]any {
	return map[string]any{"machine_id": id.MachineID, "device_id": id.DeviceID}
}

func (a *Adapter) Descriptor() controller.Descriptor { return a.desc }

func (a *Adapter) ParseObjectID(raw string) (models.SessionID, error) {
	return models.ParseSessionID(raw)
}

// ListObjects returns every session, machine sessions before their devices.
func (a *Adapter) ListObjects(ctx context.Context, tx *gorm.DB) ([]models.SessionID, error) {
	var rows []struct {
		MachineID string
		DeviceID  string
	}
	err := tx.WithContext(ctx).Table(Table).
		Select("machine_id", "device_id").
		Order("machine_id").Order("device_id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", Table, err)
	}
	ids := make([]models.SessionID, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, models.SessionID{MachineID: r.MachineID, DeviceID: r.DeviceID})
	}
	return ids, nil
}

func (a *Adapter) LoadObjectState(ctx context.Context, tx *gorm.DB, id models.SessionID) (*models.Session, error) {
	var s models.Session
	err := tx.WithContext(ctx).Where(keys(id)).Take(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load attestation session %s: %w", id, err)
	}
	return &s, nil
}

func (a *Adapter) LoadControllerState(_ context.Context, _ *gorm.DB, id models.SessionID, s *models.Session) (configversion.Versioned[models.ControllerState], error) {
	if s.ControllerStateVersion.IsZero() {
		return configversion.Versioned[models.ControllerState]{}, fmt.Errorf("attestation session %s has no controller state version", id)
	}
	return s.Versioned(), nil
}

func (a *Adapter) PersistControllerState(ctx context.Context, tx *gorm.DB, id models.SessionID, expected configversion.ConfigVersion, next models.ControllerState) error {
	return controller.PersistWithHistory(ctx, tx, a.desc, keys(id), id.String(), expected, next)
}

func (a *Adapter) PersistOutcome(ctx context.Context, tx *gorm.DB, id models.SessionID, outcome controller.PersistentOutcome) error {
	return controller.UpdateOutcome(ctx, tx, Table, keys(id), outcome)
}

func (a *Adapter) LoadOutcome(ctx context.Context, tx *gorm.DB, id models.SessionID) (*controller.PersistentOutcome, error) {
	return controller.LoadOutcome(ctx, tx, Table, keys(id))
}

func (a *Adapter) MetricStateNames(cs models.ControllerState) (string, string) {
	return cs.State, ""
}

// StateSLA returns NoSLA for every state.
func (a *Adapter) StateSLA(configversion.Versioned[models.ControllerState], time.Time) controller.SLA {
	return controller.NoSLA()
}
