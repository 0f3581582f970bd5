package loader

import (
	"context"
	"fmt"

	"site-controller/core/controller"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// Feature is a module that registers HTTP routes.
type Feature interface {
	Name() string
	IsEnabled() bool
	Load(app fiber.Router) error
}

// ControllerFeature is a Feature that owns an object table and the
// controller reconciling it.
type ControllerFeature interface {
	Feature
	// Migrate creates the object table and the controller tables.
	Migrate(ctx context.Context, db *gorm.DB) error
	// Runner returns the feature's controller.
	Runner() controller.Runner
}

// Manager holds the registered features.
type Manager struct {
	features []Feature
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{}
}

// Register adds f.
func (m *Manager) Register(f Feature) {
	m.features = append(m.features, f)
}

// Enabled returns the enabled features in registration order.
func (m *Manager) Enabled() []Feature {
	out := make([]Feature, 0, len(m.features))
	for _, f := range m.features {
		if f.IsEnabled() {
			out = append(out, f)
		}
	}
	return out
}

// LoadAll registers the routes of every enabled feature.
func (m *Manager) LoadAll(app fiber.Router) error {
	for _, f := range m.Enabled() {
		if err := f.Load(app); err != nil {
			return fmt.Errorf("failed to load feature %s: %w", f.Name(), err)
		}
	}
	return nil
}

// MigrateAll migrates the tables of every enabled controller feature.
func (m *Manager) MigrateAll(ctx context.Context, db *gorm.DB) error {
	for _, f := range m.Enabled() {
		cf, ok := f.(ControllerFeature)
		if !ok {
			continue
		}
		if err := cf.Migrate(ctx, db); err != nil {
			return fmt.Errorf("failed to migrate feature %s: %w", f.Name(), err)
		}
	}
	return nil
}

// VerifyAll checks that the object table of every enabled controller feature
// carries the controller columns.
func (m *Manager) VerifyAll(db *gorm.DB) error {
	for _, f := range m.Enabled() {
		cf, ok := f.(ControllerFeature)
		if !ok {
			continue
		}
		if err := controller.VerifySchema(db, cf.Runner().Descriptor()); err != nil {
			return err
		}
	}
	return nil
}

// Registry registers the controller of every enabled controller feature.
func (m *Manager) Registry() (*controller.Registry, error) {
	reg := controller.NewRegistry()
	for _, f := range m.Enabled() {
		cf, ok := f.(ControllerFeature)
		if !ok {
			continue
		}
		if err := reg.Register(cf.Runner()); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
