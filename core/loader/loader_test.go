package loader_test

import (
	"context"
	"errors"
	"testing"

	"site-controller/core/controller"
	"site-controller/core/loader"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type plainFeature struct {
	name    string
	enabled bool
	loadErr error
	loaded  bool
}

func (f *plainFeature) Name() string    { return f.name }
func (f *plainFeature) IsEnabled() bool { return f.enabled }
func (f *plainFeature) Load(app fiber.Router) error {
	f.loaded = true
	return f.loadErr
}

type migratingFeature struct {
	plainFeature
	migrated bool
}

func (f *migratingFeature) Migrate(context.Context, *gorm.DB) error {
	f.migrated = true
	return nil
}

func (f *migratingFeature) Runner() controller.Runner { return nil }

func TestManager_LoadAll(t *testing.T) {
	enabled := &plainFeature{name: "on", enabled: true}
	disabled := &plainFeature{name: "off"}

	mgr := loader.NewManager()
	mgr.Register(enabled)
	mgr.Register(disabled)

	require.NoError(t, mgr.LoadAll(fiber.New()))
	assert.True(t, enabled.loaded)
	assert.False(t, disabled.loaded)
	assert.Len(t, mgr.Enabled(), 1)
}

func TestManager_LoadAllError(t *testing.T) {
	mgr := loader.NewManager()
	mgr.Register(&plainFeature{name: "broken", enabled: true, loadErr: errors.New("bad route")})

	err := mgr.LoadAll(fiber.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestManager_MigrateAll(t *testing.T) {
	on := &migratingFeature{plainFeature: plainFeature{name: "rack", enabled: true}}
	off := &migratingFeature{plainFeature: plainFeature{name: "switch"}}

	mgr := loader.NewManager()
	mgr.Register(on)
	mgr.Register(off)
	mgr.Register(&plainFeature{name: "routes-only", enabled: true})

	require.NoError(t, mgr.MigrateAll(context.Background(), nil))
	assert.True(t, on.migrated)
	assert.False(t, off.migrated)
}
