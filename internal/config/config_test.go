package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/san-kum/edgeflight/internal/control"
	"github.com/san-kum/edgeflight/internal/physics"
	"github.com/san-kum/edgeflight/internal/planner"
	"github.com/san-kum/edgeflight/internal/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestDefaultConfigMatchesComponents(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	if diff := cmp.Diff(planner.DefaultConfig(), cfg.PlannerConfig()); diff != "" {
		t.Errorf("planner config differs (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(control.DefaultConfig(), cfg.ControllerConfig()); diff != "" {
		t.Errorf("controller config differs (-want +got):\n%s", diff)
	}
	assert.Equal(t, sim.DefaultConfig(), cfg.SimConfig())

	q := cfg.VehicleModel()
	want := physics.NewQuadrotor()
	assert.Equal(t, want.Mass, q.Mass)
	assert.Equal(t, want.Inertia, q.Inertia)
	assert.Equal(t, want.DragCoeff, q.DragCoeff)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flight.yaml")
	cfg := GetPreset("agile")
	cfg.Mission.Obstacles = []ObstacleParams{{Center: Vec3{3, 0.5, 1}, Radius: 0.8}}
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	if diff := cmp.Diff(cfg, loaded); diff != "" {
		t.Errorf("round trip differs (-saved +loaded):\n%s", diff)
	}
}

func TestLoadPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	data := []byte("vehicle:\n  max_velocity: 3\nmission:\n  goal: [8, 2, 1.5]\n  obstacles:\n    - center: [4, 1, 1.5]\n      radius: 1\n")
	require.NoError(t, os.WriteFile(path, data, 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3.0, cfg.PlannerConfig().MaxVelocity)
	assert.InDelta(t, 0.6, cfg.PlannerConfig().MaxStepDisplacement, 1e-12)
	assert.Equal(t, r3.Vec{X: 8, Y: 2, Z: 1.5}, cfg.Goal())
	require.Len(t, cfg.Obstacles(), 1)
	assert.Equal(t, 1.0, cfg.Obstacles()[0].Radius)
	assert.Equal(t, DefaultConfig().Controller, cfg.Controller, "untouched sections keep their defaults")
}

func TestLoadRejects(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("vehicle: [not, a, map]\n"), 0644))
	_, err = Load(bad)
	assert.Error(t, err)

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("vehicle:\n  mass: 0\n"), 0644))
	_, err = Load(invalid)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"thrust cannot hover", func(c *Config) { c.Vehicle.MaxThrust = 5 }},
		{"control slower than failsafe limit", func(c *Config) { c.Sim.ControlDt = 0.1 }},
		{"no planning", func(c *Config) { c.Sim.PlanEvery = 0 }},
		{"flat inertia", func(c *Config) { c.Vehicle.Inertia = Vec3{0.01, 0, 0.01} }},
		{"bad obstacle", func(c *Config) { c.Mission.Obstacles = []ObstacleParams{{Radius: -1}} }},
		{"no horizon", func(c *Config) { c.Planner.Horizon = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestPresets(t *testing.T) {
	assert.Equal(t, []string{"agile", "cautious", "hover"}, ListPresets())
	for _, name := range ListPresets() {
		cfg := GetPreset(name)
		require.NotNil(t, cfg, name)
		assert.NoError(t, cfg.Validate(), name)
	}
	assert.Nil(t, GetPreset("nonexistent"))

	hover := GetPreset("hover")
	assert.Equal(t, hover.Mission.Start, hover.Mission.Goal)
	assert.Less(t, GetPreset("cautious").PlannerConfig().MaxVelocity, DefaultConfig().PlannerConfig().MaxVelocity)
}

func TestNewSimulator(t *testing.T) {
	cfg := GetPreset("hover")
	cfg.Mission.Obstacles = []ObstacleParams{{Center: Vec3{5, 5, 1}, Radius: 0.5}}
	s, err := cfg.NewSimulator()
	require.NoError(t, err)
	require.NotNil(t, s)

	cfg.Vehicle.Mass = -1
	_, err = cfg.NewSimulator()
	assert.Error(t, err)
}
