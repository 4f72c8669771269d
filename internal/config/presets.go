package config

import "sort"

// Presets adjust the defaults for a flight style.
var Presets = map[string]func(*Config){
	"hover": func(c *Config) {
		c.Sim.Duration = 5
		c.Mission.Goal = c.Mission.Start
	},
	"agile": func(c *Config) {
		c.Vehicle.MaxVelocity = 8
		c.Vehicle.MaxTilt = 0.8
		c.Vehicle.MaxThrust = 35
		c.Vehicle.MaxTorque = 0.8
		c.Planner.Weights.Velocity = 0.15
		c.Controller.KpPos = Vec3{6, 6, 8}
		c.Controller.KdPos = Vec3{4, 4, 5}
		c.Controller.KpAtt = Vec3{3, 3, 1.5}
		c.Controller.KdAtt = Vec3{0.3, 0.3, 0.2}
	},
	"cautious": func(c *Config) {
		c.Vehicle.MaxVelocity = 2
		c.Vehicle.MaxTilt = 0.35
		c.Planner.ObstacleMargin = 1.0
		c.Planner.FallbackSpeedFraction = 0.3
		c.Planner.Weights.Velocity = 0.6
		c.Controller.HysteresisTicks = 50
	},
}

// GetPreset returns the defaults with the named preset applied, or nil.
func GetPreset(name string) *Config {
	apply, ok := Presets[name]
	if !ok {
		return nil
	}
	cfg := DefaultConfig()
	apply(cfg)
	return cfg
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
