package camera

// Preset names for common configurations
const (
	PresetDefault    = "default"
	PresetPhone      = "phone-26mm"
	PresetPhone720p  = "phone-720p"
	PresetDrone1080p = "drone-1080p"
	PresetDrone4K    = "drone-4k"
)

// Presets returns all available preset configurations.
func Presets() map[string]Config {
	return map[string]Config{
		PresetDefault:    DefaultConfig(),
		PresetPhone:      DefaultConfig(),
		PresetPhone720p:  HD720Config(),
		PresetDrone1080p: Drone1080Config(),
		PresetDrone4K:    Drone4KConfig(),
	}
}

// PresetNames returns the list of available preset names.
func PresetNames() []string {
	return []string{
		PresetDefault,
		PresetPhone,
		PresetPhone720p,
		PresetDrone1080p,
		PresetDrone4K,
	}
}

// GetPreset returns a preset config by name, or nil if not found.
func GetPreset(name string) *Config {
	presets := Presets()
	if cfg, ok := presets[name]; ok {
		return &cfg
	}
	return nil
}

// HD720Config returns the default lens at 1280x720.
func HD720Config() Config {
	return DefaultConfig().WithResolution(1280, 720)
}

// Drone1080Config returns a small-gimbal drone camera (5mm lens on a 6mm
// wide sensor) at 1080p.
func Drone1080Config() Config {
	return Config{
		FocalLengthMm: 5.0,
		SensorWidthMm: 6.0,
		Width:         1920,
		Height:        1080,
	}
}

// Drone4KConfig returns the same drone camera recording in 4K UHD.
func Drone4KConfig() Config {
	return Drone1080Config().WithResolution(3840, 2160)
}
