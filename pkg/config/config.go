package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Platform backends.
const (
	BackendSim    = "sim"
	BackendDevMem = "devmem"
	BackendSerial = "serial"
)

// Calibration sources.
const (
	SourceFallback = "fallback"
	SourceFuses    = "fuses"
)

// Config represents the application configuration.
type Config struct {
	SoC         SoCConfig         `yaml:"soc"`
	Platform    PlatformConfig    `yaml:"platform"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Zones       ZonesConfig       `yaml:"zones"`
	Redis       RedisConfig       `yaml:"redis"`
	Display     DisplayConfig     `yaml:"display"`
	Sim         SimConfig         `yaml:"sim"`
}

// SoCConfig selects where the SoC identity comes from.
type SoCConfig struct {
	Sysfs string `yaml:"sysfs"`
	// Non-empty fields override the detected attributes.
	Family   string `yaml:"family,omitempty"`
	SoCID    string `yaml:"soc_id,omitempty"`
	Revision string `yaml:"revision,omitempty"`
}

// PlatformConfig describes how the sensor hardware is reached.
type PlatformConfig struct {
	Backend string `yaml:"backend"` // sim, devmem or serial
	FDT     string `yaml:"fdt"`     // Flattened device tree blob used to find the channels
	DevMem  string `yaml:"devmem"`
	// Channels are used when the device tree has no thermal node.
	Channels []ChannelConfig `yaml:"channels"`
	IRQs     []string        `yaml:"irqs"` // UIO devices, one per interrupt line
	// IRQPoll is the status poll period used when no UIO device is given.
	IRQPoll time.Duration `yaml:"irq_poll"`
	Serial  SerialConfig  `yaml:"serial"`
}

// ChannelConfig is the register window of one channel.
type ChannelConfig struct {
	Base uint64 `yaml:"base"`
	Size uint64 `yaml:"size"`
}

// SerialConfig contains the register bridge serial port configuration.
type SerialConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// CalibrationConfig contains the calibration source and fallback codes.
type CalibrationConfig struct {
	Source string     `yaml:"source"` // fallback or fuses
	PTAT   [3]int32   `yaml:"ptat"`
	THCode [][3]int32 `yaml:"thcode"` // one triplet per channel
}

// ZonesConfig contains the thermal zone parameters.
type ZonesConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"` // 0 disables polling
	Trips        []TripConfig  `yaml:"trips"`
}

// TripConfig is a trip point shared by every zone.
type TripConfig struct {
	Name       string `yaml:"name"`
	Temp       int    `yaml:"temp"`       // Millicelsius
	Hysteresis int    `yaml:"hysteresis"` // Millicelsius
	Type       string `yaml:"type"`
}

// RedisConfig contains the publisher configuration.
type RedisConfig struct {
	Addr string `yaml:"addr"` // Empty disables publishing
	Hash string `yaml:"hash"`
}

// DisplayConfig contains the monitor parameters.
type DisplayConfig struct {
	WindowSeconds float64 `yaml:"window_seconds"`
	MaxPoints     int     `yaml:"max_points"`
}

// SimConfig contains simulator configuration.
type SimConfig struct {
	Ambient      float32       `yaml:"ambient"`       // Die temperature with heaters off (°C)
	HeaterRise   float32       `yaml:"heater_rise"`   // Steady-state rise of a heated channel (°C)
	Coupling     float32       `yaml:"coupling"`      // Share of the rise seen by the other channels
	TimeConstant time.Duration `yaml:"time_constant"` // Thermal time constant
	Noise        float32       `yaml:"noise"`         // Noise amplitude (°C)
	Tick         time.Duration `yaml:"tick"`          // Simulation step
	Channels     int           `yaml:"channels"`
	Fused        bool          `yaml:"fused"` // Program calibration fuses
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		SoC: SoCConfig{
			Sysfs: "/sys/devices/soc0",
		},
		Platform: PlatformConfig{
			Backend: BackendSim,
			FDT:     "/sys/firmware/fdt",
			DevMem:  "/dev/mem",
			Channels: []ChannelConfig{
				{Base: 0xe6198000, Size: 0x100},
				{Base: 0xe61a0000, Size: 0x100},
				{Base: 0xe61a8000, Size: 0x100},
			},
			IRQs:    []string{"/dev/uio0", "/dev/uio1"},
			IRQPoll: 100 * time.Millisecond,
			Serial: SerialConfig{
				Port: "/dev/ttyACM0",
				Baud: 115200,
			},
		},
		Calibration: CalibrationConfig{
			Source: SourceFallback,
			PTAT:   [3]int32{2351, 1509, 435},
			THCode: [][3]int32{
				{3248, 2800, 2221},
				{3245, 2795, 2216},
				{3250, 2805, 2237},
			},
		},
		Zones: ZonesConfig{
			PollInterval: time.Second,
			Trips: []TripConfig{
				{Name: "target", Temp: 100000, Hysteresis: 1000, Type: "passive"},
				{Name: "crit", Temp: 120000, Hysteresis: 1000, Type: "critical"},
			},
		},
		Redis: RedisConfig{
			Hash: "platina",
		},
		Display: DisplayConfig{
			WindowSeconds: 120,
			MaxPoints:     600,
		},
		Sim: SimConfig{
			Ambient:      35,
			HeaterRise:   70,
			Coupling:     0.3,
			TimeConstant: 5 * time.Second,
			Noise:        0.2,
			Tick:         100 * time.Millisecond,
			Channels:     3,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks values that have no sensible default.
func (c *Config) Validate() error {
	switch c.Platform.Backend {
	case BackendSim, BackendDevMem, BackendSerial:
	default:
		return fmt.Errorf("unknown platform backend %q", c.Platform.Backend)
	}

	switch c.Calibration.Source {
	case SourceFallback, SourceFuses:
	default:
		return fmt.Errorf("unknown calibration source %q", c.Calibration.Source)
	}

	if len(c.Platform.Channels) > 3 {
		return fmt.Errorf("too many channels: %d", len(c.Platform.Channels))
	}
	for i, ch := range c.Platform.Channels {
		if ch.Size == 0 || ch.Size%4 != 0 {
			return fmt.Errorf("channel %d: invalid window size %#x", i, ch.Size)
		}
	}

	if c.Sim.Channels < 1 || c.Sim.Channels > 3 {
		return fmt.Errorf("sim: invalid channel count %d", c.Sim.Channels)
	}

	for _, t := range c.Zones.Trips {
		if t.Hysteresis < 0 {
			return fmt.Errorf("trip %s: negative hysteresis", t.Name)
		}
	}

	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.SoC.Sysfs == "" {
		c.SoC.Sysfs = def.SoC.Sysfs
	}

	if c.Platform.Backend == "" {
		c.Platform.Backend = def.Platform.Backend
	}
	if c.Platform.FDT == "" {
		c.Platform.FDT = def.Platform.FDT
	}
	if c.Platform.DevMem == "" {
		c.Platform.DevMem = def.Platform.DevMem
	}
	if c.Platform.IRQPoll == 0 {
		c.Platform.IRQPoll = def.Platform.IRQPoll
	}
	if c.Platform.Serial.Baud == 0 {
		c.Platform.Serial.Baud = def.Platform.Serial.Baud
	}

	if c.Calibration.Source == "" {
		c.Calibration.Source = def.Calibration.Source
	}
	if c.Calibration.PTAT == [3]int32{} {
		c.Calibration.PTAT = def.Calibration.PTAT
	}
	if len(c.Calibration.THCode) == 0 {
		c.Calibration.THCode = def.Calibration.THCode
	}

	if c.Redis.Hash == "" {
		c.Redis.Hash = def.Redis.Hash
	}

	if c.Display.WindowSeconds == 0 {
		c.Display.WindowSeconds = def.Display.WindowSeconds
	}
	if c.Display.MaxPoints == 0 {
		c.Display.MaxPoints = def.Display.MaxPoints
	}

	if c.Sim.Tick == 0 {
		c.Sim.Tick = def.Sim.Tick
	}
	if c.Sim.TimeConstant == 0 {
		c.Sim.TimeConstant = def.Sim.TimeConstant
	}
	if c.Sim.Channels == 0 {
		c.Sim.Channels = def.Sim.Channels
	}
}
