package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Engine    EngineConfig    `toml:"engine"`
	Window    WindowConfig    `toml:"window"`
	GPU       GPUConfig       `toml:"gpu"`
	World     WorldConfig     `toml:"world"`
	Logging   LoggingConfig   `toml:"logging"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

type EngineConfig struct {
	TargetDynTPS    int `toml:"target_dyn_tps"`   // logic ticks per second
	FixedTickRate   int `toml:"fixed_tick_rate"`  // fixed-step updates per second
	MaxFrameLag     int `toml:"max_frame_lag"`    // frame queue holds at most max_frame_lag+1
	ReservedThreads int `toml:"reserved_threads"` // subtracted from NumCPU for the worker pool
	MaxFixedSteps   int `toml:"max_fixed_steps"`  // fixed-step catch-up cap per tick
}

type WindowConfig struct {
	Title  string `toml:"title"`
	Width  int    `toml:"width"`
	Height int    `toml:"height"`
}

type GPUConfig struct {
	IdlePoll        time.Duration `toml:"idle_poll"`        // max GPU loop sleep when idle
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"` // bound on waiting for GPU idle
}

type WorldConfig struct {
	Path       string `toml:"path"`
	ScriptsDir string `toml:"scripts_dir"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

type TelemetryConfig struct {
	Enabled    bool          `toml:"enabled"`
	DSN        string        `toml:"dsn"`
	MaxConns   int           `toml:"max_conns"`
	FlushEvery int           `toml:"flush_every"` // ticks per batch
	Buffer     int           `toml:"buffer"`      // batches in flight before dropping
	Timeout    time.Duration `toml:"timeout"`     // per-batch write timeout
}

// FixedInterval is the period of one fixed-step update.
func (c EngineConfig) FixedInterval() time.Duration {
	if c.FixedTickRate <= 0 {
		return 0
	}
	return time.Second / time.Duration(c.FixedTickRate)
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Engine.TargetDynTPS <= 0 {
		errs = append(errs, fmt.Errorf("engine.target_dyn_tps must be positive, got %d", c.Engine.TargetDynTPS))
	}
	if c.Engine.FixedTickRate < 0 {
		errs = append(errs, fmt.Errorf("engine.fixed_tick_rate must not be negative, got %d", c.Engine.FixedTickRate))
	}
	if c.Engine.MaxFrameLag < 0 {
		errs = append(errs, fmt.Errorf("engine.max_frame_lag must not be negative, got %d", c.Engine.MaxFrameLag))
	}
	if c.Engine.ReservedThreads < 0 {
		errs = append(errs, fmt.Errorf("engine.reserved_threads must not be negative, got %d", c.Engine.ReservedThreads))
	}
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		errs = append(errs, fmt.Errorf("window size must be positive, got %dx%d", c.Window.Width, c.Window.Height))
	}
	if c.Telemetry.Enabled && c.Telemetry.DSN == "" {
		errs = append(errs, errors.New("telemetry.dsn is required when telemetry is enabled"))
	}
	return errors.Join(errs...)
}

// Default returns the built-in configuration every file is layered onto.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			TargetDynTPS:    60,
			FixedTickRate:   50,
			MaxFrameLag:     10,
			ReservedThreads: 2, // tick goroutine + GPU thread
			MaxFixedSteps:   5,
		},
		Window: WindowConfig{
			Title:  "Cacao Engine",
			Width:  1280,
			Height: 720,
		},
		GPU: GPUConfig{
			IdlePoll:        2 * time.Millisecond,
			ShutdownTimeout: 5 * time.Second,
		},
		World: WorldConfig{
			Path:       "worlds/demo.yaml",
			ScriptsDir: "scripts",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Telemetry: TelemetryConfig{
			Enabled:    false,
			DSN:        "",
			MaxConns:   4,
			FlushEvery: 60,
			Buffer:     8,
			Timeout:    5 * time.Second,
		},
	}
}
