package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/embedview/embedview/internal/scroll"
)

const (
	EngineChrome = "chrome"
	EngineRemote = "remote"
)

type Config struct {
	Surface SurfaceConfig `yaml:"surface"`
	Scroll  ScrollConfig  `yaml:"scroll"`
	Engine  EngineConfig  `yaml:"engine"`
	Assets  AssetsConfig  `yaml:"assets"`
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
}

// SurfaceConfig describes the host surface. Terminal hosts map one cell to
// CellWidth x CellHeight surface pixels.
type SurfaceConfig struct {
	InitialURL string `yaml:"initial_url"`
	Width      int    `yaml:"width"`
	Height     int    `yaml:"height"`
	CellWidth  int    `yaml:"cell_width"`
	CellHeight int    `yaml:"cell_height"`
}

type ScrollConfig struct {
	FPS              int           `yaml:"fps"`
	MinFlingVelocity float64       `yaml:"min_fling_velocity"`
	MaxFlingVelocity float64       `yaml:"max_fling_velocity"`
	Deceleration     float64       `yaml:"deceleration"`
	TapTimeout       time.Duration `yaml:"tap_timeout"`
	Extent           ExtentConfig  `yaml:"extent"`
}

type ExtentConfig struct {
	MinX float64 `yaml:"min_x"`
	MaxX float64 `yaml:"max_x"`
	MinY float64 `yaml:"min_y"`
	MaxY float64 `yaml:"max_y"`
}

type EngineConfig struct {
	Kind      string       `yaml:"kind"`
	RemoteURL string       `yaml:"remote_url"`
	Token     string       `yaml:"token"`
	Chrome    ChromeConfig `yaml:"chrome"`
}

type ChromeConfig struct {
	Bin               string        `yaml:"bin"`
	Headless          bool          `yaml:"headless"`
	Stealth           bool          `yaml:"stealth"`
	ControlURL        string        `yaml:"remote_control_url"`
	LaunchTimeout     time.Duration `yaml:"launch_timeout"`
	MemoryLimitMB     uint64        `yaml:"memory_limit_mb"`
	TitleSuffix       string        `yaml:"title_suffix"`
	DeviceScaleFactor float64       `yaml:"device_scale_factor"`
}

type AssetsConfig struct {
	Dir string `yaml:"dir"`
}

type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	Token          string   `yaml:"token"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

func Default() *Config {
	d := scroll.DefaultConfig()
	return &Config{
		Surface: SurfaceConfig{
			InitialURL: "about:blank",
			Width:      1280,
			Height:     800,
			CellWidth:  8,
			CellHeight: 16,
		},
		Scroll: ScrollConfig{
			FPS:              d.FPS,
			MinFlingVelocity: d.MinFlingVelocity,
			MaxFlingVelocity: d.MaxFlingVelocity,
			Deceleration:     d.Deceleration,
			TapTimeout:       d.TapTimeout,
			Extent: ExtentConfig{
				MinX: d.Bounds.MinX,
				MaxX: d.Bounds.MaxX,
				MinY: d.Bounds.MinY,
				MaxY: d.Bounds.MaxY,
			},
		},
		Engine: EngineConfig{
			Kind: EngineChrome,
			Chrome: ChromeConfig{
				Headless:          true,
				LaunchTimeout:     30 * time.Second,
				TitleSuffix:       "embedview",
				DeviceScaleFactor: 1,
			},
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8765,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("config: "+format, args...))
	}

	if c.Surface.Width <= 0 || c.Surface.Height <= 0 {
		add("surface size %dx%d must be positive", c.Surface.Width, c.Surface.Height)
	}
	if c.Surface.CellWidth <= 0 || c.Surface.CellHeight <= 0 {
		add("cell size %dx%d must be positive", c.Surface.CellWidth, c.Surface.CellHeight)
	}

	s := c.Scroll
	if s.FPS <= 0 || s.FPS > 240 {
		add("scroll.fps %d out of range (1-240)", s.FPS)
	}
	if s.MinFlingVelocity < 0 || s.MaxFlingVelocity <= s.MinFlingVelocity {
		add("scroll fling velocity range [%g, %g] is empty", s.MinFlingVelocity, s.MaxFlingVelocity)
	}
	if s.Deceleration <= 0 {
		add("scroll.deceleration must be positive")
	}
	if s.Extent.MaxX <= s.Extent.MinX || s.Extent.MaxY <= s.Extent.MinY {
		add("scroll.extent is empty")
	}

	switch c.Engine.Kind {
	case EngineChrome:
	case EngineRemote:
		if c.Engine.RemoteURL == "" {
			add("engine.remote_url is required for the remote engine")
		}
	default:
		add("unknown engine.kind %q", c.Engine.Kind)
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		add("server.port %d out of range", c.Server.Port)
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		add("log.level: %v", err)
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		add("log.format %q must be json or console", c.Log.Format)
	}

	return errors.Join(errs...)
}

// Addr is the websocket listen address.
func (c ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Controller converts the scroll section into controller constants.
func (s ScrollConfig) Controller() scroll.Config {
	return scroll.Config{
		FPS:              s.FPS,
		MinFlingVelocity: s.MinFlingVelocity,
		MaxFlingVelocity: s.MaxFlingVelocity,
		Deceleration:     s.Deceleration,
		TapTimeout:       s.TapTimeout,
		Bounds: scroll.Bounds{
			MinX: s.Extent.MinX,
			MaxX: s.Extent.MaxX,
			MinY: s.Extent.MinY,
			MaxY: s.Extent.MaxY,
		},
	}
}
