// Package config loads the application settings: built-in defaults, then
// an optional TOML file, then environment overrides.
package config

import (
	"bytes"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/mitchellh/go-homedir"
	"github.com/pelletier/go-toml/v2"

	"hellotriangle/internal/devsel"
	"hellotriangle/internal/swapchain"
)

const (
	// EnvPath names a config file when -config is not given.
	EnvPath = "HT_CONFIG"
	// EnvValidation turns validation layers off with 0 or false.
	EnvValidation = "VK_VALIDATION"
)

type Config struct {
	Window  Window  `toml:"window"`
	Vulkan  Vulkan  `toml:"vulkan"`
	Device  Device  `toml:"device"`
	Shaders Shaders `toml:"shaders"`
	Log     Log     `toml:"log"`
}

type Window struct {
	Width     int    `toml:"width"`
	Height    int    `toml:"height"`
	Title     string `toml:"title"`
	Resizable bool   `toml:"resizable"`
}

type Vulkan struct {
	Validation         bool     `toml:"validation"`
	FramesInFlight     int      `toml:"frames_in_flight"`
	AcquireTimeout     string   `toml:"acquire_timeout"`
	MaxAcquireTimeouts int      `toml:"max_acquire_timeouts"`
	PresentModes       []string `toml:"present_modes"`
}

type Device struct {
	RequireDiscrete       bool     `toml:"require_discrete"`
	RequireGeometryShader bool     `toml:"require_geometry_shader"`
	Extensions            []string `toml:"extensions"`
}

type Shaders struct {
	Dir   string `toml:"dir"`
	Watch bool   `toml:"watch"`
}

type Log struct {
	Level string `toml:"level"`
}

func Default() Config {
	return Config{
		Window: Window{
			Width:     800,
			Height:    600,
			Title:     "Hello Triangle",
			Resizable: true,
		},
		Vulkan: Vulkan{
			Validation:         true,
			FramesInFlight:     1,
			AcquireTimeout:     "0s",
			MaxAcquireTimeouts: 2,
			PresentModes:       []string{"mailbox", "immediate"},
		},
		Device: Device{
			Extensions: []string{devsel.SwapchainExtension},
		},
		Shaders: Shaders{Dir: "shaders"},
		Log:     Log{Level: "info"},
	}
}

// Load reads path, or the file named by HT_CONFIG when path is empty. No
// file at all means defaults plus environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv(EnvPath)
	}
	if path != "" {
		full, err := homedir.Expand(path)
		if err != nil {
			return cfg, errors.Wrapf(err, "expand config path %q", path)
		}
		data, err := os.ReadFile(full)
		if err != nil {
			return cfg, errors.Wrap(err, "read config")
		}
		if err := Decode(data, &cfg); err != nil {
			return cfg, errors.Wrapf(err, "parse %s", full)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Decode overlays the TOML document data onto cfg. Unknown keys are errors.
func Decode(data []byte, cfg *Config) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(cfg)
}

func (c *Config) applyEnv() {
	if v, ok := os.LookupEnv(EnvValidation); ok && v != "" {
		switch strings.ToLower(v) {
		case "0", "false", "off", "no":
			c.Vulkan.Validation = false
		default:
			c.Vulkan.Validation = true
		}
	}
}

func (c *Config) Validate() error {
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		return errors.Newf("window size %dx%d must be positive", c.Window.Width, c.Window.Height)
	}
	if c.Vulkan.FramesInFlight < 1 || c.Vulkan.FramesInFlight > 3 {
		return errors.Newf("frames_in_flight %d out of range [1,3]", c.Vulkan.FramesInFlight)
	}
	if c.Vulkan.MaxAcquireTimeouts < 1 {
		return errors.Newf("max_acquire_timeouts %d must be at least 1", c.Vulkan.MaxAcquireTimeouts)
	}
	if _, err := c.acquireTimeout(); err != nil {
		return err
	}
	if _, err := c.presentModes(); err != nil {
		return err
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.Shaders.Dir == "" {
		return errors.New("shaders.dir is empty")
	}
	return nil
}

func (c *Config) acquireTimeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.Vulkan.AcquireTimeout)
	if err != nil {
		return 0, errors.Wrap(err, "acquire_timeout")
	}
	if d < 0 {
		return 0, errors.Newf("acquire_timeout %s is negative", d)
	}
	return d, nil
}

func (c *Config) presentModes() ([]swapchain.PresentMode, error) {
	modes := make([]swapchain.PresentMode, 0, len(c.Vulkan.PresentModes))
	for _, s := range c.Vulkan.PresentModes {
		m, err := swapchain.ParsePresentMode(s)
		if err != nil {
			return nil, errors.Wrap(err, "present_modes")
		}
		modes = append(modes, m)
	}
	return modes, nil
}

func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, errors.Wrap(err, "log.level")
	}
	return l, nil
}

// Logger builds a text logger on stderr at the configured level.
func (c *Config) Logger() *slog.Logger {
	l, err := c.Level()
	if err != nil {
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

// SwapchainOptions converts the vulkan section. Validate must have passed.
func (c *Config) SwapchainOptions(log *slog.Logger) swapchain.Options {
	timeout, _ := c.acquireTimeout()
	modes, _ := c.presentModes()
	return swapchain.Options{
		Resizable:             c.Window.Resizable,
		FramesInFlight:        c.Vulkan.FramesInFlight,
		AcquireTimeout:        timeout,
		MaxAcquireTimeouts:    c.Vulkan.MaxAcquireTimeouts,
		PreferredPresentModes: modes,
		Logger:                log,
	}
}

func (c *Config) DevicePolicy() devsel.Policy {
	p := devsel.DefaultPolicy()
	p.RequireDiscrete = c.Device.RequireDiscrete
	p.RequireGeometryShader = c.Device.RequireGeometryShader
	p.RequiredExtensions = mergeExtensions(p.RequiredExtensions, c.Device.Extensions)
	return p
}

func mergeExtensions(base, extra []string) []string {
	seen := make(map[string]bool, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, ext := range list {
			if !seen[ext] {
				seen[ext] = true
				out = append(out, ext)
			}
		}
	}
	return out
}
