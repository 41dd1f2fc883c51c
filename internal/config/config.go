// Package config loads and saves config.yaml.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/coreman2200/rendersphere/internal/layout"
	"github.com/coreman2200/rendersphere/internal/panel"
	"github.com/coreman2200/rendersphere/internal/render"
	"github.com/coreman2200/rendersphere/internal/timing"
)

type Geometry struct {
	Strips         int   `yaml:"strips"`
	StripsPerRow   int   `yaml:"strips_per_row"`
	PixelsPerStrip int   `yaml:"pixels_per_strip"`
	QuadrantWidth  int   `yaml:"quadrant_width"`
	Quadrants      int   `yaml:"quadrants"`
	UpperRows      int   `yaml:"upper_rows"`
	StripMap       []int `yaml:"strip_map,omitempty"`
}

type Driver struct {
	Kind       string `yaml:"kind"`        // sim | spi | nrzled
	SPIDev     string `yaml:"spi_dev"`     // e.g. /dev/spidev0.0
	SpeedHz    int    `yaml:"speed_hz"`    // e.g. 2400000
	ResetUs    int    `yaml:"reset_us"`    // e.g. 300
	ColorOrder string `yaml:"color_order"` // e.g. GRB
	Port       string `yaml:"port"`        // periph spireg name for nrzled, "" = first
}

type Sensor struct {
	Kind        string        `yaml:"kind"` // sim | gpio | cdev
	Pin         string        `yaml:"pin"`  // periph name, e.g. GPIO61
	Chip        string        `yaml:"chip"` // e.g. gpiochip0
	Line        int           `yaml:"line"`
	PollTimeout time.Duration `yaml:"poll_timeout"`
	Debounce    time.Duration `yaml:"debounce"`
	SimRPS      float64       `yaml:"sim_rps"`
}

type Timing struct {
	MaxSliceInterval time.Duration `yaml:"max_slice_interval"`
	StaleAfter       time.Duration `yaml:"stale_after"`
}

type Render struct {
	XOffset    uint32  `yaml:"x_offset"`
	Brightness float32 `yaml:"brightness"`
	Contrast   float32 `yaml:"contrast"`
}

type Power struct {
	LimitAmps float64 `yaml:"limit_amps"` // 0 disables the budget
	WhiteCap  float64 `yaml:"white_cap"`  // fraction of full white, 1 = no cap
	ChannelMA float64 `yaml:"channel_ma"`
	Knee      float64 `yaml:"knee"`
}

type Config struct {
	Listen        string        `yaml:"listen"`
	MonitorListen string        `yaml:"monitor_listen"`
	LogLevel      string        `yaml:"log_level"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`

	Geometry    Geometry `yaml:"geometry"`
	PixelFormat string   `yaml:"pixel_format"`
	Driver      Driver   `yaml:"driver"`
	Sensor      Sensor   `yaml:"sensor"`
	Timing      Timing   `yaml:"timing"`
	Render      Render   `yaml:"render"`
	Power       Power    `yaml:"power"`

	StartupPattern string `yaml:"startup_pattern"`
	StatsSchedule  string `yaml:"stats_schedule"`
}

func DefaultConfig() *Config {
	return &Config{
		Listen:        ":9999",
		MonitorListen: ":8080",
		LogLevel:      "info",
		ReadTimeout:   10 * time.Second,
		Geometry: Geometry{
			Strips:         layout.DefaultStrips,
			StripsPerRow:   layout.DefaultStripsPerRow,
			PixelsPerStrip: layout.DefaultPixelsPerStrip,
			QuadrantWidth:  layout.DefaultQuadrantWidth,
			Quadrants:      layout.DefaultQuadrants,
			UpperRows:      layout.DefaultUpperRows,
		},
		PixelFormat: "xRGB",
		Driver: Driver{
			Kind:       "sim",
			SPIDev:     "/dev/spidev0.0",
			SpeedHz:    2400000,
			ResetUs:    300,
			ColorOrder: "GRB",
		},
		Sensor: Sensor{
			Kind:        "sim",
			Pin:         "GPIO61",
			Chip:        "gpiochip0",
			PollTimeout: timing.DefaultPollTimeout,
			Debounce:    timing.DefaultDebounce,
			SimRPS:      10,
		},
		Timing: Timing{
			MaxSliceInterval: timing.DefaultMaxInterval,
			StaleAfter:       timing.DefaultStaleAfter,
		},
		Render: Render{Contrast: 1},
		Power: Power{
			WhiteCap:  1,
			ChannelMA: 20,
			Knee:      0.9,
		},
		StartupPattern: "quadrants",
		StatsSchedule:  "@every 30s",
	}
}

// Normalize fills unset values with defaults. Render values are taken as
// given; an explicit contrast of 0 blanks the sphere.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}

	g := &c.Geometry
	if g.Strips <= 0 {
		g.Strips = d.Geometry.Strips
	}
	if g.StripsPerRow <= 0 {
		g.StripsPerRow = d.Geometry.StripsPerRow
	}
	if g.PixelsPerStrip <= 0 {
		g.PixelsPerStrip = d.Geometry.PixelsPerStrip
	}
	if g.QuadrantWidth <= 0 {
		g.QuadrantWidth = d.Geometry.QuadrantWidth
	}
	if g.Quadrants <= 0 {
		g.Quadrants = d.Geometry.Quadrants
	}
	if g.UpperRows < 0 {
		g.UpperRows = 0
	}
	if len(g.StripMap) == 0 {
		g.StripMap = layout.Identity(g.Strips)
	}

	if c.PixelFormat == "" {
		c.PixelFormat = d.PixelFormat
	}

	c.Driver.Kind = strings.ToLower(c.Driver.Kind)
	if c.Driver.Kind == "" {
		c.Driver.Kind = d.Driver.Kind
	}
	if c.Driver.SPIDev == "" {
		c.Driver.SPIDev = d.Driver.SPIDev
	}
	if c.Driver.SpeedHz <= 0 {
		c.Driver.SpeedHz = d.Driver.SpeedHz
	}
	if c.Driver.ResetUs <= 0 {
		c.Driver.ResetUs = d.Driver.ResetUs
	}
	if c.Driver.ColorOrder == "" {
		c.Driver.ColorOrder = d.Driver.ColorOrder
	}

	c.Sensor.Kind = strings.ToLower(c.Sensor.Kind)
	if c.Sensor.Kind == "" {
		c.Sensor.Kind = d.Sensor.Kind
	}
	if c.Sensor.Pin == "" {
		c.Sensor.Pin = d.Sensor.Pin
	}
	if c.Sensor.Chip == "" {
		c.Sensor.Chip = d.Sensor.Chip
	}
	if c.Sensor.PollTimeout <= 0 {
		c.Sensor.PollTimeout = d.Sensor.PollTimeout
	}
	if c.Sensor.Debounce < 0 {
		c.Sensor.Debounce = 0
	}
	if c.Sensor.SimRPS <= 0 {
		c.Sensor.SimRPS = d.Sensor.SimRPS
	}

	if c.Timing.MaxSliceInterval <= 0 {
		c.Timing.MaxSliceInterval = d.Timing.MaxSliceInterval
	}
	if c.Timing.StaleAfter <= 0 {
		c.Timing.StaleAfter = d.Timing.StaleAfter
	}

	if c.Power.WhiteCap <= 0 || c.Power.WhiteCap > 1 {
		c.Power.WhiteCap = d.Power.WhiteCap
	}
	if c.Power.ChannelMA <= 0 {
		c.Power.ChannelMA = d.Power.ChannelMA
	}
	if c.Power.Knee <= 0 || c.Power.Knee > 1 {
		c.Power.Knee = d.Power.Knee
	}
	if c.Power.LimitAmps < 0 {
		c.Power.LimitAmps = 0
	}

	if c.StartupPattern == "" {
		c.StartupPattern = "none"
	}
	if c.StatsSchedule == "" {
		c.StatsSchedule = d.StatsSchedule
	}
}

// Layout converts the geometry section and validates it.
func (c *Config) Layout() (layout.Layout, error) {
	g := c.Geometry
	l := layout.Layout{
		Strips:         g.Strips,
		StripsPerRow:   g.StripsPerRow,
		PixelsPerStrip: g.PixelsPerStrip,
		QuadrantWidth:  g.QuadrantWidth,
		Quadrants:      g.Quadrants,
		UpperRows:      g.UpperRows,
		StripMap:       append([]int(nil), g.StripMap...),
	}
	if err := l.Validate(); err != nil {
		return layout.Layout{}, fmt.Errorf("config: geometry: %w", err)
	}
	return l, nil
}

func (c *Config) Format() (panel.Format, error) {
	return panel.ParseFormat(c.PixelFormat)
}

func (c *Config) Params() render.Snapshot {
	return render.Snapshot{
		XOffset:    c.Render.XOffset,
		Brightness: c.Render.Brightness,
		Contrast:   c.Render.Contrast,
	}
}

func (c *Config) Limiter() render.Limiter {
	return render.Limiter{
		WhiteCap:  c.Power.WhiteCap,
		ChannelMA: c.Power.ChannelMA,
		BudgetMA:  c.Power.LimitAmps * 1000,
		Knee:      c.Power.Knee,
	}
}

func (c *Config) TimerConfig(slices int) timing.Config {
	return timing.Config{
		Slices:      slices,
		MaxInterval: c.Timing.MaxSliceInterval,
		PollTimeout: c.Sensor.PollTimeout,
		Debounce:    c.Sensor.Debounce,
		StaleAfter:  c.Timing.StaleAfter,
	}
}

// Load reads path over the defaults. A missing file yields the defaults and
// fs.ErrNotExist so callers can log it and carry on.
func Load(path string) (*Config, error) {
	c := DefaultConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		c.Normalize()
		if errors.Is(err, fs.ErrNotExist) {
			return c, err
		}
		return c, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	c.Normalize()
	return c, nil
}

// Save writes c atomically: a temp file in the same directory renamed over
// path.
func Save(path string, c *Config) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".config-*.yaml")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
