package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/unit-companion/internal/overlay"
	"github.com/roman-kulish/unit-companion/internal/session"
	"github.com/roman-kulish/unit-companion/internal/trip"
)

const (
	defaultStatusInterval  = 30 * time.Second
	defaultSendAttempts    = 3
	defaultRetryBackoff    = 500 * time.Millisecond
	defaultSendTimeout     = 10 * time.Second
	defaultDialTimeout     = 10 * time.Second
	defaultLocationTimeout = 20 * time.Second
	defaultRouteTimeout    = 30 * time.Second
	defaultSettleDelay     = 500 * time.Millisecond
	defaultSourceTimeout   = 15 * time.Second
	defaultPastSteps       = 2
	defaultFutureSteps     = 2
	defaultStepMinutes     = 10
	defaultDataDirectory   = "data"
)

// Duration is a time.Duration read from YAML strings such as "30s" or "500ms".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	duration, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("app.Duration: failed to parse: %s", err)
	}

	*d = Duration(duration)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d Duration) Validate() error {
	if time.Duration(d) < 0 {
		return fmt.Errorf("app.Duration: must not be negative: %s", d)
	}
	return nil
}

// Config represents the main application configuration
type Config struct {
	Settings Settings      `yaml:"settings"`
	Link     LinkConfig    `yaml:"link"`
	Storage  StorageConfig `yaml:"storage"`
	Phone    PhoneConfig   `yaml:"phone"`
	Session  SessionConfig `yaml:"session"`
	Radar    RadarConfig   `yaml:"radar"`
	Home     HomeConfig    `yaml:"home"`
	Sources  SourcesConfig `yaml:"sources"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel slog.Level `yaml:"logLevel"`
}

// LinkConfig represents the unit connection settings
type LinkConfig struct {
	URL         string   `yaml:"url"`
	DialTimeout Duration `yaml:"dialTimeout"`
	SendTimeout Duration `yaml:"sendTimeout"`
}

// StorageConfig represents storage settings
type StorageConfig struct {
	DataDirectory string `yaml:"dataDirectory"`
}

// PhoneConfig represents where the phone status is read from
type PhoneConfig struct {
	StatusFile   string   `yaml:"statusFile"`
	PollInterval Duration `yaml:"pollInterval"`
}

// SessionConfig represents session timings
type SessionConfig struct {
	StatusInterval  Duration `yaml:"statusInterval"`
	SendAttempts    int      `yaml:"sendAttempts"`
	RetryBackoff    Duration `yaml:"retryBackoff"`
	LocationTimeout Duration `yaml:"locationTimeout"`
	RouteTimeout    Duration `yaml:"routeTimeout"`
	SettleDelay     Duration `yaml:"settleDelay"`
	PeriodicStatus  bool     `yaml:"periodicStatus"`
}

// RadarConfig represents the radar sequence settings
type RadarConfig struct {
	PastSteps          int    `yaml:"pastSteps"`
	FutureSteps        int    `yaml:"futureSteps"`
	StepMinutes        int    `yaml:"stepMinutes"`
	NowcastStepMinutes int    `yaml:"nowcastStepMinutes"`
	TimeZone           string `yaml:"timeZone"`
	Theme              string `yaml:"theme"`
}

// HomeConfig is the navigate-home destination
type HomeConfig struct {
	Lat float64 `yaml:"lat"`
	Lon float64 `yaml:"lon"`
}

// SourcesConfig represents the remote services
type SourcesConfig struct {
	WeatherURL     string   `yaml:"weatherURL"`
	RadarURL       string   `yaml:"radarURL"`
	RoutingURL     string   `yaml:"routingURL"`
	RoutingProfile string   `yaml:"routingProfile"`
	TileURL        string   `yaml:"tileURL"`
	ProbeURL       string   `yaml:"probeURL"`
	Timeout        Duration `yaml:"timeout"`
	TileZooms      []int    `yaml:"tileZooms"`
}

// NewConfig returns a configuration populated with defaults.
func NewConfig() *Config {
	return &Config{
		Settings: Settings{LogLevel: slog.LevelInfo},
		Link: LinkConfig{
			DialTimeout: Duration(defaultDialTimeout),
			SendTimeout: Duration(defaultSendTimeout),
		},
		Storage: StorageConfig{DataDirectory: defaultDataDirectory},
		Phone:   PhoneConfig{PollInterval: Duration(time.Second)},
		Session: SessionConfig{
			StatusInterval:  Duration(defaultStatusInterval),
			SendAttempts:    defaultSendAttempts,
			RetryBackoff:    Duration(defaultRetryBackoff),
			LocationTimeout: Duration(defaultLocationTimeout),
			RouteTimeout:    Duration(defaultRouteTimeout),
			SettleDelay:     Duration(defaultSettleDelay),
			PeriodicStatus:  true,
		},
		Radar: RadarConfig{
			PastSteps:   defaultPastSteps,
			FutureSteps: defaultFutureSteps,
			StepMinutes: defaultStepMinutes,
			TimeZone:    "Local",
		},
		Sources: SourcesConfig{
			WeatherURL:     "https://api.open-meteo.com",
			RadarURL:       "https://api.rainviewer.com",
			RoutingURL:     "https://router.project-osrm.org",
			RoutingProfile: "bike",
			TileURL:        "https://tile.openstreetmap.org/{z}/{x}/{y}.png",
			ProbeURL:       "https://clients3.google.com/generate_204",
			Timeout:        Duration(defaultSourceTimeout),
			TileZooms:      []int{10, 12, 14},
		},
	}
}

// LoadConfig reads the YAML configuration at path on top of the defaults
// and validates it.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	config := NewConfig()
	if err = yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err = config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) Validate() error {
	if c.Link.URL == "" {
		return errors.New("app.Config: link url is required")
	}

	durations := []struct {
		name  string
		value Duration
	}{
		{"link dial timeout", c.Link.DialTimeout},
		{"link send timeout", c.Link.SendTimeout},
		{"phone poll interval", c.Phone.PollInterval},
		{"status interval", c.Session.StatusInterval},
		{"retry backoff", c.Session.RetryBackoff},
		{"location timeout", c.Session.LocationTimeout},
		{"route timeout", c.Session.RouteTimeout},
		{"settle delay", c.Session.SettleDelay},
		{"sources timeout", c.Sources.Timeout},
	}
	for _, d := range durations {
		if err := d.value.Validate(); err != nil {
			return fmt.Errorf("app.Config: invalid %s: %w", d.name, err)
		}
	}

	if c.Session.SendAttempts < 1 {
		return fmt.Errorf("app.Config: send attempts must be at least 1: %d", c.Session.SendAttempts)
	}

	if err := c.Radar.Validate(); err != nil {
		return err
	}

	if c.Home.Lat < -90 || c.Home.Lat > 90 || c.Home.Lon < -180 || c.Home.Lon > 180 {
		return fmt.Errorf("app.Config: invalid home location: %f,%f", c.Home.Lat, c.Home.Lon)
	}

	for _, z := range c.Sources.TileZooms {
		if z < 0 || z > trip.MaxZoom {
			return fmt.Errorf("app.Config: invalid tile zoom: %d, must be between 0 and %d", z, trip.MaxZoom)
		}
	}

	return nil
}

func (c *RadarConfig) Validate() error {
	if c.PastSteps < 0 || c.FutureSteps < 0 {
		return fmt.Errorf("app.RadarConfig: steps must not be negative: %d past, %d future", c.PastSteps, c.FutureSteps)
	}
	if c.StepMinutes <= 0 {
		return fmt.Errorf("app.RadarConfig: step minutes must be positive: %d", c.StepMinutes)
	}
	if c.NowcastStepMinutes < 0 {
		return fmt.Errorf("app.RadarConfig: nowcast step minutes must not be negative: %d", c.NowcastStepMinutes)
	}
	if _, err := time.LoadLocation(c.TimeZone); err != nil {
		return fmt.Errorf("app.RadarConfig: invalid time zone: %w", err)
	}
	if _, err := overlay.ParseTheme(c.Theme); err != nil {
		return fmt.Errorf("app.RadarConfig: %w", err)
	}
	return nil
}

// SessionConfig converts the configuration into session parameters.
func (c *Config) SessionConfig() (session.Config, error) {
	location, err := time.LoadLocation(c.Radar.TimeZone)
	if err != nil {
		return session.Config{}, fmt.Errorf("loading time zone: %w", err)
	}

	return session.Config{
		StatusInterval:  time.Duration(c.Session.StatusInterval),
		SendAttempts:    c.Session.SendAttempts,
		RetryBackoff:    time.Duration(c.Session.RetryBackoff),
		SendTimeout:     time.Duration(c.Link.SendTimeout),
		LocationTimeout: time.Duration(c.Session.LocationTimeout),
		RouteTimeout:    time.Duration(c.Session.RouteTimeout),
		SettleDelay:     time.Duration(c.Session.SettleDelay),
		TileZooms:       c.Sources.TileZooms,
		Home:            trip.Point{Lat: c.Home.Lat, Lon: c.Home.Lon},
		Radar: session.RadarConfig{
			PastSteps:          c.Radar.PastSteps,
			FutureSteps:        c.Radar.FutureSteps,
			StepMinutes:        c.Radar.StepMinutes,
			NowcastStepMinutes: c.Radar.NowcastStepMinutes,
			Location:           location,
		},
	}, nil
}
