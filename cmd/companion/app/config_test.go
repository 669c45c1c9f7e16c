package app

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
settings:
  logLevel: debug
link:
  url: ws://192.168.4.1:8080/link
  sendTimeout: 5s
session:
  statusInterval: 1m
  retryBackoff: 250ms
radar:
  pastSteps: 3
  timeZone: UTC
  theme: marine
home:
  lat: 51.5
  lon: -0.12
sources:
  tileZooms: [11, 13]
`)

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.Settings.LogLevel != slog.LevelDebug {
		t.Errorf("Expected log level debug, got %s", config.Settings.LogLevel)
	}
	if config.Link.URL != "ws://192.168.4.1:8080/link" {
		t.Errorf("Unexpected link url %q", config.Link.URL)
	}
	if time.Duration(config.Session.StatusInterval) != time.Minute {
		t.Errorf("Expected status interval 1m, got %s", config.Session.StatusInterval)
	}
	if config.Session.SendAttempts != defaultSendAttempts {
		t.Errorf("Expected default send attempts %d, got %d", defaultSendAttempts, config.Session.SendAttempts)
	}
	if config.Radar.PastSteps != 3 || config.Radar.FutureSteps != defaultFutureSteps {
		t.Errorf("Unexpected radar steps: %+v", config.Radar)
	}

	sc, err := config.SessionConfig()
	if err != nil {
		t.Fatalf("Failed to build session config: %v", err)
	}
	if sc.SendTimeout != 5*time.Second || sc.RetryBackoff != 250*time.Millisecond {
		t.Errorf("Unexpected session timings: %+v", sc)
	}
	if sc.Radar.Location != time.UTC {
		t.Errorf("Expected UTC radar time zone, got %s", sc.Radar.Location)
	}
	if sc.Home.Lat != 51.5 || sc.Home.Lon != -0.12 {
		t.Errorf("Unexpected home %+v", sc.Home)
	}
	if len(sc.TileZooms) != 2 || sc.TileZooms[0] != 11 {
		t.Errorf("Unexpected tile zooms %v", sc.TileZooms)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	testCases := []struct {
		name string
		body string
		want string
	}{
		{"missing url", "session:\n  sendAttempts: 2\n", "link url is required"},
		{"bad duration", "link:\n  url: ws://unit\nsession:\n  retryBackoff: soon\n", "failed to parse"},
		{"negative duration", "link:\n  url: ws://unit\nsession:\n  settleDelay: -1s\n", "invalid settle delay"},
		{"no attempts", "link:\n  url: ws://unit\nsession:\n  sendAttempts: 0\n", "send attempts"},
		{"step minutes", "link:\n  url: ws://unit\nradar:\n  stepMinutes: 0\n", "step minutes"},
		{"theme", "link:\n  url: ws://unit\nradar:\n  theme: sepia\n", "unknown color theme"},
		{"time zone", "link:\n  url: ws://unit\nradar:\n  timeZone: Mars/Olympus\n", "invalid time zone"},
		{"home", "link:\n  url: ws://unit\nhome:\n  lat: 95\n", "invalid home location"},
		{"zoom", "link:\n  url: ws://unit\nsources:\n  tileZooms: [25]\n", "invalid tile zoom"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tc.body))
			if err == nil {
				t.Fatal("Expected an error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("Expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestDuration_MarshalYAML(t *testing.T) {
	out, err := yaml.Marshal(struct {
		Timeout Duration `yaml:"timeout"`
	}{Duration(1500 * time.Millisecond)})
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}

	if got := strings.TrimSpace(string(out)); got != "timeout: 1.5s" {
		t.Errorf("Expected %q, got %q", "timeout: 1.5s", got)
	}
}
