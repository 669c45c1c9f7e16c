package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/roman-kulish/unit-companion/internal/session"
	"github.com/roman-kulish/unit-companion/internal/trip"
)

func newTestClient() *Client {
	return NewClient(2*time.Second, WithUserAgent("companion-test"))
}

func TestWeatherClient_Weather(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/forecast" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("latitude") != "51.5000" || r.URL.Query().Get("longitude") != "-0.1200" {
			t.Fatalf("unexpected coordinates: %s", r.URL.RawQuery)
		}
		if r.Header.Get("User-Agent") != "companion-test" {
			t.Fatalf("missing user agent header")
		}
		_, _ = w.Write([]byte(`{
			"current": {"time": "2024-05-01T14:30", "temperature_2m": 14.2, "apparent_temperature": 12.9,
				"relative_humidity_2m": 71, "precipitation": 0.4, "weather_code": 61,
				"wind_speed_10m": 18.5, "wind_direction_10m": 240},
			"hourly": {"time": ["2024-05-01T15:00", "2024-05-01T16:00"],
				"temperature_2m": [14.5, 13.8], "precipitation": [0.2, 0.0], "weather_code": [61, 3]}
		}`))
	}))
	defer ts.Close()

	report, err := NewWeatherClient(newTestClient(), ts.URL).Weather(context.Background(), 51.5, -0.12)
	if err != nil {
		t.Fatalf("Weather failed: %v", err)
	}

	if report.Temperature != 14.2 || report.Humidity != 71 || report.WindDirection != 240 {
		t.Errorf("Unexpected current conditions: %+v", report)
	}
	if want := time.Date(2024, 5, 1, 14, 30, 0, 0, time.UTC); !report.ObservedAt.Equal(want) {
		t.Errorf("Expected observed at %s, got %s", want, report.ObservedAt)
	}
	if len(report.HourlyForecast) != 2 {
		t.Fatalf("Expected 2 forecast hours, got %d", len(report.HourlyForecast))
	}
	if h := report.HourlyForecast[1]; h.Temperature != 13.8 || h.WeatherCode != 3 {
		t.Errorf("Unexpected forecast hour: %+v", h)
	}
}

func TestWeatherClient_Failure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer ts.Close()

	_, err := NewWeatherClient(newTestClient(), ts.URL).Weather(context.Background(), 1, 2)
	if err == nil {
		t.Fatal("Expected an error")
	}
	if !strings.Contains(err.Error(), "429") || !strings.Contains(err.Error(), "quota exceeded") {
		t.Errorf("Expected status and body in error, got %v", err)
	}
}

func TestRadarClient_Frame(t *testing.T) {
	var indexRequests atomic.Int32
	var lastTile atomic.Value

	mux := http.NewServeMux()
	mux.HandleFunc("/public/weather-maps.json", func(w http.ResponseWriter, r *http.Request) {
		indexRequests.Add(1)
		_, _ = w.Write([]byte(`{
			"host": "",
			"radar": {
				"past": [{"time": 1714572600, "path": "/v2/radar/a"}, {"time": 1714573200, "path": "/v2/radar/b"}],
				"nowcast": [{"time": 1714573800, "path": "/v2/radar/n1"}]
			}
		}`))
	})
	mux.HandleFunc("/v2/radar/", func(w http.ResponseWriter, r *http.Request) {
		lastTile.Store(r.URL.Path)
		_, _ = w.Write([]byte("png:" + r.URL.Path))
	})

	ts := httptest.NewServer(mux)
	defer ts.Close()

	client := NewRadarClient(newTestClient(), ts.URL)
	coord := trip.TileAt(51.5, -0.12, 6)

	tests := []struct {
		name     string
		query    session.RadarQuery
		wantPath string
		wantTime int64
	}{
		{
			name:     "latest",
			query:    session.RadarQuery{Lat: 51.5, Lon: -0.12, Zoom: 6},
			wantPath: "/v2/radar/b",
			wantTime: 1714573200,
		},
		{
			name:     "closest past frame",
			query:    session.RadarQuery{Lat: 51.5, Lon: -0.12, Zoom: 6, Time: time.Unix(1714572700, 0)},
			wantPath: "/v2/radar/a",
			wantTime: 1714572600,
		},
		{
			name:     "nowcast",
			query:    session.RadarQuery{Lat: 51.5, Lon: -0.12, Zoom: 6, Time: time.Unix(1714574000, 0), Nowcast: true},
			wantPath: "/v2/radar/n1",
			wantTime: 1714573800,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := client.Frame(context.Background(), tt.query)
			if err != nil {
				t.Fatalf("Frame failed: %v", err)
			}

			want := fmt.Sprintf("%s/256/%d/%d/%d/2/1_1.png", tt.wantPath, coord.Z, coord.X, coord.Y)
			if got := lastTile.Load(); got != want {
				t.Errorf("Expected tile %s, got %v", want, got)
			}
			if img.Timestamp.Unix() != tt.wantTime {
				t.Errorf("Expected timestamp %d, got %d", tt.wantTime, img.Timestamp.Unix())
			}
			if string(img.Data) != "png:"+want {
				t.Errorf("Unexpected image data %q", img.Data)
			}
		})
	}

	if n := indexRequests.Load(); n != 1 {
		t.Errorf("Expected the index to be fetched once, got %d", n)
	}
}

func TestRadarClient_NoFrames(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"host": "", "radar": {"past": [], "nowcast": []}}`))
	}))
	defer ts.Close()

	_, err := NewRadarClient(newTestClient(), ts.URL).Frame(context.Background(), session.RadarQuery{Nowcast: true})
	if !errors.Is(err, errNoRadarFrames) {
		t.Errorf("Expected errNoRadarFrames, got %v", err)
	}
}

func TestRoutingClient_Route(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantPoints int
		wantErr    bool
	}{
		{
			name:       "route",
			body:       `{"code": "Ok", "routes": [{"distance": 1200, "geometry": {"coordinates": [[-0.2, 51.5], [-0.15, 51.52], [-0.12, 51.5]]}}]}`,
			wantPoints: 3,
		},
		{
			name: "no route",
			body: `{"code": "Ok", "routes": []}`,
		},
		{
			name:    "rejected",
			body:    `{"code": "NoSegment", "message": "Could not find a matching segment"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if !strings.HasPrefix(r.URL.Path, "/route/v1/bike/") {
					t.Fatalf("unexpected path: %s", r.URL.Path)
				}
				if r.URL.Query().Get("geometries") != "geojson" {
					t.Fatalf("missing geometries query")
				}
				_, _ = w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			points, err := NewRoutingClient(newTestClient(), ts.URL, "").Route(context.Background(),
				trip.Point{Lat: 51.5, Lon: -0.2}, trip.Point{Lat: 51.5, Lon: -0.12})
			if (err != nil) != tt.wantErr {
				t.Fatalf("Expected error %v, got %v", tt.wantErr, err)
			}
			if len(points) != tt.wantPoints {
				t.Fatalf("Expected %d points, got %d", tt.wantPoints, len(points))
			}
			if tt.wantPoints > 0 && (points[1].Lat != 51.52 || points[1].Lon != -0.15) {
				t.Errorf("Expected lat/lon swapped from GeoJSON order, got %+v", points[1])
			}
		})
	}
}

func TestTileClient_Tile(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tiles/12/2046/1362.png" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("tile"))
	}))
	defer ts.Close()

	client := NewTileClient(newTestClient(), ts.URL+"/tiles/{z}/{x}/{y}.png")

	data, err := client.Tile(context.Background(), trip.TileCoord{Z: 12, X: 2046, Y: 1362})
	if err != nil {
		t.Fatalf("Tile failed: %v", err)
	}
	if string(data) != "tile" {
		t.Errorf("Expected %q, got %q", "tile", data)
	}

	if _, err = client.Tile(context.Background(), trip.TileCoord{Z: 1}); err == nil {
		t.Error("Expected an error for a missing tile")
	}
}

func TestProbe_Online(t *testing.T) {
	var requests atomic.Int32
	var down atomic.Bool

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.Method != http.MethodHead {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		if down.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer ts.Close()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	probe := NewProbe(newTestClient(), ts.URL, time.Minute)
	probe.now = func() time.Time { return now }

	if !probe.Online() {
		t.Fatal("Expected online")
	}

	down.Store(true)
	if !probe.Online() {
		t.Error("Expected the cached result within the TTL")
	}
	if n := requests.Load(); n != 1 {
		t.Errorf("Expected 1 request, got %d", n)
	}

	now = now.Add(2 * time.Minute)
	if probe.Online() {
		t.Error("Expected offline after the TTL expired")
	}
}
