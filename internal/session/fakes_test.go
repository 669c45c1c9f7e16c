package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/roman-kulish/unit-companion/internal/link"
	"github.com/roman-kulish/unit-companion/internal/phone"
	"github.com/roman-kulish/unit-companion/internal/storage"
	"github.com/roman-kulish/unit-companion/internal/trip"
)

var errInjected = errors.New("injected failure")

// fakeLink records every message and lets tests script the unit.
type fakeLink struct {
	events chan link.Event

	mu          sync.Mutex
	sent        []link.Message
	connects    int
	disconnects int
	inflight    int
	maxInflight int

	connectFn    func(ctx context.Context) error
	disconnectFn func(ctx context.Context) error
	sendFn       func(ctx context.Context, msg link.Message) error
	downloadFn   func(ctx context.Context, name string, progress link.ProgressFunc) ([]byte, error)
}

func newFakeLink() *fakeLink {
	return &fakeLink{events: make(chan link.Event, 16)}
}

func (f *fakeLink) Connect(ctx context.Context) error {
	f.mu.Lock()
	f.connects++
	f.inflight++
	f.maxInflight = max(f.maxInflight, f.inflight)
	fn := f.connectFn
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inflight--
		f.mu.Unlock()
	}()

	if fn != nil {
		return fn(ctx)
	}
	return nil
}

func (f *fakeLink) Disconnect(ctx context.Context) error {
	f.mu.Lock()
	f.disconnects++
	fn := f.disconnectFn
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}
	return nil
}

func (f *fakeLink) Events() <-chan link.Event {
	return f.events
}

func (f *fakeLink) Send(ctx context.Context, msg link.Message) error {
	f.mu.Lock()
	f.sent = append(f.sent, msg)
	fn := f.sendFn
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, msg)
	}
	return nil
}

func (f *fakeLink) Download(ctx context.Context, name string, progress link.ProgressFunc) ([]byte, error) {
	f.mu.Lock()
	fn := f.downloadFn
	f.mu.Unlock()

	if fn == nil {
		return nil, link.ErrRejected
	}
	return fn(ctx, name, progress)
}

func (f *fakeLink) messages(typ link.MessageType) []link.Message {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []link.Message
	for _, msg := range f.sent {
		if msg.Type() == typ {
			out = append(out, msg)
		}
	}
	return out
}

func (f *fakeLink) count(typ link.MessageType) int {
	return len(f.messages(typ))
}

func (f *fakeLink) stats() (connects, disconnects, maxInflight int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects, f.disconnects, f.maxInflight
}

type fakeConnectivity struct {
	offline atomic.Bool
}

func (f *fakeConnectivity) Online() bool {
	return !f.offline.Load()
}

type fakeWeather struct {
	report link.WeatherReport
	err    error
}

func (f *fakeWeather) Weather(_ context.Context, lat, lon float64) (link.WeatherReport, error) {
	r := f.report
	r.Lat, r.Lon = lat, lon
	return r, f.err
}

type fakeRadar struct {
	mu      sync.Mutex
	queries []RadarQuery
	base    time.Time
}

func (f *fakeRadar) Frame(_ context.Context, q RadarQuery) (RadarImage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.queries = append(f.queries, q)
	if q.Time.IsZero() {
		return RadarImage{Data: []byte("current"), Timestamp: f.base}, nil
	}
	return RadarImage{Data: []byte(q.Time.Format(time.RFC3339)), Timestamp: q.Time}, nil
}

func (f *fakeRadar) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

type fakeRouter struct {
	points []trip.Point
	err    error
	delay  time.Duration
}

func (f *fakeRouter) Route(_ context.Context, from, to trip.Point) ([]trip.Point, error) {
	if f.delay > 0 {
		time.Sleep(f.delay) // ignores ctx on purpose
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.points != nil {
		return f.points, nil
	}
	return []trip.Point{from, to}, nil
}

type fakeTiles struct {
	mu    sync.Mutex
	fail  map[trip.TileCoord]bool
	calls int
}

func (f *fakeTiles) Tile(_ context.Context, coord trip.TileCoord) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.fail[coord] {
		return nil, errInjected
	}
	return []byte(coord.String()), nil
}

// memStorage is an in-memory Storage.
type memStorage struct {
	mu         sync.Mutex
	trips      map[string]*trip.Trip
	recordings map[string]*trip.Trip
	added      map[string]bool
	tiles      map[trip.TileCoord][]byte
}

func newMemStorage() *memStorage {
	return &memStorage{
		trips:      make(map[string]*trip.Trip),
		recordings: make(map[string]*trip.Trip),
		added:      make(map[string]bool),
		tiles:      make(map[trip.TileCoord][]byte),
	}
}

func (m *memStorage) SaveTrip(_ context.Context, t *trip.Trip) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trips[t.Name] = t
	return nil
}

func (m *memStorage) LoadTrip(_ context.Context, name string) (*trip.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.trips[name]; ok {
		return t, nil
	}
	return nil, storage.ErrNotFound
}

func (m *memStorage) SaveRecording(_ context.Context, t *trip.Trip) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recordings[t.Name] = t
	return nil
}

func (m *memStorage) LoadRecording(_ context.Context, name string) (*trip.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.recordings[name]; ok {
		return t, nil
	}
	return nil, storage.ErrNotFound
}

func (m *memStorage) MarkRecordingAdded(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.added[name] = true
	return nil
}

func (m *memStorage) SaveTile(_ context.Context, tile trip.Tile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tiles[tile.Coord] = tile.Data
	return nil
}

func (m *memStorage) LoadTile(_ context.Context, coord trip.TileCoord) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if data, ok := m.tiles[coord]; ok {
		return data, nil
	}
	return nil, storage.ErrNotFound
}

func (m *memStorage) tripNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var names []string
	for name := range m.trips {
		names = append(names, name)
	}
	return names
}

type fakeMedia struct {
	mu      sync.Mutex
	actions []link.MediaAction
}

func (f *fakeMedia) Execute(_ context.Context, action link.MediaAction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, action)
	return nil
}

type fakeNotifications struct {
	holder    *phone.Holder
	dismissed atomic.Int32
}

func (f *fakeNotifications) SetSyncEnabled(_ context.Context, enabled bool) error {
	f.holder.Update(func(s *phone.Status) { s.NotificationSyncEnabled = enabled })
	return nil
}

func (f *fakeNotifications) Dismiss(context.Context, string) error {
	f.dismissed.Add(1)
	return nil
}

type fakeParser struct {
	calls atomic.Int32
}

func (f *fakeParser) Parse(name string, data []byte) (*trip.Trip, error) {
	f.calls.Add(1)
	if len(data) == 0 {
		return nil, errInjected
	}
	return trip.New(name, []trip.Point{{Lat: 51.5, Lon: -0.12}, {Lat: 51.51, Lon: -0.1}}, time.Time{})
}

type fakeMerger struct{}

func (fakeMerger) Merge(t *trip.Trip, info trip.RecordingInfo) *trip.Trip {
	if info.DistanceMeters > 0 {
		t.DistanceMeters = info.DistanceMeters
	}
	t.CreatedAt = info.StartedAt
	return t
}

// testConfig uses millisecond scale timings.
func testConfig() Config {
	return Config{
		StatusInterval:  time.Hour,
		SendAttempts:    3,
		RetryBackoff:    time.Millisecond,
		SendTimeout:     time.Second,
		LocationTimeout: 50 * time.Millisecond,
		RouteTimeout:    50 * time.Millisecond,
		SettleDelay:     time.Millisecond,
		TileZooms:       []int{12},
		TileWorkers:     2,
		Home:            trip.Point{Lat: 51.5, Lon: -0.12},
		Radar: RadarConfig{
			PastSteps:          2,
			FutureSteps:        2,
			StepMinutes:        10,
			NowcastStepMinutes: 5,
			Location:           time.UTC,
		},
	}
}

type testEnv struct {
	link     *fakeLink
	holder   *phone.Holder
	online   *fakeConnectivity
	weather  *fakeWeather
	radar    *fakeRadar
	router   *fakeRouter
	tiles    *fakeTiles
	storage  *memStorage
	media    *fakeMedia
	notifier *fakeNotifications
	parser   *fakeParser
	session  *Session
}

func newTestEnv(t *testing.T, config Config) *testEnv {
	t.Helper()

	holder := phone.NewHolder(phone.Status{BatteryPercent: 80, WiFiConnected: true, WiFiSSID: "home", WiFiSignal: -50})

	env := &testEnv{
		link:     newFakeLink(),
		holder:   holder,
		online:   &fakeConnectivity{},
		weather:  &fakeWeather{report: link.WeatherReport{Temperature: 12.5}},
		radar:    &fakeRadar{base: time.Date(2024, 5, 1, 14, 30, 0, 0, time.UTC)},
		router:   &fakeRouter{},
		tiles:    &fakeTiles{fail: make(map[trip.TileCoord]bool)},
		storage:  newMemStorage(),
		media:    &fakeMedia{},
		notifier: &fakeNotifications{holder: holder},
		parser:   &fakeParser{},
	}

	deps := Dependencies{
		Phone:         holder,
		Connectivity:  env.online,
		Weather:       env.weather,
		Radar:         env.radar,
		Router:        env.router,
		Tiles:         env.tiles,
		Storage:       env.storage,
		Media:         env.media,
		Notifications: env.notifier,
		Parser:        env.parser,
		Merger:        fakeMerger{},
	}

	clock := func() time.Time { return time.Date(2024, 5, 1, 18, 45, 0, 0, time.UTC) }
	env.session = New(env.link, deps, config, WithClock(clock))

	return env
}

// connect brings the session to PhaseConnected.
func (e *testEnv) connect(t *testing.T) {
	t.Helper()

	if err := e.session.Connect(context.Background()); err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	if phase := e.session.State().Phase; phase != PhaseConnected {
		t.Fatalf("Expected phase %s, got %s", PhaseConnected, phase)
	}
}

// run starts the receive loop for the duration of the test.
func (e *testEnv) run(t *testing.T) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = e.session.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		<-done
	})
}

// eventually polls cond until it holds or the timeout expires.
func eventually(t *testing.T, timeout time.Duration, cond func() bool, format string, args ...any) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf(format, args...)
		}
		time.Sleep(time.Millisecond)
	}
}
