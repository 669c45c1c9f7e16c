package phone

import (
	"sync"
)

// Provider exposes the phone status collected by the platform layer.
type Provider interface {
	// Current returns the latest status snapshot.
	Current() Status

	// Changes delivers a snapshot every time the collected status changes.
	Changes() <-chan Status
}

// Status is the phone side snapshot shown on the unit.
type Status struct {
	MusicPlaying bool   `json:"musicPlaying"`
	TrackTitle   string `json:"trackTitle"`
	TrackArtist  string `json:"trackArtist"`

	BatteryPercent  int  `json:"batteryPercent"`
	BatteryCharging bool `json:"batteryCharging"`

	WiFiConnected bool   `json:"wifiConnected"`
	WiFiSSID      string `json:"wifiSSID"`
	WiFiSignal    int    `json:"wifiSignal"` // RSSI in dBm

	CellularType   string `json:"cellularType"`   // e.g. "LTE", "5G", "" when no service
	CellularSignal int    `json:"cellularSignal"` // signal level 0-4

	NotificationSyncEnabled bool `json:"notificationSyncEnabled"`
}

// DiffersFrom reports whether any monitored field differs from other.
// Signal strength fields jitter constantly and are compared only when
// includeSignal is set.
func (s Status) DiffersFrom(other Status, includeSignal bool) bool {
	if s.MusicPlaying != other.MusicPlaying ||
		s.TrackTitle != other.TrackTitle ||
		s.TrackArtist != other.TrackArtist ||
		s.BatteryPercent != other.BatteryPercent ||
		s.WiFiConnected != other.WiFiConnected ||
		s.WiFiSSID != other.WiFiSSID ||
		s.CellularType != other.CellularType {
		return true
	}

	if includeSignal {
		return s.WiFiSignal != other.WiFiSignal || s.CellularSignal != other.CellularSignal
	}
	return false
}

// WithSignalFrom returns a copy of s carrying the signal strength of other.
func (s Status) WithSignalFrom(other Status) Status {
	s.WiFiSignal = other.WiFiSignal
	s.CellularSignal = other.CellularSignal
	return s
}

// Holder is a Provider fed by the platform layer through Set.
type Holder struct {
	mu      sync.RWMutex
	current Status
	changes chan Status
}

// NewHolder creates a Holder with the initial status.
func NewHolder(initial Status) *Holder {
	return &Holder{
		current: initial,
		changes: make(chan Status, 1),
	}
}

// Set stores the status and notifies the change stream when it differs from
// the current one. A pending undelivered change is replaced by the newer one.
func (h *Holder) Set(s Status) {
	h.Update(func(current *Status) { *current = s })
}

// Update applies fn to the current status and stores the result atomically.
func (h *Holder) Update(fn func(*Status)) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := h.current
	fn(&s)
	if s == h.current {
		return
	}
	h.current = s

	// notifying under mu keeps the stream in update order; it never blocks
	for {
		select {
		case h.changes <- s:
			return
		default:
		}

		select {
		case <-h.changes: // drop the stale snapshot
		default:
		}
	}
}

func (h *Holder) Current() Status {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

func (h *Holder) Changes() <-chan Status {
	return h.changes
}
