package link

import (
	"github.com/roman-kulish/unit-companion/internal/trip"
)

// EventType identifies an inbound event.
type EventType string

const (
	EventStateChanged          EventType = "state"
	EventWeatherRequested      EventType = "weather_request"
	EventRadarRequested        EventType = "radar_request"
	EventLocationReported      EventType = "location"
	EventMediaRequested        EventType = "media"
	EventNotificationSync      EventType = "notification_sync"
	EventStatusRequested       EventType = "status_request"
	EventNotificationDismissed EventType = "notification_dismiss"
	EventTripsReported         EventType = "trips"
	EventRecordingsReported    EventType = "recordings"
)

// Event is implemented by every inbound event.
type Event interface {
	Type() EventType
}

// StateChanged reports a transport state transition.
type StateChanged struct {
	State State
	Err   error // cause of a StateDown or StateFailed transition, if any
}

// WeatherRequested asks for the weather at a coordinate.
type WeatherRequested struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// RadarRequested asks for a radar frame sequence around a coordinate.
type RadarRequested struct {
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Zoom int     `json:"zoom"`
}

// LocationReported is the unit's answer to a LocationRequest.
// A (0, 0) coordinate means the unit has no GPS fix.
type LocationReported struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// NoFix reports whether the unit answered without a GPS fix.
func (e LocationReported) NoFix() bool {
	return e.Lat == 0 && e.Lon == 0
}

// MediaAction is a media playback command issued from the unit.
type MediaAction string

const (
	MediaPlay     MediaAction = "play"
	MediaPause    MediaAction = "pause"
	MediaNext     MediaAction = "next"
	MediaPrevious MediaAction = "previous"
)

// MediaRequested asks the phone to control media playback.
type MediaRequested struct {
	Action MediaAction `json:"action"`
}

// NotificationSyncRequested toggles phone notification forwarding.
type NotificationSyncRequested struct {
	Enabled bool `json:"enabled"`
}

// StatusRequested asks for an immediate phone status push.
type StatusRequested struct{}

// NotificationDismissed reports a notification dismissed on the unit.
type NotificationDismissed struct {
	ID string `json:"id"`
}

// TripsReported lists the trips stored on the unit.
type TripsReported struct {
	Names []string `json:"names"`
}

// RecordingsReported lists the recordings stored on the unit.
type RecordingsReported struct {
	Recordings []trip.RecordingInfo `json:"recordings"`
}

func (StateChanged) Type() EventType              { return EventStateChanged }
func (WeatherRequested) Type() EventType          { return EventWeatherRequested }
func (RadarRequested) Type() EventType            { return EventRadarRequested }
func (LocationReported) Type() EventType          { return EventLocationReported }
func (MediaRequested) Type() EventType            { return EventMediaRequested }
func (NotificationSyncRequested) Type() EventType { return EventNotificationSync }
func (StatusRequested) Type() EventType           { return EventStatusRequested }
func (NotificationDismissed) Type() EventType     { return EventNotificationDismissed }
func (TripsReported) Type() EventType             { return EventTripsReported }
func (RecordingsReported) Type() EventType        { return EventRecordingsReported }
