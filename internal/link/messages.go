package link

import (
	"time"

	"github.com/roman-kulish/unit-companion/internal/phone"
	"github.com/roman-kulish/unit-companion/internal/trip"
)

// MessageType identifies an outbound message.
type MessageType string

const (
	MessageStatus        MessageType = "status"
	MessageWeather       MessageType = "weather"
	MessageWeatherError  MessageType = "weather_error"
	MessageRadarFrame    MessageType = "radar_frame"
	MessageRadarError    MessageType = "radar_error"
	MessageLocationReq   MessageType = "location_request"
	MessageLocationError MessageType = "location_error"
	MessageTripUpload    MessageType = "trip_upload"
	MessageTileUpload    MessageType = "tile_upload"
	MessageTripStart     MessageType = "trip_start"
	MessageTripStop      MessageType = "trip_stop"
	MessageListRequest   MessageType = "list_request"
)

// Message is implemented by every outbound message.
type Message interface {
	Type() MessageType
}

// StatusUpdate pushes the phone status to the unit.
type StatusUpdate struct {
	phone.Status
}

// WeatherReport answers a WeatherRequested event.
type WeatherReport struct {
	Lat            float64         `json:"lat"`
	Lon            float64         `json:"lon"`
	Temperature    float64         `json:"temperature"`    // °C
	ApparentTemp   float64         `json:"apparentTemp"`   // °C
	WindSpeed      float64         `json:"windSpeed"`      // km/h
	WindDirection  int             `json:"windDirection"`  // degrees
	Humidity       int             `json:"humidity"`       // percent
	WeatherCode    int             `json:"weatherCode"`    // WMO weather interpretation code
	Precipitation  float64         `json:"precipitation"`  // mm
	ObservedAt     time.Time       `json:"observedAt"`     // time of the current conditions
	HourlyForecast []HourlyWeather `json:"hourlyForecast"` // next hours, oldest first
}

// HourlyWeather is one forecast hour.
type HourlyWeather struct {
	Time          time.Time `json:"time"`
	Temperature   float64   `json:"temperature"`
	Precipitation float64   `json:"precipitation"`
	WeatherCode   int       `json:"weatherCode"`
}

// WeatherError tells the unit the weather request cannot be served.
type WeatherError struct {
	Message string `json:"message"`
}

// RadarFrame is one radar image of a sequence. Offset is expressed in steps
// relative to the current frame, so frames may be delivered in any order.
type RadarFrame struct {
	Offset       int    `json:"offset"`
	StepMinutes  int    `json:"stepMinutes"`
	TotalFrames  int    `json:"totalFrames"`
	Image        []byte `json:"image"`
	LocalMinutes int    `json:"localMinutes"`          // local time of day of the frame, in minutes
	NowcastStep  *int   `json:"nowcastStep,omitempty"` // set for forecast frames only
}

// RadarError tells the unit the radar sequence cannot be delivered.
type RadarError struct {
	StepMinutes int    `json:"stepMinutes"`
	TotalFrames int    `json:"totalFrames"`
	Message     string `json:"message"`
}

// LocationRequest asks the unit for its current GPS fix.
type LocationRequest struct{}

// LocationError tells the unit a location dependent flow failed.
type LocationError struct {
	Message string `json:"message"`
}

// TripUpload carries the trip metadata and track.
type TripUpload struct {
	Trip      trip.Trip `json:"trip"`
	TileCount int       `json:"tileCount"`
}

// TileUpload carries one map tile of the trip being uploaded.
type TileUpload struct {
	TripName string    `json:"tripName"`
	Tile     trip.Tile `json:"tile"`
	Index    int       `json:"index"`
	Total    int       `json:"total"`
}

// TripStart starts navigation of a stored trip on the unit.
type TripStart struct {
	Name string `json:"name"`
}

// TripStop stops the active trip on the unit.
type TripStop struct{}

// ListRequest asks the unit to report its stored trips and recordings.
type ListRequest struct{}

func (StatusUpdate) Type() MessageType    { return MessageStatus }
func (WeatherReport) Type() MessageType   { return MessageWeather }
func (WeatherError) Type() MessageType    { return MessageWeatherError }
func (RadarFrame) Type() MessageType      { return MessageRadarFrame }
func (RadarError) Type() MessageType      { return MessageRadarError }
func (LocationRequest) Type() MessageType { return MessageLocationReq }
func (LocationError) Type() MessageType   { return MessageLocationError }
func (TripUpload) Type() MessageType      { return MessageTripUpload }
func (TileUpload) Type() MessageType      { return MessageTileUpload }
func (TripStart) Type() MessageType       { return MessageTripStart }
func (TripStop) Type() MessageType        { return MessageTripStop }
func (ListRequest) Type() MessageType     { return MessageListRequest }
