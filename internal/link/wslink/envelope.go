package wslink

import (
	"encoding/json"
	"fmt"

	"github.com/roman-kulish/unit-companion/internal/link"
)

// Frame types exchanged besides events and messages.
const (
	typeAck            = "ack"
	typeDownload       = "download"
	typeDownloadCancel = "download_cancel"
	typeDownloadChunk  = "download_chunk"
	typeDownloadDone   = "download_done"
)

// envelope is the JSON frame carried by every websocket message.
type envelope struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type ackPayload struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type downloadRequest struct {
	Name string `json:"name"`
}

type downloadChunk struct {
	Offset int64  `json:"offset"`
	Total  int64  `json:"total"`
	Data   []byte `json:"data"`
}

func newEnvelope(id, typ string, payload any) (envelope, error) {
	env := envelope{ID: id, Type: typ}
	if payload == nil {
		return env, nil
	}

	p, err := json.Marshal(payload)
	if err != nil {
		return envelope{}, fmt.Errorf("marshaling %s payload: %w", typ, err)
	}
	env.Payload = p

	return env, nil
}

// decodeEvent converts an inbound frame into a typed event.
func decodeEvent(env envelope) (link.Event, error) {
	var ev link.Event
	switch link.EventType(env.Type) {
	case link.EventWeatherRequested:
		ev = &link.WeatherRequested{}
	case link.EventRadarRequested:
		ev = &link.RadarRequested{}
	case link.EventLocationReported:
		ev = &link.LocationReported{}
	case link.EventMediaRequested:
		ev = &link.MediaRequested{}
	case link.EventNotificationSync:
		ev = &link.NotificationSyncRequested{}
	case link.EventStatusRequested:
		return link.StatusRequested{}, nil
	case link.EventNotificationDismissed:
		ev = &link.NotificationDismissed{}
	case link.EventTripsReported:
		ev = &link.TripsReported{}
	case link.EventRecordingsReported:
		ev = &link.RecordingsReported{}
	default:
		return nil, fmt.Errorf("unknown event type '%s'", env.Type)
	}

	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, ev); err != nil {
			return nil, fmt.Errorf("decoding %s event: %w", env.Type, err)
		}
	}

	return deref(ev), nil
}

// deref returns events by value so consumers can switch on concrete types.
func deref(ev link.Event) link.Event {
	switch e := ev.(type) {
	case *link.WeatherRequested:
		return *e
	case *link.RadarRequested:
		return *e
	case *link.LocationReported:
		return *e
	case *link.MediaRequested:
		return *e
	case *link.NotificationSyncRequested:
		return *e
	case *link.NotificationDismissed:
		return *e
	case *link.TripsReported:
		return *e
	case *link.RecordingsReported:
		return *e
	default:
		return ev
	}
}
