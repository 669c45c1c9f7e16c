package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/roman-kulish/unit-companion/internal/session"
	"github.com/roman-kulish/unit-companion/internal/trip"
)

const (
	radarIndexTTL    = time.Minute
	radarTileSize    = 256
	radarColor       = 2
	radarOptions     = "1_1"
	defaultRadarZoom = 6
)

var errNoRadarFrames = errors.New("no radar frames available")

// RadarClient fetches radar tiles from a RainViewer compatible API. The frame
// index is cached for a minute.
type RadarClient struct {
	client  *Client
	baseURL string
	now     func() time.Time

	mu        sync.Mutex
	index     *radarIndex
	fetchedAt time.Time
}

func NewRadarClient(client *Client, baseURL string) *RadarClient {
	return &RadarClient{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}
}

type radarFrame struct {
	Time int64  `json:"time"`
	Path string `json:"path"`
}

type radarIndex struct {
	Host  string `json:"host"`
	Radar struct {
		Past    []radarFrame `json:"past"`
		Nowcast []radarFrame `json:"nowcast"`
	} `json:"radar"`
}

func (r *RadarClient) Frame(ctx context.Context, q session.RadarQuery) (session.RadarImage, error) {
	index, err := r.radarIndex(ctx)
	if err != nil {
		return session.RadarImage{}, err
	}

	frames := index.Radar.Past
	if q.Nowcast {
		frames = index.Radar.Nowcast
	}

	frame, err := pickFrame(frames, q.Time)
	if err != nil {
		return session.RadarImage{}, err
	}

	zoom := q.Zoom
	if zoom <= 0 {
		zoom = defaultRadarZoom
	}
	coord := trip.TileAt(q.Lat, q.Lon, zoom)

	endpoint := fmt.Sprintf("%s%s/%d/%d/%d/%d/%d/%s.png",
		strings.TrimRight(index.Host, "/"), frame.Path, radarTileSize, coord.Z, coord.X, coord.Y, radarColor, radarOptions)

	data, err := r.client.getBytes(ctx, endpoint)
	if err != nil {
		return session.RadarImage{}, err
	}

	return session.RadarImage{Data: data, Timestamp: time.Unix(frame.Time, 0).UTC()}, nil
}

func (r *RadarClient) radarIndex(ctx context.Context) (*radarIndex, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.index != nil && r.now().Sub(r.fetchedAt) < radarIndexTTL {
		return r.index, nil
	}

	var index radarIndex
	if err := r.client.getJSON(ctx, r.baseURL+"/public/weather-maps.json", nil, &index); err != nil {
		return nil, err
	}
	if index.Host == "" {
		index.Host = r.baseURL
	}

	r.index, r.fetchedAt = &index, r.now()
	return r.index, nil
}

// pickFrame returns the frame closest to at, or the latest frame when at is zero.
func pickFrame(frames []radarFrame, at time.Time) (radarFrame, error) {
	if len(frames) == 0 {
		return radarFrame{}, errNoRadarFrames
	}
	if at.IsZero() {
		return frames[len(frames)-1], nil
	}

	best := frames[0]
	for _, f := range frames[1:] {
		if abs(f.Time-at.Unix()) < abs(best.Time-at.Unix()) {
			best = f
		}
	}
	return best, nil
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
