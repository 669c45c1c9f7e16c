package remote

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/roman-kulish/unit-companion/internal/trip"
)

// RoutingClient computes routes with an OSRM compatible API.
type RoutingClient struct {
	client  *Client
	baseURL string
	profile string
}

func NewRoutingClient(client *Client, baseURL, profile string) *RoutingClient {
	if profile == "" {
		profile = "bike"
	}
	return &RoutingClient{client: client, baseURL: strings.TrimRight(baseURL, "/"), profile: profile}
}

type routeResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Distance float64 `json:"distance"`
		Geometry struct {
			Coordinates [][]float64 `json:"coordinates"` // [lon, lat]
		} `json:"geometry"`
	} `json:"routes"`
}

// Route returns the track of the first route from -> to. A response with no
// routes yields an empty track.
func (r *RoutingClient) Route(ctx context.Context, from, to trip.Point) ([]trip.Point, error) {
	endpoint := fmt.Sprintf("%s/route/v1/%s/%f,%f;%f,%f", r.baseURL, r.profile, from.Lon, from.Lat, to.Lon, to.Lat)

	query := url.Values{}
	query.Set("overview", "full")
	query.Set("geometries", "geojson")

	var out routeResponse
	if err := r.client.getJSON(ctx, endpoint, query, &out); err != nil {
		return nil, err
	}
	if out.Code != "Ok" {
		return nil, fmt.Errorf("routing failed: %s %s", out.Code, out.Message)
	}
	if len(out.Routes) == 0 {
		return nil, nil
	}

	coords := out.Routes[0].Geometry.Coordinates
	points := make([]trip.Point, 0, len(coords))
	for _, c := range coords {
		if len(c) < 2 {
			return nil, fmt.Errorf("malformed coordinate %v", c)
		}
		points = append(points, trip.Point{Lat: c[1], Lon: c[0]})
	}
	return points, nil
}
