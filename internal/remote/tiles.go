package remote

import (
	"context"
	"strconv"
	"strings"

	"github.com/roman-kulish/unit-companion/internal/trip"
)

// TileClient fetches map tiles from a URL template with {z}, {x} and {y}
// placeholders.
type TileClient struct {
	client   *Client
	template string
}

func NewTileClient(client *Client, template string) *TileClient {
	return &TileClient{client: client, template: template}
}

func (t *TileClient) Tile(ctx context.Context, coord trip.TileCoord) ([]byte, error) {
	endpoint := strings.NewReplacer(
		"{z}", strconv.Itoa(coord.Z),
		"{x}", strconv.Itoa(coord.X),
		"{y}", strconv.Itoa(coord.Y),
	).Replace(t.template)

	return t.client.getBytes(ctx, endpoint)
}
