package trip

import (
	"errors"
	"fmt"
	"math"
	"time"
)

const earthRadiusMeters = 6_371_000

// MaxZoom is the deepest tile zoom level supported by the unit.
const MaxZoom = 18

// ErrEmptyTrack is returned when a trip is built from no points.
var ErrEmptyTrack = errors.New("track has no points")

// New builds a trip from the track points and derives its metadata.
func New(name string, points []Point, createdAt time.Time) (*Trip, error) {
	if name == "" {
		return nil, errors.New("trip name is required")
	}
	if len(points) == 0 {
		return nil, ErrEmptyTrack
	}

	t := &Trip{
		Name:      name,
		Points:    points,
		CreatedAt: createdAt.UTC(),
	}
	t.Recompute()

	return t, nil
}

// Recompute derives distance, elevation and bounds from the track points.
func (t *Trip) Recompute() {
	t.DistanceMeters, t.ElevationGain, t.ElevationLoss = 0, 0, 0
	t.Bounds = BoundsOf(t.Points)

	for i := 1; i < len(t.Points); i++ {
		prev, cur := t.Points[i-1], t.Points[i]
		t.DistanceMeters += Haversine(prev, cur)

		if prev.Elevation == nil || cur.Elevation == nil {
			continue
		}
		if delta := *cur.Elevation - *prev.Elevation; delta > 0 {
			t.ElevationGain += delta
		} else {
			t.ElevationLoss -= delta
		}
	}
}

// BoundsOf returns the bounding box of the points, or a zero box for no points.
func BoundsOf(points []Point) BoundingBox {
	if len(points) == 0 {
		return BoundingBox{}
	}

	b := BoundingBox{
		MinLat: points[0].Lat,
		MinLon: points[0].Lon,
		MaxLat: points[0].Lat,
		MaxLon: points[0].Lon,
	}
	for _, p := range points[1:] {
		b.MinLat = math.Min(b.MinLat, p.Lat)
		b.MinLon = math.Min(b.MinLon, p.Lon)
		b.MaxLat = math.Max(b.MaxLat, p.Lat)
		b.MaxLon = math.Max(b.MaxLon, p.Lon)
	}
	return b
}

// Haversine returns the great-circle distance between two points in meters.
func Haversine(a, b Point) float64 {
	lat1, lat2 := radians(a.Lat), radians(b.Lat)
	dLat := lat2 - lat1
	dLon := radians(b.Lon - a.Lon)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)

	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// TileAt returns the slippy map tile containing the coordinate at the zoom level.
func TileAt(lat, lon float64, zoom int) TileCoord {
	n := math.Exp2(float64(zoom))
	latRad := radians(clampLat(lat))

	x := int(math.Floor((lon + 180) / 360 * n))
	y := int(math.Floor((1 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2 * n))

	maxIndex := int(n) - 1
	return TileCoord{
		Z: zoom,
		X: min(max(x, 0), maxIndex),
		Y: min(max(y, 0), maxIndex),
	}
}

// TilesForBounds lists every tile covering the box at each zoom level,
// ordered by zoom, then row, then column.
func TilesForBounds(b BoundingBox, zooms ...int) ([]TileCoord, error) {
	if b.MinLat > b.MaxLat || b.MinLon > b.MaxLon {
		return nil, fmt.Errorf("invalid bounding box: %+v", b)
	}

	var coords []TileCoord
	for _, z := range zooms {
		if z < 0 || z > MaxZoom {
			return nil, fmt.Errorf("zoom level %d out of range [0, %d]", z, MaxZoom)
		}

		// tile rows grow southwards
		topLeft := TileAt(b.MaxLat, b.MinLon, z)
		bottomRight := TileAt(b.MinLat, b.MaxLon, z)

		for y := topLeft.Y; y <= bottomRight.Y; y++ {
			for x := topLeft.X; x <= bottomRight.X; x++ {
				coords = append(coords, TileCoord{Z: z, X: x, Y: y})
			}
		}
	}

	return coords, nil
}

func (c TileCoord) String() string {
	return fmt.Sprintf("%d/%d/%d", c.Z, c.X, c.Y)
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

func clampLat(lat float64) float64 {
	const maxLat = 85.05112878
	return math.Max(-maxLat, math.Min(maxLat, lat))
}
