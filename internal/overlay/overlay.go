package overlay

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"log/slog"
	"sync"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	dpi         float64 = 72
	defaultSize float64 = 12
	margin      int     = 3
)

var labelBackground = color.NRGBA{A: 160}

// Overlay recolors radar frames with a color theme and stamps the frame
// time in the top-left corner. It is safe for concurrent use.
type Overlay struct {
	mapper   *ColorMapper
	fontSize float64
	logger   *slog.Logger

	mu      sync.Mutex
	context *freetype.Context
	face    font.Face
}

// New creates an Overlay for the given theme.
func New(theme Theme, options ...func(*Overlay)) (*Overlay, error) {
	o := &Overlay{
		mapper:   NewColorMapper(theme, DefaultMapSize),
		fontSize: defaultSize,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, option := range options {
		option(o)
	}

	parsedFont, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	o.context = freetype.NewContext()
	o.context.SetDPI(dpi)
	o.context.SetFont(parsedFont)
	o.context.SetFontSize(o.fontSize)
	o.context.SetSrc(image.White)
	o.context.SetHinting(font.HintingFull)

	o.face = truetype.NewFace(parsedFont, &truetype.Options{
		Size:    o.fontSize,
		DPI:     dpi,
		Hinting: font.HintingFull,
	})

	return o, nil
}

func WithLogger(logger *slog.Logger) func(*Overlay) {
	return func(o *Overlay) {
		o.logger = logger
	}
}

func WithFontSize(size float64) func(*Overlay) {
	return func(o *Overlay) {
		if size > 0 {
			o.fontSize = size
		}
	}
}

// Process decodes a PNG radar frame, maps every visible pixel through the
// color theme, stamps label and re-encodes the frame as PNG. Transparent
// pixels stay transparent. An empty label skips the stamp.
func (o *Overlay) Process(data []byte, label string) ([]byte, error) {
	src, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding frame: %w", err)
	}

	img := o.recolor(src)

	if label != "" {
		if err = o.stamp(img, label); err != nil {
			return nil, fmt.Errorf("drawing label: %w", err)
		}
	}

	var buf bytes.Buffer
	if err = png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding frame: %w", err)
	}

	o.logger.Debug("frame processed",
		slog.String("theme", string(o.mapper.Theme())),
		slog.String("label", label),
		slog.Int("width", img.Bounds().Dx()),
		slog.Int("height", img.Bounds().Dy()))

	return buf.Bytes(), nil
}

func (o *Overlay) recolor(src image.Image) *image.NRGBA {
	bounds := src.Bounds()
	img := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBAModel.Convert(src.At(x, y)).(color.NRGBA)
			if c.A == 0 {
				continue
			}

			mapped := o.mapper.Color(intensity(c))
			mapped.A = c.A
			img.SetNRGBA(x-bounds.Min.X, y-bounds.Min.Y, mapped)
		}
	}

	return img
}

// intensity is the relative luminance of c in [0-1].
func intensity(c color.NRGBA) float64 {
	return (0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B)) / 255
}

func (o *Overlay) stamp(img *image.NRGBA, label string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	width := font.MeasureString(o.face, label).Ceil()
	metrics := o.face.Metrics()
	ascent, height := metrics.Ascent.Ceil(), metrics.Height.Ceil()

	box := image.Rect(0, 0, width+2*margin, height+2*margin).Intersect(img.Bounds())
	draw.Draw(img, box, image.NewUniform(labelBackground), image.Point{}, draw.Over)

	o.context.SetClip(img.Bounds())
	o.context.SetDst(img)

	_, err := o.context.DrawString(label, freetype.Pt(margin, margin+ascent))
	return err
}
