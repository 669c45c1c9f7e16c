package overlay

import (
	"fmt"
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// Theme is a predefined color scheme for radar intensity.
type Theme string

const (
	ClassicTheme   Theme = "classic"   // Blue to red transition
	GrayscaleTheme Theme = "grayscale" // Black to white transition
	JungleTheme    Theme = "jungle"    // Dark green to yellow transition
	ThermalTheme   Theme = "thermal"   // Black to red to yellow to white
	MarineTheme    Theme = "marine"    // Deep blue to cyan to white
	EnhancedTheme  Theme = "enhanced"  // Black to blue to cyan to yellow to red

	DefaultMapSize = 256 // Default number of colors in the map
)

// ParseTheme validates a theme name. An empty name selects EnhancedTheme.
func ParseTheme(name string) (Theme, error) {
	switch t := Theme(name); t {
	case "":
		return EnhancedTheme, nil
	case ClassicTheme, GrayscaleTheme, JungleTheme, ThermalTheme, MarineTheme, EnhancedTheme:
		return t, nil
	default:
		return "", fmt.Errorf("unknown color theme '%s'", name)
	}
}

// ColorMapper maps a normalized intensity [0-1] to a theme color using a
// pre-computed lookup table.
type ColorMapper struct {
	colorMap []color.NRGBA
	theme    Theme
}

// NewColorMapper creates a mapper for theme with size pre-computed colors.
func NewColorMapper(theme Theme, size int) *ColorMapper {
	if size <= 1 {
		size = DefaultMapSize
	}

	fn := themeFunc(theme)
	cm := &ColorMapper{
		colorMap: make([]color.NRGBA, size),
		theme:    theme,
	}
	for i := range size {
		cm.colorMap[i] = fn(float64(i) / float64(size-1))
	}
	return cm
}

// Color returns the opaque color for intensity, clamped to [0-1].
func (cm *ColorMapper) Color(intensity float64) color.NRGBA {
	index := int(intensity * float64(len(cm.colorMap)-1))

	if index < 0 {
		return cm.colorMap[0]
	}
	if index >= len(cm.colorMap) {
		return cm.colorMap[len(cm.colorMap)-1]
	}
	return cm.colorMap[index]
}

// Theme returns the mapper's color theme.
func (cm *ColorMapper) Theme() Theme {
	return cm.theme
}

func hsv(h, s, v float64) color.NRGBA {
	r, g, b := colorful.Hsv(h, s, v).Clamped().RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 255}
}

func themeFunc(theme Theme) func(float64) color.NRGBA {
	switch theme {
	case ClassicTheme:
		return func(p float64) color.NRGBA {
			return hsv(240-(p*240), 0.9+(p*0.1), math.Pow(p, 0.7))
		}

	case GrayscaleTheme:
		return func(p float64) color.NRGBA {
			v := uint8(math.Pow(p, 0.7) * 255)
			return color.NRGBA{R: v, G: v, B: v, A: 255}
		}

	case JungleTheme:
		return func(p float64) color.NRGBA {
			return hsv(120-(p*60), 1.0, 0.3+(math.Pow(p, 0.6)*0.7))
		}

	case ThermalTheme:
		return func(p float64) color.NRGBA {
			switch {
			case p < 0.33:
				return color.NRGBA{R: uint8(p * 3 * 255), A: 255}
			case p < 0.66:
				return color.NRGBA{R: 255, G: uint8((p - 0.33) * 3 * 255), A: 255}
			default:
				return color.NRGBA{R: 255, G: 255, B: uint8(min(1, (p-0.66)*3) * 255), A: 255}
			}
		}

	case MarineTheme:
		return func(p float64) color.NRGBA {
			return hsv(240-(p*60), 1.0-(p*0.8), 0.3+(math.Pow(p, 0.6)*0.7))
		}

	default:
		return func(p float64) color.NRGBA {
			p = math.Max(0, math.Min(1, p))
			enhanced := math.Pow(p, 0.7)

			switch {
			case p < 0.25:
				return hsv(240, 1.0, enhanced*4)
			case p < 0.5:
				return hsv(240-((p-0.25)*240), 1.0, enhanced*1.5)
			case p < 0.75:
				return hsv(180-((p-0.5)*4*120), 1.0, math.Min(1.0, enhanced*1.5))
			default:
				return hsv(60-((p-0.75)*4*60), 1.0, 1.0)
			}
		}
	}
}
