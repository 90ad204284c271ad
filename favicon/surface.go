package favicon

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strings"
	"sync"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/colornames"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// DataURLPrefix prefixes every PNG produced by ImageSurface.
const DataURLPrefix = "data:image/png;base64,"

// ImageSurface rasterises emoji in-process with the Go Regular font. Glyphs
// the font lacks render as the font's notdef box; use a browser canvas
// surface when true colour emoji are needed.
type ImageSurface struct {
	once sync.Once
	font *opentype.Font
	err  error
}

// NewImageSurface creates an ImageSurface. The font is parsed lazily.
func NewImageSurface() *ImageSurface {
	return &ImageSurface{}
}

func (s *ImageSurface) load() (*opentype.Font, error) {
	s.once.Do(func() {
		s.font, s.err = opentype.Parse(goregular.TTF)
	})
	return s.font, s.err
}

// Draw implements Surface.
func (s *ImageSurface) Draw(style EmojiStyle, fontPx int) (string, error) {
	img, err := s.Rasterize(style, fontPx)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("favicon: encode png: %w", err)
	}
	return DataURLPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Rasterize draws style centred on a square RGBA image.
func (s *ImageSurface) Rasterize(style EmojiStyle, fontPx int) (*image.RGBA, error) {
	style = style.Normalize()
	size := style.SizePx

	img := image.NewRGBA(image.Rect(0, 0, size, size))

	ink := color.Color(color.Black)
	if style.BackgroundColor != Transparent {
		bg := ParseColor(style.BackgroundColor)
		draw.Draw(img, img.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
		if isDark(bg) {
			ink = color.White
		}
	}

	if fontPx <= 0 || style.Character == "" {
		return img, nil
	}

	f, err := s.load()
	if err != nil {
		return nil, fmt.Errorf("favicon: parse font: %w", err)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    float64(fontPx),
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("favicon: new face: %w", err)
	}
	defer face.Close()

	// textAlign=center, textBaseline=middle.
	m := face.Metrics()
	width := font.MeasureString(face, style.Character)
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(ink),
		Face: face,
		Dot: fixed.Point26_6{
			X: (fixed.I(size) - width) / 2,
			Y: (fixed.I(size) + m.Ascent - m.Descent) / 2,
		},
	}
	d.DrawString(style.Character)
	return img, nil
}

// ParseColor understands CSS colour keywords and #rgb/#rrggbb hex. Anything
// else yields black, which is what a canvas keeps when handed an invalid
// fillStyle.
func ParseColor(s string) color.Color {
	s = strings.ToLower(strings.TrimSpace(s))
	if c, ok := colornames.Map[s]; ok {
		return c
	}
	if strings.HasPrefix(s, "#") {
		if c, err := colorful.Hex(s); err == nil {
			return c.Clamped()
		}
	}
	return color.Black
}

func isDark(c color.Color) bool {
	cf, ok := colorful.MakeColor(c)
	if !ok {
		return false
	}
	l, _, _ := cf.Lab()
	return l < 0.5
}
