package source

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"os"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"

	"github.com/coreman2200/funtimes-ledwall/internal/panel"
)

// Still repeats one frame forever.
type Still struct {
	frame []byte
}

func (s *Still) Next(dst []byte) bool {
	copy(dst, s.frame)
	return true
}

// NewSVG rasterises an SVG document stretched to the wall and keeps its
// luminance. Transparent areas come out dark.
func NewSVG(r io.Reader, g panel.Geometry) (*Still, error) {
	icon, err := oksvg.ReadIconStream(r)
	if err != nil {
		return nil, fmt.Errorf("parse svg: %w", err)
	}
	w, h := g.Cols(), g.Rows()
	icon.SetTarget(0, 0, float64(w), float64(h))

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	scanner := rasterx.NewScannerGV(w, h, img, img.Bounds())
	icon.Draw(rasterx.NewDasher(w, h, scanner), 1)

	return &Still{frame: Luminance(img)}, nil
}

func OpenSVG(path string, g panel.Geometry) (*Still, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return NewSVG(f, g)
}

// Luminance flattens img into a row-major frame.
func Luminance(img image.Image) []byte {
	b := img.Bounds()
	out := make([]byte, 0, b.Dx()*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out = append(out, color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y)
		}
	}
	return out
}
