package pipeline

import (
	"image"
	"image/color"
	"math"
)

// Placeholder renders the animated sine-gradient test pattern that stands
// in whenever the capture source has nothing to offer.
type Placeholder struct {
	width, height int
}

func NewPlaceholder(width, height int) *Placeholder {
	return &Placeholder{width: width, height: height}
}

func (p *Placeholder) Render(frame uint64) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, p.width, p.height))
	t := float64(frame) * 0.03
	for y := range p.height {
		g := wave(float64(y)*0.02 + t*1.3)
		for x := range p.width {
			img.SetRGBA(x, y, color.RGBA{
				R: wave(float64(x)*0.02 + t),
				G: g,
				B: wave(float64(x+y)*0.01 + t*0.7),
				A: 0xff,
			})
		}
	}
	return img
}

func wave(v float64) uint8 {
	return uint8(127 + 127*math.Sin(v))
}
