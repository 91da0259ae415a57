package pipeline

import (
	"fmt"
	"image"
	"image/color"
	"strings"

	"golang.org/x/image/draw"
)

// ParseScaler maps a config name onto an x/image interpolator.
func ParseScaler(name string) (draw.Interpolator, error) {
	switch strings.ToLower(name) {
	case "", "catmullrom":
		return draw.CatmullRom, nil
	case "bilinear":
		return draw.BiLinear, nil
	case "approxbilinear":
		return draw.ApproxBiLinear, nil
	case "nearest":
		return draw.NearestNeighbor, nil
	default:
		return nil, fmt.Errorf("unknown scaler %q", name)
	}
}

// Letterbox fits src inside a w×h canvas filled with bg, preserving aspect
// ratio and centering the content. A source that already has the target
// size is returned unchanged.
func Letterbox(src image.Image, w, h int, bg color.Color, scaler draw.Scaler) image.Image {
	sb := src.Bounds()
	sw, sh := sb.Dx(), sb.Dy()
	if sw == w && sh == h {
		return src
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
	if sw == 0 || sh == 0 {
		return dst
	}

	// Scale by min(w/sw, h/sh) in integer arithmetic.
	nw, nh := w, sh*w/sw
	if w*sh > h*sw {
		nw, nh = sw*h/sh, h
	}
	nw, nh = max(1, nw), max(1, nh)
	x0 := (w - nw) / 2
	y0 := (h - nh) / 2

	if scaler == nil {
		scaler = draw.CatmullRom
	}
	scaler.Scale(dst, image.Rect(x0, y0, x0+nw, y0+nh), src, sb, draw.Over, nil)
	return dst
}
