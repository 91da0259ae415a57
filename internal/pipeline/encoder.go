package pipeline

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
)

const DefaultQuality = 70

// Encoder produces JPEG payloads. It reuses one buffer and is not safe for
// concurrent use.
type Encoder struct {
	quality int
	buf     bytes.Buffer
}

func NewEncoder(quality int) *Encoder {
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	return &Encoder{quality: quality}
}

// Encode returns a fresh copy of the encoded frame so callers may hold on
// to it after the next call.
func (e *Encoder) Encode(img image.Image) ([]byte, error) {
	e.buf.Reset()
	if err := jpeg.Encode(&e.buf, img, &jpeg.Options{Quality: e.quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return bytes.Clone(e.buf.Bytes()), nil
}
