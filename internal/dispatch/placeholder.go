package dispatch

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"sync"
)

// PlaceholderAssetPath is the one static asset that falls back to a
// generated placeholder instead of an error: the cross-section reference
// diagram shown on every site form. A broken image there is worse than a
// grey box.
const PlaceholderAssetPath = "/static/cross-section-guide.png"

var placeholderOnce sync.Once
var placeholderBytes []byte

// placeholderImage renders a small grey rectangle as a PNG.
func placeholderImage() []byte {
	placeholderOnce.Do(func() {
		img := image.NewRGBA(image.Rect(0, 0, 160, 120))
		fill := color.RGBA{R: 0xd0, G: 0xd4, B: 0xd8, A: 0xff}
		border := color.RGBA{R: 0x8a, G: 0x90, B: 0x96, A: 0xff}
		b := img.Bounds()
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				if x == b.Min.X || y == b.Min.Y || x == b.Max.X-1 || y == b.Max.Y-1 {
					img.Set(x, y, border)
				} else {
					img.Set(x, y, fill)
				}
			}
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			// Encoding an in-memory RGBA cannot fail; keep the zero value.
			return
		}
		placeholderBytes = buf.Bytes()
	})
	return placeholderBytes
}
