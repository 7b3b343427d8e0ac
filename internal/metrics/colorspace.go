package metrics

import (
	"math"

	"github.com/keagan/vidcontrast/internal/frame"
	colorful "github.com/lucasb-eyer/go-colorful"
)

// Fixed-point BGR to gray weights (14-bit), the same ones OpenCV uses for 8-bit input
const (
	grayShift = 14
	grayR     = 4899
	grayG     = 9617
	grayB     = 1868
)

// Pack combines RGB bytes into one 24-bit key with weights 1, 256, 65536
func Pack(r, g, b uint8) uint32 {
	return uint32(r) | uint32(g)<<8 | uint32(b)<<16
}

// Unpack splits a packed key back into RGB bytes
func Unpack(key uint32) (r, g, b uint8) {
	return uint8(key), uint8(key >> 8), uint8(key >> 16)
}

// Gray is the 8-bit luminance of one pixel
func Gray(r, g, b uint8) uint8 {
	return uint8((uint32(b)*grayB + uint32(g)*grayG + uint32(r)*grayR + 1<<(grayShift-1)) >> grayShift)
}

// LabL is the CIE L* of one pixel scaled to 0-255 (L* × 255/100)
func LabL(r, g, b uint8) uint8 {
	l, _, _ := toColor(r, g, b).Lab()
	return toByte(l * 255)
}

// HSVValue is the HSV V channel of one pixel on a 0-255 scale
func HSVValue(r, g, b uint8) uint8 {
	_, _, v := toColor(r, g, b).Hsv()
	return toByte(v * 255)
}

func toColor(r, g, b uint8) colorful.Color {
	return colorful.Color{
		R: float64(r) / 255,
		G: float64(g) / 255,
		B: float64(b) / 255,
	}
}

func toByte(x float64) uint8 {
	x = math.RoundToEven(x)
	if x < 0 {
		return 0
	}
	if x > 255 {
		return 255
	}
	return uint8(x)
}

// Histogram counts pixels per packed RGB value
type Histogram map[uint32]int

// NewHistogram scans a BGR frame once
func NewHistogram(f *frame.Frame) Histogram {
	h := make(Histogram)
	pix := f.Pix
	for i := 0; i+2 < len(pix); i += 3 {
		h[Pack(pix[i+2], pix[i+1], pix[i])]++
	}
	return h
}

// Distinct is the number of different colors
func (h Histogram) Distinct() int {
	return len(h)
}

// Pixels is the total pixel count
func (h Histogram) Pixels() int {
	n := 0
	for _, count := range h {
		n += count
	}
	return n
}
