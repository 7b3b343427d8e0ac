package metrics

import (
	"fmt"
	"math"

	"github.com/keagan/vidcontrast/internal/frame"
)

// ContrastStrategy computes the contrast metric of one frame. The histogram
// is the frame's own, already built by the engine.
type ContrastStrategy interface {
	Name() string
	Contrast(f *frame.Frame, h Histogram) float64
}

// Contrast strategy names accepted by StrategyByName
const (
	ContrastStdDev = "stddev"
	ContrastLocal  = "local"
)

// StrategyByName maps a configured name to a strategy
func StrategyByName(name string) (ContrastStrategy, error) {
	switch name {
	case "", ContrastStdDev:
		return StdDevContrast{}, nil
	case ContrastLocal:
		return LocalContrast{Radius: 2}, nil
	default:
		return nil, fmt.Errorf("unknown contrast strategy %q", name)
	}
}

// StdDevContrast is the population standard deviation of the gray image.
// It is unbounded (roughly 0-80 for natural 8-bit footage) even though it
// is reported with a percent sign.
type StdDevContrast struct{}

func (StdDevContrast) Name() string { return ContrastStdDev }

func (StdDevContrast) Contrast(f *frame.Frame, h Histogram) float64 {
	n := h.Pixels()
	if n == 0 {
		return math.NaN()
	}

	var sum float64
	for key, count := range h {
		sum += float64(Gray(Unpack(key))) * float64(count)
	}
	mean := sum / float64(n)

	var sq float64
	for key, count := range h {
		d := float64(Gray(Unpack(key))) - mean
		sq += d * d * float64(count)
	}
	return math.Sqrt(sq / float64(n))
}

// LocalContrast averages the Michelson contrast (max-min)/(max+min) of the
// LAB lightness over a square window around every pixel, as a percentage.
// Windows are clipped at the frame edges. Pixels whose window is entirely
// black contribute 0.
type LocalContrast struct {
	Radius int
}

func (LocalContrast) Name() string { return ContrastLocal }

func (c LocalContrast) Contrast(f *frame.Frame, h Histogram) float64 {
	w, ht := f.Width, f.Height
	if w == 0 || ht == 0 {
		return math.NaN()
	}

	lut := make(map[uint32]uint8, len(h))
	for key := range h {
		lut[key] = LabL(Unpack(key))
	}

	plane := make([]uint8, w*ht)
	for i := range plane {
		p := i * 3
		plane[i] = lut[Pack(f.Pix[p+2], f.Pix[p+1], f.Pix[p])]
	}

	lo := erode(plane, w, ht, c.Radius)
	hi := dilate(plane, w, ht, c.Radius)

	var sum float64
	for i := range plane {
		mx, mn := float64(hi[i]), float64(lo[i])
		if mx+mn == 0 {
			continue
		}
		sum += (mx - mn) / (mx + mn)
	}
	return 100 * sum / float64(len(plane))
}

func erode(src []uint8, w, h, r int) []uint8 {
	return morph(src, w, h, r, func(a, b uint8) bool { return a < b })
}

func dilate(src []uint8, w, h, r int) []uint8 {
	return morph(src, w, h, r, func(a, b uint8) bool { return a > b })
}

// morph applies a separable (2r+1)x(2r+1) min or max filter; better(a, b)
// reports whether a should replace b
func morph(src []uint8, w, h, r int, better func(a, b uint8) bool) []uint8 {
	tmp := make([]uint8, len(src))
	for y := 0; y < h; y++ {
		row := y * w
		for x := 0; x < w; x++ {
			v := src[row+x]
			for k := max(0, x-r); k <= min(w-1, x+r); k++ {
				if better(src[row+k], v) {
					v = src[row+k]
				}
			}
			tmp[row+x] = v
		}
	}

	dst := make([]uint8, len(src))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			v := tmp[y*w+x]
			for k := max(0, y-r); k <= min(h-1, y+r); k++ {
				if better(tmp[k*w+x], v) {
					v = tmp[k*w+x]
				}
			}
			dst[y*w+x] = v
		}
	}
	return dst
}
