// Package metrics computes the five per-frame perceptual measurements
// reported in each cue: contrast, lightness, brightness, color count and
// color temperature.
//
// All statistics are derived from a single histogram of the frame's packed
// RGB values, so color space conversions run once per distinct color rather
// than once per pixel.
package metrics

import (
	"fmt"
	"math"
	"strconv"

	"github.com/keagan/vidcontrast/internal/frame"
)

// Temperature is the warm/cool classification of a frame
type Temperature int

const (
	Cool Temperature = iota
	Warm
)

func (t Temperature) String() string {
	if t == Warm {
		return "warm"
	}
	return "cool"
}

// Block holds the raw metric values of one frame
type Block struct {
	// Contrast is the output of the contrast strategy; NaN is already 0
	Contrast float64
	// Lightness is mean LAB L (0-255) / 2.55
	Lightness float64
	// Brightness is mean HSV V (0-255) / 2.55
	Brightness float64
	// Colors is the number of distinct 24-bit RGB values
	Colors      int
	Temperature Temperature
}

// Engine computes metric blocks. It holds no per-frame state and is safe to
// reuse across frames.
type Engine struct {
	contrast ContrastStrategy
}

// NewEngine creates an engine; a nil strategy selects StdDevContrast
func NewEngine(contrast ContrastStrategy) *Engine {
	if contrast == nil {
		contrast = StdDevContrast{}
	}
	return &Engine{contrast: contrast}
}

// ContrastStrategy returns the configured contrast strategy
func (e *Engine) ContrastStrategy() ContrastStrategy {
	return e.contrast
}

// Compute measures one frame. It never fails: empty frames and other
// degenerate inputs produce zeros.
func (e *Engine) Compute(f *frame.Frame) Block {
	h := NewHistogram(f)
	n := h.Pixels()

	var sumL, sumV, sumR, sumB uint64
	for key, count := range h {
		r, g, b := Unpack(key)
		c := uint64(count)
		sumL += uint64(LabL(r, g, b)) * c
		sumV += uint64(HSVValue(r, g, b)) * c
		sumR += uint64(r) * c
		sumB += uint64(b) * c
	}

	block := Block{
		Contrast:    finite(e.contrast.Contrast(f, h)),
		Lightness:   finite(mean(sumL, n) / 2.55),
		Brightness:  finite(mean(sumV, n) / 2.55),
		Colors:      h.Distinct(),
		Temperature: Cool,
	}

	// same pixel count on both sides, so comparing sums compares means
	if sumR > sumB {
		block.Temperature = Warm
	}

	return block
}

func mean(sum uint64, n int) float64 {
	if n == 0 {
		return math.NaN()
	}
	return float64(sum) / float64(n)
}

func finite(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return x
}

// Round3 rounds to three decimals, half to even on the exact binary value
func Round3(x float64) float64 {
	v, err := strconv.ParseFloat(strconv.FormatFloat(finite(x), 'f', 3, 64), 64)
	if err != nil {
		return 0
	}
	return v
}

// Display renders a metric as an integer: first Round3, then %.0f. The two
// steps can disagree with a single rounding at .5 boundaries; that is the
// established output and is kept.
func Display(x float64) string {
	return fmt.Sprintf("%.0f", Round3(x))
}

// Lines returns the cue body in fixed order
func (b Block) Lines() []string {
	return []string{
		fmt.Sprintf("contrast %s%%", Display(b.Contrast)),
		fmt.Sprintf("lightness %s%%", Display(b.Lightness)),
		fmt.Sprintf("brightness %s%%", Display(b.Brightness)),
		fmt.Sprintf("colors %sk", Display(float64(b.Colors)/1000)),
		fmt.Sprintf("temperature %s", b.Temperature),
	}
}
