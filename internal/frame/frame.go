package frame

import (
	"image"
	"image/color"
)

// Frame is one decoded picture in packed BGR order, 3 bytes per pixel,
// row-major with no padding between rows.
type Frame struct {
	Width  int
	Height int
	Pix    []byte
}

// New allocates a zeroed (black) frame
func New(width, height int) *Frame {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Frame{
		Width:  width,
		Height: height,
		Pix:    make([]byte, width*height*3),
	}
}

// Pixels returns the number of pixels in the frame
func (f *Frame) Pixels() int {
	return f.Width * f.Height
}

// At returns the blue, green and red samples at (x, y)
func (f *Frame) At(x, y int) (b, g, r uint8) {
	i := (y*f.Width + x) * 3
	return f.Pix[i], f.Pix[i+1], f.Pix[i+2]
}

// Set writes an RGB triple at (x, y) in BGR order
func (f *Frame) Set(x, y int, r, g, b uint8) {
	i := (y*f.Width + x) * 3
	f.Pix[i] = b
	f.Pix[i+1] = g
	f.Pix[i+2] = r
}

// Fill paints every pixel with the same color
func (f *Frame) Fill(r, g, b uint8) {
	for i := 0; i+2 < len(f.Pix); i += 3 {
		f.Pix[i] = b
		f.Pix[i+1] = g
		f.Pix[i+2] = r
	}
}

// FromImage converts any image into a BGR frame. YCbCr images take the
// direct conversion path used by the MPEG decoder.
func FromImage(img image.Image) *Frame {
	bounds := img.Bounds()
	f := New(bounds.Dx(), bounds.Dy())

	if ycc, ok := img.(*image.YCbCr); ok {
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				yi := ycc.YOffset(x, y)
				ci := ycc.COffset(x, y)
				r, g, b := color.YCbCrToRGB(ycc.Y[yi], ycc.Cb[ci], ycc.Cr[ci])
				f.Set(x-bounds.Min.X, y-bounds.Min.Y, r, g, b)
			}
		}
		return f
	}

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			f.Set(x-bounds.Min.X, y-bounds.Min.Y, uint8(r>>8), uint8(g>>8), uint8(b>>8))
		}
	}
	return f
}
