package frame

import (
	"image"
	"image/color"
	"testing"
)

func TestSetAndAtUseBGROrder(t *testing.T) {
	f := New(2, 1)
	f.Set(1, 0, 10, 20, 30)

	if f.Pix[3] != 30 || f.Pix[4] != 20 || f.Pix[5] != 10 {
		t.Fatalf("expected BGR layout, got %v", f.Pix[3:6])
	}

	b, g, r := f.At(1, 0)
	if b != 30 || g != 20 || r != 10 {
		t.Errorf("At returned b=%d g=%d r=%d", b, g, r)
	}
}

func TestFromImageRGBA(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 200, G: 100, B: 50, A: 255})

	f := FromImage(img)
	if f.Width != 2 || f.Height != 2 {
		t.Fatalf("expected 2x2, got %dx%d", f.Width, f.Height)
	}

	b, g, r := f.At(0, 0)
	if r != 200 || g != 100 || b != 50 {
		t.Errorf("expected (200,100,50), got (%d,%d,%d)", r, g, b)
	}
}

func TestFromImageYCbCrGray(t *testing.T) {
	img := image.NewYCbCr(image.Rect(0, 0, 4, 4), image.YCbCrSubsampleRatio420)
	for i := range img.Y {
		img.Y[i] = 128
	}
	for i := range img.Cb {
		img.Cb[i] = 128
		img.Cr[i] = 128
	}

	f := FromImage(img)
	b, g, r := f.At(3, 3)
	if r != 128 || g != 128 || b != 128 {
		t.Errorf("expected neutral gray, got (%d,%d,%d)", r, g, b)
	}
}

func TestNewClampsNegativeSize(t *testing.T) {
	f := New(-1, 5)
	if f.Pixels() != 0 || len(f.Pix) != 0 {
		t.Errorf("expected empty frame, got %d pixels", f.Pixels())
	}
}
