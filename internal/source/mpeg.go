package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/gen2brain/mpeg"
	"github.com/keagan/vidcontrast/internal/frame"
)

var errNoVideo = errors.New("no video stream")

func init() {
	Register("mpeg", openMPEG)
}

// mpegSource decodes MPEG-1 program streams in pure Go
type mpegSource struct {
	file   *os.File
	mpg    *mpeg.MPEG
	frames int
}

func openMPEG(ctx context.Context, path string, opts Options) (Source, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &OpenError{Path: path, Backend: "mpeg", Err: err}
	}

	mpg, err := mpeg.New(file)
	if err != nil {
		file.Close()
		return nil, &OpenError{Path: path, Backend: "mpeg", Err: err}
	}

	// a program stream without video never produces a frame and never ends
	if mpg.NumVideoStreams() == 0 || mpg.Video() == nil {
		file.Close()
		return nil, &OpenError{Path: path, Backend: "mpeg", Err: errNoVideo}
	}

	opts.Logger.Debug().
		Str("input", path).
		Int("width", mpg.Width()).
		Int("height", mpg.Height()).
		Float64("fps", mpg.Framerate()).
		Msg("mpeg stream opened")

	return &mpegSource{file: file, mpg: mpg}, nil
}

func (s *mpegSource) Next() (*frame.Frame, float64, error) {
	for {
		if s.mpg == nil {
			return nil, 0, io.EOF
		}

		f := s.mpg.DecodeVideo()
		if f != nil {
			s.frames++
			return frame.FromImage(f.YCbCr()), f.Time * 1000, nil
		}

		if s.mpg.HasEnded() || s.mpg.Video() == nil {
			return nil, 0, io.EOF
		}
	}
}

func (s *mpegSource) Close() error {
	s.mpg = nil
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	if err != nil {
		return fmt.Errorf("close mpeg input: %w", err)
	}
	return nil
}
