//go:build gocv

package source

import (
	"context"
	"errors"
	"io"

	"github.com/keagan/vidcontrast/internal/frame"
	"gocv.io/x/gocv"
)

func init() {
	Register("opencv", openOpenCV)
}

// openCVSource reads through OpenCV's VideoCapture, which reports the
// position of the frame just read via CAP_PROP_POS_MSEC
type openCVSource struct {
	capture *gocv.VideoCapture
	mat     gocv.Mat
}

func openOpenCV(ctx context.Context, path string, opts Options) (Source, error) {
	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, &OpenError{Path: path, Backend: "opencv", Err: err}
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, &OpenError{Path: path, Backend: "opencv", Err: errors.New("capture not opened")}
	}

	opts.Logger.Debug().
		Str("input", path).
		Float64("fps", capture.Get(gocv.VideoCaptureFPS)).
		Msg("opencv capture opened")

	return &openCVSource{capture: capture, mat: gocv.NewMat()}, nil
}

func (s *openCVSource) Next() (*frame.Frame, float64, error) {
	if s.capture == nil {
		return nil, 0, io.EOF
	}
	if ok := s.capture.Read(&s.mat); !ok || s.mat.Empty() {
		return nil, 0, io.EOF
	}

	pos := s.capture.Get(gocv.VideoCapturePosMsec)

	// ToBytes copies, so the frame does not alias the reused Mat
	f := &frame.Frame{
		Width:  s.mat.Cols(),
		Height: s.mat.Rows(),
		Pix:    s.mat.ToBytes(),
	}
	return f, pos, nil
}

func (s *openCVSource) Close() error {
	if s.capture == nil {
		return nil
	}
	s.mat.Close()
	err := s.capture.Close()
	s.capture = nil
	return err
}
