package ffmpeg

import (
	"errors"
	"time"
)

// ExecOptions configures binary lookup and decoder threading
type ExecOptions struct {
	FFmpegPath  string
	FFprobePath string
	Threads     int
}

// VideoInfo contains metadata about a video file
type VideoInfo struct {
	FilePath   string
	Duration   time.Duration
	Width      int
	Height     int
	FPS        float64
	VideoCodec string
	PixFmt     string
	HasAudio   bool
	AudioCodec string
}

// FrameSize is the byte length of one packed BGR frame
func (v *VideoInfo) FrameSize() int {
	return v.Width * v.Height * 3
}

// Output pixel layout requested from ffmpeg
const (
	RawFormat   = "rawvideo"
	PixelFormat = "bgr24"
)

// stderrTailLines bounds how much decoder output is kept for error reports
const stderrTailLines = 20

// ErrNoFrames means the decoder exited with an error before producing a
// single frame, typically an unsupported codec or a corrupt stream
var ErrNoFrames = errors.New("decoder failed before the first frame")
