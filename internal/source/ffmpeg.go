package source

import (
	"context"
	"errors"

	"github.com/keagan/vidcontrast/internal/ffmpeg"
	"github.com/keagan/vidcontrast/internal/frame"
)

func init() {
	Register("ffmpeg", openFFmpeg)
}

// openFFmpeg decodes through an ffmpeg subprocess. Probe failures, missing
// video streams and missing binaries all count as an unopenable source.
func openFFmpeg(ctx context.Context, path string, opts Options) (Source, error) {
	exec, err := ffmpeg.New(opts.Logger, ffmpeg.ExecOptions{
		FFmpegPath:  opts.FFmpegPath,
		FFprobePath: opts.FFprobePath,
		Threads:     opts.Threads,
	})
	if err != nil {
		return nil, &OpenError{Path: path, Backend: "ffmpeg", Err: err}
	}

	reader, err := exec.OpenFrames(ctx, path)
	if err != nil {
		return nil, &OpenError{Path: path, Backend: "ffmpeg", Err: err}
	}

	info := reader.Info()
	opts.Logger.Debug().
		Str("input", path).
		Int("width", info.Width).
		Int("height", info.Height).
		Float64("fps", info.FPS).
		Dur("duration", info.Duration).
		Str("video_codec", info.VideoCodec).
		Msg("video opened")

	return &ffmpegSource{FrameReader: reader, path: path}, nil
}

// ffmpegSource reports a decoder that dies before its first frame as an
// unopenable video, since ffprobe alone cannot tell a missing codec apart
type ffmpegSource struct {
	*ffmpeg.FrameReader
	path string
}

func (s *ffmpegSource) Next() (*frame.Frame, float64, error) {
	f, pos, err := s.FrameReader.Next()
	if errors.Is(err, ffmpeg.ErrNoFrames) {
		return nil, 0, &OpenError{Path: s.path, Backend: "ffmpeg", Err: err}
	}
	return f, pos, err
}
