package pipeline

import (
	"context"
	"time"

	"github.com/keagan/vidcontrast/internal/config"
	"github.com/keagan/vidcontrast/internal/source"
)

// Stats summarizes one run
type Stats struct {
	Frames int
	Cues   int
	// Covered is the end time of the last cue
	Covered time.Duration
	Elapsed time.Duration
}

// Opener opens a frame source; source.Open in production
type Opener func(ctx context.Context, path string, opts source.Options) (source.Source, error)

// SourceOptions maps the decoder section of the config to source options
func SourceOptions(cfg *config.Config) source.Options {
	return source.Options{
		Backend:     cfg.Decoder.Backend,
		FFmpegPath:  cfg.Decoder.FFmpegPath,
		FFprobePath: cfg.Decoder.FFprobePath,
		Threads:     cfg.Decoder.Threads,
	}
}
