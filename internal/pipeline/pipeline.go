package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/keagan/vidcontrast/internal/config"
	"github.com/keagan/vidcontrast/internal/metrics"
	"github.com/keagan/vidcontrast/internal/source"
	"github.com/keagan/vidcontrast/internal/srt"
	"github.com/keagan/vidcontrast/internal/timestamp"
	"github.com/keagan/vidcontrast/pkg/util"
	"github.com/rs/zerolog"
)

// Pipeline turns a video into a SubRip report of per-segment metrics
type Pipeline struct {
	logger zerolog.Logger
	cfg    *config.Config
	engine *metrics.Engine
	open   Opener
}

// New creates a pipeline for one configuration snapshot
func New(logger zerolog.Logger, cfg *config.Config) (*Pipeline, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	strategy, err := metrics.StrategyByName(cfg.Metrics.Contrast)
	if err != nil {
		return nil, fmt.Errorf("failed to configure metrics: %w", err)
	}

	return &Pipeline{
		logger: logger,
		cfg:    cfg,
		engine: metrics.NewEngine(strategy),
		open:   source.Open,
	}, nil
}

// WithOpener replaces the source opener
func (p *Pipeline) WithOpener(open Opener) *Pipeline {
	p.open = open
	return p
}

// Analyze writes the report for video to subtitle. The destination is
// created before the video is opened, so a video that cannot be opened
// leaves an empty file behind and returns a *source.OpenError.
func (p *Pipeline) Analyze(ctx context.Context, video, subtitle string) (err error) {
	p.logger.Info().
		Str("input", video).
		Str("output", subtitle).
		Str("decoder", p.cfg.Decoder.Backend).
		Str("contrast", p.engine.ContrastStrategy().Name()).
		Msg("starting analysis")

	out, err := os.Create(subtitle)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", subtitle, err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", subtitle, cerr)
		}
	}()

	opts := SourceOptions(p.cfg)
	opts.Logger = p.logger
	src, err := p.open(ctx, video, opts)
	if err != nil {
		return err
	}
	defer src.Close()

	stats, err := p.Run(ctx, src, out)
	if err != nil {
		return err
	}

	p.logger.Info().
		Int("frames", stats.Frames).
		Int("cues", stats.Cues).
		Str("covered", util.FormatDuration(stats.Covered)).
		Dur("elapsed", stats.Elapsed).
		Msg("analysis complete")

	return nil
}

// Run consumes src until it is exhausted, writing one cue per timestamp
// change. Metrics are computed for the frame that closes each segment. The
// writer is flushed on every return path.
func (p *Pipeline) Run(ctx context.Context, src source.Source, w io.Writer) (stats Stats, err error) {
	start := time.Now()
	cues := srt.NewWriter(w)
	tracker := timestamp.NewTracker()

	defer func() {
		if ferr := cues.Flush(); ferr != nil && err == nil {
			err = fmt.Errorf("failed to write cues: %w", ferr)
		}
		stats.Cues = cues.Count()
		stats.Elapsed = time.Since(start)
	}()

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		f, pos, err := src.Next()
		// a source interrupted by cancellation may report a clean end
		if errors.Is(err, io.EOF) {
			return stats, ctx.Err()
		}
		if err != nil {
			return stats, fmt.Errorf("failed to decode frame %d: %w", stats.Frames, err)
		}
		stats.Frames++

		from, to, boundary := tracker.Observe(pos)
		if !boundary {
			continue
		}

		block := p.engine.Compute(f)
		cue, err := cues.WriteCue(from, to, block.Lines())
		if err != nil {
			return stats, fmt.Errorf("failed to write cue: %w", err)
		}

		if _, end, perr := cue.Span(); perr == nil {
			stats.Covered = end
		}

		p.logger.Debug().
			Int("index", cue.Index).
			Str("start", cue.Start).
			Str("end", cue.End).
			Msg("cue written")
	}
}

// Runner adapts the pipeline to callers that hold a configuration per call,
// building a fresh pipeline for each analysis
func Runner(logger zerolog.Logger) func(ctx context.Context, cfg *config.Config, video, subtitle string) error {
	return func(ctx context.Context, cfg *config.Config, video, subtitle string) error {
		p, err := New(logger, cfg)
		if err != nil {
			return err
		}
		return p.Analyze(ctx, video, subtitle)
	}
}
