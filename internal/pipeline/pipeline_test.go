package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/keagan/vidcontrast/internal/config"
	"github.com/keagan/vidcontrast/internal/frame"
	"github.com/keagan/vidcontrast/internal/source"
	"github.com/keagan/vidcontrast/internal/srt"
	"github.com/keagan/vidcontrast/internal/timestamp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource replays fixed positions with a frame whose color changes per frame
type fakeSource struct {
	positions []float64
	i         int
	closed    bool
	err       error
}

func (s *fakeSource) Next() (*frame.Frame, float64, error) {
	if s.i >= len(s.positions) {
		if s.err != nil {
			return nil, 0, s.err
		}
		return nil, 0, io.EOF
	}
	f := frame.New(4, 4)
	f.Fill(uint8(s.i*10), 0, 255-uint8(s.i*10))
	pos := s.positions[s.i]
	s.i++
	return f, pos, nil
}

func (s *fakeSource) Close() error {
	s.closed = true
	return nil
}

func newPipeline(t *testing.T) *Pipeline {
	t.Helper()
	p, err := New(zerolog.Nop(), config.Default())
	require.NoError(t, err)
	return p
}

func expectedCues(positions []float64) int {
	n, prev := 0, timestamp.Sentinel
	for _, pos := range positions {
		cur := timestamp.Quantize(pos)
		if cur != prev {
			n++
		}
		prev = cur
	}
	return n
}

func TestRunCueCount(t *testing.T) {
	tests := []struct {
		name      string
		positions []float64
	}{
		{"first frame at zero", []float64{0, 40, 80, 120}},
		{"first frame after zero", []float64{33.4, 66.7, 100.1}},
		{"repeated timestamps", []float64{0, 0.2, 0.9, 1, 1.5, 2}},
		{"single frame at zero", []float64{0}},
		{"empty", nil},
	}

	p := newPipeline(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			stats, err := p.Run(context.Background(), &fakeSource{positions: tt.positions}, &buf)
			require.NoError(t, err)

			cues, err := srt.ReadCues(&buf)
			require.NoError(t, err)

			want := expectedCues(tt.positions)
			assert.Len(t, cues, want)
			assert.Equal(t, want, stats.Cues)
			assert.Equal(t, len(tt.positions), stats.Frames)

			for i, cue := range cues {
				assert.Equal(t, i+1, cue.Index)
				assert.Len(t, cue.Lines, 5)
			}
		})
	}
}

func TestRunStartsAtSentinel(t *testing.T) {
	var buf bytes.Buffer
	_, err := newPipeline(t).Run(context.Background(), &fakeSource{positions: []float64{20, 40, 40.5}}, &buf)
	require.NoError(t, err)

	cues, err := srt.ReadCues(&buf)
	require.NoError(t, err)
	require.Len(t, cues, 2)

	assert.Equal(t, timestamp.Sentinel, cues[0].Start)
	assert.Equal(t, "00:00:00,020", cues[0].End)
	assert.Equal(t, cues[0].End, cues[1].Start)
	assert.Equal(t, "00:00:00,040", cues[1].End)
}

func TestRunFormat(t *testing.T) {
	var buf bytes.Buffer
	_, err := newPipeline(t).Run(context.Background(), &fakeSource{positions: []float64{0, 40}}, &buf)
	require.NoError(t, err)

	// second frame: red 10, blue 245
	want := "1\n00:00:00,000 --> 00:00:00,040\n"
	assert.True(t, strings.HasPrefix(buf.String(), want), buf.String())
	assert.Contains(t, buf.String(), "colors 0k\ntemperature cool\n\n")
}

func TestRunDecodeError(t *testing.T) {
	boom := errors.New("corrupt packet")
	var buf bytes.Buffer

	stats, err := newPipeline(t).Run(context.Background(), &fakeSource{positions: []float64{10, 20}, err: boom}, &buf)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, stats.Cues)

	// cues written before the failure are flushed
	cues, rerr := srt.ReadCues(&buf)
	require.NoError(t, rerr)
	assert.Len(t, cues, 2)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newPipeline(t).Run(ctx, &fakeSource{positions: []float64{10}}, io.Discard)
	assert.ErrorIs(t, err, context.Canceled)
}

// cancellingSource cancels the run after its frames and then reports a clean
// end, as a decoder killed by its context does
type cancellingSource struct {
	fakeSource
	cancel context.CancelFunc
}

func (s *cancellingSource) Next() (*frame.Frame, float64, error) {
	f, pos, err := s.fakeSource.Next()
	if errors.Is(err, io.EOF) {
		s.cancel()
	}
	return f, pos, err
}

func TestRunCancelledDuringDecode(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var buf bytes.Buffer

	src := &cancellingSource{fakeSource: fakeSource{positions: []float64{10, 20, 30}}, cancel: cancel}
	stats, err := newPipeline(t).Run(ctx, src, &buf)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, stats.Frames)

	// cues written before the interruption are flushed
	cues, rerr := srt.ReadCues(&buf)
	require.NoError(t, rerr)
	assert.Len(t, cues, expectedCues(src.positions))
}

type failingWriter struct{}

var errDisk = errors.New("disk full")

func (failingWriter) Write(p []byte) (int, error) { return 0, errDisk }

func TestRunWriteFailure(t *testing.T) {
	_, err := newPipeline(t).Run(context.Background(), &fakeSource{positions: []float64{10}}, failingWriter{})
	assert.ErrorIs(t, err, errDisk)
}

func TestAnalyzeDeterministic(t *testing.T) {
	dir := t.TempDir()
	positions := []float64{0, 33.3, 66.6, 66.7, 100}

	src := &fakeSource{}
	p := newPipeline(t).WithOpener(func(ctx context.Context, path string, opts source.Options) (source.Source, error) {
		*src = fakeSource{positions: positions}
		return src, nil
	})

	first := filepath.Join(dir, "first.srt")
	second := filepath.Join(dir, "second.srt")
	require.NoError(t, p.Analyze(context.Background(), "video.mp4", first))
	assert.True(t, src.closed)
	require.NoError(t, p.Analyze(context.Background(), "video.mp4", second))

	a, err := os.ReadFile(first)
	require.NoError(t, err)
	b, err := os.ReadFile(second)
	require.NoError(t, err)

	assert.NotEmpty(t, a)
	assert.Equal(t, a, b)
}

func TestAnalyzeOpenErrorLeavesEmptyFile(t *testing.T) {
	subtitle := filepath.Join(t.TempDir(), "out.srt")

	err := newPipeline(t).Analyze(context.Background(), filepath.Join(t.TempDir(), "missing.mpg"), subtitle)
	require.Error(t, err)
	assert.True(t, source.IsOpenError(err), "got %v", err)

	info, statErr := os.Stat(subtitle)
	require.NoError(t, statErr)
	assert.Zero(t, info.Size())
}

func TestAnalyzePassesDecoderOptions(t *testing.T) {
	cfg := config.Default()
	cfg.Decoder.Backend = "mpeg"
	cfg.Decoder.Threads = 3

	p, err := New(zerolog.Nop(), cfg)
	require.NoError(t, err)

	var got source.Options
	p.WithOpener(func(ctx context.Context, path string, opts source.Options) (source.Source, error) {
		got = opts
		return &fakeSource{}, nil
	})

	require.NoError(t, p.Analyze(context.Background(), "clip.mpg", filepath.Join(t.TempDir(), "out.srt")))
	assert.Equal(t, "mpeg", got.Backend)
	assert.Equal(t, 3, got.Threads)
}

func TestNewRejectsUnknownContrast(t *testing.T) {
	cfg := config.Default()
	cfg.Metrics.Contrast = "rms"

	_, err := New(zerolog.Nop(), cfg)
	assert.Error(t, err)
}

func TestRunnerUsesConfigPerCall(t *testing.T) {
	run := Runner(zerolog.Nop())

	cfg := config.Default()
	cfg.Metrics.Contrast = "rms"
	err := run(context.Background(), cfg, "clip.mp4", filepath.Join(t.TempDir(), "out.srt"))
	assert.Error(t, err, "invalid strategy is rejected before anything is opened")
}
