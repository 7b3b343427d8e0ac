package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os/exec"
	"strings"
	"sync"

	"github.com/keagan/vidcontrast/internal/frame"
	"github.com/rs/zerolog"
)

// FrameReader streams decoded BGR frames out of an ffmpeg subprocess.
// Frame timestamps come from showinfo lines on stderr and are paired with
// frames from stdout in order.
type FrameReader struct {
	logger zerolog.Logger
	info   *VideoInfo
	cmd    *exec.Cmd
	cancel context.CancelFunc
	stdout *bufio.Reader

	pts        chan float64
	stderrDone chan struct{}

	mu   sync.Mutex
	tail []string

	frames   int
	lastPos  float64
	finished bool
	waitErr  error
}

// OpenFrames probes input and starts a decoder that writes raw BGR frames
// to a pipe. It fails if the file cannot be probed or ffmpeg cannot start.
func (e *Executor) OpenFrames(ctx context.Context, input string) (*FrameReader, error) {
	info, err := e.ProbeVideo(ctx, input)
	if err != nil {
		return nil, err
	}

	filter := NewFilterBuilder().
		ShowInfo().
		Scale(info.Width, info.Height).
		Format(PixelFormat).
		Build()

	args := e.baseArgs()
	args = append(args,
		"-noautorotate",
		"-i", input,
		"-map", "0:v:0",
		"-an", "-sn",
		"-vf", filter,
		"-vsync", "passthrough",
		"-f", RawFormat,
		"-pix_fmt", PixelFormat,
		"-",
	)

	e.logger.Debug().
		Str("cmd", "ffmpeg").
		Strs("args", args).
		Msg("starting frame decoder")

	runCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(runCtx, e.ffmpegPath, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	r := &FrameReader{
		logger:     e.logger.With().Str("input", input).Logger(),
		info:       info,
		cmd:        cmd,
		cancel:     cancel,
		stdout:     bufio.NewReaderSize(stdout, info.FrameSize()),
		pts:        make(chan float64, 1024),
		stderrDone: make(chan struct{}),
	}

	go func() {
		defer close(r.stderrDone)
		defer close(r.pts)
		e.streamOutput(stderr,
			func(seconds float64) {
				r.pts <- seconds
			},
			func(line string) {
				r.keepTail(line)
				r.logger.Trace().Str("ffmpeg", line).Msg("decoder output")
			},
		)
	}()

	return r, nil
}

// Info returns the probed stream metadata
func (r *FrameReader) Info() *VideoInfo {
	return r.info
}

// Next returns the next frame and its presentation time in milliseconds,
// or io.EOF when the decoder has no more frames
func (r *FrameReader) Next() (*frame.Frame, float64, error) {
	if r.finished {
		return nil, 0, io.EOF
	}

	f := frame.New(r.info.Width, r.info.Height)
	if _, err := io.ReadFull(r.stdout, f.Pix); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			r.finish()
			if r.frames == 0 && r.waitErr != nil {
				return nil, 0, fmt.Errorf("%w: %v: %s", ErrNoFrames, r.waitErr, r.stderrTail())
			}
			return nil, 0, io.EOF
		}
		return nil, 0, fmt.Errorf("failed to read frame %d: %w", r.frames, err)
	}

	pos := r.lastPos
	if seconds, ok := <-r.pts; ok && !math.IsNaN(seconds) && !math.IsInf(seconds, 0) {
		pos = seconds * 1000
	}

	r.frames++
	r.lastPos = pos
	return f, pos, nil
}

// Close stops the decoder if it is still running
func (r *FrameReader) Close() error {
	if r.finished {
		return nil
	}
	r.cancel()
	r.finish()
	return nil
}

// finish reaps the subprocess. A decoder that exits non-zero after emitting
// frames simply ends the stream; the failure is only logged. Failing before
// the first frame is reported by Next as ErrNoFrames.
func (r *FrameReader) finish() {
	if r.finished {
		return
	}
	r.finished = true

	// drain stdout so ffmpeg is never blocked writing when we wait
	_, _ = io.Copy(io.Discard, r.stdout)
	for range r.pts {
	}
	<-r.stderrDone
	r.waitErr = r.cmd.Wait()
	r.cancel()

	switch {
	case r.waitErr != nil && r.frames == 0:
		r.logger.Debug().
			Err(r.waitErr).
			Str("stderr", r.stderrTail()).
			Msg("frame decoder failed before the first frame")
		return
	case r.waitErr != nil:
		r.logger.Warn().
			Err(r.waitErr).
			Int("frames", r.frames).
			Str("stderr", r.stderrTail()).
			Msg("frame decoder exited with error")
		return
	}

	r.logger.Debug().Int("frames", r.frames).Msg("frame decoder finished")
}

func (r *FrameReader) keepTail(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tail = append(r.tail, line)
	if len(r.tail) > stderrTailLines {
		r.tail = r.tail[len(r.tail)-stderrTailLines:]
	}
}

func (r *FrameReader) stderrTail() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strings.Join(r.tail, "\n")
}
