package ffmpeg

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os/exec"
	"regexp"
	"strconv"

	"github.com/rs/zerolog"
)

// Executor locates the ffmpeg binaries and builds decode processes
type Executor struct {
	logger      zerolog.Logger
	ffmpegPath  string
	ffprobePath string
	threads     int
}

// New creates a new ffmpeg executor. Empty paths fall back to the binaries
// found in PATH.
func New(logger zerolog.Logger, opts ExecOptions) (*Executor, error) {
	ffmpegBin := opts.FFmpegPath
	if ffmpegBin == "" {
		ffmpegBin = "ffmpeg"
	}
	ffprobeBin := opts.FFprobePath
	if ffprobeBin == "" {
		ffprobeBin = "ffprobe"
	}

	ffmpegPath, err := exec.LookPath(ffmpegBin)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}

	ffprobePath, err := exec.LookPath(ffprobeBin)
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found: %w", err)
	}

	return &Executor{
		logger:      logger.With().Str("decoder", "ffmpeg").Logger(),
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		threads:     opts.Threads,
	}, nil
}

// baseArgs are prepended to every decode invocation. The log level stays at
// info so showinfo lines reach stderr.
func (e *Executor) baseArgs() []string {
	args := []string{"-nostdin", "-hide_banner", "-loglevel", "info"}

	if e.threads > 0 {
		args = append(args, "-threads", fmt.Sprintf("%d", e.threads))
	}

	return args
}

var showInfoRegex = regexp.MustCompile(`\bn:\s*\d+\s+pts:\s*\S+\s+pts_time:\s*(\S+)`)

// parseShowInfo extracts pts_time (seconds) from a showinfo frame line. The
// second result is false for lines that do not describe a frame; an
// unparsable time on a frame line yields NaN.
func parseShowInfo(line string) (float64, bool) {
	m := showInfoRegex.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}

	seconds, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return math.NaN(), true
	}
	return seconds, true
}

// streamOutput scans ffmpeg stderr, reporting every frame timestamp and
// passing the remaining lines to logHandler
func (e *Executor) streamOutput(r io.Reader, frameHandler func(seconds float64), logHandler func(string)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()

		if seconds, ok := parseShowInfo(line); ok {
			if frameHandler != nil {
				frameHandler(seconds)
			}
			continue
		}

		if logHandler != nil {
			logHandler(line)
		}
	}
}
