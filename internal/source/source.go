package source

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/keagan/vidcontrast/internal/frame"
	"github.com/rs/zerolog"
)

// Source yields decoded frames in decode order. Next returns io.EOF once the
// stream is exhausted; that is a normal stop, not a failure.
type Source interface {
	Next() (*frame.Frame, float64, error)
	Close() error
}

// Options selects and configures a decoding backend
type Options struct {
	Backend     string
	FFmpegPath  string
	FFprobePath string
	Threads     int
	Logger      zerolog.Logger
}

// Opener opens a video file with one backend
type Opener func(ctx context.Context, path string, opts Options) (Source, error)

// DefaultBackend is used when Options.Backend is empty
const DefaultBackend = "ffmpeg"

// ErrUnknownBackend is returned when no opener is registered under a name
var ErrUnknownBackend = errors.New("unknown decoder backend")

// OpenError reports a video that could not be demuxed or decoded at all
type OpenError struct {
	Path    string
	Backend string
	Err     error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("unable to open %q with %s decoder: %v", e.Path, e.Backend, e.Err)
}

func (e *OpenError) Unwrap() error {
	return e.Err
}

// IsOpenError reports whether err carries an *OpenError
func IsOpenError(err error) bool {
	var openErr *OpenError
	return errors.As(err, &openErr)
}

var (
	mu      sync.RWMutex
	openers = make(map[string]Opener)
)

// Register makes a backend available to Open
func Register(name string, opener Opener) {
	mu.Lock()
	defer mu.Unlock()
	openers[name] = opener
}

// Backends lists registered backend names
func Backends() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(openers))
	for name := range openers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open opens path with the configured backend. Failures to read the
// container surface as *OpenError.
func Open(ctx context.Context, path string, opts Options) (Source, error) {
	name := opts.Backend
	if name == "" {
		name = DefaultBackend
	}

	mu.RLock()
	opener, ok := openers[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownBackend, name, Backends())
	}

	if path == "" {
		return nil, &OpenError{Path: path, Backend: name, Err: errors.New("empty path")}
	}

	src, err := opener(ctx, path, opts)
	if err != nil {
		var openErr *OpenError
		if errors.As(err, &openErr) {
			return nil, err
		}
		return nil, &OpenError{Path: path, Backend: name, Err: err}
	}
	return src, nil
}
