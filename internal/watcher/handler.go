package watcher

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/keagan/vidcontrast/internal/config"
	"github.com/keagan/vidcontrast/pkg/util"
	"github.com/rs/zerolog"
)

// AnalyzeFunc runs one analysis with an explicit configuration
type AnalyzeFunc func(ctx context.Context, cfg *config.Config, video, subtitle string) error

// Status of a finished job
const (
	StatusDone    = "done"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// Result describes one handled event
type Result struct {
	JobID      string    `json:"job_id"`
	Bucket     string    `json:"bucket"`
	Name       string    `json:"name"`
	Output     string    `json:"output,omitempty"`
	Status     string    `json:"status"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	Error      string    `json:"error,omitempty"`
	ElapsedMS  int64     `json:"elapsed_ms"`
	FinishedAt time.Time `json:"finished_at"`

	err error
}

// Err is the typed failure, nil unless Status is StatusFailed
func (r Result) Err() error {
	return r.err
}

func (r *Result) fail(err error) {
	r.Status = StatusFailed
	r.err = err
	r.Error = err.Error()
	if kind, ok := KindOf(err); ok {
		r.ErrorKind = kind.String()
	}
}

// Handler downloads, analyzes and re-uploads one object
type Handler struct {
	logger  zerolog.Logger
	cfg     *config.Config
	store   ObjectStore
	analyze AnalyzeFunc
}

func NewHandler(logger zerolog.Logger, cfg *config.Config, store ObjectStore, analyze AnalyzeFunc) *Handler {
	return &Handler{
		logger:  logger,
		cfg:     cfg,
		store:   store,
		analyze: analyze,
	}
}

// Process handles one event. Failures are reported in the result, never
// returned, so one bad object cannot stop the worker.
func (h *Handler) Process(ctx context.Context, ev Event) (res Result) {
	start := time.Now()
	res = Result{
		JobID:  uuid.NewString(),
		Bucket: ev.Bucket,
		Name:   ev.Name,
		Status: StatusDone,
	}
	defer func() {
		res.ElapsedMS = time.Since(start).Milliseconds()
		res.FinishedAt = time.Now().UTC()
	}()

	ext := h.cfg.Watcher.ResultExt
	if util.GetExtension(ev.Name) == ext || !ev.IsVideo() {
		res.Status = StatusSkipped
		return res
	}

	if err := h.run(ctx, ev, &res); err != nil {
		res.fail(err)
	}
	return res
}

func (h *Handler) run(ctx context.Context, ev Event, res *Result) error {
	logger := h.logger.With().Str("job_id", res.JobID).Str("object", ev.Path()).Logger()

	tempDir := h.cfg.TempDir
	if err := util.EnsureDir(tempDir); err != nil {
		return &JobError{Kind: KindLocal, Object: ev.Name, Err: err}
	}

	video, err := util.TempFile(tempDir, "vidcontrast-", util.GetExtension(ev.Name))
	if err != nil {
		return &JobError{Kind: KindLocal, Object: ev.Name, Err: err}
	}
	subtitle := video.Name() + h.cfg.Watcher.ResultExt
	defer util.CleanupFiles(video.Name(), subtitle)

	logger.Debug().Str("path", video.Name()).Msg("downloading object")
	err = h.store.Download(ctx, ev.Bucket, ev.Name, video)
	if cerr := video.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return &JobError{Kind: KindNetwork, Object: ev.Name, Err: err}
	}

	if err := h.analyze(ctx, h.cfg, video.Name(), subtitle); err != nil {
		return &JobError{Kind: KindDecode, Object: ev.Name, Err: err}
	}

	out, err := os.Open(subtitle)
	if err != nil {
		return &JobError{Kind: KindDecode, Object: ev.Name, Err: err}
	}
	defer out.Close()

	res.Output = ev.ResultName(h.cfg.Watcher.ResultExt)
	if err := h.store.Upload(ctx, ev.Bucket, res.Output, "application/x-subrip", out); err != nil {
		return &JobError{Kind: KindUpload, Object: res.Output, Err: err}
	}

	logger.Info().Str("output", res.Output).Msg("report uploaded")
	return nil
}

// invalidResult reports a payload that never became an event
func invalidResult(payload string, err error) Result {
	res := Result{
		JobID:      uuid.NewString(),
		FinishedAt: time.Now().UTC(),
	}
	var jobErr *JobError
	if !errors.As(err, &jobErr) {
		err = &JobError{Kind: KindInvalid, Object: payload, Err: err}
	}
	res.fail(err)
	return res
}
