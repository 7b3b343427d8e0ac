package watcher

import (
	"errors"
	"fmt"
)

// Kind classifies why a job failed
type Kind int

const (
	// KindDecode means the object could not be analyzed as a video
	KindDecode Kind = iota
	// KindNetwork means the object could not be fetched
	KindNetwork
	// KindUpload means the report could not be stored
	KindUpload
	// KindInvalid means the event itself was unusable
	KindInvalid
	// KindLocal means the worker's own scratch space was unusable
	KindLocal
)

func (k Kind) String() string {
	switch k {
	case KindDecode:
		return "decode"
	case KindNetwork:
		return "network"
	case KindUpload:
		return "upload"
	case KindInvalid:
		return "invalid"
	case KindLocal:
		return "local"
	default:
		return "unknown"
	}
}

// JobError is the typed failure of one job
type JobError struct {
	Kind   Kind
	Object string
	Err    error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("%s error for %q: %v", e.Kind, e.Object, e.Err)
}

func (e *JobError) Unwrap() error {
	return e.Err
}

// KindOf extracts the kind of a *JobError anywhere in err's chain
func KindOf(err error) (Kind, bool) {
	var jobErr *JobError
	if errors.As(err, &jobErr) {
		return jobErr.Kind, true
	}
	return 0, false
}
