package watcher

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/keagan/vidcontrast/pkg/util"
)

// Event announces a finalized object in a bucket
type Event struct {
	Bucket      string `json:"bucket"`
	Name        string `json:"name"`
	ContentType string `json:"contentType,omitempty"`
	Generation  string `json:"generation,omitempty"`
}

var videoExtensions = map[string]bool{
	".mp4": true, ".m4v": true, ".mov": true, ".mkv": true, ".webm": true,
	".avi": true, ".mpg": true, ".mpeg": true, ".ts": true, ".flv": true,
	".wmv": true, ".3gp": true,
}

// ParseEvent decodes a queued event
func ParseEvent(payload string) (Event, error) {
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return Event{}, &JobError{Kind: KindInvalid, Object: payload, Err: err}
	}
	if ev.Bucket == "" || ev.Name == "" {
		return Event{}, &JobError{Kind: KindInvalid, Object: payload, Err: errors.New("bucket and name are required")}
	}
	return ev, nil
}

// IsVideo reports whether the object looks like something to analyze
func (e Event) IsVideo() bool {
	if strings.HasPrefix(e.ContentType, "video/") {
		return true
	}
	return videoExtensions[util.GetExtension(e.Name)]
}

// ResultName is the object name the report is uploaded under
func (e Event) ResultName(ext string) string {
	return util.ReplaceExtension(e.Name, ext)
}

// Path is the gs:// style location of the object
func (e Event) Path() string {
	return "gs://" + e.Bucket + "/" + e.Name
}
