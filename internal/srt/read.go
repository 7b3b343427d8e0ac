package srt

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/keagan/vidcontrast/pkg/util"
)

// ReadCues parses SubRip text back into cues
func ReadCues(r io.Reader) ([]Cue, error) {
	var (
		cues []Cue
		cur  *Cue
		line int
	)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), "\r")

		switch {
		case cur == nil && text == "":
			continue
		case cur == nil:
			idx, err := strconv.Atoi(text)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid cue index %q", line, text)
			}
			cur = &Cue{Index: idx}
		case cur.Start == "":
			start, end, ok := strings.Cut(text, " --> ")
			if !ok {
				return nil, fmt.Errorf("line %d: invalid time range %q", line, text)
			}
			cur.Start, cur.End = start, end
		case text == "":
			cues = append(cues, *cur)
			cur = nil
		default:
			cur.Lines = append(cur.Lines, text)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if cur != nil {
		if cur.Start == "" {
			return nil, fmt.Errorf("line %d: cue %d has no time range", line, cur.Index)
		}
		cues = append(cues, *cur)
	}

	return cues, nil
}

// Span returns the cue's start and end offsets
func (c Cue) Span() (start, end time.Duration, err error) {
	if start, err = util.ParseTimestamp(c.Start); err != nil {
		return 0, 0, err
	}
	if end, err = util.ParseTimestamp(c.End); err != nil {
		return 0, 0, err
	}
	return start, end, nil
}
