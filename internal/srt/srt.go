// Package srt writes SubRip subtitle cues.
package srt

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Cue is one emitted subtitle block
type Cue struct {
	Index int
	Start string
	End   string
	Lines []string
}

// String renders the cue including its trailing blank line
func (c Cue) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d\n%s --> %s\n", c.Index, c.Start, c.End)
	for _, line := range c.Lines {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	sb.WriteByte('\n')
	return sb.String()
}

// Writer appends cues to an underlying stream. Indices start at 1 and only
// advance when a cue is written successfully.
type Writer struct {
	w    *bufio.Writer
	next int
}

// NewWriter wraps w; call Flush before closing the destination
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w), next: 1}
}

// WriteCue emits a cue spanning start to end
func (w *Writer) WriteCue(start, end string, lines []string) (Cue, error) {
	cue := Cue{Index: w.next, Start: start, End: end, Lines: lines}
	if _, err := w.w.WriteString(cue.String()); err != nil {
		return Cue{}, err
	}
	w.next++
	return cue, nil
}

// Count is the number of cues written so far
func (w *Writer) Count() int {
	return w.next - 1
}

func (w *Writer) Flush() error {
	return w.w.Flush()
}
