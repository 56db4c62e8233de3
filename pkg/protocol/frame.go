package protocol

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
)

const (
	// MaxFrameSize is the maximum allowed frame size (1 MB). Frames are
	// newline-delimited JSON documents; a line longer than this aborts the
	// connection rather than buffering unbounded input.
	MaxFrameSize = 1024 * 1024
)

// ErrFrameTooLarge indicates an inbound line exceeded MaxFrameSize.
var ErrFrameTooLarge = errors.New("frame exceeds maximum size (1 MB)")

// WriteFrame serializes v as one compact JSON document followed by a
// newline, in a single Write call. v is typically a *Request or *Response.
func WriteFrame(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if len(data)+1 > MaxFrameSize {
		return ErrFrameTooLarge
	}
	_, err = w.Write(append(data, '\n'))
	return err
}

// NewFrameScanner returns a scanner yielding one frame per Scan call. A
// too-long line surfaces as bufio.ErrTooLong from Err.
func NewFrameScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), MaxFrameSize)
	return scanner
}
