// Package sse implements the event-stream framing used by the chat endpoint:
// each block is an "event: <type>" line and a "data: <json>" line followed by
// a blank line.
package sse

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	eventPrefix = "event: "
	dataPrefix  = "data: "
)

// Event is one decoded block. Data holds the raw JSON payload.
type Event struct {
	Type string
	Data json.RawMessage
}

// Encoder writes framed events to an underlying writer.
type Encoder struct {
	w io.Writer
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode marshals payload and writes a single block. The block is written with
// one Write call so a partial frame never reaches the wire on marshal errors.
func (e *Encoder) Encode(eventType string, payload any) error {
	if eventType == "" || strings.ContainsAny(eventType, "\r\n") {
		return fmt.Errorf("sse: invalid event type %q", eventType)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("sse: marshal %s payload: %w", eventType, err)
	}

	var buf bytes.Buffer
	buf.Grow(len(eventPrefix) + len(eventType) + len(dataPrefix) + len(data) + 3)
	buf.WriteString(eventPrefix)
	buf.WriteString(eventType)
	buf.WriteByte('\n')
	buf.WriteString(dataPrefix)
	buf.Write(data)
	buf.WriteString("\n\n")

	_, err = e.w.Write(buf.Bytes())
	return err
}

// ErrMalformedData is wrapped by Decoder.Next when a block's data line is not JSON.
var ErrMalformedData = errors.New("sse: malformed data")

// Decoder reads framed events incrementally, buffering partial blocks across reads.
type Decoder struct {
	r   io.Reader
	buf []byte
	eof bool
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// Next returns the next complete block. Blocks lacking an event line or a data
// line are skipped. A block whose data is not valid JSON is returned together
// with an error wrapping ErrMalformedData so callers can log and continue.
// io.EOF is returned once the stream ends; a trailing partial block is dropped.
func (d *Decoder) Next() (Event, error) {
	for {
		if block, ok := d.cut(); ok {
			ev, complete, err := parseBlock(block)
			if err != nil {
				return ev, err
			}
			if complete {
				return ev, nil
			}
			continue
		}
		if d.eof {
			return Event{}, io.EOF
		}
		if err := d.fill(); err != nil {
			return Event{}, err
		}
	}
}

// cut removes the first blank-line-terminated block from the buffer.
func (d *Decoder) cut() ([]byte, bool) {
	idx := bytes.Index(d.buf, []byte("\n\n"))
	if idx < 0 {
		return nil, false
	}
	block := d.buf[:idx]
	d.buf = d.buf[idx+2:]
	return block, true
}

func (d *Decoder) fill() error {
	chunk := make([]byte, 4096)
	n, err := d.r.Read(chunk)
	if n > 0 {
		d.buf = normalizeNewlines(append(d.buf, chunk[:n]...))
	}
	if errors.Is(err, io.EOF) {
		d.eof = true
		return nil
	}
	return err
}

// normalizeNewlines folds CRLF to LF. It runs over the whole buffer so a CR
// and LF split across two reads are still joined.
func normalizeNewlines(b []byte) []byte {
	if bytes.IndexByte(b, '\r') < 0 {
		return b
	}
	return bytes.ReplaceAll(b, []byte("\r\n"), []byte("\n"))
}

func parseBlock(block []byte) (Event, bool, error) {
	var (
		ev      Event
		hasData bool
	)
	for _, line := range strings.Split(string(block), "\n") {
		line = strings.TrimRight(line, "\r")
		switch {
		case strings.HasPrefix(line, eventPrefix):
			ev.Type = strings.TrimPrefix(line, eventPrefix)
		case strings.HasPrefix(line, dataPrefix):
			ev.Data = json.RawMessage(strings.TrimPrefix(line, dataPrefix))
			hasData = true
		}
	}
	if ev.Type == "" || !hasData {
		return Event{}, false, nil
	}
	if !json.Valid(ev.Data) {
		return ev, false, fmt.Errorf("%w: %s event", ErrMalformedData, ev.Type)
	}
	return ev, true, nil
}
