// Package stream decodes a chunked triage response into an ordered
// sequence of text-delta and final-metadata events.
//
// The wire format is free-running assistant text terminated by an optional
// in-band frame: the sentinel "METADATA:" followed by a JSON object
// {urgency, stage, data}. The sentinel and its payload may arrive split
// across any number of physical chunks, and chunk boundaries may fall in
// the middle of a multi-byte UTF-8 character.
package stream

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/raphaelgruber/triage-go/internal/models"
)

// Sentinel separates trailing assistant text from the metadata payload.
const Sentinel = "METADATA:"

// EventType discriminates decoder events.
type EventType int

const (
	// EventTextDelta carries an incremental fragment of assistant text.
	EventTextDelta EventType = iota
	// EventFinalMetadata carries the terminal metadata object. It is
	// always the last event of a stream, and absent when the stream
	// ended without a parseable metadata frame.
	EventFinalMetadata
)

// Metadata is the decoded terminal frame of a response stream.
type Metadata struct {
	Urgency models.Urgency  `json:"urgency"`
	Stage   string          `json:"stage"`
	Data    *models.Payload `json:"data"`
}

// Event is one decoded stream event.
type Event struct {
	Type EventType
	Text string
	Meta Metadata
}

// Decoder turns raw response chunks into events. A Decoder is one-shot:
// it consumes a single logical response and terminates with io.EOF.
type Decoder struct {
	r io.Reader

	carry   []byte // trailing bytes of an incomplete UTF-8 rune
	pending string // decoded text not yet emitted (may end in a sentinel prefix)
	meta    strings.Builder
	inMeta  bool
	eof     bool
	queue   []Event
	buf     []byte
}

// NewDecoder creates a decoder reading chunks from r. Each Read call on r
// is treated as one arriving fragment; arrival order is preserved.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r, buf: make([]byte, 4096)}
}

// Next returns the next event, or io.EOF once the stream is exhausted.
// Any other error is a transport failure of the underlying source.
func (d *Decoder) Next() (Event, error) {
	for {
		if len(d.queue) > 0 {
			ev := d.queue[0]
			d.queue = d.queue[1:]
			return ev, nil
		}
		if d.eof {
			return Event{}, io.EOF
		}

		n, err := d.r.Read(d.buf)
		if n > 0 {
			d.ingest(d.buf[:n])
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return Event{}, err
			}
			d.finish()
		}
	}
}

// ingest appends one raw fragment, re-assembling split runes before any
// sentinel scanning.
func (d *Decoder) ingest(p []byte) {
	d.carry = append(d.carry, p...)
	cut := len(d.carry) - incompleteTail(d.carry)
	text := string(d.carry[:cut])
	d.carry = append(d.carry[:0], d.carry[cut:]...)
	if text == "" {
		return
	}

	if d.inMeta {
		d.meta.WriteString(text)
		return
	}

	d.pending += text
	if i := strings.Index(d.pending, Sentinel); i >= 0 {
		// Everything before the sentinel is the last delta, possibly empty.
		d.queue = append(d.queue, Event{Type: EventTextDelta, Text: d.pending[:i]})
		d.meta.WriteString(d.pending[i+len(Sentinel):])
		d.pending = ""
		d.inMeta = true
		return
	}

	// Hold back any suffix that could be the start of a split sentinel.
	hold := sentinelPrefixLen(d.pending)
	if emit := d.pending[:len(d.pending)-hold]; emit != "" {
		d.queue = append(d.queue, Event{Type: EventTextDelta, Text: emit})
	}
	d.pending = d.pending[len(d.pending)-hold:]
}

// finish flushes buffered state at end-of-stream.
func (d *Decoder) finish() {
	d.eof = true

	// Trailing bytes that never completed a rune are passed through as-is.
	if len(d.carry) > 0 {
		if d.inMeta {
			d.meta.Write(d.carry)
		} else {
			d.pending += string(d.carry)
		}
		d.carry = nil
	}

	if !d.inMeta {
		if d.pending != "" {
			d.queue = append(d.queue, Event{Type: EventTextDelta, Text: d.pending})
			d.pending = ""
		}
		return
	}

	var meta Metadata
	if err := json.Unmarshal([]byte(strings.TrimSpace(d.meta.String())), &meta); err != nil {
		// Malformed metadata degrades to plain text: the preceding deltas
		// stand and no metadata event is produced.
		return
	}
	d.queue = append(d.queue, Event{Type: EventFinalMetadata, Meta: meta})
}

// incompleteTail returns how many trailing bytes of b form the start of a
// not-yet-complete UTF-8 rune. Zero when b ends on a rune boundary.
func incompleteTail(b []byte) int {
	for i := 1; i <= utf8.UTFMax-1 && i <= len(b); i++ {
		c := b[len(b)-i]
		if c < utf8.RuneSelf {
			return 0
		}
		if utf8.RuneStart(c) {
			if utf8.FullRune(b[len(b)-i:]) {
				return 0
			}
			return i
		}
	}
	return 0
}

// sentinelPrefixLen returns the length of the longest suffix of s that is
// a proper prefix of the sentinel.
func sentinelPrefixLen(s string) int {
	max := len(Sentinel) - 1
	if len(s) < max {
		max = len(s)
	}
	for n := max; n > 0; n-- {
		if strings.HasSuffix(s, Sentinel[:n]) {
			return n
		}
	}
	return 0
}
