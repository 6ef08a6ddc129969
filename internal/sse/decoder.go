// Package sse decodes the server-sent event stream the chat backend emits
// while an assistant reply is being produced. The decoder is deliberately
// decoupled from the network: it consumes opaque byte chunks in arrival
// order and yields typed events, carrying partial lines across chunk
// boundaries itself. One decoder serves exactly one connection.
package sse

import (
	"bytes"
	"encoding/json"
	"strings"

	"go.uber.org/zap"
)

// doneToken is the literal terminator payload, mapped to a no-content
// completion event.
const doneToken = "[DONE]"

// dataPrefix marks the only line form the decoder recognizes. An optional
// single space may follow the colon.
const dataPrefix = "data:"

// Kind classifies a decoded event.
type Kind string

const (
	// KindDelta carries one increment of assistant content.
	KindDelta Kind = "delta"
	// KindComplete marks the terminal event of the stream.
	KindComplete Kind = "complete"
	// KindUnknown is a well-formed data record the streaming protocol does
	// not treat as a delta or completion (user_message echoes, server error
	// payloads). Callers inspect the payload.
	KindUnknown Kind = "unknown"
)

// Payload is the JSON body of a data record. Fields are a union across the
// event types the backend emits; absent fields stay zero.
type Payload struct {
	Type      string      `json:"type"`
	Content   string      `json:"content"`
	Done      bool        `json:"done"`
	ID        json.Number `json:"id"`
	CreatedAt string      `json:"created_at"`
	Error     string      `json:"error"`
}

// Event is one decoded record.
type Event struct {
	Kind    Kind
	Payload Payload
}

// LineSplitter reassembles newline-terminated lines from arbitrary chunk
// boundaries. Only complete lines are released; the trailing remainder is
// held until the next chunk completes it.
type LineSplitter struct {
	rest []byte
}

// Split appends one chunk and returns every line completed by it, without
// terminators. A partial trailing line is retained for the next call.
func (s *LineSplitter) Split(chunk []byte) []string {
	s.rest = append(s.rest, chunk...)
	var lines []string
	for {
		i := bytes.IndexByte(s.rest, '\n')
		if i < 0 {
			return lines
		}
		line := s.rest[:i]
		if len(line) > 0 && line[len(line)-1] == '\r' {
			line = line[:len(line)-1]
		}
		lines = append(lines, string(line))
		s.rest = s.rest[i+1:]
	}
}

// Decoder turns the raw chunk stream of one connection into events.
type Decoder struct {
	splitter LineSplitter
	log      *zap.Logger
	done     bool
}

// NewDecoder returns a decoder for a single connection. A nil logger is
// replaced with a no-op one.
func NewDecoder(log *zap.Logger) *Decoder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Decoder{log: log}
}

// Decode consumes the next chunk and returns the events it completed, in
// order. Non-data lines are ignored and a malformed JSON payload is dropped
// with a log line; neither ever aborts the stream. After a complete event
// has been emitted all further input is discarded.
func (d *Decoder) Decode(chunk []byte) []Event {
	var events []Event
	for _, line := range d.splitter.Split(chunk) {
		if d.done {
			break
		}
		ev, ok := d.decodeLine(line)
		if !ok {
			continue
		}
		if ev.Kind == KindComplete {
			d.done = true
		}
		events = append(events, ev)
	}
	return events
}

func (d *Decoder) decodeLine(line string) (Event, bool) {
	if !strings.HasPrefix(line, dataPrefix) {
		return Event{}, false
	}
	data := strings.TrimPrefix(line, dataPrefix)
	data = strings.TrimPrefix(data, " ")
	if data == "" {
		return Event{}, false
	}
	if strings.TrimSpace(data) == doneToken {
		return Event{Kind: KindComplete}, true
	}

	var p Payload
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		d.log.Debug("dropping malformed stream record",
			zap.String("data", data),
			zap.Error(err))
		return Event{}, false
	}
	return Event{Kind: classify(p), Payload: p}, true
}

func classify(p Payload) Kind {
	switch {
	case p.Type == "assistant_complete" || p.Done:
		return KindComplete
	case p.Type == "assistant_chunk":
		return KindDelta
	case p.Type == "" && p.Content != "" && p.Error == "":
		return KindDelta
	default:
		return KindUnknown
	}
}
