// Package sse streams the request log to browsers as Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/comfortablynumb/quizmock/internal/observability"
	"github.com/comfortablynumb/quizmock/internal/tracker"
	"go.uber.org/zap"
)

const (
	// EventRequest carries one tracker.Entry as JSON
	EventRequest = "request"

	defaultInterval  = 500 * time.Millisecond
	defaultKeepAlive = 15 * time.Second
)

// Source returns the tracker to follow. It may return nil while nothing is being
// intercepted, and a different tracker after the engine is rebuilt.
type Source func() *tracker.Tracker

// RequestStream pushes new request log entries as they are recorded
type RequestStream struct {
	source    Source
	interval  time.Duration
	keepAlive time.Duration
	log       *observability.Logger
}

// NewRequestStream polls source every interval. Zero durations use the defaults.
func NewRequestStream(source Source, interval, keepAlive time.Duration, log *observability.Logger) *RequestStream {
	if interval <= 0 {
		interval = defaultInterval
	}
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	if log == nil {
		log = observability.Nop()
	}
	return &RequestStream{
		source:    source,
		interval:  interval,
		keepAlive: keepAlive,
		log:       log.Named("sse"),
	}
}

// ServeHTTP streams until the client goes away. Entries already in the log are sent
// first, or only those after Last-Event-ID when the client is reconnecting.
func (s *RequestStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "retry: %d\n\n", s.interval.Milliseconds()*2)
	flusher.Flush()

	var lastID int64
	if v := r.Header.Get("Last-Event-ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			lastID = id
		}
	}

	s.log.L().Debug("Stream started", zap.String("remote", r.RemoteAddr), zap.Int64("last_id", lastID))

	poll := time.NewTicker(s.interval)
	defer poll.Stop()
	keepAlive := time.NewTicker(s.keepAlive)
	defer keepAlive.Stop()

	var current *tracker.Tracker
	for {
		t := s.source()
		if t != current {
			// A rebuilt engine numbers its log from 1 again
			if current != nil {
				lastID = 0
			}
			current = t
		}
		if t != nil {
			for _, entry := range t.Since(lastID) {
				if err := s.send(w, entry); err != nil {
					s.log.L().Debug("Stream write failed", zap.Error(err))
					return
				}
				lastID = entry.ID
			}
			flusher.Flush()
		}

		select {
		case <-r.Context().Done():
			s.log.L().Debug("Stream closed", zap.String("remote", r.RemoteAddr))
			return
		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case <-poll.C:
		}
	}
}

func (s *RequestStream) send(w http.ResponseWriter, entry tracker.Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\nid: %d\ndata: %s\n\n", EventRequest, entry.ID, data)
	return err
}
