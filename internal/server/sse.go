package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/parcel-cli/internal/model"
	"github.com/sells-group/parcel-cli/internal/session"
)

var validate = validator.New()

// streamSink hands snapshots to the request goroutine. The buffer holds every
// event a session can emit, so Deliver never blocks the session even after
// the client has gone.
type streamSink struct {
	events chan session.Snapshot
	gone   chan struct{}
}

func newStreamSink(capacity int) *streamSink {
	return &streamSink{
		events: make(chan session.Snapshot, capacity),
		gone:   make(chan struct{}),
	}
}

func (s *streamSink) Deliver(snap session.Snapshot) {
	select {
	case s.events <- snap:
	case <-s.gone:
	}
}

func writeSSE(w http.ResponseWriter, event string, data []byte) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
		return err
	}
	for _, line := range strings.Split(string(data), "\n") {
		if _, err := fmt.Fprintf(w, "data: %s\n", line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprint(w, "\n")
	return err
}

func (s *Server) criteriaFrom(r *http.Request) (model.SearchCriteria, error) {
	q := r.URL.Query()
	c := model.SearchCriteria{
		StreetNumber: strings.TrimSpace(q.Get("street_number")),
		StreetName:   strings.TrimSpace(q.Get("street_name")),
		TaxYear:      s.opts.TaxYear,
	}
	if v := q.Get("tax_year"); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			return c, eris.New("tax_year must be a number")
		}
		c.TaxYear = y
	}
	if err := c.Validate(); err != nil {
		return c, eris.New("street_name is required")
	}
	if err := validate.Struct(c); err != nil {
		return c, eris.Wrap(err, "invalid search")
	}
	return c, nil
}

func consumerID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(ConsumerHeader)); id != "" {
		return id
	}
	if id := strings.TrimSpace(r.URL.Query().Get("consumer")); id != "" {
		return id
	}
	// Anonymous callers never supersede one another.
	return "anon-" + chimiddleware.GetReqID(r.Context())
}

// handleSearch starts a session and streams its snapshots. The session
// outlives neither the client nor a newer search by the same consumer.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	criteria, err := s.criteriaFrom(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	consumer := consumerID(r)
	sink := newStreamSink(s.deps.Catalog.Len() + 1)
	defer close(sink.gone)

	var out session.Sink = sink
	if s.recorder != nil {
		out = session.Tee(sink, s.recorder)
	}

	// Disconnects are handled below, so the session itself is not bound to
	// the request context.
	sess, err := s.deps.Manager.Start(context.WithoutCancel(r.Context()), consumer, criteria, out)
	switch {
	case errors.Is(err, session.ErrShuttingDown):
		writeError(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Session-ID", sess.ID())
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case snap := <-sink.events:
			payload, err := json.Marshal(snap)
			if err != nil {
				s.log.Error("encode snapshot", zap.Error(err))
				sess.Cancel()
				return
			}
			if err := writeSSE(w, string(snap.Kind), payload); err != nil {
				sess.Cancel()
				return
			}
			flusher.Flush()
			if snap.Terminal() {
				return
			}
		case <-r.Context().Done():
			if sess.Cancel() {
				s.log.Debug("client disconnected, search cancelled",
					zap.String("consumer", consumer),
					zap.String("session_id", sess.ID()),
				)
			}
			return
		}
	}
}
