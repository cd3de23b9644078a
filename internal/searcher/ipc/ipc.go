// Package ipc serves a query session over a msgpack stream, one request per
// keystroke in and one response per delivered result out. It is meant for
// an editor or documentation viewer that spawns the searcher as a child
// process and talks to it over stdin and stdout.
package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/searcher/query"
)

// Request is the current text of the search field. ID is chosen by the
// client and echoed in the matching response.
type Request struct {
	ID uint64 `msgpack:"id"`
	Q  string `msgpack:"q"`
}

type Response struct {
	ID        uint64  `msgpack:"id"`
	Seq       uint64  `msgpack:"seq"`
	Q         string  `msgpack:"q"`
	Groups    []Group `msgpack:"g"`
	Truncated bool    `msgpack:"tr"`
	Degraded  bool    `msgpack:"dg"`
	Idle      bool    `msgpack:"idle"`
}

type Group struct {
	Key         string      `msgpack:"key"`
	DisplayName string      `msgpack:"display_name"`
	References  []Reference `msgpack:"references"`
}

type Reference struct {
	Label  string `msgpack:"label"`
	URL    string `msgpack:"url"`
	Anchor string `msgpack:"anchor,omitempty"`
	Scope  string `msgpack:"scope,omitempty"`
}

const drainTimeout = 5 * time.Second

type Tracker interface {
	Track(analytics.QueryEvent)
}

// Server owns one query.Session. Responses are only written for results
// the session delivers, so a client typing quickly sees answers for its
// latest request and never for superseded ones.
type Server struct {
	dec     *msgpack.Decoder
	enc     *msgpack.Encoder
	wmu     sync.Mutex
	session *query.Session
	tracker Tracker
	logger  *slog.Logger

	mu   sync.Mutex
	next uint64
	ids  map[uint64]pending
}

type pending struct {
	id uint64
	at time.Time
}

// NewServer creates a server reading requests from r and writing responses
// to w. tracker may be nil.
func NewServer(r io.Reader, w io.Writer, engine *query.Engine, cfg query.SessionConfig, tracker Tracker) *Server {
	s := &Server{
		dec:     msgpack.NewDecoder(r),
		enc:     msgpack.NewEncoder(w),
		tracker: tracker,
		logger:  slog.Default().With("component", "ipc-server"),
		ids:     make(map[uint64]pending),
	}
	s.session = query.NewSession(engine, query.PresenterFunc(s.present), cfg)
	return s
}

// Serve runs until the request stream ends (returning nil), the stream is
// malformed, or ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sessionDone := make(chan struct{})
	go func() {
		defer close(sessionDone)
		if err := s.session.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("session stopped", "error", err)
		}
	}()

	readErr := make(chan error, 1)
	go func() { readErr <- s.readLoop() }()

	var err error
	select {
	case err = <-readErr:
		if err == nil {
			s.drain(ctx)
		}
	case <-ctx.Done():
		err = ctx.Err()
	}
	cancel()
	<-sessionDone
	return err
}

// drain waits, up to drainTimeout, for the answer to the last request.
func (s *Server) drain(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, drainTimeout)
	defer cancel()
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		s.mu.Lock()
		outstanding := len(s.ids)
		s.mu.Unlock()
		if outstanding == 0 {
			return
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			s.logger.Warn("request stream closed with results outstanding", "outstanding", outstanding)
			return
		}
	}
}

func (s *Server) readLoop() error {
	for {
		var req Request
		if err := s.dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				s.logger.Info("request stream closed")
				return nil
			}
			return fmt.Errorf("decoding request: %w", err)
		}
		// The server is the session's only writer, so the sequence number
		// Type is about to assign is known in advance.
		s.mu.Lock()
		s.next++
		s.ids[s.next] = pending{id: req.ID, at: time.Now()}
		s.mu.Unlock()
		s.session.Type(req.Q)
	}
}

func (s *Server) present(r query.Result) {
	s.mu.Lock()
	p, ok := s.ids[r.Seq]
	for seq := range s.ids {
		if seq <= r.Seq {
			delete(s.ids, seq)
		}
	}
	s.mu.Unlock()
	if !ok {
		s.logger.Warn("result for unknown sequence", "seq", r.Seq)
		return
	}

	resp := Response{
		ID:        p.id,
		Seq:       r.Seq,
		Q:         r.Query,
		Groups:    make([]Group, 0, len(r.Groups)),
		Truncated: r.Truncated,
		Degraded:  r.Degraded,
		Idle:      r.Idle,
	}
	for _, g := range r.Groups {
		wg := Group{Key: g.Key, DisplayName: g.DisplayName, References: make([]Reference, 0, len(g.References))}
		for _, ref := range g.References {
			wg.References = append(wg.References, Reference(ref))
		}
		resp.Groups = append(resp.Groups, wg)
	}

	s.wmu.Lock()
	err := s.enc.Encode(&resp)
	s.wmu.Unlock()
	if err != nil {
		s.logger.Error("writing response failed", "id", p.id, "error", err)
		return
	}
	if s.tracker != nil && !r.Idle {
		s.tracker.Track(analytics.NewQueryEvent(analytics.SourceTypeahead, r, time.Since(p.at), ""))
	}
}
