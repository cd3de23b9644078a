package query

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/indexer/normalizer"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/searcher/store"
)

// Presenter receives delivered results. It is called from the session's
// event loop and should not block for long.
type Presenter interface {
	Present(Result)
}

// PresenterFunc adapts a function to Presenter.
type PresenterFunc func(Result)

func (f PresenterFunc) Present(r Result) { f(r) }

type SessionConfig struct {
	// Debounce is the quiet interval before an uncached shard is loaded.
	Debounce         time.Duration
	PrefetchAdjacent bool
	Limit            int
}

type keystroke struct {
	seq uint64
	raw string
	at  time.Time
}

type completion struct {
	keystroke
	loaded store.Loaded
	err    error
}

// Session is one search interaction. Type may be called from any goroutine;
// everything else happens on the goroutine running Run. Only the result for
// the most recent keystroke is ever presented.
type Session struct {
	engine    *Engine
	presenter Presenter
	cfg       SessionConfig
	logger    *slog.Logger

	mu    sync.Mutex
	seq   uint64
	input chan keystroke
	done  chan struct{}
}

func NewSession(engine *Engine, presenter Presenter, cfg SessionConfig) *Session {
	return &Session{
		engine:    engine,
		presenter: presenter,
		cfg:       cfg,
		logger:    slog.Default().With("component", "query-session"),
		input:     make(chan keystroke, 64),
		done:      make(chan struct{}),
	}
}

// Type records the current contents of the search field and returns its
// sequence number. Sequence numbers start at 1 and strictly increase.
// After Run has returned, Type still numbers the keystroke but drops it.
func (s *Session) Type(raw string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	k := keystroke{seq: s.seq, raw: raw, at: time.Now()}
	select {
	case s.input <- k:
	case <-s.done:
	}
	return k.seq
}

// Run is the event loop. It returns ctx.Err() when ctx ends.
func (s *Session) Run(ctx context.Context) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()
	defer close(s.done)

	var (
		latest     uint64
		pending    *keystroke
		timer      *time.Timer
		timerC     <-chan time.Time
		cancelWait context.CancelFunc = func() {}
	)
	completions := make(chan completion, 1)
	defer func() { cancelWait() }()

	startLoad := func(k keystroke) {
		id := shard.For(normalizer.Normalize(k.raw))
		waitCtx, cancel := context.WithCancel(ctx)
		cancelWait = cancel
		go func() {
			loaded, err := s.engine.source.Load(waitCtx, id)
			select {
			case completions <- completion{keystroke: k, loaded: loaded, err: err}:
			case <-ctx.Done():
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()

		case k := <-s.input:
			latest = k.seq
			cancelWait()
			cancelWait = func() {}
			pending = nil
			if timer != nil {
				timer.Stop()
				timerC = nil
			}

			q := normalizer.Normalize(k.raw)
			if q == "" {
				s.deliver(k, store.Loaded{}, "none")
				continue
			}
			if loaded, ok := s.engine.source.Cached(shard.For(q)); ok {
				s.deliver(k, loaded, "cached")
				continue
			}
			if s.cfg.Debounce <= 0 {
				startLoad(k)
				continue
			}
			pending = &k
			if timer == nil {
				timer = time.NewTimer(s.cfg.Debounce)
			} else {
				timer.Reset(s.cfg.Debounce)
			}
			timerC = timer.C

		case <-timerC:
			timerC = nil
			if pending != nil {
				startLoad(*pending)
				pending = nil
			}

		case c := <-completions:
			if c.err != nil || c.seq != latest {
				s.engine.metrics.IncSuperseded()
				s.logger.Debug("discarding superseded result", "seq", c.seq, "latest", latest)
				continue
			}
			cancelWait()
			cancelWait = func() {}
			s.deliver(c.keystroke, c.loaded, "loaded")
		}
	}
}

func (s *Session) deliver(k keystroke, loaded store.Loaded, shardStatus string) {
	r := s.engine.Evaluate(k.raw, loaded, s.cfg.Limit)
	r.Seq = k.seq
	s.engine.observe(r, shardStatus, k.at)
	s.presenter.Present(r)

	if s.cfg.PrefetchAdjacent && r.Shard != "" {
		for _, id := range shard.Adjacent(r.Shard) {
			s.engine.source.Prefetch(id)
		}
	}
}
