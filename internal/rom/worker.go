package rom

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/durability-labs/ultra-data-burning-rom/internal/model"
)

// DefaultScanInterval is the time between scan passes.
const DefaultScanInterval = 30 * time.Minute

// Handler consumes one scan pass over entities of type T. A fresh handler is
// created for every pass.
type Handler[T model.Entity] interface {
	Initialize()
	OnEntity(e T)
	Finish()
}

type scanJob interface {
	kind() string
	run(db EntityStore) error
}

type typedJob[T model.Entity] struct {
	factories []func() Handler[T]
}

func (j *typedJob[T]) kind() string {
	var zero T
	return zero.EntityKind()
}

func (j *typedJob[T]) run(db EntityStore) error {
	handlers := make([]Handler[T], len(j.factories))
	for i, newHandler := range j.factories {
		handlers[i] = newHandler()
		handlers[i].Initialize()
	}
	err := Iterate(db, func(e T) {
		for _, h := range handlers {
			h.OnEntity(e)
		}
	})
	for _, h := range handlers {
		h.Finish()
	}
	return err
}

// Scanner periodically feeds every entity of each attached kind through the
// handlers attached for that kind. Handlers of the same kind share one pass.
type Scanner struct {
	db       EntityStore
	interval time.Duration
	metrics  Metrics
	logger   Logger

	mu   sync.Mutex
	jobs []scanJob

	passMu sync.Mutex

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScanner creates a Scanner. A non-positive interval uses DefaultScanInterval.
func NewScanner(db EntityStore, interval time.Duration, metrics Metrics, logger Logger) *Scanner {
	if interval <= 0 {
		interval = DefaultScanInterval
	}
	return &Scanner{db: db, interval: interval, metrics: metrics, logger: logger}
}

// Attach registers a handler factory for entities of type T.
func Attach[T model.Entity](s *Scanner, newHandler func() Handler[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	for _, j := range s.jobs {
		if j.kind() != zero.EntityKind() {
			continue
		}
		if tj, ok := j.(*typedJob[T]); ok {
			tj.factories = append(tj.factories, newHandler)
			return
		}
	}
	s.jobs = append(s.jobs, &typedJob[T]{factories: []func() Handler[T]{newHandler}})
}

// Start runs one pass immediately and then one every interval until ctx is
// done or Stop is called. Starting a running scanner does nothing.
func (s *Scanner) Start(ctx context.Context) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.cancel != nil {
		s.logger.Warn("scanner already running")
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			s.RunOnce()
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop cancels the loop and waits for the pass in progress to finish. The
// scanner may be started again afterwards.
func (s *Scanner) Stop() {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
}

// RunOnce runs one pass per attached kind.
func (s *Scanner) RunOnce() {
	s.passMu.Lock()
	defer s.passMu.Unlock()

	s.mu.Lock()
	jobs := append([]scanJob(nil), s.jobs...)
	s.mu.Unlock()

	for _, j := range jobs {
		start := time.Now()
		if err := runJob(j, s.db); err != nil {
			s.logger.Error("scan pass failed", "kind", j.kind(), "error", err)
		}
		s.metrics.ScanPass(j.kind(), time.Since(start))
	}
}

func runJob(j scanJob, db EntityStore) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scan panicked: %v", r)
		}
	}()
	return j.run(db)
}
