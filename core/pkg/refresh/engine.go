// Package refresh keeps an in-memory feature manifest current.
//
// An Engine performs one blocking fetch in Initialize and then refreshes the
// manifest in a single background goroutine until Shutdown. Readers obtain
// the installed snapshot through an atomic load and never wait on I/O. Source
// failures never reach evaluation callers: the engine keeps the last good
// snapshot (or an empty one if none was ever retrieved) and retries forever.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/togglecache/togglecache/core/pkg/evaluator"
	"github.com/togglecache/togglecache/core/pkg/logger"
	"github.com/togglecache/togglecache/core/pkg/model"
	"github.com/togglecache/togglecache/core/pkg/source"
	"github.com/togglecache/togglecache/core/pkg/store"
	"github.com/togglecache/togglecache/core/pkg/telemetry"
)

const (
	DefaultRefreshInterval = time.Minute
	DefaultRetryDelay      = 5 * time.Second

	failedMessage = "Failed to retrieve feature manifest"
)

var ErrNotReady = errors.New("refresh engine is not ready")

// Publisher is notified after every snapshot swap.
type Publisher interface {
	Publish(snapshot *store.Snapshot)
}

type Option func(*Engine)

func WithRefreshInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.interval = d
		}
	}
}

func WithRetryDelay(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.retryDelay = d
		}
	}
}

func WithLogger(l log.FieldLogger) Option {
	return func(e *Engine) {
		e.logger = logger.WithComponent(l, "refresh")
	}
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func WithPublisher(p Publisher) Option {
	return func(e *Engine) {
		e.publishers = append(e.publishers, p)
	}
}

type Engine struct {
	source     source.Source
	interval   time.Duration
	retryDelay time.Duration
	logger     log.FieldLogger
	metrics    *telemetry.Metrics
	publishers []Publisher

	current      atomic.Pointer[store.Snapshot]
	state        atomic.Int32
	retryAttempt atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	started bool

	initOnce     sync.Once
	shutdownOnce sync.Once
	flight       singleflight.Group
}

func New(src source.Source, opts ...Option) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		source:     src,
		interval:   DefaultRefreshInterval,
		retryDelay: DefaultRetryDelay,
		logger:     logger.WithComponent(nil, "refresh"),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.current.Store(store.Empty())
	return e
}

// Initialize retrieves the first manifest and starts the background
// refresh. It never fails because of the source; concurrent callers share a
// single fetch. ctx bounds only the initial fetch.
func (e *Engine) Initialize(ctx context.Context) {
	e.initOnce.Do(func() {
		if !e.state.CompareAndSwap(int32(StateUninitialized), int32(StateInitializing)) {
			return
		}

		fetchCtx, cancelFetch := context.WithCancel(ctx)
		stop := context.AfterFunc(e.ctx, cancelFetch)
		snapshot, err := e.source.FetchManifest(fetchCtx)
		stop()
		cancelFetch()

		switch {
		case err != nil:
			e.logger.WithError(err).Errorf("%s during initialization. Falling back to empty manifest, defaults will be used during evaluation.", failedMessage)
			e.install(store.Empty(), telemetry.RefreshEmpty)
		case snapshot == nil:
			e.logger.Errorf("%s during initialization: source returned no manifest. Falling back to empty manifest, defaults will be used during evaluation.", failedMessage)
			e.install(store.Empty(), telemetry.RefreshEmpty)
		default:
			e.install(snapshot, telemetry.RefreshInstalled)
		}

		e.mu.Lock()
		defer e.mu.Unlock()
		if e.ctx.Err() != nil {
			return
		}
		e.started = true
		go e.run()
		e.state.CompareAndSwap(int32(StateInitializing), int32(StateReady))
	})
}

// GetCurrentSnapshot returns the installed snapshot. It is never nil.
func (e *Engine) GetCurrentSnapshot() *store.Snapshot {
	return e.current.Load()
}

// ResolveBooleanValue evaluates flagKey against the installed snapshot.
func (e *Engine) ResolveBooleanValue(flagKey string, defaultValue bool, ctx model.Context) model.EvaluationResult {
	return evaluator.Evaluate(e.GetCurrentSnapshot(), flagKey, defaultValue, ctx)
}

func (e *Engine) State() State {
	return State(e.state.Load())
}

// RetryAttempt is the number of consecutive failed refresh cycles.
func (e *Engine) RetryAttempt() int {
	return int(e.retryAttempt.Load())
}

// Refresh runs one check-and-fetch cycle immediately. Calls that overlap a
// running cycle, including the background one, share its result.
func (e *Engine) Refresh(ctx context.Context) error {
	if e.State() != StateReady {
		return ErrNotReady
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-e.flight.DoChan("refresh", e.cycle):
		return res.Err
	}
}

// Shutdown stops the background refresh and waits for it to exit.
func (e *Engine) Shutdown() {
	e.shutdownOnce.Do(func() {
		e.state.Store(int32(StateShuttingDown))
		e.cancel()

		e.mu.Lock()
		started := e.started
		e.mu.Unlock()
		if started {
			<-e.done
		}

		e.state.Store(int32(StateStopped))
		e.logger.Debug("refresh engine stopped")
	})
}

func (e *Engine) run() {
	defer close(e.done)

	delay := e.interval
	for {
		if !e.sleep(delay) {
			return
		}

		res := <-e.flight.DoChan("refresh", e.cycle)
		if res.Err == nil {
			delay = e.interval
			continue
		}
		if e.ctx.Err() != nil {
			return
		}

		attempt := e.retryAttempt.Load()
		e.logger.WithError(res.Err).WithField("attempt", attempt).Errorf(
			"%s, attempt %d. Trying again after %s...", failedMessage, attempt, e.retryDelay,
		)
		e.metrics.RecordRefresh(telemetry.RefreshFailed)
		e.metrics.SetRetryAttempt(int(e.retryAttempt.Add(1)))
		delay = e.retryDelay
	}
}

// cycle checks the source for a newer manifest and installs it.
func (e *Engine) cycle() (any, error) {
	current := e.GetCurrentSnapshot()

	changed, err := e.source.CheckChanged(e.ctx, current.Fingerprint())
	if err != nil {
		return nil, fmt.Errorf("checking for manifest changes: %w", err)
	}

	switch {
	case !changed:
		e.metrics.RecordRefresh(telemetry.RefreshUnchanged)
	default:
		snapshot, err := e.source.FetchManifest(e.ctx)
		if err != nil {
			return nil, fmt.Errorf("fetching manifest: %w", err)
		}
		if snapshot == nil {
			e.logger.Warn("Source returned no manifest. Previously retrieved feature toggle values will continue to be used.")
			e.metrics.RecordRefresh(telemetry.RefreshRetained)
		} else {
			e.install(snapshot, telemetry.RefreshInstalled)
		}
	}

	e.retryAttempt.Store(0)
	e.metrics.SetRetryAttempt(0)
	return nil, nil
}

func (e *Engine) install(snapshot *store.Snapshot, result string) {
	e.current.Store(snapshot)
	e.metrics.RecordRefresh(result)
	e.metrics.SnapshotInstalled(snapshot.Len())

	entry := e.logger.WithField("toggles", snapshot.Len())
	if snapshot.Skipped() > 0 {
		entry.WithField("skipped", snapshot.Skipped()).Warn("manifest contained toggles without a unique slug")
	}
	entry.Debug("installed feature manifest")

	for _, p := range e.publishers {
		p.Publish(snapshot)
	}
}

// sleep waits for d and reports false if the engine was stopped meanwhile.
func (e *Engine) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-e.ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
