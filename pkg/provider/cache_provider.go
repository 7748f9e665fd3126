package provider

import (
	"context"
	"errors"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/togglecache/togglecache/core/pkg/logger"
	"github.com/togglecache/togglecache/core/pkg/model"
	"github.com/togglecache/togglecache/core/pkg/refresh"
	"github.com/togglecache/togglecache/core/pkg/telemetry"
)

const Name = "togglecache"

const typeMismatchMessage = "only boolean toggles are supported"

var ErrProviderShutdown = errors.New("provider has been shut down")

// CacheProvider resolves flags from the locally cached manifest.
type CacheProvider struct {
	engine   *refresh.Engine
	metrics  *telemetry.Metrics
	logger   log.FieldLogger
	shutdown atomic.Bool
}

func NewCacheProvider(engine *refresh.Engine, metrics *telemetry.Metrics, l log.FieldLogger) *CacheProvider {
	return &CacheProvider{
		engine:  engine,
		metrics: metrics,
		logger:  logger.WithComponent(l, "provider"),
	}
}

func (p *CacheProvider) Metadata() Metadata {
	return Metadata{Name: Name}
}

// Initialize blocks until the first manifest retrieval finished, whether or
// not it succeeded.
func (p *CacheProvider) Initialize(ctx context.Context) error {
	if p.shutdown.Load() {
		return ErrProviderShutdown
	}
	p.engine.Initialize(ctx)
	p.logger.WithField("toggles", p.engine.GetCurrentSnapshot().Len()).Info("provider initialized")
	return nil
}

func (p *CacheProvider) ResolveBooleanValue(flagKey string, defaultValue bool, evalCtx model.Context) ResolutionDetail[bool] {
	res := p.engine.ResolveBooleanValue(flagKey, defaultValue, evalCtx)
	p.metrics.RecordEvaluation(res.Reason)
	if res.Failed() {
		p.logger.WithField("flag", flagKey).Debug(res.Message)
	}
	return ResolutionDetail[bool]{
		Value:        res.Value,
		Reason:       res.Reason,
		ErrorCode:    res.ErrorKind,
		ErrorMessage: res.Message,
	}
}

func (p *CacheProvider) ResolveStringValue(_ string, defaultValue string, _ model.Context) ResolutionDetail[string] {
	return typeMismatch(p, defaultValue)
}

func (p *CacheProvider) ResolveNumberValue(_ string, defaultValue float64, _ model.Context) ResolutionDetail[float64] {
	return typeMismatch(p, defaultValue)
}

func (p *CacheProvider) ResolveObjectValue(_ string, defaultValue map[string]any, _ model.Context) ResolutionDetail[map[string]any] {
	return typeMismatch(p, defaultValue)
}

// Refresh asks the engine to check the source immediately.
func (p *CacheProvider) Refresh(ctx context.Context) error {
	if p.shutdown.Load() {
		return ErrProviderShutdown
	}
	return p.engine.Refresh(ctx)
}

func (p *CacheProvider) Status() Status {
	if p.shutdown.Load() {
		return Stopped
	}
	switch p.engine.State() {
	case refresh.StateReady:
		if p.engine.RetryAttempt() > 0 {
			return Stale
		}
		return Ready
	case refresh.StateShuttingDown, refresh.StateStopped:
		return Stopped
	default:
		return NotReady
	}
}

func (p *CacheProvider) Shutdown() {
	if p.shutdown.Swap(true) {
		return
	}
	p.engine.Shutdown()
	p.logger.Info("provider shut down")
}

func typeMismatch[T any](p *CacheProvider, defaultValue T) ResolutionDetail[T] {
	p.metrics.RecordEvaluation(model.ErrorReason)
	return ResolutionDetail[T]{
		Value:        defaultValue,
		Reason:       model.ErrorReason,
		ErrorCode:    model.ErrorTypeMismatch,
		ErrorMessage: typeMismatchMessage,
	}
}
