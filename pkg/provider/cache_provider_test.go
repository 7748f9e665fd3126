package provider

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/togglecache/togglecache/core/pkg/model"
	"github.com/togglecache/togglecache/core/pkg/refresh"
	sourcemock "github.com/togglecache/togglecache/core/pkg/source/mock"
	"github.com/togglecache/togglecache/core/pkg/store"
	"github.com/togglecache/togglecache/core/pkg/telemetry"
)

func newProvider(t *testing.T) *CacheProvider {
	t.Helper()
	ctrl := gomock.NewController(t)
	src := sourcemock.NewMockSource(ctrl)

	snapshot, err := store.NewSnapshot([]model.ToggleDefinition{
		{Name: "Trial", Slug: "trial-toggle", Enabled: true, Segments: []model.Segment{{Key: "license", Value: "trial"}}},
	}, []byte{0x01})
	require.NoError(t, err)
	src.EXPECT().FetchManifest(gomock.Any()).Return(snapshot, nil).Times(1)
	src.EXPECT().CheckChanged(gomock.Any(), gomock.Any()).Return(false, nil).AnyTimes()

	metrics, err := telemetry.NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	engine := refresh.New(src, refresh.WithRefreshInterval(time.Hour))
	p := NewCacheProvider(engine, metrics, nil)
	t.Cleanup(p.Shutdown)
	return p
}

func TestCacheProvider_Lifecycle(t *testing.T) {
	p := newProvider(t)
	assert.Equal(t, "togglecache", p.Metadata().Name)
	assert.Equal(t, NotReady, p.Status())

	require.NoError(t, p.Initialize(context.Background()))
	assert.Equal(t, Ready, p.Status())
	require.NoError(t, p.Refresh(context.Background()))

	p.Shutdown()
	assert.Equal(t, Stopped, p.Status())
	assert.ErrorIs(t, p.Initialize(context.Background()), ErrProviderShutdown)
	assert.ErrorIs(t, p.Refresh(context.Background()), ErrProviderShutdown)
}

func TestResolveBooleanValue_DelegatesToEngine(t *testing.T) {
	p := newProvider(t)
	require.NoError(t, p.Initialize(context.Background()))

	res := p.ResolveBooleanValue("trial-toggle", false, model.Context{"license": "trial"})
	assert.True(t, res.Value)
	assert.Equal(t, model.TargetingMatchReason, res.Reason)
	assert.False(t, res.Failed())

	res = p.ResolveBooleanValue("missing", true, nil)
	assert.True(t, res.Value)
	assert.Equal(t, model.ErrorFlagNotFound, res.ErrorCode)
}

func TestResolveNonBoolean_TypeMismatch(t *testing.T) {
	p := newProvider(t)
	require.NoError(t, p.Initialize(context.Background()))

	s := p.ResolveStringValue("trial-toggle", "fallback", nil)
	assert.Equal(t, "fallback", s.Value)
	assert.Equal(t, model.ErrorTypeMismatch, s.ErrorCode)
	assert.Equal(t, "only boolean toggles are supported", s.ErrorMessage)

	n := p.ResolveNumberValue("trial-toggle", 4.2, nil)
	assert.Equal(t, 4.2, n.Value)
	assert.Equal(t, model.ErrorTypeMismatch, n.ErrorCode)

	o := p.ResolveObjectValue("trial-toggle", map[string]any{"a": 1}, nil)
	assert.Equal(t, map[string]any{"a": 1}, o.Value)
	assert.Equal(t, model.ErrorTypeMismatch, o.ErrorCode)
}
