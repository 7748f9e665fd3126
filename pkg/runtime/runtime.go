package runtime

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/togglecache/togglecache/core/pkg/logger"
	"github.com/togglecache/togglecache/pkg/provider"
	"github.com/togglecache/togglecache/pkg/service"
)

// Watcher reports out-of-band manifest changes, such as edits to a local
// manifest file.
type Watcher interface {
	Watch(ctx context.Context, onChange func()) error
}

type Runtime struct {
	Service  service.IService
	Provider provider.IProvider
	Watchers []Watcher
	Logger   log.FieldLogger
}

// Start initializes the provider and serves it until ctx is done or a
// component fails. The provider is shut down before Start returns.
func (r *Runtime) Start(ctx context.Context) error {
	l := logger.WithComponent(r.Logger, "runtime")

	if err := r.Provider.Initialize(ctx); err != nil {
		return fmt.Errorf("unable to initialize provider: %w", err)
	}
	defer r.Provider.Shutdown()

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.Service.Serve(gCtx, r.Provider)
	})
	for _, w := range r.Watchers {
		w := w
		g.Go(func() error {
			return w.Watch(gCtx, func() {
				if err := r.Provider.Refresh(gCtx); err != nil {
					l.WithError(err).Warn("refresh after manifest change failed")
				}
			})
		})
	}

	err := g.Wait()
	l.Info("runtime stopped")
	return err
}
