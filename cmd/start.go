package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/togglecache/togglecache/core/pkg/logger"
	"github.com/togglecache/togglecache/core/pkg/refresh"
	"github.com/togglecache/togglecache/core/pkg/source"
	"github.com/togglecache/togglecache/core/pkg/store"
	"github.com/togglecache/togglecache/core/pkg/telemetry"
	"github.com/togglecache/togglecache/pkg/config"
	"github.com/togglecache/togglecache/pkg/provider"
	"github.com/togglecache/togglecache/pkg/runtime"
	"github.com/togglecache/togglecache/pkg/service"
	flagsync "github.com/togglecache/togglecache/pkg/service/flag-sync"
)

const serviceProviderKey = "service-provider"

func findService(name string, cfg config.Config, mux *flagsync.Multiplexer, registry *prometheus.Registry, l log.FieldLogger) (service.IService, error) {
	registeredServices := map[string]service.IService{
		"http": &service.HTTPService{
			HTTPServiceConfiguration: &service.HTTPServiceConfiguration{
				Port: cfg.Port,
			},
			Mux:      mux,
			Gatherer: registry,
			Logger:   l,
		},
	}
	v, ok := registeredServices[name]
	if !ok {
		return nil, fmt.Errorf("unknown service-provider %q", name)
	}
	l.Debugf("Using %s service-provider", name)
	return v, nil
}

// findTransport picks the manifest backend from the uri. Local files are
// also watched so edits trigger an immediate refresh.
func findTransport(cfg config.Config, l log.FieldLogger) (source.Transport, []runtime.Watcher, error) {
	if cfg.IsRemote() {
		t, err := source.NewHTTPTransport(source.HTTPConfig{
			ServerURL:        cfg.URI,
			ClientIdentifier: cfg.ClientIdentifier,
			Product: source.ProductMetadata{
				Name:    cfg.ProductName,
				Version: cfg.ProductVersion,
			},
		})
		if err != nil {
			return nil, nil, err
		}
		l.Debugf("Using http source %s", cfg.URI)
		return t, nil, nil
	}

	t := source.NewFileTransport(cfg.URI, l)
	l.Debugf("Using file source %s", cfg.URI)
	return t, []runtime.Watcher{t}, nil
}

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the toggle cache",
	Long:  ``,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(viper.GetViper())
		if err != nil {
			return err
		}
		l, err := logger.NewLogger(cfg.LogLevel, cfg.LogFormat)
		if err != nil {
			return err
		}

		registry := prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics, err := telemetry.NewMetrics(registry)
		if err != nil {
			return err
		}

		// Configure source ------------------------------------------------------
		transport, watchers, err := findTransport(cfg, l)
		if err != nil {
			return err
		}
		client := source.NewClient(transport, source.WithLogger(l), source.WithMetrics(metrics))

		// Configure engine and provider ----------------------------------------
		mux, err := flagsync.NewMux(store.Empty(), l)
		if err != nil {
			return err
		}
		engine := refresh.New(client,
			refresh.WithRefreshInterval(cfg.RefreshInterval),
			refresh.WithRetryDelay(cfg.RetryDelay),
			refresh.WithLogger(l),
			refresh.WithMetrics(metrics),
			refresh.WithPublisher(mux),
		)
		providerImpl := provider.NewCacheProvider(engine, metrics, l)

		// Configure service-provider impl ---------------------------------------
		serviceImpl, err := findService(viper.GetString(serviceProviderKey), cfg, mux, registry, l)
		if err != nil {
			return err
		}

		// Serve -----------------------------------------------------------------
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		rt := &runtime.Runtime{
			Service:  serviceImpl,
			Provider: providerImpl,
			Watchers: watchers,
			Logger:   l,
		}
		if err := rt.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			l.WithError(err).Error("togglecache stopped with an error")
			return err
		}
		return nil
	},
}

func init() {
	flags := startCmd.Flags()
	flags.Int32P(config.PortKey, "p", 8080, "Port to listen on")
	flags.StringP(serviceProviderKey, "s", "http", "Set a service provider e.g. http")
	flags.StringP(config.URIKey, "f", config.DefaultURI, "Manifest source: a toggle server url or a path to a manifest file")
	flags.StringP(config.ClientIdentifierKey, "c", "", "Client identifier or access token used against a toggle server")
	flags.Duration(config.RefreshIntervalKey, refresh.DefaultRefreshInterval, "How often the source is checked for changes")
	flags.Duration(config.RetryDelayKey, refresh.DefaultRetryDelay, "Delay before retrying after a failed refresh")
	flags.String(config.ProductNameKey, "togglecache", "Product name sent in the User-Agent header")
	flags.String(config.ProductVersionKey, "", "Product version sent in the User-Agent and X-Release-Version headers")

	bindFlags(viper.GetViper(), flags)

	rootCmd.AddCommand(startCmd)
}

// bindFlags makes every flag in flags resolvable through v under its own name.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) {
	flags.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
	})
}
