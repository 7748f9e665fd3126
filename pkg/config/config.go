package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/viper"

	"github.com/togglecache/togglecache/core/pkg/refresh"
)

const (
	URIKey              = "uri"
	ClientIdentifierKey = "client-identifier"
	PortKey             = "port"
	RefreshIntervalKey  = "refresh-interval"
	RetryDelayKey       = "retry-delay"
	ProductNameKey      = "product-name"
	ProductVersionKey   = "product-version"
	LogLevelKey         = "log-level"
	LogFormatKey        = "log-format"

	// DefaultURI is the hosted toggle server used when no uri is configured.
	DefaultURI = "https://features.octopus.com"
	// LegacyURIEnv is honoured after TOGGLECACHE_URI for existing deployments.
	LegacyURIEnv = "OctoToggle__Url"
)

type Config struct {
	URI              string
	ClientIdentifier string
	Port             int32
	RefreshInterval  time.Duration
	RetryDelay       time.Duration
	ProductName      string
	ProductVersion   string
	LogLevel         string
	LogFormat        string
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault(URIKey, DefaultURI)
	_ = v.BindEnv(URIKey, "TOGGLECACHE_URI", LegacyURIEnv)
	v.SetDefault(PortKey, 8080)
	v.SetDefault(RefreshIntervalKey, refresh.DefaultRefreshInterval)
	v.SetDefault(RetryDelayKey, refresh.DefaultRetryDelay)
	v.SetDefault(ProductNameKey, "togglecache")
	v.SetDefault(LogLevelKey, "info")
	v.SetDefault(LogFormatKey, "text")
}

// Load reads the configuration from v and validates it.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		URI:              v.GetString(URIKey),
		ClientIdentifier: v.GetString(ClientIdentifierKey),
		Port:             v.GetInt32(PortKey),
		RefreshInterval:  v.GetDuration(RefreshIntervalKey),
		RetryDelay:       v.GetDuration(RetryDelayKey),
		ProductName:      v.GetString(ProductNameKey),
		ProductVersion:   v.GetString(ProductVersionKey),
		LogLevel:         v.GetString(LogLevelKey),
		LogFormat:        v.GetString(LogFormatKey),
	}
	return cfg, cfg.Validate()
}

// IsRemote reports whether the URI points at a toggle server rather than a
// local manifest file.
func (c Config) IsRemote() bool {
	u, err := url.Parse(c.URI)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https")
}

func (c Config) Validate() error {
	var errs []error
	if c.URI == "" {
		errs = append(errs, errors.New("uri is required"))
	}
	if c.IsRemote() && c.ClientIdentifier == "" {
		errs = append(errs, errors.New("client-identifier is required for a remote uri"))
	}
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d is out of range", c.Port))
	}
	if c.RefreshInterval <= 0 {
		errs = append(errs, fmt.Errorf("refresh-interval must be positive, got %s", c.RefreshInterval))
	}
	if c.RetryDelay <= 0 {
		errs = append(errs, fmt.Errorf("retry-delay must be positive, got %s", c.RetryDelay))
	}
	return errors.Join(errs...)
}
