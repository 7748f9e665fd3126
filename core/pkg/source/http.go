package source

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/togglecache/togglecache/core/pkg/store"
)

const (
	ContentHashHeader    = "ContentHash"
	ReleaseVersionHeader = "X-Release-Version"

	maxManifestBytes = 10 << 20
)

// ProductMetadata identifies the application embedding the cache.
type ProductMetadata struct {
	Name    string
	Version string
}

func (p ProductMetadata) UserAgent() string {
	if p.Name == "" {
		return "togglecache"
	}
	if p.Version == "" {
		return p.Name
	}
	return p.Name + "/" + p.Version
}

type HTTPConfig struct {
	ServerURL string
	// ClientIdentifier is either {installationId}:{projectId}:{environmentId}[:{tenantId}]
	// or an opaque access token.
	ClientIdentifier string
	Product          ProductMetadata
	Client           *http.Client
}

// HTTPTransport talks to the toggle server.
type HTTPTransport struct {
	base       *url.URL
	identifier string
	product    ProductMetadata
	client     *http.Client
	tracer     trace.Tracer
}

func NewHTTPTransport(cfg HTTPConfig) (*HTTPTransport, error) {
	if cfg.ClientIdentifier == "" {
		return nil, errors.New("client identifier is required")
	}
	base, err := url.Parse(cfg.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server url %q: %w", cfg.ServerURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid server url %q: scheme must be http or https", cfg.ServerURL)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	return &HTTPTransport{
		base:       base,
		identifier: cfg.ClientIdentifier,
		product:    cfg.Product,
		client:     client,
		tracer:     otel.Tracer("github.com/togglecache/togglecache/core/pkg/source"),
	}, nil
}

// IsScopedIdentifier reports whether id names an installation, project and
// environment rather than being an access token.
func IsScopedIdentifier(id string) bool {
	return len(strings.Split(id, ":")) >= 3
}

func (h *HTTPTransport) checkPath() string {
	if IsScopedIdentifier(h.identifier) {
		return "api/featuretoggles/" + h.identifier + "/check"
	}
	return "api/featuretoggles/check/v3/"
}

func (h *HTTPTransport) manifestPath() string {
	if IsScopedIdentifier(h.identifier) {
		return "api/featuretoggles/v2/" + h.identifier
	}
	return "api/featuretoggles/v3/"
}

type checkResponse struct {
	ContentHash []byte `json:"contentHash"`
}

func (h *HTTPTransport) Check(ctx context.Context) (fp []byte, err error) {
	ctx, span := h.tracer.Start(ctx, "source.check", trace.WithSpanKind(trace.SpanKindClient))
	defer func() { endSpan(span, err) }()

	res, err := h.get(ctx, span, h.checkPath())
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if err := statusError(res); err != nil {
		return nil, err
	}

	var body checkResponse
	if err := json.NewDecoder(io.LimitReader(res.Body, maxManifestBytes)).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUndecodable, err)
	}
	if len(body.ContentHash) == 0 {
		return nil, ErrMissingFingerprint
	}
	return body.ContentHash, nil
}

func (h *HTTPTransport) Fetch(ctx context.Context) (snapshot *store.Snapshot, err error) {
	ctx, span := h.tracer.Start(ctx, "source.fetch", trace.WithSpanKind(trace.SpanKindClient))
	defer func() { endSpan(span, err) }()

	res, err := h.get(ctx, span, h.manifestPath())
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if err := statusError(res); err != nil {
		return nil, err
	}

	rawHash := res.Header.Get(ContentHashHeader)
	if rawHash == "" {
		return nil, ErrMissingFingerprint
	}
	fingerprint, err := base64.StdEncoding.DecodeString(rawHash)
	if err != nil {
		return nil, fmt.Errorf("%w: content hash: %w", ErrUndecodable, err)
	}

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxManifestBytes))
	if err != nil {
		return nil, fmt.Errorf("unable to read manifest: %w", err)
	}

	snapshot, err = DecodeManifest(raw, fingerprint)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("togglecache.toggles", snapshot.Len()))
	return snapshot, nil
}

func (h *HTTPTransport) get(ctx context.Context, span trace.Span, path string) (*http.Response, error) {
	target := h.base.ResolveReference(&url.URL{Path: path})
	span.SetAttributes(attribute.String("http.url", target.Redacted()))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("unable to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", h.product.UserAgent())
	if h.product.Version != "" {
		req.Header.Set(ReleaseVersionHeader, h.product.Version)
	}
	if !IsScopedIdentifier(h.identifier) {
		req.Header.Set("Authorization", "Bearer "+h.identifier)
	}

	res, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.status_code", res.StatusCode))
	return res, nil
}

// statusError treats server errors as transient and any other non-2xx
// answer as permanent.
func statusError(res *http.Response) error {
	switch {
	case res.StatusCode >= 200 && res.StatusCode < 300:
		return nil
	case res.StatusCode >= 500 || res.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("server responded with %s", res.Status)
	default:
		return fmt.Errorf("%w: %s", ErrUnexpectedStatus, res.Status)
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
