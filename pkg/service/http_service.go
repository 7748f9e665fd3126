package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/togglecache/togglecache/core/pkg/logger"
	"github.com/togglecache/togglecache/core/pkg/model"
	"github.com/togglecache/togglecache/pkg/provider"
	flagsync "github.com/togglecache/togglecache/pkg/service/flag-sync"
)

const defaultShutdownTimeout = 5 * time.Second

type HTTPServiceConfiguration struct {
	Port            int32
	ShutdownTimeout time.Duration
}

type HTTPService struct {
	HTTPServiceConfiguration *HTTPServiceConfiguration
	Mux                      *flagsync.Multiplexer
	Gatherer                 prometheus.Gatherer
	Logger                   log.FieldLogger
}

type Server struct {
	provider provider.IProvider
	mux      *flagsync.Multiplexer
	logger   log.FieldLogger
}

type errorResponse struct {
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	Reason       string `json:"reason"`
}

// Handler builds the routes served for p.
func (h *HTTPService) Handler(p provider.IProvider) http.Handler {
	s := Server{
		provider: p,
		mux:      h.Mux,
		logger:   logger.WithComponent(h.Logger, "http-service"),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/flags", func(flags chi.Router) {
		flags.Get("/", s.GetAllFlags)
		flags.Get("/stream", s.StreamFlags)
		flags.Post("/{flagKey}/resolve/boolean", s.ResolveBoolean)
		flags.Post("/{flagKey}/resolve/string", s.ResolveString)
		flags.Post("/{flagKey}/resolve/number", s.ResolveNumber)
		flags.Post("/{flagKey}/resolve/object", s.ResolveObject)
	})
	r.Post("/refresh", s.Refresh)
	r.Get("/healthz", s.Health)
	if h.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.Gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

func (h *HTTPService) Serve(ctx context.Context, p provider.IProvider) error {
	if h.HTTPServiceConfiguration == nil {
		return errors.New("http service configuration has not been initialised")
	}
	l := logger.WithComponent(h.Logger, "http-service")

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", h.HTTPServiceConfiguration.Port),
		Handler:           h.Handler(p),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		l.Infof("listening on %s", srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("http service stopped: %w", err)
	case <-ctx.Done():
	}

	timeout := h.HTTPServiceConfiguration.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http service shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s Server) ResolveBoolean(w http.ResponseWriter, r *http.Request) {
	defaultValue, ok := s.parseDefault(w, r, func(raw string) (any, error) { return strconv.ParseBool(raw) })
	if !ok {
		return
	}
	evalCtx, ok := s.decodeContext(w, r)
	if !ok {
		return
	}
	def, _ := defaultValue.(bool)
	writeResolution(w, s.logger, s.provider.ResolveBooleanValue(chi.URLParam(r, "flagKey"), def, evalCtx))
}

func (s Server) ResolveString(w http.ResponseWriter, r *http.Request) {
	defaultValue, ok := s.parseDefault(w, r, func(raw string) (any, error) { return raw, nil })
	if !ok {
		return
	}
	evalCtx, ok := s.decodeContext(w, r)
	if !ok {
		return
	}
	def, _ := defaultValue.(string)
	writeResolution(w, s.logger, s.provider.ResolveStringValue(chi.URLParam(r, "flagKey"), def, evalCtx))
}

func (s Server) ResolveNumber(w http.ResponseWriter, r *http.Request) {
	defaultValue, ok := s.parseDefault(w, r, func(raw string) (any, error) { return strconv.ParseFloat(raw, 64) })
	if !ok {
		return
	}
	evalCtx, ok := s.decodeContext(w, r)
	if !ok {
		return
	}
	def, _ := defaultValue.(float64)
	writeResolution(w, s.logger, s.provider.ResolveNumberValue(chi.URLParam(r, "flagKey"), def, evalCtx))
}

func (s Server) ResolveObject(w http.ResponseWriter, r *http.Request) {
	defaultValue, ok := s.parseDefault(w, r, func(raw string) (any, error) {
		var obj map[string]any
		err := json.Unmarshal([]byte(raw), &obj)
		return obj, err
	})
	if !ok {
		return
	}
	evalCtx, ok := s.decodeContext(w, r)
	if !ok {
		return
	}
	def, _ := defaultValue.(map[string]any)
	writeResolution(w, s.logger, s.provider.ResolveObjectValue(chi.URLParam(r, "flagKey"), def, evalCtx))
}

func (s Server) GetAllFlags(w http.ResponseWriter, _ *http.Request) {
	if s.mux == nil {
		w.WriteHeader(http.StatusNotImplemented)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, s.mux.GetAllToggles())
}

// StreamFlags sends the manifest as a server-sent event on connect and after
// every snapshot swap.
func (s Server) StreamFlags(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok || s.mux == nil {
		w.WriteHeader(http.StatusNotImplemented)
		return
	}

	updates := make(chan flagsync.Payload, 1)
	initial := s.mux.Register(r, updates)
	defer s.mux.Unregister(r)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	payload := initial
	for {
		if _, err := fmt.Fprintf(w, "event: manifest\ndata: %s\n\n", payload.Toggles); err != nil {
			return
		}
		flusher.Flush()

		select {
		case <-r.Context().Done():
			return
		case payload = <-updates:
		}
	}
}

func (s Server) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := s.provider.Refresh(r.Context()); err != nil {
		s.logger.WithError(err).Warn("manual refresh failed")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(errorResponse{
			ErrorCode:    string(model.ErrorGeneral),
			ErrorMessage: err.Error(),
			Reason:       model.ErrorReason,
		})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s Server) Health(w http.ResponseWriter, _ *http.Request) {
	status := s.provider.Status()
	w.Header().Set("Content-Type", "application/json")
	if status != provider.Ready && status != provider.Stale {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"status": string(status)})
}

func (s Server) parseDefault(w http.ResponseWriter, r *http.Request, parse func(string) (any, error)) (any, bool) {
	raw := r.URL.Query().Get("defaultValue")
	if raw == "" {
		return nil, true
	}
	v, err := parse(raw)
	if err != nil {
		badRequest(w, s.logger, fmt.Sprintf("invalid defaultValue %q", raw))
		return nil, false
	}
	return v, true
}

func (s Server) decodeContext(w http.ResponseWriter, r *http.Request) (model.Context, bool) {
	var contextObj model.Context
	if err := json.NewDecoder(r.Body).Decode(&contextObj); err != nil && !errors.Is(err, io.EOF) {
		badRequest(w, s.logger, "request body must be a JSON object")
		return nil, false
	}
	return contextObj, true
}

func writeResolution[T any](w http.ResponseWriter, l log.FieldLogger, res provider.ResolutionDetail[T]) {
	if res.Failed() {
		handleError(res.ErrorCode, res.ErrorMessage, res.Reason, w, l)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(res)
}

func badRequest(w http.ResponseWriter, l log.FieldLogger, message string) {
	handleError(model.ErrorGeneral, message, model.ErrorReason, w, l, http.StatusBadRequest)
}

// some basic mapping of errors from model to HTTP
func handleError(code model.ErrorKind, message, reason string, w http.ResponseWriter, l log.FieldLogger, status ...int) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case len(status) > 0:
		w.WriteHeader(status[0])
	case code == model.ErrorFlagNotFound:
		w.WriteHeader(http.StatusNotFound)
	case code == model.ErrorTypeMismatch:
		w.WriteHeader(http.StatusBadRequest)
	default:
		w.WriteHeader(http.StatusInternalServerError)
	}
	l.WithField("code", code).Debug(message)
	_ = json.NewEncoder(w).Encode(errorResponse{
		ErrorCode:    string(code),
		ErrorMessage: message,
		Reason:       reason,
	})
}
