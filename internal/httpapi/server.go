// Package httpapi exposes ServerManager operations over HTTP. Operations are
// executed one at a time.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"sigs.k8s.io/controller-runtime/pkg/log"
	ctrlmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"

	"github.com/Unbounder1/server-manager/internal/controller"
)

// Manager is the subset of *controller.ServerManager the API drives.
type Manager interface {
	PowerOn(ctx context.Context, verify bool) (controller.Outcome, error)
	PowerOff(ctx context.Context) (controller.Outcome, error)
	StartApplication(ctx context.Context, id string, verify bool) (controller.Outcome, error)
	StopApplication(ctx context.Context, id string, verify bool) (controller.Outcome, error)
	Status(ctx context.Context) (*controller.HostStatus, error)
}

// Options contains configuration for the HTTP server.
type Options struct {
	// Address is the address to listen on (e.g., ":8080")
	Address string

	// ShutdownTimeout bounds how long in-flight requests may take to finish
	// once the server is stopping.
	ShutdownTimeout time.Duration
}

// DefaultOptions returns the default server options.
func DefaultOptions() Options {
	return Options{
		Address:         ":8080",
		ShutdownTimeout: 30 * time.Second,
	}
}

// BindFlags binds the server options to command line flags.
// The prefix can be used to namespace the flags (e.g., "http-").
func (o *Options) BindFlags(fs *pflag.FlagSet, prefix string) {
	fs.StringVar(&o.Address, prefix+"bind-address", o.Address,
		"The address the HTTP control API binds to.")
	fs.DurationVar(&o.ShutdownTimeout, prefix+"shutdown-timeout", o.ShutdownTimeout,
		"How long to wait for in-flight requests when shutting down.")
}

// Validate validates the options.
func (o *Options) Validate() error {
	if o.Address == "" {
		return fmt.Errorf("address is required")
	}
	if _, _, err := net.SplitHostPort(o.Address); err != nil {
		return fmt.Errorf("invalid address %q: %w", o.Address, err)
	}
	if o.ShutdownTimeout < 0 {
		return fmt.Errorf("shutdown timeout must not be negative")
	}
	return nil
}

// Server serves the control API.
type Server struct {
	options Options
	manager Manager

	// mu serializes operations against the host.
	mu sync.Mutex

	// onListen is called with the bound address once the listener is open.
	onListen func(addr string)
}

// NewServer creates a new HTTP server.
func NewServer(opts Options, manager Manager) *Server {
	return &Server{options: opts, manager: manager}
}

// Handler returns the router with every route registered.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	// Routes stay on the root router: subrouters answer 404 instead of 405
	// on a method mismatch.
	r.HandleFunc("/v1/power/on", s.powerOn).Methods(http.MethodPost)
	r.HandleFunc("/v1/power/off", s.powerOff).Methods(http.MethodPost)
	r.HandleFunc("/v1/applications/{id}/start", s.startApplication).Methods(http.MethodPost)
	r.HandleFunc("/v1/applications/{id}/stop", s.stopApplication).Methods(http.MethodPost)
	r.HandleFunc("/v1/status", s.status).Methods(http.MethodGet)

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(ctrlmetrics.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	return r
}

// Start listens and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	logger := log.FromContext(ctx)

	listener, err := net.Listen("tcp", s.options.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.options.Address, err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// Requests must outlive ctx so Shutdown can drain them.
		BaseContext: func(net.Listener) context.Context {
			return log.IntoContext(context.Background(), logger)
		},
	}

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()
	logger.Info("Serving control API", "address", listener.Addr().String())
	if s.onListen != nil {
		s.onListen(listener.Addr().String())
	}

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.options.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("HTTP server error: %w", err)
	}
}

// KindBadRequest marks requests rejected before any operation ran.
const KindBadRequest controller.ErrorKind = "bad-request"

type response struct {
	Outcome controller.Outcome   `json:"outcome,omitempty"`
	Kind    controller.ErrorKind `json:"kind,omitempty"`
	Error   string               `json:"error,omitempty"`
}

func (s *Server) powerOn(w http.ResponseWriter, r *http.Request) {
	verify, ok := verifyParam(w, r)
	if !ok {
		return
	}
	s.run(w, r, func(ctx context.Context) (controller.Outcome, error) {
		return s.manager.PowerOn(ctx, verify)
	})
}

func (s *Server) powerOff(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, s.manager.PowerOff)
}

func (s *Server) startApplication(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	verify, ok := verifyParam(w, r)
	if !ok {
		return
	}
	s.run(w, r, func(ctx context.Context) (controller.Outcome, error) {
		return s.manager.StartApplication(ctx, id, verify)
	})
}

func (s *Server) stopApplication(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	verify, ok := verifyParam(w, r)
	if !ok {
		return
	}
	s.run(w, r, func(ctx context.Context) (controller.Outcome, error) {
		return s.manager.StopApplication(ctx, id, verify)
	})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	status, err := s.manager.Status(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) run(w http.ResponseWriter, r *http.Request, op func(context.Context) (controller.Outcome, error)) {
	logger := log.FromContext(r.Context()).WithValues("method", r.Method, "path", r.URL.Path)
	ctx := log.IntoContext(r.Context(), logger)

	s.mu.Lock()
	defer s.mu.Unlock()

	// An operation runs to its own timeout even if the client goes away.
	outcome, err := op(context.WithoutCancel(ctx))
	if err != nil {
		logger.Error(err, "Operation failed")
		writeError(w, err)
		return
	}
	logger.Info("Operation finished", "outcome", outcome)
	writeJSON(w, http.StatusOK, response{Outcome: outcome})
}

// verifyParam defaults to true. An unparseable value is answered with 400.
func verifyParam(w http.ResponseWriter, r *http.Request) (bool, bool) {
	v := r.URL.Query().Get("verify")
	if v == "" {
		return true, true
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, response{
			Kind:  KindBadRequest,
			Error: fmt.Sprintf("invalid verify parameter %q: must be a boolean", v),
		})
		return false, false
	}
	return b, true
}

func statusFor(kind controller.ErrorKind) int {
	switch kind {
	case controller.KindUnknownApplication:
		return http.StatusNotFound
	case controller.KindTimeout:
		return http.StatusGatewayTimeout
	case controller.KindTransport:
		return http.StatusServiceUnavailable
	case controller.KindRemoteCommand:
		return http.StatusBadGateway
	case controller.KindBadConfig:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	kind := controller.Classify(err)
	writeJSON(w, statusFor(kind), response{Kind: kind, Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
