package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/quickbars-hub/internal/channel"
	"github.com/nerrad567/quickbars-hub/internal/command"
	"github.com/nerrad567/quickbars-hub/internal/device"
	"github.com/nerrad567/quickbars-hub/internal/discovery"
	"github.com/nerrad567/quickbars-hub/internal/events"
	"github.com/nerrad567/quickbars-hub/internal/infrastructure/config"
	"github.com/nerrad567/quickbars-hub/internal/infrastructure/logging"
	"github.com/nerrad567/quickbars-hub/internal/pairing"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Sessions pairs, removes and inspects devices. The session manager
// implements it.
type Sessions interface {
	BeginPairing(ctx context.Context, address string) (*pairing.Challenge, error)
	Pair(ctx context.Context, address, code string) (*device.Device, error)
	Remove(ctx context.Context, id string) error
	Stats(id string) (channel.Stats, error)
}

// Dispatcher runs decoded service calls against the registry.
type Dispatcher interface {
	DispatchJSON(ctx context.Context, kind command.Kind, body []byte) (*command.DispatchResult, error)
}

// Discovery exposes zeroconf candidates. Nil when discovery is disabled.
type Discovery interface {
	Scan(ctx context.Context) ([]discovery.Candidate, error)
	Candidates() []discovery.Candidate
}

// EventSource is the bus the WebSocket hub relays from.
type EventSource interface {
	Subscribe(filter events.Filter, buffer int) *events.Subscription
}

// EntityLookup returns the saved entities a device has reported.
type EntityLookup interface {
	ListEntities(ctx context.Context, deviceID string) ([]device.SavedEntity, error)
}

// ActionHistory returns recently received notification actions.
type ActionHistory interface {
	Recent(ctx context.Context, deviceID string, limit int) ([]events.ActionEvent, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Security   config.SecurityConfig
	Logger     *logging.Logger
	Registry   *device.Registry
	Sessions   Sessions
	Dispatcher Dispatcher
	Discovery  Discovery
	Events     EventSource
	Entities   EntityLookup
	Actions    ActionHistory
	Version    string
}

// Server is the HTTP API server for the hub.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	secCfg     config.SecurityConfig
	logger     *logging.Logger
	registry   *device.Registry
	sessions   Sessions
	dispatcher Dispatcher
	discovery  Discovery
	events     EventSource
	entities   EntityLookup
	actions    ActionHistory
	version    string
	startedAt  time.Time
	server     *http.Server
	hub        *Hub
	tickets    *ticketStore
	cancel     context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called. Discovery, Entities
// and Actions are optional; without them the discovery endpoints answer 503
// and the listings are empty.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}
	if deps.Sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if deps.Security.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}

	return &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		secCfg:     deps.Security,
		logger:     deps.Logger.With("component", "api"),
		registry:   deps.Registry,
		sessions:   deps.Sessions,
		dispatcher: deps.Dispatcher,
		discovery:  deps.Discovery,
		events:     deps.Events,
		entities:   deps.Entities,
		actions:    deps.Actions,
		version:    deps.Version,
		startedAt:  time.Now(),
		hub:        NewHub(deps.WS, deps.Logger),
		tickets:    newTicketStore(),
	}, nil
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub relay from the event bus and launches the HTTP
// listener in a background goroutine. The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	go s.cleanTicketsLoop(srvCtx)
	if s.events != nil {
		go s.hub.Relay(srvCtx, s.events)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
