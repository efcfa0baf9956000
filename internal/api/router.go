package api

import (
	"context"
	"net/http"

	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/zerolog"

	"github.com/ernie/teamswitch/internal/auth"
	"github.com/ernie/teamswitch/internal/balance"
	"github.com/ernie/teamswitch/internal/domain"
	"github.com/ernie/teamswitch/internal/switcher"
)

// Switcher is the part of the switch service the HTTP API drives
type Switcher interface {
	Events() <-chan domain.Event
	HandleRequest(ctx context.Context, req domain.SwitchRequest) (switcher.Outcome, error)
	CheckPlayer(ctx context.Context, ident string) (*switcher.PlayerStatus, error)
	Clear(ctx context.Context, ident string) (*switcher.PlayerStatus, error)
	ClearAll(ctx context.Context) (int64, error)
	Diagnostics(ctx context.Context) switcher.Diagnostics
	Slots(ctx context.Context) balance.Slots
	Queue(ctx context.Context) ([]domain.QueuedSwitch, error)
}

// EventSink receives every service event next to the websocket feed
type EventSink interface {
	Notify(event domain.Event)
}

// Router holds the HTTP routes and dependencies
type Router struct {
	mux     *http.ServeMux
	gzip    http.Handler
	svc     Switcher
	wsHub   *WebSocketHub
	auth    *auth.Service
	sinks   []EventSink
	log     zerolog.Logger
	version string
}

// NewRouter creates a new HTTP router
func NewRouter(svc Switcher, authService *auth.Service, logger zerolog.Logger, version string, sinks ...EventSink) *Router {
	logger = logger.With().Str("component", "api").Logger()
	r := &Router{
		mux:     http.NewServeMux(),
		svc:     svc,
		wsHub:   NewWebSocketHub(logger),
		auth:    authService,
		sinks:   sinks,
		log:     logger,
		version: version,
	}

	// Public routes
	r.mux.HandleFunc("GET /api/slots", r.handleGetSlots)

	// Auth routes
	r.mux.HandleFunc("POST /api/auth/login", r.handleLogin)
	r.mux.HandleFunc("GET /api/auth/check", r.handleAuthCheck)

	// Admin routes
	r.mux.HandleFunc("GET /api/players/{ident}", r.requireAdmin(r.handleCheckPlayer))
	r.mux.HandleFunc("DELETE /api/players/{ident}/cooldown", r.requireAdmin(r.handleClearPlayer))
	r.mux.HandleFunc("DELETE /api/cooldowns", r.requireAdmin(r.handleClearAll))
	r.mux.HandleFunc("GET /api/diagnostics", r.requireAdmin(r.handleDiagnostics))
	r.mux.HandleFunc("GET /api/queue", r.requireAdmin(r.handleGetQueue))
	r.mux.HandleFunc("POST /api/requests", r.requireAdmin(r.handleRequest))
	r.mux.HandleFunc("POST /api/matchend/trigger", r.requireAdmin(r.handleTriggerMatchEnd))

	// WebSocket endpoint
	r.mux.HandleFunc("GET /ws", r.handleWebSocket)

	// Health check
	r.mux.HandleFunc("GET /health", r.handleHealth)

	r.gzip = gzhttp.GzipHandler(r.mux)
	return r
}

// ServeHTTP implements http.Handler
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	// CORS headers for API
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

	if req.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	// The websocket upgrade needs the raw connection
	if req.URL.Path == "/ws" {
		r.mux.ServeHTTP(w, req)
		return
	}
	r.gzip.ServeHTTP(w, req)
}

// StartEventFeed runs the websocket hub and forwards service events to it
// and to the sinks until ctx is done
func (r *Router) StartEventFeed(ctx context.Context) {
	go r.wsHub.Run(ctx)

	go func() {
		events := r.svc.Events()
		for {
			select {
			case <-ctx.Done():
				return
			case event := <-events:
				r.wsHub.Broadcast(event)
				for _, sink := range r.sinks {
					sink.Notify(event)
				}
			}
		}
	}()
}
