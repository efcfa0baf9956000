package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ernie/teamswitch/internal/auth"
	"github.com/ernie/teamswitch/internal/domain"
)

type claimsKey struct{}

func withClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

func claimsFrom(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey{}).(*auth.Claims)
	return claims
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps service errors onto HTTP statuses
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrPlayerNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
	case errors.Is(err, domain.ErrActionFailed):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// handleGetSlots returns available switch slots for both teams
func (r *Router) handleGetSlots(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, r.svc.Slots(req.Context()))
}

// handleCheckPlayer returns the stored status of one player
func (r *Router) handleCheckPlayer(w http.ResponseWriter, req *http.Request) {
	st, err := r.svc.CheckPlayer(req.Context(), req.PathValue("ident"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleClearPlayer deletes one player's cooldown and lockdown
func (r *Router) handleClearPlayer(w http.ResponseWriter, req *http.Request) {
	st, err := r.svc.Clear(req.Context(), req.PathValue("ident"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	r.log.Info().Str("admin", claimsFrom(req.Context()).Username).Str("player_id", st.PlayerID).Msg("cleared player via API")
	writeJSON(w, http.StatusOK, st)
}

// handleClearAll deletes every stored record
func (r *Router) handleClearAll(w http.ResponseWriter, req *http.Request) {
	n, err := r.svc.ClearAll(req.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	r.log.Info().Str("admin", claimsFrom(req.Context()).Username).Int64("records", n).Msg("cleared all cooldowns via API")
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

// handleDiagnostics returns the store and session summary
func (r *Router) handleDiagnostics(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, r.svc.Diagnostics(req.Context()))
}

// handleGetQueue lists pending match-end switches
func (r *Router) handleGetQueue(w http.ResponseWriter, req *http.Request) {
	queue, err := r.svc.Queue(req.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if queue == nil {
		queue = []domain.QueuedSwitch{}
	}
	writeJSON(w, http.StatusOK, queue)
}

// RequestBody is an admin command sent over HTTP
type RequestBody struct {
	Kind   domain.RequestKind `json:"kind"`
	Target string             `json:"target,omitempty"`
	Squad  int                `json:"squad,omitempty"`
	Team   string             `json:"team,omitempty"`
}

// handleRequest runs an admin command through the same path as in-game ones
func (r *Router) handleRequest(w http.ResponseWriter, req *http.Request) {
	var body RequestBody
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	r.runRequest(w, req, body)
}

// handleTriggerMatchEnd runs the match-end batch now
func (r *Router) handleTriggerMatchEnd(w http.ResponseWriter, req *http.Request) {
	r.runRequest(w, req, RequestBody{Kind: domain.KindTriggerMatchEnd})
}

func (r *Router) runRequest(w http.ResponseWriter, req *http.Request, body RequestBody) {
	if body.Kind == domain.KindSwitch || body.Kind == domain.KindDouble {
		writeError(w, http.StatusBadRequest, "self switches must come from the game server")
		return
	}

	claims := claimsFrom(req.Context())
	out, err := r.svc.HandleRequest(req.Context(), domain.SwitchRequest{
		RequesterName: claims.Username,
		Admin:         claims.IsAdmin,
		Kind:          body.Kind,
		Target:        body.Target,
		Squad:         body.Squad,
		Team:          body.Team,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// handleHealth returns service health status
func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	diag := r.svc.Diagnostics(req.Context())
	status, state := http.StatusOK, "ok"
	if strings.HasPrefix(diag.DBStatus, "Error") {
		status, state = http.StatusServiceUnavailable, "degraded"
	}
	writeJSON(w, status, map[string]interface{}{
		"status":     state,
		"db":         diag.DBStatus,
		"version":    r.version,
		"ws_clients": r.wsHub.ClientCount(),
	})
}
