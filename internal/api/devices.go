package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/quickbars-hub/internal/channel"
	"github.com/nerrad567/quickbars-hub/internal/device"
	"github.com/nerrad567/quickbars-hub/internal/events"
)

const (
	defaultActionLimit = 50
	maxActionLimit     = 500
)

// deviceResponse is a device with its live channel statistics.
type deviceResponse struct {
	device.Device
	Channel *channel.Stats `json:"channel,omitempty"`
}

// handleListDevices returns all paired devices.
//
// Query parameters:
//   - state: filter by channel state (active, unreachable, ...)
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices := s.registry.List()

	if stateStr := r.URL.Query().Get("state"); stateStr != "" {
		state := device.State(stateStr)
		if !state.Valid() {
			writeBadRequest(w, "invalid state filter: "+stateStr)
			return
		}
		filtered := devices[:0]
		for _, d := range devices {
			if d.State == state {
				filtered = append(filtered, d)
			}
		}
		devices = filtered
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device and its channel statistics.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dev, err := s.registry.Get(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := deviceResponse{Device: *dev}
	if stats, err := s.sessions.Stats(id); err == nil {
		resp.Channel = &stats
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleDeleteDevice unpairs a device and closes its channel.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.sessions.Remove(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}

	s.logger.Info("device removed via API", "device_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// handleListEntities returns the saved-entity bindings a device reported.
func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := s.registry.Get(id); err != nil {
		writeDomainError(w, err)
		return
	}

	entities := []device.SavedEntity{}
	if s.entities != nil {
		saved, err := s.entities.ListEntities(r.Context(), id)
		if err != nil {
			s.logger.Error("listing saved entities failed", "device_id", id, "error", err)
			writeInternalError(w, "failed to list entities")
			return
		}
		if saved != nil {
			entities = saved
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"device_id": id, "entities": entities, "count": len(entities)})
}

type actionResponse struct {
	ActionID   string    `json:"action_id"`
	CID        string    `json:"cid,omitempty"`
	Label      string    `json:"label,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// handleListActions returns the notification actions a device reported,
// newest first.
//
// Query parameters:
//   - limit: maximum number of actions (default 50, max 500)
func (s *Server) handleListActions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := s.registry.Get(id); err != nil {
		writeDomainError(w, err)
		return
	}

	limit := defaultActionLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = min(n, maxActionLimit)
	}

	actions := []actionResponse{}
	if s.actions != nil {
		recent, err := s.actions.Recent(r.Context(), id, limit)
		if err != nil {
			s.logger.Error("listing action events failed", "device_id", id, "error", err)
			writeInternalError(w, "failed to list actions")
			return
		}
		actions = toActionResponses(recent)
	}

	writeJSON(w, http.StatusOK, map[string]any{"device_id": id, "actions": actions, "count": len(actions)})
}

func toActionResponses(in []events.ActionEvent) []actionResponse {
	out := make([]actionResponse, 0, len(in))
	for _, a := range in {
		out = append(out, actionResponse{
			ActionID:   a.ActionID,
			CID:        a.CID,
			Label:      a.Label,
			ReceivedAt: a.ReceivedAt,
		})
	}
	return out
}
