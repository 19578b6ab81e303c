package api

import (
	"io"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/quickbars-hub/internal/command"
)

// serviceResponse wraps a dispatch result with delivery counts.
type serviceResponse struct {
	*command.DispatchResult
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}

// handleService runs one of the display services. The body is the service
// call data; an omitted device_id broadcasts to every paired device.
//
// Validation errors fail the whole call before anything is written to a
// device. Per-device delivery failures are reported in the 200 body.
func (s *Server) handleService(w http.ResponseWriter, r *http.Request) {
	kind := command.Kind(chi.URLParam(r, "name"))
	if !slices.Contains(command.Kinds, kind) {
		writeError(w, http.StatusNotFound, ErrCodeUnknownService, "unknown service: "+string(kind))
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "failed to read request body")
		return
	}
	if len(body) == 0 {
		body = []byte("{}")
	}

	result, err := s.dispatcher.DispatchJSON(r.Context(), kind, body)
	if err != nil {
		s.logger.Debug("service call rejected", "service", kind, "error", err)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, serviceResponse{
		DispatchResult: result,
		Delivered:      result.Delivered(),
		Failed:         len(result.Failed()),
	})
}
