package api

import (
	"encoding/json"
	"net/http"
	"strings"
)

// startPairingRequest is the request body for POST /pairing/start.
type startPairingRequest struct {
	Address string `json:"address"`
}

// confirmPairingRequest is the request body for POST /pairing/confirm.
type confirmPairingRequest struct {
	Address string `json:"address"`
	Code    string `json:"code"`
}

// handleStartPairing asks the TV at address to show a pairing code.
func (s *Server) handleStartPairing(w http.ResponseWriter, r *http.Request) {
	var req startPairingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Address) == "" {
		writeBadRequest(w, "address is required")
		return
	}

	challenge, err := s.sessions.BeginPairing(r.Context(), req.Address)
	if err != nil {
		s.logger.Warn("pairing start failed", "address", req.Address, "error", err)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"address":    req.Address,
		"expires_in": challenge.TTL,
	})
}

// handleConfirmPairing completes pairing with the code shown on the TV and
// opens the device's channel.
func (s *Server) handleConfirmPairing(w http.ResponseWriter, r *http.Request) {
	var req confirmPairingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Address) == "" || strings.TrimSpace(req.Code) == "" {
		writeBadRequest(w, "address and code are required")
		return
	}

	dev, err := s.sessions.Pair(r.Context(), req.Address, strings.TrimSpace(req.Code))
	if err != nil {
		s.logger.Warn("pairing confirm failed", "address", req.Address, "error", err)
		writeDomainError(w, err)
		return
	}

	s.logger.Info("device paired via API", "device_id", dev.ID, "address", dev.Address())
	writeJSON(w, http.StatusCreated, dev)
}
