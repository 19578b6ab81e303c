package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/nerrad567/quickbars-hub/internal/discovery"
)

// handleListCandidates returns the TVs seen by zeroconf discovery, marking
// those that are already paired.
func (s *Server) handleListCandidates(w http.ResponseWriter, _ *http.Request) {
	if s.discovery == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "discovery is disabled")
		return
	}
	writeCandidates(w, s.annotate(s.discovery.Candidates()))
}

// handleScan runs a discovery scan and returns its results.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if s.discovery == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "discovery is disabled")
		return
	}

	found, err := s.discovery.Scan(r.Context())
	if err != nil {
		if errors.Is(err, discovery.ErrScanInProgress) {
			writeError(w, http.StatusConflict, ErrCodeScanInProgress, err.Error())
			return
		}
		s.logger.Warn("discovery scan failed", "error", err)
		writeError(w, http.StatusBadGateway, ErrCodeUnavailable, "discovery scan failed")
		return
	}
	writeCandidates(w, s.annotate(found))
}

// candidateResponse is a discovery candidate as returned by the API.
type candidateResponse struct {
	discovery.Candidate
	Address string `json:"address"`
	Paired  bool   `json:"paired"`
}

func (s *Server) annotate(cs []discovery.Candidate) []candidateResponse {
	paired := make(map[string]struct{})
	for _, d := range s.registry.List() {
		paired[strings.ToLower(d.ID)] = struct{}{}
	}

	out := make([]candidateResponse, 0, len(cs))
	for _, c := range cs {
		_, ok := paired[strings.ToLower(c.DeviceID)]
		out = append(out, candidateResponse{Candidate: c, Address: c.Address(), Paired: ok && c.DeviceID != ""})
	}
	return out
}

func writeCandidates(w http.ResponseWriter, cs []candidateResponse) {
	writeJSON(w, http.StatusOK, map[string]any{"candidates": cs, "count": len(cs)})
}
