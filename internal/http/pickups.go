package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/auth"
	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/model"
)

type createPickupRequest struct {
	CycleIDs []string `json:"cycleIds"`
	Notes    string   `json:"notes"`
}

type completePickupRequest struct {
	CycleIDs []string `json:"cycleIds"`
}

func (s *Server) handleCreatePickup(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	var req createPickupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if claims.Role == auth.RoleSeller {
		for _, id := range req.CycleIDs {
			cycle, err := s.svc.GetCycle(r.Context(), id)
			if err != nil {
				writeOpError(w, err)
				return
			}
			if !claims.OwnsSeller(cycle.OwnerID) {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
		}
	}
	pickup, err := s.svc.CreatePickup(r.Context(), req.CycleIDs, req.Notes)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPickupResponse(pickup))
}

func (s *Server) handleListPickups(w http.ResponseWriter, r *http.Request) {
	pickups, err := s.svc.ListPickups(r.Context(), model.PickupStatus(r.URL.Query().Get("status")))
	if err != nil {
		writeOpError(w, err)
		return
	}
	out := make([]pickupResponse, 0, len(pickups))
	for _, pickup := range pickups {
		out = append(out, toPickupResponse(pickup))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetPickup(w http.ResponseWriter, r *http.Request) {
	pickup, err := s.svc.GetPickup(r.Context(), chi.URLParam(r, "pickupId"))
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPickupResponse(pickup))
}

func (s *Server) handleCompletePickup(w http.ResponseWriter, r *http.Request) {
	var req completePickupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	result, err := s.svc.CompletePickup(r.Context(), req.CycleIDs)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCompletionResponse(result))
}

func (s *Server) handleCompletePickupBatch(w http.ResponseWriter, r *http.Request) {
	result, err := s.svc.CompletePickupBatch(r.Context(), chi.URLParam(r, "pickupId"))
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCompletionResponse(result))
}
