package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/auth"
	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/model"
	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/operations"
)

type scanRequest struct {
	Code          string  `json:"code"`
	MatType       string  `json:"matType"`
	SellerID      string  `json:"sellerId"`
	SalespersonID string  `json:"salespersonId"`
	CompanyID     *string `json:"companyId"`
	ContactID     *string `json:"contactId"`
	Notes         *string `json:"notes"`
}

func (s *Server) handleStartCycle(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	var req scanRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	in := operations.ScanInput{
		Code:          req.Code,
		MatType:       req.MatType,
		SellerID:      req.SellerID,
		SalespersonID: req.SalespersonID,
		CompanyID:     req.CompanyID,
		ContactID:     req.ContactID,
		Notes:         req.Notes,
	}
	if claims.Role == auth.RoleSeller {
		if req.SellerID != "" && req.SellerID != claims.SellerID {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		in.SellerID = claims.SellerID
		in.SalespersonID = claims.UserID
	} else if strings.TrimSpace(in.SalespersonID) == "" {
		in.SalespersonID = claims.UserID
	}
	cycle, err := s.svc.StartCycle(r.Context(), in)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.toCycleResponse(cycle))
}

func (s *Server) handleListCycles(w http.ResponseWriter, r *http.Request) {
	sellerID, ok := sellerScope(claimsFromContext(r.Context()), r.URL.Query().Get("sellerId"))
	if !ok {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	limit, ok := queryInt(r, "limit", 0)
	if !ok || limit < 0 {
		writeError(w, http.StatusBadRequest, "invalid_limit")
		return
	}
	query := operations.CycleQuery{SellerID: sellerID, Limit: limit}
	for _, raw := range r.URL.Query()["status"] {
		for _, status := range strings.Split(raw, ",") {
			if status = strings.TrimSpace(status); status != "" {
				query.Statuses = append(query.Statuses, model.CycleStatus(status))
			}
		}
	}
	cycles, err := s.svc.ListCycles(r.Context(), query)
	if err != nil {
		writeOpError(w, err)
		return
	}
	out := make([]cycleResponse, 0, len(cycles))
	for _, cycle := range cycles {
		out = append(out, s.toCycleResponse(cycle))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListLongTest(w http.ResponseWriter, r *http.Request) {
	sellerID, ok := sellerScope(claimsFromContext(r.Context()), r.URL.Query().Get("sellerId"))
	if !ok {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	entries, err := s.svc.ListLongTest(r.Context(), sellerID)
	if err != nil {
		writeOpError(w, err)
		return
	}
	out := make([]longTestResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, longTestResponse{
			Cycle: s.toCycleResponse(entry.Cycle),
			Level: string(entry.Level),
			Days:  entry.Days,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetCycle(w http.ResponseWriter, r *http.Request) {
	cycle, ok := s.callerCycle(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.toCycleResponse(cycle))
}

// cycleAction serves the single-cycle transitions after checking that the
// caller may act on the cycle's seller.
func (s *Server) cycleAction(op func(context.Context, string) (model.CycleDetail, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cycle, ok := s.callerCycle(w, r)
		if !ok {
			return
		}
		updated, err := op(r.Context(), cycle.ID)
		if err != nil {
			writeOpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.toCycleResponse(updated))
	}
}

func (s *Server) callerCycle(w http.ResponseWriter, r *http.Request) (model.CycleDetail, bool) {
	claims := claimsFromContext(r.Context())
	cycle, err := s.svc.GetCycle(r.Context(), chi.URLParam(r, "cycleId"))
	if err != nil {
		writeOpError(w, err)
		return model.CycleDetail{}, false
	}
	if claims.Role != auth.RoleDriver && !claims.OwnsSeller(cycle.OwnerID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return model.CycleDetail{}, false
	}
	return cycle, true
}
