package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/manifest"
	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/model"
)

type createShipmentRequest struct {
	SellerID   string         `json:"sellerId"`
	Quantities map[string]int `json:"quantities"`
}

func (s *Server) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	var req createShipmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.SellerID == "" {
		req.SellerID = claims.SellerID
	}
	if !claims.OwnsSeller(req.SellerID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	created, err := s.svc.CreateRequest(r.Context(), req.SellerID, req.Quantities, claims.UserID)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRequestResponse(created))
}

func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	sellerID, ok := sellerScope(claimsFromContext(r.Context()), r.URL.Query().Get("sellerId"))
	if !ok {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	status := model.RequestStatus(r.URL.Query().Get("status"))
	requests, err := s.svc.ListRequests(r.Context(), sellerID, status)
	if err != nil {
		writeOpError(w, err)
		return
	}
	out := make([]requestResponse, 0, len(requests))
	for _, req := range requests {
		out = append(out, toRequestResponse(req))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	req, err := s.svc.GetRequest(r.Context(), chi.URLParam(r, "requestId"))
	if err != nil {
		writeOpError(w, err)
		return
	}
	if !claimsFromContext(r.Context()).OwnsSeller(req.SellerID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	writeJSON(w, http.StatusOK, toRequestResponse(req))
}

func (s *Server) handleApproveRequest(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	approved, err := s.svc.ApproveRequest(r.Context(), chi.URLParam(r, "requestId"), claims.UserID)
	if err != nil {
		writeOpError(w, err)
		return
	}
	resp := toRequestResponse(approved)
	if seller, err := s.svc.GetSeller(r.Context(), approved.SellerID); err == nil {
		resp.Manifest = s.publishManifest(r.Context(), manifest.ForRequest(seller, approved))
	}
	writeJSON(w, http.StatusOK, resp)
}
