package http

import (
	"context"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/manifest"
	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/model"
	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/operations"
)

type createSellerRequest struct {
	Name   string `json:"name"`
	Prefix string `json:"prefix"`
}

type assignPrefixRequest struct {
	Prefix string `json:"prefix"`
}

type generateCodesRequest struct {
	Count int `json:"count"`
}

type generateCodesResponse struct {
	Codes    []codeResponse `json:"codes"`
	Manifest string         `json:"manifest,omitempty"`
}

func (s *Server) handleCreateSeller(w http.ResponseWriter, r *http.Request) {
	var req createSellerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	seller, err := s.svc.RegisterSeller(r.Context(), req.Name, req.Prefix)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSellerResponse(seller))
}

func (s *Server) handleListSellers(w http.ResponseWriter, r *http.Request) {
	sellers, err := s.svc.ListSellers(r.Context())
	if err != nil {
		writeOpError(w, err)
		return
	}
	out := make([]sellerResponse, 0, len(sellers))
	for _, seller := range sellers {
		out = append(out, toSellerResponse(seller))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetSeller(w http.ResponseWriter, r *http.Request) {
	sellerID := chi.URLParam(r, "sellerId")
	if !claimsFromContext(r.Context()).OwnsSeller(sellerID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	seller, err := s.svc.GetSeller(r.Context(), sellerID)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSellerResponse(seller))
}

func (s *Server) handleAssignPrefix(w http.ResponseWriter, r *http.Request) {
	var req assignPrefixRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	seller, err := s.svc.AssignPrefix(r.Context(), chi.URLParam(r, "sellerId"), req.Prefix)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSellerResponse(seller))
}

func (s *Server) handleSyncRange(w http.ResponseWriter, r *http.Request) {
	seller, err := s.svc.SyncSellerRange(r.Context(), chi.URLParam(r, "sellerId"))
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSellerResponse(seller))
}

func (s *Server) handleListSellerCodes(w http.ResponseWriter, r *http.Request) {
	sellerID := chi.URLParam(r, "sellerId")
	if !claimsFromContext(r.Context()).OwnsSeller(sellerID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	status := model.CodeStatus(r.URL.Query().Get("status"))
	codes, err := s.svc.ListSellerCodes(r.Context(), sellerID, status)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCodeResponses(codes))
}

func (s *Server) handleGenerateCodes(w http.ResponseWriter, r *http.Request) {
	var req generateCodesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	sellerID := chi.URLParam(r, "sellerId")
	generated, err := s.svc.GenerateCodes(r.Context(), sellerID, req.Count)
	if err != nil {
		writeOpError(w, err)
		return
	}
	resp := generateCodesResponse{Codes: toCodeResponses(generated)}
	if seller, err := s.svc.GetSeller(r.Context(), sellerID); err == nil {
		resp.Manifest = s.publishManifest(r.Context(), manifest.ForGenerated(seller, uuid.NewString(), generated))
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handlePreviewCodes(w http.ResponseWriter, r *http.Request) {
	count, ok := queryInt(r, "count", 1)
	if !ok {
		writeError(w, http.StatusBadRequest, operations.ErrInvalidCount)
		return
	}
	next, err := s.svc.AllocateNumbers(r.Context(), chi.URLParam(r, "sellerId"), count)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"codes": next})
}

func (s *Server) handleGetCode(w http.ResponseWriter, r *http.Request) {
	code, err := s.svc.GetCode(r.Context(), chi.URLParam(r, "codeId"))
	if err != nil {
		writeOpError(w, err)
		return
	}
	if !claimsFromContext(r.Context()).OwnsSeller(code.OwnerID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	writeJSON(w, http.StatusOK, toCodeResponse(code))
}

func (s *Server) handleDeleteCode(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteCode(r.Context(), chi.URLParam(r, "codeId")); err != nil {
		writeOpError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// publishManifest hands issued codes to the label printer. The codes are
// already committed, so a failure is only logged.
func (s *Server) publishManifest(ctx context.Context, m manifest.Manifest) string {
	if s.publisher == nil || len(m.Rows) == 0 {
		return ""
	}
	location, err := s.publisher.Publish(ctx, m)
	if err != nil {
		log.Printf("manifest publish failed for %s: %v", m.Key(), err)
		return ""
	}
	return location
}
