package http

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/auth"
	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/config"
	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/db"
	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/manifest"
	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/operations"
)

type Server struct {
	cfg          config.Config
	svc          *operations.Service
	store        *db.Store
	publisher    manifest.Publisher
	jwtPublicKey *rsa.PublicKey
}

// NewServer wires the HTTP API. publisher may be nil to skip print
// manifests.
func NewServer(cfg config.Config, svc *operations.Service, store *db.Store, publisher manifest.Publisher) (*Server, error) {
	publicKey, err := auth.ParseRSAPublicKey(cfg.JWTPublicKey)
	if err != nil {
		return nil, err
	}
	return &Server{cfg: cfg, svc: svc, store: store, publisher: publisher, jwtPublicKey: publicKey}, nil
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/ready", s.handleReady)
	r.Handle("/metrics", promhttp.Handler())

	admin := requireRole(auth.RoleAdmin)
	adminOrSeller := requireRole(auth.RoleAdmin, auth.RoleSeller)
	adminOrDriver := requireRole(auth.RoleAdmin, auth.RoleDriver)
	anyRole := requireRole(auth.RoleAdmin, auth.RoleSeller, auth.RoleDriver)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.With(admin).Post("/sellers", s.handleCreateSeller)
		r.With(admin).Get("/sellers", s.handleListSellers)
		r.With(adminOrSeller).Get("/sellers/{sellerId}", s.handleGetSeller)
		r.With(admin).Put("/sellers/{sellerId}/prefix", s.handleAssignPrefix)
		r.With(admin).Post("/sellers/{sellerId}/range/sync", s.handleSyncRange)
		r.With(adminOrSeller).Get("/sellers/{sellerId}/codes", s.handleListSellerCodes)
		r.With(admin).Post("/sellers/{sellerId}/codes", s.handleGenerateCodes)
		r.With(admin).Get("/sellers/{sellerId}/codes/next", s.handlePreviewCodes)

		r.With(adminOrSeller).Get("/codes/{codeId}", s.handleGetCode)
		r.With(admin).Delete("/codes/{codeId}", s.handleDeleteCode)

		r.With(adminOrSeller).Post("/shipment-requests", s.handleCreateRequest)
		r.With(adminOrSeller).Get("/shipment-requests", s.handleListRequests)
		r.With(adminOrSeller).Get("/shipment-requests/{requestId}", s.handleGetRequest)
		r.With(admin).Post("/shipment-requests/{requestId}/approve", s.handleApproveRequest)

		r.With(adminOrSeller).Post("/cycles", s.handleStartCycle)
		r.With(anyRole).Get("/cycles", s.handleListCycles)
		r.With(adminOrSeller).Get("/cycles/long-test", s.handleListLongTest)
		r.With(anyRole).Get("/cycles/{cycleId}", s.handleGetCycle)
		r.With(adminOrSeller).Post("/cycles/{cycleId}/extend", s.cycleAction(s.svc.ExtendTest))
		r.With(adminOrSeller).Post("/cycles/{cycleId}/dirty", s.cycleAction(s.svc.MarkDirty))
		r.With(adminOrSeller).Post("/cycles/{cycleId}/contract", s.cycleAction(s.svc.SignContract))
		r.With(adminOrSeller).Post("/cycles/{cycleId}/self-deliver", s.cycleAction(s.svc.SelfDeliver))

		r.With(adminOrSeller).Post("/pickups", s.handleCreatePickup)
		r.With(adminOrDriver).Get("/pickups", s.handleListPickups)
		r.With(adminOrDriver).Get("/pickups/{pickupId}", s.handleGetPickup)
		r.With(adminOrDriver).Post("/pickups/complete", s.handleCompletePickup)
		r.With(adminOrDriver).Post("/pickups/{pickupId}/complete", s.handleCompletePickupBatch)
	})

	return r
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		log.Printf("readiness check failed: %v", err)
		writeError(w, http.StatusServiceUnavailable, "database_unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Auth middleware

type claimsKey struct{}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}
		claims, err := auth.ParseToken(s.jwtPublicKey, s.cfg.JWTIssuer, token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_token")
			return
		}
		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := claimsFromContext(r.Context())
			if claims == nil {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			for _, role := range roles {
				if claims.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "forbidden")
		})
	}
}

func claimsFromContext(ctx context.Context) *auth.Claims {
	value := ctx.Value(claimsKey{})
	claims, _ := value.(*auth.Claims)
	return claims
}

// sellerScope resolves the seller a listing is restricted to. Sellers only
// ever see their own data; admins and drivers may filter freely.
func sellerScope(claims *auth.Claims, requested string) (string, bool) {
	if claims.Role != auth.RoleSeller {
		return requested, true
	}
	if requested != "" && requested != claims.SellerID {
		return "", false
	}
	return claims.SellerID, claims.SellerID != ""
}

// Errors

func writeOpError(w http.ResponseWriter, err error) {
	var opErr *operations.Error
	if !errors.As(err, &opErr) {
		log.Printf("http handler error: %v", err)
		writeError(w, http.StatusInternalServerError, operations.ErrServerError)
		return
	}
	status := http.StatusInternalServerError
	switch opErr.Kind {
	case operations.KindValidation:
		status = http.StatusBadRequest
	case operations.KindNotFound:
		status = http.StatusNotFound
	case operations.KindInvalidTransition, operations.KindAllocationConflict, operations.KindPartialBatch:
		status = http.StatusConflict
	case operations.KindPreconditionFailed:
		status = http.StatusPreconditionFailed
	default:
		log.Printf("http handler error: %v", err)
		writeError(w, status, operations.ErrServerError)
		return
	}
	if len(opErr.Items) > 0 {
		writeJSON(w, status, errorResponse{Error: opErr.Code, Items: opErr.Items})
		return
	}
	writeError(w, status, opErr.Code)
}

type errorResponse struct {
	Error string                  `json:"error"`
	Items []operations.ItemResult `json:"items,omitempty"`
}

// Helpers

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

func queryInt(r *http.Request, key string, fallback int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return value, true
}
