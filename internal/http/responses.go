package http

import (
	"time"

	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/model"
	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/operations"
)

type sellerResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Prefix     string `json:"prefix,omitempty"`
	RangeStart *int   `json:"rangeStart,omitempty"`
	RangeEnd   *int   `json:"rangeEnd,omitempty"`
	CreatedAt  int64  `json:"createdAt"`
}

type codeResponse struct {
	ID          string  `json:"id"`
	Code        string  `json:"code"`
	OwnerID     string  `json:"ownerId"`
	Status      string  `json:"status"`
	RequestID   *string `json:"requestId,omitempty"`
	LastResetAt *int64  `json:"lastResetAt,omitempty"`
	CreatedAt   int64   `json:"createdAt"`
}

type requestResponse struct {
	ID               string         `json:"id"`
	SellerID         string         `json:"sellerId"`
	Status           string         `json:"status"`
	Quantities       map[string]int `json:"quantities"`
	GeneratedQRCodes []string       `json:"generatedQrCodes"`
	CreatedBy        string         `json:"createdBy"`
	CreatedAt        int64          `json:"createdAt"`
	ApprovedAt       *int64         `json:"approvedAt,omitempty"`
	ApprovedBy       *string        `json:"approvedBy,omitempty"`
	Manifest         string         `json:"manifest,omitempty"`
}

type cycleResponse struct {
	ID                string  `json:"id"`
	QRCodeID          string  `json:"qrCodeId"`
	Code              string  `json:"code"`
	SellerID          string  `json:"sellerId"`
	MatType           string  `json:"matType"`
	Status            string  `json:"status"`
	SalespersonID     string  `json:"salespersonId"`
	CompanyID         *string `json:"companyId,omitempty"`
	ContactID         *string `json:"contactId,omitempty"`
	TestStartDate     int64   `json:"testStartDate"`
	PickupRequestedAt *int64  `json:"pickupRequestedAt,omitempty"`
	DriverPickupAt    *int64  `json:"driverPickupAt,omitempty"`
	CompletedAt       *int64  `json:"completedAt,omitempty"`
	ContractSigned    bool    `json:"contractSigned"`
	Notes             *string `json:"notes,omitempty"`
	LongTest          string  `json:"longTest,omitempty"`
	CreatedAt         int64   `json:"createdAt"`
	UpdatedAt         int64   `json:"updatedAt"`
}

type longTestResponse struct {
	Cycle cycleResponse `json:"cycle"`
	Level string        `json:"level"`
	Days  int           `json:"days"`
}

type pickupItemResponse struct {
	CycleID    string `json:"cycleId"`
	PickedUp   bool   `json:"pickedUp"`
	PickedUpAt *int64 `json:"pickedUpAt,omitempty"`
}

type pickupResponse struct {
	ID          string               `json:"id"`
	Status      string               `json:"status"`
	Notes       *string              `json:"notes,omitempty"`
	CreatedAt   int64                `json:"createdAt"`
	CompletedAt *int64               `json:"completedAt,omitempty"`
	Items       []pickupItemResponse `json:"items"`
}

type completionResponse struct {
	Items            []operations.ItemResult `json:"items"`
	CompletedPickups []string                `json:"completedPickups"`
}

func unixPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	value := t.Unix()
	return &value
}

func toSellerResponse(seller model.Seller) sellerResponse {
	return sellerResponse{
		ID:         seller.ID,
		Name:       seller.Name,
		Prefix:     seller.Prefix,
		RangeStart: seller.RangeStart,
		RangeEnd:   seller.RangeEnd,
		CreatedAt:  seller.CreatedAt.Unix(),
	}
}

func toCodeResponse(code model.QRCode) codeResponse {
	return codeResponse{
		ID:          code.ID,
		Code:        code.Code,
		OwnerID:     code.OwnerID,
		Status:      string(code.Status),
		RequestID:   code.RequestID,
		LastResetAt: unixPtr(code.LastResetAt),
		CreatedAt:   code.CreatedAt.Unix(),
	}
}

func toCodeResponses(codes []model.QRCode) []codeResponse {
	out := make([]codeResponse, 0, len(codes))
	for _, code := range codes {
		out = append(out, toCodeResponse(code))
	}
	return out
}

func toRequestResponse(req model.ShipmentRequest) requestResponse {
	generated := req.GeneratedQRCodes
	if generated == nil {
		generated = []string{}
	}
	return requestResponse{
		ID:               req.ID,
		SellerID:         req.SellerID,
		Status:           string(req.Status),
		Quantities:       req.Quantities,
		GeneratedQRCodes: generated,
		CreatedBy:        req.CreatedBy,
		CreatedAt:        req.CreatedAt.Unix(),
		ApprovedAt:       unixPtr(req.ApprovedAt),
		ApprovedBy:       req.ApprovedBy,
	}
}

func (s *Server) toCycleResponse(cycle model.CycleDetail) cycleResponse {
	return cycleResponse{
		ID:                cycle.ID,
		QRCodeID:          cycle.QRCodeID,
		Code:              cycle.Code,
		SellerID:          cycle.OwnerID,
		MatType:           cycle.MatType,
		Status:            string(cycle.Status),
		SalespersonID:     cycle.SalespersonID,
		CompanyID:         cycle.CompanyID,
		ContactID:         cycle.ContactID,
		TestStartDate:     cycle.TestStartDate.Unix(),
		PickupRequestedAt: unixPtr(cycle.PickupRequestedAt),
		DriverPickupAt:    unixPtr(cycle.DriverPickupAt),
		CompletedAt:       unixPtr(cycle.CompletedAt),
		ContractSigned:    cycle.ContractSigned,
		Notes:             cycle.Notes,
		LongTest:          string(s.svc.ClassifyLongTest(cycle.Cycle)),
		CreatedAt:         cycle.CreatedAt.Unix(),
		UpdatedAt:         cycle.UpdatedAt.Unix(),
	}
}

func toPickupResponse(pickup model.DriverPickup) pickupResponse {
	items := make([]pickupItemResponse, 0, len(pickup.Items))
	for _, item := range pickup.Items {
		items = append(items, pickupItemResponse{
			CycleID:    item.CycleID,
			PickedUp:   item.PickedUp,
			PickedUpAt: unixPtr(item.PickedUpAt),
		})
	}
	return pickupResponse{
		ID:          pickup.ID,
		Status:      string(pickup.Status),
		Notes:       pickup.Notes,
		CreatedAt:   pickup.CreatedAt.Unix(),
		CompletedAt: unixPtr(pickup.CompletedAt),
		Items:       items,
	}
}

func toCompletionResponse(result operations.PickupCompletion) completionResponse {
	completed := result.CompletedPickups
	if completed == nil {
		completed = []string{}
	}
	return completionResponse{Items: result.Items, CompletedPickups: completed}
}
