package model

import (
	"sort"
	"time"
)

type CodeStatus string

const (
	// CodeReserved is a number issued by an approved shipment request that
	// has not been scanned yet.
	CodeReserved  CodeStatus = "reserved"
	CodeAvailable CodeStatus = "available"
	CodePending   CodeStatus = "pending"
	CodeActive    CodeStatus = "active"
)

type CycleStatus string

const (
	CycleOnTest        CycleStatus = "on_test"
	CycleDirty         CycleStatus = "dirty"
	CycleWaitingDriver CycleStatus = "waiting_driver"
	CycleCompleted     CycleStatus = "completed"
)

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
)

type PickupStatus string

const (
	PickupPending   PickupStatus = "pending"
	PickupCompleted PickupStatus = "completed"
)

type Seller struct {
	ID         string
	Name       string
	Prefix     string
	RangeStart *int
	RangeEnd   *int
	CreatedAt  time.Time
}

type QRCode struct {
	ID          string
	Code        string
	Prefix      string
	Number      *int
	OwnerID     string
	Status      CodeStatus
	RequestID   *string
	LastResetAt *time.Time
	CreatedAt   time.Time
}

type Cycle struct {
	ID                string
	QRCodeID          string
	MatType           string
	Status            CycleStatus
	SalespersonID     string
	CompanyID         *string
	ContactID         *string
	TestStartDate     time.Time
	PickupRequestedAt *time.Time
	DriverPickupAt    *time.Time
	CompletedAt       *time.Time
	ContractSigned    bool
	Notes             *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Active reports whether the cycle still holds its code.
func (c Cycle) Active() bool {
	return c.Status != CycleCompleted
}

// CycleDetail is a cycle together with the code it is attached to.
type CycleDetail struct {
	Cycle
	Code    string
	OwnerID string
}

type ShipmentRequest struct {
	ID               string
	SellerID         string
	Status           RequestStatus
	Quantities       map[string]int
	GeneratedQRCodes []string
	CreatedBy        string
	CreatedAt        time.Time
	ApprovedAt       *time.Time
	ApprovedBy       *string
}

// Total is the number of codes the request asks for.
func (r ShipmentRequest) Total() int {
	total := 0
	for _, qty := range r.Quantities {
		total += qty
	}
	return total
}

// Assignment pairs a generated code with the mat type it was issued for.
type Assignment struct {
	Code    string
	MatType string
}

// Assignments splits the generated codes over the requested mat types in
// mat type order, each type taking a contiguous run.
func (r ShipmentRequest) Assignments() []Assignment {
	types := make([]string, 0, len(r.Quantities))
	for matType := range r.Quantities {
		types = append(types, matType)
	}
	sort.Strings(types)
	out := make([]Assignment, 0, len(r.GeneratedQRCodes))
	i := 0
	for _, matType := range types {
		for n := 0; n < r.Quantities[matType] && i < len(r.GeneratedQRCodes); n++ {
			out = append(out, Assignment{Code: r.GeneratedQRCodes[i], MatType: matType})
			i++
		}
	}
	return out
}

// MatTypeFor returns the mat type a generated code was reserved for.
func (r ShipmentRequest) MatTypeFor(code string) (string, bool) {
	for _, a := range r.Assignments() {
		if a.Code == code {
			return a.MatType, true
		}
	}
	return "", false
}

type DriverPickup struct {
	ID          string
	Status      PickupStatus
	Notes       *string
	CreatedAt   time.Time
	CompletedAt *time.Time
	Items       []DriverPickupItem
}

type DriverPickupItem struct {
	PickupID   string
	CycleID    string
	PickedUp   bool
	PickedUpAt *time.Time
}
