// Package manifest writes the CSV print manifests consumed by the label
// printer after codes are issued.
package manifest

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/model"
)

const (
	SourceShipment = "shipment"
	SourceGenerate = "generate"
)

type Row struct {
	Code    string
	MatType string
}

type Manifest struct {
	ID        string
	Prefix    string
	Source    string
	CreatedAt time.Time
	Rows      []Row
}

// Publisher stores a manifest and returns where it was written.
type Publisher interface {
	Publish(ctx context.Context, m Manifest) (string, error)
}

// ForRequest lists the codes of an approved shipment request with the mat
// type each one was issued for.
func ForRequest(seller model.Seller, req model.ShipmentRequest) Manifest {
	m := Manifest{ID: req.ID, Prefix: seller.Prefix, Source: SourceShipment, CreatedAt: req.CreatedAt}
	if req.ApprovedAt != nil {
		m.CreatedAt = *req.ApprovedAt
	}
	for _, a := range req.Assignments() {
		m.Rows = append(m.Rows, Row{Code: a.Code, MatType: a.MatType})
	}
	return m
}

// ForGenerated lists codes generated directly for a seller. They carry no
// mat type until scanned.
func ForGenerated(seller model.Seller, batchID string, generated []model.QRCode) Manifest {
	m := Manifest{ID: batchID, Prefix: seller.Prefix, Source: SourceGenerate}
	for _, code := range generated {
		if m.CreatedAt.IsZero() || code.CreatedAt.Before(m.CreatedAt) {
			m.CreatedAt = code.CreatedAt
		}
		m.Rows = append(m.Rows, Row{Code: code.Code})
	}
	return m
}

// Key is the object key of the manifest, grouped by seller prefix.
func (m Manifest) Key() string {
	name := fmt.Sprintf("%s-%s-%s.csv", m.CreatedAt.UTC().Format("20060102T150405Z"), m.Source, m.ID)
	return path.Join(m.Prefix, name)
}

func (m Manifest) Encode(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"code", "mat_type", "seller_prefix", "source"}); err != nil {
		return err
	}
	for _, row := range m.Rows {
		if err := cw.Write([]string{row.Code, row.MatType, m.Prefix, m.Source}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (m Manifest) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := m.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
