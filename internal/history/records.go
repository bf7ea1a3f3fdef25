package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Patient is the demographic anchor all history records hang off.
type Patient struct {
	ID        string `json:"id"`
	MRN       string `json:"mrn"`
	Name      string `json:"name"`
	BirthDate string `json:"birth_date,omitempty"`
	Sex       string `json:"sex,omitempty"`
}

// Order is an imaging order placed for a patient.
type Order struct {
	ID              string    `json:"id"`
	PatientID       string    `json:"patient_id"`
	AccessionNumber string    `json:"accession_number"`
	Modality        string    `json:"modality"`
	ProcedureCode   string    `json:"procedure_code,omitempty"`
	Description     string    `json:"description,omitempty"`
	Status          string    `json:"status"`
	OrderedAt       time.Time `json:"ordered_at"`

	// Procedures is populated by OrderHistory.
	Procedures []Procedure `json:"procedures,omitempty"`
}

// Procedure is a performed study step under an order.
type Procedure struct {
	ID          string    `json:"id"`
	OrderID     string    `json:"order_id"`
	PatientID   string    `json:"patient_id"`
	Code        string    `json:"code,omitempty"`
	Description string    `json:"description,omitempty"`
	Modality    string    `json:"modality,omitempty"`
	Status      string    `json:"status"`
	PerformedAt time.Time `json:"performed_at"`

	// Order is populated by ProcedureHistory.
	Order *Order `json:"order,omitempty"`
}

// Report is a radiology report filed against an order.
type Report struct {
	ID         string     `json:"id"`
	OrderID    string     `json:"order_id"`
	PatientID  string     `json:"patient_id"`
	Status     string     `json:"status"`
	Author     string     `json:"author,omitempty"`
	Impression string     `json:"impression,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`

	// Order is populated by ReportHistory.
	Order *Order `json:"order,omitempty"`
}

// Timestamps are stored as RFC3339 text so they sort lexicographically in
// SQL and survive round trips unchanged.
func fmtTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing stored timestamp %q: %w", s, err)
	}
	return t, nil
}

// CreatePatient inserts a patient, assigning an ID when none is set.
func (db *DB) CreatePatient(ctx context.Context, p *Patient) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO patients (id, mrn, name, birth_date, sex)
		VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.MRN, p.Name, p.BirthDate, p.Sex)
	if err != nil {
		return fmt.Errorf("creating patient %s: %w", p.MRN, err)
	}
	return nil
}

// CreateOrder inserts an order, assigning an ID when none is set.
func (db *DB) CreateOrder(ctx context.Context, o *Order) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.Status == "" {
		o.Status = "scheduled"
	}
	if o.OrderedAt.IsZero() {
		o.OrderedAt = db.clock.Now()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO orders (id, patient_id, accession_number, modality,
			procedure_code, description, status, ordered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.PatientID, o.AccessionNumber, o.Modality,
		o.ProcedureCode, o.Description, o.Status, fmtTime(o.OrderedAt))
	if err != nil {
		return fmt.Errorf("creating order %s: %w", o.AccessionNumber, err)
	}
	return nil
}

// CreateProcedure inserts a procedure, assigning an ID when none is set.
func (db *DB) CreateProcedure(ctx context.Context, p *Procedure) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = "completed"
	}
	if p.PerformedAt.IsZero() {
		p.PerformedAt = db.clock.Now()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO procedures (id, order_id, patient_id, code, description,
			modality, status, performed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.OrderID, p.PatientID, p.Code, p.Description,
		p.Modality, p.Status, fmtTime(p.PerformedAt))
	if err != nil {
		return fmt.Errorf("creating procedure for order %s: %w", p.OrderID, err)
	}
	return nil
}

// CreateReport inserts a report, assigning an ID when none is set.
func (db *DB) CreateReport(ctx context.Context, r *Report) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = "preliminary"
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = db.clock.Now()
	}
	var verifiedAt *string
	if r.VerifiedAt != nil {
		s := fmtTime(*r.VerifiedAt)
		verifiedAt = &s
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO reports (id, order_id, patient_id, status, author,
			impression, created_at, verified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.OrderID, r.PatientID, r.Status, r.Author,
		r.Impression, fmtTime(r.CreatedAt), verifiedAt)
	if err != nil {
		return fmt.Errorf("creating report for order %s: %w", r.OrderID, err)
	}
	return nil
}
