package history

import (
	"context"
	"database/sql"
	"fmt"
)

const orderCols = `id, patient_id, accession_number, modality,
	procedure_code, description, status, ordered_at`

func scanOrder(scan func(...any) error) (Order, error) {
	var o Order
	var orderedAt string
	err := scan(&o.ID, &o.PatientID, &o.AccessionNumber, &o.Modality,
		&o.ProcedureCode, &o.Description, &o.Status, &orderedAt)
	if err != nil {
		return o, err
	}
	if o.OrderedAt, err = parseTime(orderedAt); err != nil {
		return o, err
	}
	return o, nil
}

// OrderHistory returns every imaging order for the patient, newest first,
// with the performed procedures of each order attached.
func (db *DB) OrderHistory(ctx context.Context, patientID string) ([]Order, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+orderCols+`
		FROM orders
		WHERE patient_id = ?
		ORDER BY ordered_at DESC, accession_number DESC`, patientID)
	if err != nil {
		return nil, fmt.Errorf("querying order history for patient %s: %w", patientID, err)
	}
	defer rows.Close()

	var orders []Order
	byID := make(map[string]int)
	for rows.Next() {
		o, err := scanOrder(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning order: %w", err)
		}
		byID[o.ID] = len(orders)
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating orders: %w", err)
	}

	procs, err := db.ProcedureHistory(ctx, patientID)
	if err != nil {
		return nil, err
	}
	for _, p := range procs {
		p.Order = nil // avoid cyclic attachment under the parent order
		if i, ok := byID[p.OrderID]; ok {
			orders[i].Procedures = append(orders[i].Procedures, p)
		}
	}
	return orders, nil
}

// ProcedureHistory returns every performed procedure for the patient, newest
// first, each with its parent order attached.
func (db *DB) ProcedureHistory(ctx context.Context, patientID string) ([]Procedure, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT p.id, p.order_id, p.patient_id, p.code, p.description,
		       p.modality, p.status, p.performed_at,
		       o.id, o.patient_id, o.accession_number, o.modality,
		       o.procedure_code, o.description, o.status, o.ordered_at
		FROM procedures p
		JOIN orders o ON o.id = p.order_id
		WHERE p.patient_id = ?
		ORDER BY p.performed_at DESC, p.id DESC`, patientID)
	if err != nil {
		return nil, fmt.Errorf("querying procedure history for patient %s: %w", patientID, err)
	}
	defer rows.Close()

	var procs []Procedure
	for rows.Next() {
		var p Procedure
		var o Order
		var performedAt, orderedAt string
		err := rows.Scan(
			&p.ID, &p.OrderID, &p.PatientID, &p.Code, &p.Description,
			&p.Modality, &p.Status, &performedAt,
			&o.ID, &o.PatientID, &o.AccessionNumber, &o.Modality,
			&o.ProcedureCode, &o.Description, &o.Status, &orderedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning procedure: %w", err)
		}
		if p.PerformedAt, err = parseTime(performedAt); err != nil {
			return nil, err
		}
		if o.OrderedAt, err = parseTime(orderedAt); err != nil {
			return nil, err
		}
		p.Order = &o
		procs = append(procs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating procedures: %w", err)
	}
	return procs, nil
}

// ReportHistory returns every report for the patient, newest first, each with
// its parent order attached.
func (db *DB) ReportHistory(ctx context.Context, patientID string) ([]Report, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT r.id, r.order_id, r.patient_id, r.status, r.author,
		       r.impression, r.created_at, r.verified_at,
		       o.id, o.patient_id, o.accession_number, o.modality,
		       o.procedure_code, o.description, o.status, o.ordered_at
		FROM reports r
		JOIN orders o ON o.id = r.order_id
		WHERE r.patient_id = ?
		ORDER BY r.created_at DESC, r.id DESC`, patientID)
	if err != nil {
		return nil, fmt.Errorf("querying report history for patient %s: %w", patientID, err)
	}
	defer rows.Close()

	var reports []Report
	for rows.Next() {
		r, o, err := scanReportWithOrder(rows)
		if err != nil {
			return nil, err
		}
		r.Order = o
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating reports: %w", err)
	}
	return reports, nil
}

// ReportsForOrder returns the reports filed against one order, newest first.
func (db *DB) ReportsForOrder(ctx context.Context, orderID string) ([]Report, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, order_id, patient_id, status, author,
		       impression, created_at, verified_at
		FROM reports
		WHERE order_id = ?
		ORDER BY created_at DESC, id DESC`, orderID)
	if err != nil {
		return nil, fmt.Errorf("querying reports for order %s: %w", orderID, err)
	}
	defer rows.Close()

	var reports []Report
	for rows.Next() {
		var r Report
		var createdAt string
		var verifiedAt sql.NullString
		err := rows.Scan(&r.ID, &r.OrderID, &r.PatientID, &r.Status, &r.Author,
			&r.Impression, &createdAt, &verifiedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning report: %w", err)
		}
		if r.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if verifiedAt.Valid {
			t, err := parseTime(verifiedAt.String)
			if err != nil {
				return nil, err
			}
			r.VerifiedAt = &t
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating reports: %w", err)
	}
	return reports, nil
}

func scanReportWithOrder(rows *sql.Rows) (Report, *Order, error) {
	var r Report
	var o Order
	var createdAt, orderedAt string
	var verifiedAt sql.NullString
	err := rows.Scan(
		&r.ID, &r.OrderID, &r.PatientID, &r.Status, &r.Author,
		&r.Impression, &createdAt, &verifiedAt,
		&o.ID, &o.PatientID, &o.AccessionNumber, &o.Modality,
		&o.ProcedureCode, &o.Description, &o.Status, &orderedAt)
	if err != nil {
		return r, nil, fmt.Errorf("scanning report: %w", err)
	}
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return r, nil, err
	}
	if verifiedAt.Valid {
		t, err := parseTime(verifiedAt.String)
		if err != nil {
			return r, nil, err
		}
		r.VerifiedAt = &t
	}
	if o.OrderedAt, err = parseTime(orderedAt); err != nil {
		return r, nil, err
	}
	return r, &o, nil
}

// GetPatient retrieves one patient by ID.
func (db *DB) GetPatient(ctx context.Context, id string) (*Patient, error) {
	var p Patient
	var birthDate, sex sql.NullString
	err := db.QueryRowContext(ctx, `
		SELECT id, mrn, name, birth_date, sex
		FROM patients WHERE id = ?`, id).
		Scan(&p.ID, &p.MRN, &p.Name, &birthDate, &sex)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying patient %s: %w", id, err)
	}
	p.BirthDate = birthDate.String
	p.Sex = sex.String
	return &p, nil
}
