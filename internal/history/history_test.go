package history

import (
	"context"
	"testing"
	"time"

	"github.com/medvolt-imaging/voxelstore/internal/timeutil"
)

// setupTestDB creates a migrated in-memory history database seeded with one
// patient, two orders, procedures and reports.
func setupTestDB(t *testing.T) (*DB, *Patient, []Order) {
	t.Helper()

	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.MigrateUp(); err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}

	ctx := context.Background()
	patient := &Patient{MRN: "MRN-0042", Name: "DOE^JANE", BirthDate: "1968-03-14", Sex: "F"}
	if err := db.CreatePatient(ctx, patient); err != nil {
		t.Fatalf("CreatePatient failed: %v", err)
	}

	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	orders := []Order{
		{
			PatientID:       patient.ID,
			AccessionNumber: "ACC-001",
			Modality:        "MR",
			ProcedureCode:   "MRHEADWO",
			Description:     "MRI head without contrast",
			Status:          "completed",
			OrderedAt:       base,
		},
		{
			PatientID:       patient.ID,
			AccessionNumber: "ACC-002",
			Modality:        "CT",
			ProcedureCode:   "CTCHEST",
			Description:     "CT chest with contrast",
			Status:          "completed",
			OrderedAt:       base.Add(48 * time.Hour),
		},
	}
	for i := range orders {
		if err := db.CreateOrder(ctx, &orders[i]); err != nil {
			t.Fatalf("CreateOrder failed: %v", err)
		}
	}

	procedures := []Procedure{
		{OrderID: orders[0].ID, PatientID: patient.ID, Code: "MRHEADWO",
			Modality: "MR", PerformedAt: base.Add(2 * time.Hour)},
		{OrderID: orders[1].ID, PatientID: patient.ID, Code: "CTCHEST",
			Modality: "CT", PerformedAt: base.Add(50 * time.Hour)},
		{OrderID: orders[1].ID, PatientID: patient.ID, Code: "CTCHESTHR",
			Modality: "CT", PerformedAt: base.Add(51 * time.Hour)},
	}
	for i := range procedures {
		if err := db.CreateProcedure(ctx, &procedures[i]); err != nil {
			t.Fatalf("CreateProcedure failed: %v", err)
		}
	}

	verified := base.Add(72 * time.Hour)
	reports := []Report{
		{OrderID: orders[0].ID, PatientID: patient.ID, Status: "final",
			Author: "RAD^SMITH", Impression: "No acute abnormality.",
			CreatedAt: base.Add(6 * time.Hour), VerifiedAt: &verified},
		{OrderID: orders[1].ID, PatientID: patient.ID, Status: "preliminary",
			Author: "RAD^JONES", Impression: "Small right effusion.",
			CreatedAt: base.Add(54 * time.Hour)},
	}
	for i := range reports {
		if err := db.CreateReport(ctx, &reports[i]); err != nil {
			t.Fatalf("CreateReport failed: %v", err)
		}
	}

	return db, patient, orders
}

func TestOrderHistory(t *testing.T) {
	db, patient, orders := setupTestDB(t)
	ctx := context.Background()

	got, err := db.OrderHistory(ctx, patient.ID)
	if err != nil {
		t.Fatalf("OrderHistory failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(got))
	}

	// Newest first.
	if got[0].AccessionNumber != "ACC-002" || got[1].AccessionNumber != "ACC-001" {
		t.Errorf("orders not newest first: %s, %s", got[0].AccessionNumber, got[1].AccessionNumber)
	}

	// Eager-attached procedures.
	if len(got[0].Procedures) != 2 {
		t.Errorf("expected 2 procedures on %s, got %d", got[0].AccessionNumber, len(got[0].Procedures))
	}
	if len(got[1].Procedures) != 1 {
		t.Errorf("expected 1 procedure on %s, got %d", got[1].AccessionNumber, len(got[1].Procedures))
	}
	for _, p := range got[0].Procedures {
		if p.OrderID != orders[1].ID {
			t.Errorf("procedure %s attached to wrong order %s", p.ID, p.OrderID)
		}
	}
}

func TestProcedureHistory(t *testing.T) {
	db, patient, _ := setupTestDB(t)
	ctx := context.Background()

	got, err := db.ProcedureHistory(ctx, patient.ID)
	if err != nil {
		t.Fatalf("ProcedureHistory failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 procedures, got %d", len(got))
	}

	// Newest first, each with its parent order attached.
	if got[0].Code != "CTCHESTHR" {
		t.Errorf("expected newest procedure CTCHESTHR first, got %s", got[0].Code)
	}
	for _, p := range got {
		if p.Order == nil {
			t.Fatalf("procedure %s missing attached order", p.ID)
		}
		if p.Order.ID != p.OrderID {
			t.Errorf("procedure %s attached order %s, want %s", p.ID, p.Order.ID, p.OrderID)
		}
	}
	if got[0].Order.AccessionNumber != "ACC-002" {
		t.Errorf("attached order accession = %s, want ACC-002", got[0].Order.AccessionNumber)
	}
}

func TestReportHistory(t *testing.T) {
	db, patient, _ := setupTestDB(t)
	ctx := context.Background()

	got, err := db.ReportHistory(ctx, patient.ID)
	if err != nil {
		t.Fatalf("ReportHistory failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(got))
	}

	if got[0].Status != "preliminary" || got[1].Status != "final" {
		t.Errorf("reports not newest first: %s, %s", got[0].Status, got[1].Status)
	}
	if got[1].VerifiedAt == nil {
		t.Error("expected verified_at on the final report")
	}
	if got[0].VerifiedAt != nil {
		t.Error("expected nil verified_at on the preliminary report")
	}
	for _, r := range got {
		if r.Order == nil || r.Order.ID != r.OrderID {
			t.Fatalf("report %s missing or mismatched attached order", r.ID)
		}
	}
}

func TestReportsForOrder(t *testing.T) {
	db, patient, orders := setupTestDB(t)
	ctx := context.Background()

	got, err := db.ReportsForOrder(ctx, orders[0].ID)
	if err != nil {
		t.Fatalf("ReportsForOrder failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 report, got %d", len(got))
	}
	if got[0].OrderID != orders[0].ID {
		t.Errorf("report order_id = %s, want %s", got[0].OrderID, orders[0].ID)
	}
	if got[0].PatientID != patient.ID {
		t.Errorf("report patient_id = %s, want %s", got[0].PatientID, patient.ID)
	}
	if got[0].Impression != "No acute abnormality." {
		t.Errorf("unexpected impression: %q", got[0].Impression)
	}

	// An order with no reports yields an empty result, not an error.
	none, err := db.ReportsForOrder(ctx, "no-such-order")
	if err != nil {
		t.Fatalf("ReportsForOrder for unknown order failed: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no reports for unknown order, got %d", len(none))
	}
}

func TestHistoryForUnknownPatientIsEmpty(t *testing.T) {
	db, _, _ := setupTestDB(t)
	ctx := context.Background()

	orders, err := db.OrderHistory(ctx, "unknown")
	if err != nil {
		t.Fatalf("OrderHistory failed: %v", err)
	}
	if len(orders) != 0 {
		t.Errorf("expected no orders, got %d", len(orders))
	}

	p, err := db.GetPatient(ctx, "unknown")
	if err != nil {
		t.Fatalf("GetPatient failed: %v", err)
	}
	if p != nil {
		t.Errorf("expected nil patient, got %+v", p)
	}
}

func TestMigrateVersionAndDown(t *testing.T) {
	db, _, _ := setupTestDB(t)

	version, dirty, err := db.MigrateVersion()
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if dirty {
		t.Error("expected clean migration state")
	}
	if version == 0 {
		t.Error("expected nonzero migration version after MigrateUp")
	}

	if err := db.MigrateDown(); err != nil {
		t.Fatalf("MigrateDown failed: %v", err)
	}
}

func TestCreateDefaultsTimestampFromClock(t *testing.T) {
	db, patient, _ := setupTestDB(t)

	now := time.Date(2026, 6, 15, 8, 30, 0, 0, time.UTC)
	db.SetClock(timeutil.NewMockClock(now))

	ctx := context.Background()
	order := &Order{PatientID: patient.ID, AccessionNumber: "ACC-CLK", Modality: "US"}
	if err := db.CreateOrder(ctx, order); err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	if !order.OrderedAt.Equal(now) {
		t.Errorf("OrderedAt = %v, want clock time %v", order.OrderedAt, now)
	}

	orders, err := db.OrderHistory(ctx, patient.ID)
	if err != nil {
		t.Fatalf("OrderHistory failed: %v", err)
	}
	if orders[0].AccessionNumber != "ACC-CLK" {
		t.Errorf("clock-stamped order did not sort newest: got %s", orders[0].AccessionNumber)
	}
	if !orders[0].OrderedAt.Equal(now) {
		t.Errorf("stored OrderedAt = %v, want %v", orders[0].OrderedAt, now)
	}
}
