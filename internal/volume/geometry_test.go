package volume

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"gonum.org/v1/gonum/spatial/r3"
)

const transformTolerance = 1e-9

func identityParams() GeometryParams {
	return GeometryParams{
		Dimensions:      Dimensions{Width: 4, Height: 4, Depth: 4},
		SpacingMM:       r3.Vec{X: 1, Y: 1, Z: 1},
		OrientationX:    r3.Vec{X: 1},
		OrientationY:    r3.Vec{Y: 1},
		OrientationZ:    r3.Vec{Z: 1},
		Modality:        "MR",
		SourceSeriesInstanceUID: "1.2.840.113619.2.5.1",
		FrameOfReferenceUID:     "1.2.840.113619.2.5.2",
	}
}

// rotatedParams returns a geometry rotated 90 degrees about Z with a nonzero
// patient-space origin and anisotropic spacing.
func rotatedParams() GeometryParams {
	p := identityParams()
	p.Dimensions = Dimensions{Width: 8, Height: 6, Depth: 4}
	p.SpacingMM = r3.Vec{X: 0.5, Y: 0.5, Z: 2.5}
	p.PositionPatient = r3.Vec{X: -120.5, Y: 34.25, Z: 88.0}
	p.OrientationX = r3.Vec{Y: 1}
	p.OrientationY = r3.Vec{X: -1}
	p.OrientationZ = r3.Vec{Z: 1}
	return p
}

func TestNewGeometryHeaderValidation(t *testing.T) {
	t.Parallel()

	t.Run("rejects non-positive dimensions", func(t *testing.T) {
		p := identityParams()
		p.Dimensions.Depth = 0
		if _, err := NewGeometryHeader(p); err == nil {
			t.Fatal("expected error for zero depth")
		}
	})

	t.Run("rejects non-positive spacing", func(t *testing.T) {
		p := identityParams()
		p.SpacingMM.Y = -0.5
		if _, err := NewGeometryHeader(p); err == nil {
			t.Fatal("expected error for negative spacing")
		}
	})

	t.Run("rejects non-unit orientation axis", func(t *testing.T) {
		p := identityParams()
		p.OrientationX = r3.Vec{X: 2}
		if _, err := NewGeometryHeader(p); err == nil {
			t.Fatal("expected error for non-unit axis")
		}
	})

	t.Run("rejects non-orthogonal basis", func(t *testing.T) {
		p := identityParams()
		// Unit length but not orthogonal to Y.
		s := 1.0 / math.Sqrt2
		p.OrientationX = r3.Vec{X: s, Y: s}
		if _, err := NewGeometryHeader(p); err == nil {
			t.Fatal("expected error for non-orthogonal basis")
		}
	})

	t.Run("accepts valid rotated basis", func(t *testing.T) {
		if _, err := NewGeometryHeader(rotatedParams()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestIdentityGeometryMapsExactly(t *testing.T) {
	t.Parallel()

	h, err := NewGeometryHeader(identityParams())
	if err != nil {
		t.Fatalf("NewGeometryHeader: %v", err)
	}

	in := r3.Vec{X: 1, Y: 2, Z: 3}
	got := h.ConvertToPatient(in)
	if got != in {
		t.Errorf("identity geometry: ConvertToPatient(%v) = %v, want exact %v", in, got, in)
	}
	if back := h.ConvertToVolume(got); back != in {
		t.Errorf("identity geometry: ConvertToVolume(%v) = %v, want exact %v", got, back, in)
	}
}

func TestConvertRoundTrip(t *testing.T) {
	t.Parallel()

	h, err := NewGeometryHeader(rotatedParams())
	if err != nil {
		t.Fatalf("NewGeometryHeader: %v", err)
	}

	approx := cmpopts.EquateApprox(0, transformTolerance)
	vectors := []r3.Vec{
		{},
		{X: 1, Y: 2, Z: 3},
		{X: -17.25, Y: 0.001, Z: 412.5},
		{X: 1e6, Y: -1e6, Z: 0.5},
	}
	for _, v := range vectors {
		back := h.ConvertToVolume(h.ConvertToPatient(v))
		if diff := cmp.Diff(v, back, approx); diff != "" {
			t.Errorf("position round trip mismatch for %v (-want +got):\n%s", v, diff)
		}

		rot := h.RotateToVolumeOrientation(h.RotateToPatientOrientation(v))
		if diff := cmp.Diff(v, rot, approx); diff != "" {
			t.Errorf("rotation round trip mismatch for %v (-want +got):\n%s", v, diff)
		}
	}
}

func TestRotationIgnoresPosition(t *testing.T) {
	t.Parallel()

	h, err := NewGeometryHeader(rotatedParams())
	if err != nil {
		t.Fatalf("NewGeometryHeader: %v", err)
	}

	// Rotating the zero vector must give zero even with a nonzero origin.
	if got := h.RotateToPatientOrientation(r3.Vec{}); got != (r3.Vec{}) {
		t.Errorf("RotateToPatientOrientation(0) = %v, want 0", got)
	}

	// A 90 degree rotation about Z maps volume X onto patient Y.
	got := h.RotateToPatientOrientation(r3.Vec{X: 1})
	want := r3.Vec{Y: 1}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, transformTolerance)); diff != "" {
		t.Errorf("rotated X axis (-want +got):\n%s", diff)
	}
}

func TestMatrixRotationRoundTrip(t *testing.T) {
	t.Parallel()

	h, err := NewGeometryHeader(rotatedParams())
	if err != nil {
		t.Fatalf("NewGeometryHeader: %v", err)
	}

	m := [9]float64{
		0.5, 0, 0,
		0, 2, 0,
		0, 1, 3,
	}
	back := h.RotateMatrixToVolumeOrientation(h.RotateMatrixToPatientOrientation(m))
	for i := range m {
		if math.Abs(back[i]-m[i]) > transformTolerance {
			t.Fatalf("matrix round trip element %d: got %g, want %g", i, back[i], m[i])
		}
	}
}

func TestDerivedGeometry(t *testing.T) {
	t.Parallel()

	p := rotatedParams()
	h, err := NewGeometryHeader(p)
	if err != nil {
		t.Fatalf("NewGeometryHeader: %v", err)
	}

	approx := cmpopts.EquateApprox(0, transformTolerance)

	wantSize := r3.Vec{X: 4, Y: 3, Z: 10} // 8*0.5, 6*0.5, 4*2.5
	if diff := cmp.Diff(wantSize, h.VolumeSize(), approx); diff != "" {
		t.Errorf("VolumeSize (-want +got):\n%s", diff)
	}

	bounds := h.VolumeBounds()
	if bounds.Min != (r3.Vec{}) {
		t.Errorf("VolumeBounds().Min = %v, want origin", bounds.Min)
	}
	if diff := cmp.Diff(wantSize, bounds.Max, approx); diff != "" {
		t.Errorf("VolumeBounds().Max (-want +got):\n%s", diff)
	}

	wantCenter := r3.Scale(0.5, wantSize)
	if diff := cmp.Diff(wantCenter, h.VolumeCenter(), approx); diff != "" {
		t.Errorf("VolumeCenter (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(h.ConvertToPatient(wantCenter), h.VolumeCenterPatient(), approx); diff != "" {
		t.Errorf("VolumeCenterPatient (-want +got):\n%s", diff)
	}

	// Orientation accessors recover the constructor inputs.
	if diff := cmp.Diff(p.OrientationX, h.OrientationX(), approx); diff != "" {
		t.Errorf("OrientationX (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(p.OrientationY, h.OrientationY(), approx); diff != "" {
		t.Errorf("OrientationY (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(p.OrientationZ, h.OrientationZ(), approx); diff != "" {
		t.Errorf("OrientationZ (-want +got):\n%s", diff)
	}
}
