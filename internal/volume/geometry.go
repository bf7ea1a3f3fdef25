package volume

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// OrthonormalTolerance is the tolerance for checking that the orientation
// basis of a GeometryHeader is unit length and mutually orthogonal.
const OrthonormalTolerance = 1e-6

// Dimensions is the voxel-array shape. X is the fastest-varying axis in the
// flat buffer: flat index = x + Width*(y + Height*z).
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
	Depth  int `json:"depth"`
}

// Count returns the total number of voxels described by the dimensions.
func (d Dimensions) Count() int { return d.Width * d.Height * d.Depth }

// Bounds is an axis-aligned box in volume space, in millimetres.
type Bounds struct {
	Min r3.Vec
	Max r3.Vec
}

// GeometryParams carries the acquisition geometry of a volume into
// NewGeometryHeader. All fields describing physical calibration are in
// millimetres and patient-space coordinates.
type GeometryParams struct {
	Dimensions      Dimensions
	SpacingMM       r3.Vec // mm per voxel along each volume axis
	PositionPatient r3.Vec // patient-space location of voxel (0,0,0)

	// Orientation basis: the volume X/Y/Z axes expressed in patient space.
	// Must be unit length and mutually orthogonal.
	OrientationX r3.Vec
	OrientationY r3.Vec
	OrientationZ r3.Vec

	// PaddingValue fills voxels with no acquired data.
	PaddingValue int

	Modality                string
	SourceSeriesInstanceUID string
	FrameOfReferenceUID     string
}

// GeometryHeader is the immutable shape and physical calibration of one
// volume. It converts between volume space (millimetre coordinates aligned to
// the voxel array) and patient space. Derived quantities (size, bounds,
// center) are computed once at construction; the header never changes after
// NewGeometryHeader returns.
type GeometryHeader struct {
	dims     Dimensions
	spacing  r3.Vec
	position r3.Vec

	// rotation holds the orientation basis as a row-major 3x3 matrix whose
	// columns are the volume axes in patient space.
	rotation [9]float64

	padding   int
	modality  string
	seriesUID string
	frameUID  string

	size          r3.Vec
	center        r3.Vec
	centerPatient r3.Vec
}

// NewGeometryHeader validates the supplied geometry and returns an immutable
// header. Dimensions and spacing must be strictly positive and the
// orientation basis orthonormal within OrthonormalTolerance.
func NewGeometryHeader(p GeometryParams) (GeometryHeader, error) {
	var h GeometryHeader

	if p.Dimensions.Width <= 0 || p.Dimensions.Height <= 0 || p.Dimensions.Depth <= 0 {
		return h, fmt.Errorf("geometry dimensions must be positive, got %dx%dx%d",
			p.Dimensions.Width, p.Dimensions.Height, p.Dimensions.Depth)
	}
	if p.SpacingMM.X <= 0 || p.SpacingMM.Y <= 0 || p.SpacingMM.Z <= 0 {
		return h, fmt.Errorf("voxel spacing must be positive, got (%g, %g, %g)",
			p.SpacingMM.X, p.SpacingMM.Y, p.SpacingMM.Z)
	}
	if err := checkOrthonormal(p.OrientationX, p.OrientationY, p.OrientationZ); err != nil {
		return h, err
	}

	h = GeometryHeader{
		dims:     p.Dimensions,
		spacing:  p.SpacingMM,
		position: p.PositionPatient,
		rotation: basisToMatrix(p.OrientationX, p.OrientationY, p.OrientationZ),
		padding:  p.PaddingValue,
		modality: p.Modality,

		seriesUID: p.SourceSeriesInstanceUID,
		frameUID:  p.FrameOfReferenceUID,
	}

	h.size = r3.Vec{
		X: float64(h.dims.Width) * h.spacing.X,
		Y: float64(h.dims.Height) * h.spacing.Y,
		Z: float64(h.dims.Depth) * h.spacing.Z,
	}
	h.center = r3.Scale(0.5, h.size)
	h.centerPatient = h.ConvertToPatient(h.center)

	return h, nil
}

func checkOrthonormal(x, y, z r3.Vec) error {
	axes := []struct {
		name string
		v    r3.Vec
	}{{"X", x}, {"Y", y}, {"Z", z}}

	for _, a := range axes {
		if math.Abs(r3.Norm(a.v)-1.0) > OrthonormalTolerance {
			return fmt.Errorf("orientation %s axis is not unit length: |v| = %g", a.name, r3.Norm(a.v))
		}
	}
	pairs := []struct {
		name string
		dot  float64
	}{
		{"X.Y", r3.Dot(x, y)},
		{"X.Z", r3.Dot(x, z)},
		{"Y.Z", r3.Dot(y, z)},
	}
	for _, p := range pairs {
		if math.Abs(p.dot) > OrthonormalTolerance {
			return fmt.Errorf("orientation axes are not orthogonal: %s = %g", p.name, p.dot)
		}
	}
	return nil
}

// basisToMatrix packs the basis vectors as the columns of a row-major 3x3
// matrix, so that matrix*vector rotates a volume-space vector into patient
// space.
func basisToMatrix(x, y, z r3.Vec) [9]float64 {
	return [9]float64{
		x.X, y.X, z.X,
		x.Y, y.Y, z.Y,
		x.Z, y.Z, z.Z,
	}
}

// ConvertToPatient maps a position in volume space to patient space: rotate
// by the orientation basis, then translate by the volume position.
func (h GeometryHeader) ConvertToPatient(v r3.Vec) r3.Vec {
	return r3.Add(matVec(h.rotation, v), h.position)
}

// ConvertToVolume maps a position in patient space back to volume space:
// translate by the negative volume position, then apply the inverse rotation
// (the transpose, since the basis is orthonormal).
func (h GeometryHeader) ConvertToVolume(p r3.Vec) r3.Vec {
	return matVec(transpose(h.rotation), r3.Sub(p, h.position))
}

// RotateToPatientOrientation re-expresses a direction given in volume space
// in patient space. Only the rotation component is applied, so the result is
// position independent.
func (h GeometryHeader) RotateToPatientOrientation(v r3.Vec) r3.Vec {
	return matVec(h.rotation, v)
}

// RotateToVolumeOrientation re-expresses a direction given in patient space
// in volume space.
func (h GeometryHeader) RotateToVolumeOrientation(v r3.Vec) r3.Vec {
	return matVec(transpose(h.rotation), v)
}

// RotateMatrixToPatientOrientation rotates a row-major 3x3 matrix (typically
// another orientation) into patient space.
func (h GeometryHeader) RotateMatrixToPatientOrientation(m [9]float64) [9]float64 {
	return matMul(h.rotation, m)
}

// RotateMatrixToVolumeOrientation rotates a row-major 3x3 matrix into volume
// space.
func (h GeometryHeader) RotateMatrixToVolumeOrientation(m [9]float64) [9]float64 {
	return matMul(transpose(h.rotation), m)
}

// Dimensions returns the voxel-array shape.
func (h GeometryHeader) Dimensions() Dimensions { return h.dims }

// SpacingMM returns the voxel spacing in millimetres along each volume axis.
func (h GeometryHeader) SpacingMM() r3.Vec { return h.spacing }

// PositionPatient returns the patient-space location of voxel (0,0,0).
func (h GeometryHeader) PositionPatient() r3.Vec { return h.position }

// OrientationX returns the volume X axis expressed in patient space.
func (h GeometryHeader) OrientationX() r3.Vec {
	return r3.Vec{X: h.rotation[0], Y: h.rotation[3], Z: h.rotation[6]}
}

// OrientationY returns the volume Y axis expressed in patient space.
func (h GeometryHeader) OrientationY() r3.Vec {
	return r3.Vec{X: h.rotation[1], Y: h.rotation[4], Z: h.rotation[7]}
}

// OrientationZ returns the volume Z axis expressed in patient space.
func (h GeometryHeader) OrientationZ() r3.Vec {
	return r3.Vec{X: h.rotation[2], Y: h.rotation[5], Z: h.rotation[8]}
}

// PaddingValue returns the fill value for voxels without acquired data.
func (h GeometryHeader) PaddingValue() int { return h.padding }

// Modality returns the acquisition modality (e.g. "MR", "CT").
func (h GeometryHeader) Modality() string { return h.modality }

// SourceSeriesInstanceUID identifies the series the volume was built from.
func (h GeometryHeader) SourceSeriesInstanceUID() string { return h.seriesUID }

// FrameOfReferenceUID identifies the patient coordinate frame.
func (h GeometryHeader) FrameOfReferenceUID() string { return h.frameUID }

// VolumeSize returns the physical extent of the volume in millimetres
// (dimensions times spacing, componentwise).
func (h GeometryHeader) VolumeSize() r3.Vec { return h.size }

// VolumeBounds returns the axis-aligned box occupied by the volume in volume
// space.
func (h GeometryHeader) VolumeBounds() Bounds { return Bounds{Max: h.size} }

// VolumeCenter returns the midpoint of the volume in volume space.
func (h GeometryHeader) VolumeCenter() r3.Vec { return h.center }

// VolumeCenterPatient returns the midpoint of the volume in patient space.
func (h GeometryHeader) VolumeCenterPatient() r3.Vec { return h.centerPatient }

// matVec multiplies a row-major 3x3 matrix by a vector.
func matVec(m [9]float64, v r3.Vec) r3.Vec {
	return r3.Vec{
		X: m[0]*v.X + m[1]*v.Y + m[2]*v.Z,
		Y: m[3]*v.X + m[4]*v.Y + m[5]*v.Z,
		Z: m[6]*v.X + m[7]*v.Y + m[8]*v.Z,
	}
}

func transpose(m [9]float64) [9]float64 {
	return [9]float64{
		m[0], m[3], m[6],
		m[1], m[4], m[7],
		m[2], m[5], m[8],
	}
}

// matMul multiplies two row-major 3x3 matrices.
func matMul(a, b [9]float64) [9]float64 {
	var out [9]float64
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			var sum float64
			for k := 0; k < 3; k++ {
				sum += a[row*3+k] * b[k*3+col]
			}
			out[row*3+col] = sum
		}
	}
	return out
}
