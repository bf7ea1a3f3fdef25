// Package volume implements the in-memory representation of a 3D medical
// image raster: a voxel buffer with fixed bit depth and signedness, the
// geometric calibration registering it into patient space, lazily cached
// intensity statistics, and an idempotent release protocol for the large
// buffers the volume cache evicts.
package volume

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/medvolt-imaging/voxelstore/internal/monitoring"
)

// Volume owns exactly one GeometryHeader and one Raster. It is never shared
// between owners: the builder that constructs it hands ownership to exactly
// one holder (typically the volume cache), which releases it on eviction.
//
// All read-only operations (indexing, geometry transforms, reads of already
// computed statistics) are safe for concurrent use. The only internal
// mutable state is the min/max cache, which fills itself under a per-instance
// mutex on first access.
type Volume struct {
	hdr GeometryHeader
	ras Raster

	// Storage metadata captured at construction so descriptive accessors
	// stay valid after the buffer is released.
	arrayLen int
	bits     int
	signed   bool

	statsMu  sync.Mutex
	statsOK  atomic.Bool
	minValue int
	maxValue int

	released    atomic.Bool
	releaseHook func() error
}

// Option configures a Volume at construction.
type Option func(*Volume)

// WithKnownRange seeds the statistics cache with a precomputed minimum and
// maximum, skipping the first-access scan.
func WithKnownRange(min, max int) Option {
	return func(v *Volume) {
		v.minValue = min
		v.maxValue = max
		v.statsOK.Store(true)
	}
}

// WithReleaseHook attaches extra release logic, run once as part of Release
// (explicit or finalizer-driven) after the voxel buffer has been dropped.
// Builders use this to free resources that live outside the Go heap.
func WithReleaseHook(hook func() error) Option {
	return func(v *Volume) { v.releaseHook = hook }
}

// New wraps a raster and its geometry into a Volume, taking ownership of
// both. The raster length must match the header's dimensions exactly.
func New(hdr GeometryHeader, ras Raster, opts ...Option) (*Volume, error) {
	if ras == nil {
		return nil, fmt.Errorf("volume raster must not be nil")
	}
	if want := hdr.Dimensions().Count(); ras.Len() != want {
		return nil, fmt.Errorf("raster length %d does not match geometry %dx%dx%d (want %d)",
			ras.Len(), hdr.Dimensions().Width, hdr.Dimensions().Height, hdr.Dimensions().Depth, want)
	}

	v := &Volume{
		hdr:      hdr,
		ras:      ras,
		arrayLen: ras.Len(),
		bits:     ras.BitsPerVoxel(),
		signed:   ras.Signed(),
	}
	for _, opt := range opts {
		opt(v)
	}

	// If the owner never calls Release, the runtime does. Both paths meet
	// in release(), which runs at most once.
	runtime.SetFinalizer(v, finalizeVolume)
	return v, nil
}

// ValueAtIndex returns the voxel at the given flat index, widened to int
// regardless of storage width and signedness. The index is not bounds
// checked; callers needing safety use ValueAt. It fails only when the volume
// has been released.
func (v *Volume) ValueAtIndex(i int) (int, error) {
	ras := v.ras
	if ras == nil || v.released.Load() {
		return 0, &AlreadyReleasedError{SourceSeriesInstanceUID: v.hdr.SourceSeriesInstanceUID()}
	}
	return ras.ValueAt(i), nil
}

// ValueAt returns the voxel at (x, y, z) after checking each coordinate
// against the array dimensions. The flat layout is row major with x varying
// fastest: index = x + width*(y + height*z).
func (v *Volume) ValueAt(x, y, z int) (int, error) {
	dims := v.hdr.Dimensions()
	if x < 0 || x >= dims.Width {
		return 0, &OutOfRangeError{Axis: "x", Value: x, Bound: dims.Width}
	}
	if y < 0 || y >= dims.Height {
		return 0, &OutOfRangeError{Axis: "y", Value: y, Bound: dims.Height}
	}
	if z < 0 || z >= dims.Depth {
		return 0, &OutOfRangeError{Axis: "z", Value: z, Bound: dims.Depth}
	}
	return v.ValueAtIndex(x + dims.Width*(y+dims.Height*z))
}

// MinimumValue returns the smallest voxel value, scanning the buffer on
// first access. One scan fills both cached bounds, so a later MaximumValue
// call does not rescan.
func (v *Volume) MinimumValue() (int, error) {
	if err := v.fillStats(); err != nil {
		return 0, err
	}
	return v.minValue, nil
}

// MaximumValue returns the largest voxel value, scanning the buffer on first
// access. One scan fills both cached bounds, so a later MinimumValue call
// does not rescan.
func (v *Volume) MaximumValue() (int, error) {
	if err := v.fillStats(); err != nil {
		return 0, err
	}
	return v.maxValue, nil
}

// fillStats computes min and max from a single scan on first use. The mutex
// serialises only the fill: once statsOK is set the cached values are
// immutable and read without locking. Both bounds always come from the same
// scan, so concurrent first access cannot observe a mixed pair.
func (v *Volume) fillStats() error {
	if v.released.Load() {
		return &AlreadyReleasedError{SourceSeriesInstanceUID: v.hdr.SourceSeriesInstanceUID()}
	}
	if v.statsOK.Load() {
		return nil
	}
	v.statsMu.Lock()
	defer v.statsMu.Unlock()
	if v.statsOK.Load() {
		return nil
	}
	if v.released.Load() {
		return &AlreadyReleasedError{SourceSeriesInstanceUID: v.hdr.SourceSeriesInstanceUID()}
	}
	v.minValue, v.maxValue = v.ras.MinMax()
	v.statsOK.Store(true)
	return nil
}

// ArrayLength returns the number of voxels in the buffer.
func (v *Volume) ArrayLength() int { return v.arrayLen }

// ArrayDimensions returns the voxel-array shape.
func (v *Volume) ArrayDimensions() Dimensions { return v.hdr.Dimensions() }

// BitsPerVoxel returns the storage width of one voxel (8 or 16).
func (v *Volume) BitsPerVoxel() int { return v.bits }

// Signed reports whether voxel values are signed.
func (v *Volume) Signed() bool { return v.signed }

// Geometry returns the volume's immutable geometry header.
func (v *Volume) Geometry() GeometryHeader { return v.hdr }

// Geometry pass-throughs. All read-only delegation to the owned header.

func (v *Volume) VolumeSize() r3.Vec          { return v.hdr.VolumeSize() }
func (v *Volume) VolumeBounds() Bounds        { return v.hdr.VolumeBounds() }
func (v *Volume) VoxelSpacing() r3.Vec        { return v.hdr.SpacingMM() }
func (v *Volume) VolumePositionPatient() r3.Vec {
	return v.hdr.PositionPatient()
}
func (v *Volume) OrientationX() r3.Vec        { return v.hdr.OrientationX() }
func (v *Volume) OrientationY() r3.Vec        { return v.hdr.OrientationY() }
func (v *Volume) OrientationZ() r3.Vec        { return v.hdr.OrientationZ() }
func (v *Volume) VolumeCenter() r3.Vec        { return v.hdr.VolumeCenter() }
func (v *Volume) VolumeCenterPatient() r3.Vec { return v.hdr.VolumeCenterPatient() }
func (v *Volume) PaddingValue() int           { return v.hdr.PaddingValue() }
func (v *Volume) Modality() string            { return v.hdr.Modality() }
func (v *Volume) SourceSeriesInstanceUID() string {
	return v.hdr.SourceSeriesInstanceUID()
}
func (v *Volume) FrameOfReferenceUID() string { return v.hdr.FrameOfReferenceUID() }

// ConvertToPatient maps a volume-space position to patient space.
func (v *Volume) ConvertToPatient(p r3.Vec) r3.Vec { return v.hdr.ConvertToPatient(p) }

// ConvertToVolume maps a patient-space position to volume space.
func (v *Volume) ConvertToVolume(p r3.Vec) r3.Vec { return v.hdr.ConvertToVolume(p) }

// RotateToPatientOrientation re-expresses a volume-space direction in patient
// space, applying only the rotation component.
func (v *Volume) RotateToPatientOrientation(p r3.Vec) r3.Vec {
	return v.hdr.RotateToPatientOrientation(p)
}

// RotateToVolumeOrientation re-expresses a patient-space direction in volume
// space, applying only the rotation component.
func (v *Volume) RotateToVolumeOrientation(p r3.Vec) r3.Vec {
	return v.hdr.RotateToVolumeOrientation(p)
}

// Released reports whether the volume's buffer has been released.
func (v *Volume) Released() bool { return v.released.Load() }

// Release frees the voxel buffer and runs any attached release hook. It is
// safe to call repeatedly and safe to race with the runtime finalizer: the
// underlying release logic runs at most once, and later calls are no-ops.
// Hook errors are returned to the caller; the finalizer path logs them
// instead, since nothing can handle an error raised during reclamation.
func (v *Volume) Release() error {
	return v.release()
}

func (v *Volume) release() error {
	if !v.released.CompareAndSwap(false, true) {
		return nil
	}
	// Explicit release happened; the finalizer has nothing left to do.
	runtime.SetFinalizer(v, nil)

	// Serialise against an in-flight stats fill before dropping the buffer.
	v.statsMu.Lock()
	v.ras = nil
	v.statsMu.Unlock()

	if v.releaseHook != nil {
		if err := v.releaseHook(); err != nil {
			return fmt.Errorf("volume release hook for series %s: %w",
				v.hdr.SourceSeriesInstanceUID(), err)
		}
	}
	return nil
}

// finalizeVolume is the runtime reclamation path. Errors (and panics from
// user-supplied hooks) are logged at warning level and suppressed: there is
// no caller to propagate them to.
func finalizeVolume(v *Volume) {
	defer func() {
		if r := recover(); r != nil {
			monitoring.Logf("[Volume] warning: panic while finalizing series %s: %v",
				v.hdr.SourceSeriesInstanceUID(), r)
		}
	}()
	if err := v.release(); err != nil {
		monitoring.Logf("[Volume] warning: release during finalization of series %s: %v",
			v.hdr.SourceSeriesInstanceUID(), err)
	}
}
