package volume

// Raster is one contiguous voxel buffer with a fixed element width and
// signedness, set at construction and immutable thereafter.
//
// ValueAt performs no bounds checking: the layer above (Volume) validates
// coordinates before delegating here, and an out-of-range index is undefined
// at this layer. MinMax scans the whole buffer, padding voxels included, and
// does not cache its result; caching lives in Volume.
type Raster interface {
	// ValueAt returns the voxel at flat index i, widened to int.
	ValueAt(i int) int
	// Len returns the number of voxels in the buffer.
	Len() int
	// BitsPerVoxel returns the storage width of one voxel (8 or 16).
	BitsPerVoxel() int
	// Signed reports whether voxel values are signed.
	Signed() bool
	// MinMax returns the minimum and maximum stored value from a full
	// linear scan of the buffer.
	MinMax() (min, max int)
}

// RasterU8 stores unsigned 8-bit voxels.
type RasterU8 []uint8

func (r RasterU8) ValueAt(i int) int { return int(r[i]) }
func (r RasterU8) Len() int          { return len(r) }
func (r RasterU8) BitsPerVoxel() int { return 8 }
func (r RasterU8) Signed() bool      { return false }

func (r RasterU8) MinMax() (min, max int) {
	if len(r) == 0 {
		return 0, 0
	}
	lo, hi := r[0], r[0]
	for _, v := range r[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return int(lo), int(hi)
}

// RasterS8 stores signed 8-bit voxels.
type RasterS8 []int8

func (r RasterS8) ValueAt(i int) int { return int(r[i]) }
func (r RasterS8) Len() int          { return len(r) }
func (r RasterS8) BitsPerVoxel() int { return 8 }
func (r RasterS8) Signed() bool      { return true }

func (r RasterS8) MinMax() (min, max int) {
	if len(r) == 0 {
		return 0, 0
	}
	lo, hi := r[0], r[0]
	for _, v := range r[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return int(lo), int(hi)
}

// RasterU16 stores unsigned 16-bit voxels.
type RasterU16 []uint16

func (r RasterU16) ValueAt(i int) int { return int(r[i]) }
func (r RasterU16) Len() int          { return len(r) }
func (r RasterU16) BitsPerVoxel() int { return 16 }
func (r RasterU16) Signed() bool      { return false }

func (r RasterU16) MinMax() (min, max int) {
	if len(r) == 0 {
		return 0, 0
	}
	lo, hi := r[0], r[0]
	for _, v := range r[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return int(lo), int(hi)
}

// RasterS16 stores signed 16-bit voxels.
type RasterS16 []int16

func (r RasterS16) ValueAt(i int) int { return int(r[i]) }
func (r RasterS16) Len() int          { return len(r) }
func (r RasterS16) BitsPerVoxel() int { return 16 }
func (r RasterS16) Signed() bool      { return true }

func (r RasterS16) MinMax() (min, max int) {
	if len(r) == 0 {
		return 0, 0
	}
	lo, hi := r[0], r[0]
	for _, v := range r[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return int(lo), int(hi)
}
