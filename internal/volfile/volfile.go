// Package volfile loads volumes from disk: a JSON sidecar header describing
// the geometry and storage format, next to a raw little-endian voxel file.
package volfile

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/medvolt-imaging/voxelstore/internal/fsutil"
	"github.com/medvolt-imaging/voxelstore/internal/security"
	"github.com/medvolt-imaging/voxelstore/internal/volume"
)

// HeaderExt is the extension of volume header files.
const HeaderExt = ".json"

// Header is the on-disk sidecar describing one volume. Vectors are [x y z].
type Header struct {
	SourceSeriesInstanceUID string     `json:"source_series_instance_uid"`
	FrameOfReferenceUID     string     `json:"frame_of_reference_uid,omitempty"`
	Modality                string     `json:"modality,omitempty"`
	Width                   int        `json:"width"`
	Height                  int        `json:"height"`
	Depth                   int        `json:"depth"`
	SpacingMM               [3]float64 `json:"spacing_mm"`
	PositionPatient         [3]float64 `json:"position_patient"`
	OrientationX            [3]float64 `json:"orientation_x"`
	OrientationY            [3]float64 `json:"orientation_y"`
	OrientationZ            [3]float64 `json:"orientation_z"`
	PaddingValue            int        `json:"padding_value"`
	BitsPerVoxel            int        `json:"bits_per_voxel"`
	Signed                  bool       `json:"signed"`

	// DataFile names the raw voxel file, relative to the header's directory.
	DataFile string `json:"data_file"`
}

func vec(a [3]float64) r3.Vec { return r3.Vec{X: a[0], Y: a[1], Z: a[2]} }

// Load reads the header at headerPath and its voxel data and assembles a
// volume. The data file must stay inside the header's directory.
func Load(fs fsutil.FileSystem, headerPath string) (*volume.Volume, error) {
	raw, err := fs.ReadFile(headerPath)
	if err != nil {
		return nil, fmt.Errorf("reading volume header %s: %w", headerPath, err)
	}
	var h Header
	if err := json.Unmarshal(raw, &h); err != nil {
		return nil, fmt.Errorf("parsing volume header %s: %w", headerPath, err)
	}
	if h.DataFile == "" {
		return nil, fmt.Errorf("volume header %s names no data file", headerPath)
	}

	dir := filepath.Dir(headerPath)
	dataPath := filepath.Join(dir, h.DataFile)
	if err := security.ValidatePathWithinDirectory(dataPath, dir); err != nil {
		return nil, fmt.Errorf("volume header %s: %w", headerPath, err)
	}

	hdr, err := volume.NewGeometryHeader(volume.GeometryParams{
		Dimensions:              volume.Dimensions{Width: h.Width, Height: h.Height, Depth: h.Depth},
		SpacingMM:               vec(h.SpacingMM),
		PositionPatient:         vec(h.PositionPatient),
		OrientationX:            vec(h.OrientationX),
		OrientationY:            vec(h.OrientationY),
		OrientationZ:            vec(h.OrientationZ),
		PaddingValue:            h.PaddingValue,
		Modality:                h.Modality,
		SourceSeriesInstanceUID: h.SourceSeriesInstanceUID,
		FrameOfReferenceUID:     h.FrameOfReferenceUID,
	})
	if err != nil {
		return nil, fmt.Errorf("volume header %s: %w", headerPath, err)
	}

	data, err := fs.ReadFile(dataPath)
	if err != nil {
		return nil, fmt.Errorf("reading voxel data %s: %w", dataPath, err)
	}
	ras, err := decodeRaster(data, h)
	if err != nil {
		return nil, fmt.Errorf("voxel data %s: %w", dataPath, err)
	}
	return volume.New(hdr, ras)
}

// decodeRaster interprets the raw bytes per the header's storage format.
// Voxels are laid out x fastest, then y, then z; 16-bit samples are little
// endian.
func decodeRaster(data []byte, h Header) (volume.Raster, error) {
	count := h.Width * h.Height * h.Depth

	switch {
	case h.BitsPerVoxel == 8 && !h.Signed:
		if len(data) != count {
			return nil, fmt.Errorf("have %d bytes, want %d", len(data), count)
		}
		return volume.RasterU8(data), nil

	case h.BitsPerVoxel == 8 && h.Signed:
		if len(data) != count {
			return nil, fmt.Errorf("have %d bytes, want %d", len(data), count)
		}
		buf := make(volume.RasterS8, count)
		for i, b := range data {
			buf[i] = int8(b)
		}
		return buf, nil

	case h.BitsPerVoxel == 16 && !h.Signed:
		if len(data) != 2*count {
			return nil, fmt.Errorf("have %d bytes, want %d", len(data), 2*count)
		}
		buf := make(volume.RasterU16, count)
		for i := range buf {
			buf[i] = binary.LittleEndian.Uint16(data[2*i:])
		}
		return buf, nil

	case h.BitsPerVoxel == 16 && h.Signed:
		if len(data) != 2*count {
			return nil, fmt.Errorf("have %d bytes, want %d", len(data), 2*count)
		}
		buf := make(volume.RasterS16, count)
		for i := range buf {
			buf[i] = int16(binary.LittleEndian.Uint16(data[2*i:]))
		}
		return buf, nil

	default:
		return nil, fmt.Errorf("unsupported storage format: %d-bit signed=%v", h.BitsPerVoxel, h.Signed)
	}
}

// LoadDir loads every volume whose header sits directly in dir. A header
// that fails to load is logged and skipped so one bad series cannot keep the
// rest of the directory out of memory.
func LoadDir(fs fsutil.FileSystem, dir string) ([]*volume.Volume, error) {
	names, err := fs.ListFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("scanning volume directory %s: %w", dir, err)
	}

	var volumes []*volume.Volume
	for _, name := range names {
		if !strings.HasSuffix(name, HeaderExt) {
			continue
		}
		v, err := Load(fs, filepath.Join(dir, name))
		if err != nil {
			log.Printf("[Volfile] skipping %s: %v", name, err)
			continue
		}
		volumes = append(volumes, v)
	}
	return volumes, nil
}
