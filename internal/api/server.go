// Package api exposes the clinical history queries and the resident-volume
// registry as a small JSON-over-HTTP read surface.
package api

import (
	"fmt"
	"net/http"

	"github.com/medvolt-imaging/voxelstore/internal/history"
	"github.com/medvolt-imaging/voxelstore/internal/httputil"
	"github.com/medvolt-imaging/voxelstore/internal/units"
	"github.com/medvolt-imaging/voxelstore/internal/version"
	"github.com/medvolt-imaging/voxelstore/internal/volcache"
	"github.com/medvolt-imaging/voxelstore/internal/volume"
)

type Server struct {
	db    *history.DB
	cache *volcache.Cache
}

func NewServer(db *history.DB, cache *volcache.Cache) *Server {
	return &Server{
		db:    db,
		cache: cache,
	}
}

func (s *Server) homeHandler(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("Welcome to the Voxelstore Server!"))
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/patients/{id}/orders", s.listOrderHistory)
	mux.HandleFunc("GET /api/patients/{id}/procedures", s.listProcedureHistory)
	mux.HandleFunc("GET /api/patients/{id}/reports", s.listReportHistory)
	mux.HandleFunc("GET /api/orders/{id}/reports", s.listOrderReports)
	mux.HandleFunc("GET /api/volumes", s.listVolumes)
	mux.HandleFunc("GET /api/volumes/{series}", s.showVolume)
	mux.HandleFunc("DELETE /api/volumes/{series}", s.evictVolume)
	mux.HandleFunc("GET /api/version", s.showVersion)
	mux.HandleFunc("/", s.homeHandler)
	return mux
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]string{
		"version":    version.Version,
		"git_sha":    version.GitSHA,
		"build_time": version.BuildTime,
	})
}

func (s *Server) listOrderHistory(w http.ResponseWriter, r *http.Request) {
	orders, err := s.db.OrderHistory(r.Context(), r.PathValue("id"))
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve order history: %v", err))
		return
	}
	if orders == nil {
		orders = []history.Order{}
	}
	httputil.WriteJSONOK(w, orders)
}

func (s *Server) listProcedureHistory(w http.ResponseWriter, r *http.Request) {
	procs, err := s.db.ProcedureHistory(r.Context(), r.PathValue("id"))
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve procedure history: %v", err))
		return
	}
	if procs == nil {
		procs = []history.Procedure{}
	}
	httputil.WriteJSONOK(w, procs)
}

func (s *Server) listReportHistory(w http.ResponseWriter, r *http.Request) {
	reports, err := s.db.ReportHistory(r.Context(), r.PathValue("id"))
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve report history: %v", err))
		return
	}
	if reports == nil {
		reports = []history.Report{}
	}
	httputil.WriteJSONOK(w, reports)
}

func (s *Server) listOrderReports(w http.ResponseWriter, r *http.Request) {
	reports, err := s.db.ReportsForOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve reports: %v", err))
		return
	}
	if reports == nil {
		reports = []history.Report{}
	}
	httputil.WriteJSONOK(w, reports)
}

func (s *Server) listVolumes(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]any{
		"resident": s.cache.Series(),
		"count":    s.cache.Len(),
	})
}

// volumeInfo is the wire form of a resident volume's metadata. Lengths are
// reported in the requested units (millimetres by default).
type volumeInfo struct {
	SourceSeriesInstanceUID string            `json:"source_series_instance_uid"`
	FrameOfReferenceUID     string            `json:"frame_of_reference_uid,omitempty"`
	Modality                string            `json:"modality,omitempty"`
	Dimensions              volume.Dimensions `json:"dimensions"`
	BitsPerVoxel            int               `json:"bits_per_voxel"`
	Signed                  bool              `json:"signed"`
	PaddingValue            int               `json:"padding_value"`
	Units                   string            `json:"units"`
	VoxelSpacing            [3]float64        `json:"voxel_spacing"`
	VolumeSize              [3]float64        `json:"volume_size"`
	MinimumValue            int               `json:"minimum_value"`
	MaximumValue            int               `json:"maximum_value"`
}

func (s *Server) showVolume(w http.ResponseWriter, r *http.Request) {
	series := r.PathValue("series")
	v, ok := s.cache.Get(series)
	if !ok {
		httputil.NotFound(w, fmt.Sprintf("Series %s is not resident", series))
		return
	}

	unit := r.URL.Query().Get("units")
	if unit == "" {
		unit = units.MM
	}
	if !units.IsValid(unit) {
		httputil.BadRequest(w,
			fmt.Sprintf("Invalid units %q, valid units are: %s", unit, units.GetValidUnitsString()))
		return
	}

	min, err := v.MinimumValue()
	if err != nil {
		httputil.Conflict(w, fmt.Sprintf("Failed to compute volume statistics: %v", err))
		return
	}
	max, err := v.MaximumValue()
	if err != nil {
		httputil.Conflict(w, fmt.Sprintf("Failed to compute volume statistics: %v", err))
		return
	}

	spacing := v.VoxelSpacing()
	size := v.VolumeSize()
	info := volumeInfo{
		SourceSeriesInstanceUID: v.SourceSeriesInstanceUID(),
		FrameOfReferenceUID:     v.FrameOfReferenceUID(),
		Modality:                v.Modality(),
		Dimensions:              v.ArrayDimensions(),
		BitsPerVoxel:            v.BitsPerVoxel(),
		Signed:                  v.Signed(),
		PaddingValue:            v.PaddingValue(),
		Units:                   unit,
		VoxelSpacing: [3]float64{
			units.ConvertLength(spacing.X, unit),
			units.ConvertLength(spacing.Y, unit),
			units.ConvertLength(spacing.Z, unit),
		},
		VolumeSize: [3]float64{
			units.ConvertLength(size.X, unit),
			units.ConvertLength(size.Y, unit),
			units.ConvertLength(size.Z, unit),
		},
		MinimumValue: min,
		MaximumValue: max,
	}
	httputil.WriteJSONOK(w, info)
}

// evictVolume drops a series from the registry and releases its buffer.
// Evicting a series that is not resident succeeds: the end state is the same.
func (s *Server) evictVolume(w http.ResponseWriter, r *http.Request) {
	series := r.PathValue("series")
	if err := s.cache.Evict(series); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to release series %s: %v", series, err))
		return
	}
	httputil.WriteJSONOK(w, map[string]string{"evicted": series})
}
