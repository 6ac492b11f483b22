package http

import (
	"encoding/json"
	"math"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"fleet-tracker/internal/domain"
	"fleet-tracker/internal/hub"
	"fleet-tracker/internal/logger"
	"fleet-tracker/internal/metrics"
	"fleet-tracker/internal/pipeline"
	"fleet-tracker/internal/status"
	"fleet-tracker/internal/store"
)

// Server exposes the observer and operator surfaces: the websocket
// subscribe endpoint, the manual-add escape hatch, the derived asset
// list and per-asset detail.
type Server struct {
	router      *mux.Router
	store       store.PathStore
	ingestor    *pipeline.Ingestor
	broadcaster *pipeline.Broadcaster
	classifier  *status.Classifier
	hub         *hub.Hub
	log         *logger.Logger
	now         func() time.Time
}

func NewServer(
	ps store.PathStore,
	ing *pipeline.Ingestor,
	b *pipeline.Broadcaster,
	cl *status.Classifier,
	h *hub.Hub,
	log *logger.Logger,
) *Server {
	s := &Server{
		router:      mux.NewRouter(),
		store:       ps,
		ingestor:    ing,
		broadcaster: b,
		classifier:  cl,
		hub:         h,
		log:         log,
		now:         time.Now,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/ws", s.hub.ServeWS).Methods(http.MethodGet)
	s.router.HandleFunc("/api/assets", s.handleListAssets).Methods(http.MethodGet)
	s.router.HandleFunc("/api/assets", s.handleAddAsset).Methods(http.MethodPost)
	s.router.HandleFunc("/api/assets/{id}", s.handleGetAsset).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", metrics.HandleMetrics).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return recoverMiddleware(s.log, s.router)
}

// addAssetRequest is the manual-add payload.
type addAssetRequest struct {
	ID   string   `json:"id"`
	Name string   `json:"name"`
	Lat  *float64 `json:"lat"`
	Lng  *float64 `json:"lng"`
}

func (s *Server) handleAddAsset(w http.ResponseWriter, r *http.Request) {
	var req addAssetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	if req.ID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "id is required"})
		return
	}
	if req.Lat == nil || req.Lng == nil || !isFinite(*req.Lat) || !isFinite(*req.Lng) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "lat and lng must be finite numbers"})
		return
	}
	if *req.Lat < -90 || *req.Lat > 90 || *req.Lng < -180 || *req.Lng > 180 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "lat/lng out of range"})
		return
	}

	now := s.now()
	raw, _ := json.Marshal(map[string]interface{}{
		"assetId":   req.ID,
		"name":      req.Name,
		"latitude":  *req.Lat,
		"longitude": *req.Lng,
		"timestamp": now.UnixMilli(),
		"source":    "manual-add",
	})

	rep := domain.Report{
		AssetID: req.ID,
		Name:    req.Name,
		Position: domain.Position{
			Latitude:  *req.Lat,
			Longitude: *req.Lng,
			Timestamp: now.UnixMilli(),
		},
		ReceivedAt: now,
		RawPayload: raw,
	}

	if err := s.ingestor.Ingest(r.Context(), rep); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "store write failed"})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"status": "ok", "id": req.ID})
}

func (s *Server) handleListAssets(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.broadcaster.Summaries(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "state read failed"})
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

// assetDetail adds the derived status and the retained pre-shutdown
// snapshot to the stored view.
type assetDetail struct {
	domain.AssetState
	Snapshot *domain.Snapshot `json:"snapshot,omitempty"`
}

func (s *Server) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	assets, err := s.store.GetAll(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "state read failed"})
		return
	}
	asset, ok := assets[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown asset"})
		return
	}

	detail := assetDetail{
		AssetState: domain.AssetState{
			Asset:  asset,
			Status: s.classifier.Classify(asset.Current, asset.Path, s.now()),
		},
	}
	if snap, ok, err := s.store.GetSnapshot(r.Context(), id); err == nil && ok {
		detail.Snapshot = &snap
	}

	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
