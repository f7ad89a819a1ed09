package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"mural_service/internal/core"
	"mural_service/internal/domain/model"
	"mural_service/internal/domain/repository"
	"net/http"
	"strconv"

	"go.uber.org/zap"
)

type Handler struct {
	service *core.EstimationService
	catalog *repository.Catalog
	logger  *zap.Logger
}

func NewHandler(service *core.EstimationService, catalog *repository.Catalog, logger *zap.Logger) *Handler {
	return &Handler{service: service, catalog: catalog, logger: logger}
}

// Register adds the API routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/catalog/vendors", h.Vendors)
	mux.HandleFunc("GET /api/catalog/colors", h.Colors)

	mux.HandleFunc("POST /api/sessions", h.CreateSession)
	mux.HandleFunc("GET /api/sessions/{id}", h.GetSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", h.DeleteSession)
	mux.HandleFunc("PUT /api/sessions/{id}/selection", h.SelectProduct)

	mux.HandleFunc("POST /api/sessions/{id}/surfaces", h.AddSurface)
	mux.HandleFunc("PATCH /api/sessions/{id}/surfaces/{surfaceID}", h.UpdateSurface)
	mux.HandleFunc("DELETE /api/sessions/{id}/surfaces/{surfaceID}", h.RemoveSurface)

	mux.HandleFunc("POST /api/sessions/{id}/aggregate", h.Aggregate)

	mux.HandleFunc("POST /api/sessions/{id}/results", h.AddManualColor)
	mux.HandleFunc("POST /api/sessions/{id}/results/{index}/adjust", h.AdjustQuantity)
	mux.HandleFunc("DELETE /api/sessions/{id}/results/{index}", h.RemoveItem)

	mux.HandleFunc("GET /api/sessions/{id}/export", h.Export)

	mux.HandleFunc("POST /api/sessions/{id}/snapshots", h.SaveSnapshot)
	mux.HandleFunc("GET /api/snapshots", h.ListSnapshots)
	mux.HandleFunc("POST /api/sessions/{id}/snapshots/{snapshotID}/load", h.LoadSnapshot)
}

type VendorInfo struct {
	Name         string   `json:"name"`
	ProductLines []string `json:"product_lines"`
}

type SelectionRequest struct {
	Vendor      string `json:"vendor"`
	ProductLine string `json:"product_line"`
}

type SessionResponse struct {
	ID         string                 `json:"id"`
	State      *model.EstimationState `json:"state"`
	TotalUnits int                    `json:"total_units"`
}

type SurfaceRequest struct {
	WidthMeters    *float64 `json:"width_meters"`
	HeightMeters   *float64 `json:"height_meters"`
	ImageReference *string  `json:"image_reference"`
	ClearImage     bool     `json:"clear_image"`
}

type AdjustRequest struct {
	Delta int `json:"delta"`
}

type ManualColorRequest struct {
	Code string `json:"code"`
}

type SnapshotRequest struct {
	Name string `json:"name"`
}

func (h *Handler) Vendors(w http.ResponseWriter, r *http.Request) {
	vendors := h.catalog.Vendors()
	resp := make([]VendorInfo, 0, len(vendors))
	for _, v := range vendors {
		resp = append(resp, VendorInfo{Name: v, ProductLines: h.catalog.ProductLines(v)})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Colors(w http.ResponseWriter, r *http.Request) {
	vendor := r.URL.Query().Get("vendor")
	productLine := r.URL.Query().Get("product_line")
	if vendor == "" || productLine == "" {
		http.Error(w, "vendor and product_line are required", http.StatusBadRequest)
		return
	}

	colors, err := h.catalog.Subset(vendor, productLine)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, colors)
}

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req SelectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Vendor == "" || req.ProductLine == "" {
		http.Error(w, "vendor and product_line are required", http.StatusBadRequest)
		return
	}

	id, state, err := h.service.CreateSession(req.Vendor, req.ProductLine)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, sessionResponse(id, state))
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	state, err := h.service.GetState(id)
	h.respondState(w, id, state, err)
}

func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteSession(r.PathValue("id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) SelectProduct(w http.ResponseWriter, r *http.Request) {
	var req SelectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	id := r.PathValue("id")
	state, err := h.service.SelectProduct(id, req.Vendor, req.ProductLine)
	h.respondState(w, id, state, err)
}

func (h *Handler) AddSurface(w http.ResponseWriter, r *http.Request) {
	var req SurfaceRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	id := r.PathValue("id")
	state, err := h.service.AddSurface(id, req.update())
	h.respondState(w, id, state, err)
}

func (h *Handler) UpdateSurface(w http.ResponseWriter, r *http.Request) {
	var req SurfaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	id := r.PathValue("id")
	state, err := h.service.UpdateSurface(id, r.PathValue("surfaceID"), req.update())
	h.respondState(w, id, state, err)
}

func (h *Handler) RemoveSurface(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	state, err := h.service.RemoveSurface(id, r.PathValue("surfaceID"))
	h.respondState(w, id, state, err)
}

func (h *Handler) Aggregate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	state, err := h.service.RunAggregation(r.Context(), id)
	h.respondState(w, id, state, err)
}

func (h *Handler) AddManualColor(w http.ResponseWriter, r *http.Request) {
	var req ManualColorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Code == "" {
		http.Error(w, "code is required", http.StatusBadRequest)
		return
	}

	id := r.PathValue("id")
	state, err := h.service.AddManualColor(id, req.Code)
	h.respondState(w, id, state, err)
}

func (h *Handler) AdjustQuantity(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		http.Error(w, "index must be an integer", http.StatusBadRequest)
		return
	}

	var req AdjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	id := r.PathValue("id")
	state, err := h.service.AdjustQuantity(id, index, req.Delta)
	h.respondState(w, id, state, err)
}

func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		http.Error(w, "index must be an integer", http.StatusBadRequest)
		return
	}

	id := r.PathValue("id")
	state, err := h.service.RemoveItem(id, index)
	h.respondState(w, id, state, err)
}

func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	text, err := h.service.Export(r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(text))
}

func (h *Handler) SaveSnapshot(w http.ResponseWriter, r *http.Request) {
	var req SnapshotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	snapshot, err := h.service.SaveSnapshot(r.Context(), r.PathValue("id"), req.Name)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, snapshot)
}

func (h *Handler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	snapshots, err := h.service.ListSnapshots(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	if snapshots == nil {
		snapshots = []model.Snapshot{}
	}
	h.writeJSON(w, http.StatusOK, snapshots)
}

func (h *Handler) LoadSnapshot(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	state, err := h.service.LoadSnapshot(r.Context(), id, r.PathValue("snapshotID"))
	h.respondState(w, id, state, err)
}

func (req SurfaceRequest) update() core.SurfaceUpdate {
	return core.SurfaceUpdate{
		WidthMeters:    req.WidthMeters,
		HeightMeters:   req.HeightMeters,
		ImageReference: req.ImageReference,
		ClearImage:     req.ClearImage,
	}
}

func sessionResponse(id string, state *model.EstimationState) SessionResponse {
	return SessionResponse{
		ID:         id,
		State:      state,
		TotalUnits: core.TotalUnits(state.Results),
	}
}

func (h *Handler) respondState(w http.ResponseWriter, id string, state *model.EstimationState, err error) {
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sessionResponse(id, state))
}

// writeError maps service errors to HTTP statuses. Classifier failures are
// reported generically; the details are logged.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrSessionNotFound),
		errors.Is(err, model.ErrSurfaceNotFound),
		errors.Is(err, model.ErrSnapshotNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, model.ErrInvalidInput),
		errors.Is(err, model.ErrInvalidSurface),
		errors.Is(err, model.ErrIndexOutOfRange),
		errors.Is(err, model.ErrLastSurface),
		errors.Is(err, model.ErrUnknownSelection),
		errors.Is(err, model.ErrColorNotInCatalog):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, model.ErrRunInProgress):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, model.ErrClassifierFailure):
		h.logger.Warn("Aggregation request failed", zap.Error(err))
		http.Error(w, model.ErrClassifierFailure.Error(), http.StatusBadGateway)
	default:
		h.logger.Error("Request failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// writeJSON encodes v in full before the status is written.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Warn("Failed to write response", zap.Error(err))
	}
}
