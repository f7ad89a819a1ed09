package core

import (
	"context"
	"errors"
	"fmt"
	"mural_service/internal/domain/model"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Dimensions of a newly added surface, in meters.
const (
	DefaultSurfaceWidth  = 2.0
	DefaultSurfaceHeight = 2.0
)

// CatalogSource answers catalog queries for one vendor product line.
type CatalogSource interface {
	Subset(vendor, productLine string) ([]model.CatalogColor, error)
	Find(vendor, productLine, code string) (model.CatalogColor, error)
}

// SurfaceUpdate carries the surface fields to change. Nil fields are left alone.
type SurfaceUpdate struct {
	WidthMeters    *float64
	HeightMeters   *float64
	ImageReference *string
	ClearImage     bool
}

type session struct {
	mu    sync.Mutex
	state *model.EstimationState
}

// EstimationService owns the estimation sessions. Every method returns a copy of
// the session state, never the live one.
type EstimationService struct {
	catalog    CatalogSource
	aggregator *Aggregator
	snapshots  model.SnapshotStore
	metrics    *Metrics
	logger     *zap.Logger
	now        func() time.Time

	mu       sync.RWMutex
	sessions map[string]*session
}

func NewEstimationService(
	catalog CatalogSource,
	aggregator *Aggregator,
	snapshots model.SnapshotStore,
	metrics *Metrics,
	logger *zap.Logger,
) *EstimationService {
	return &EstimationService{
		catalog:    catalog,
		aggregator: aggregator,
		snapshots:  snapshots,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
		sessions:   make(map[string]*session),
	}
}

func newSurface() model.Surface {
	return model.Surface{
		ID:           uuid.New().String(),
		WidthMeters:  DefaultSurfaceWidth,
		HeightMeters: DefaultSurfaceHeight,
	}
}

// CreateSession starts a session for a vendor product line with one default surface.
func (s *EstimationService) CreateSession(vendor, productLine string) (string, *model.EstimationState, error) {
	if _, err := s.catalog.Subset(vendor, productLine); err != nil {
		return "", nil, err
	}

	id := uuid.New().String()
	state := &model.EstimationState{
		Surfaces:            []model.Surface{newSurface()},
		SelectedVendor:      vendor,
		SelectedProductLine: productLine,
	}

	s.mu.Lock()
	s.sessions[id] = &session{state: state}
	s.mu.Unlock()

	s.logger.Info("Session created",
		zap.String("session_id", id),
		zap.String("vendor", vendor),
		zap.String("product_line", productLine))

	return id, state.Clone(), nil
}

func (s *EstimationService) session(id string) (*session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrSessionNotFound, id)
	}
	return sess, nil
}

// update applies fn to the live state of a session under its lock.
func (s *EstimationService) update(id string, fn func(state *model.EstimationState) error) (*model.EstimationState, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := fn(sess.state); err != nil {
		return nil, err
	}
	return sess.state.Clone(), nil
}

func (s *EstimationService) GetState(id string) (*model.EstimationState, error) {
	return s.update(id, func(*model.EstimationState) error { return nil })
}

func (s *EstimationService) DeleteSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", model.ErrSessionNotFound, id)
	}
	delete(s.sessions, id)
	s.logger.Info("Session deleted", zap.String("session_id", id))
	return nil
}

func validDimension(v float64) bool {
	return finite(v) && v >= 0
}

func applySurfaceUpdate(surface *model.Surface, update SurfaceUpdate) error {
	if update.WidthMeters != nil {
		if !validDimension(*update.WidthMeters) {
			return fmt.Errorf("%w: width %v", model.ErrInvalidSurface, *update.WidthMeters)
		}
		surface.WidthMeters = *update.WidthMeters
	}
	if update.HeightMeters != nil {
		if !validDimension(*update.HeightMeters) {
			return fmt.Errorf("%w: height %v", model.ErrInvalidSurface, *update.HeightMeters)
		}
		surface.HeightMeters = *update.HeightMeters
	}
	if !finite(surface.Area()) {
		return fmt.Errorf("%w: area of %v x %v is too large", model.ErrInvalidSurface, surface.WidthMeters, surface.HeightMeters)
	}
	switch {
	case update.ClearImage:
		surface.ImageReference = nil
	case update.ImageReference != nil:
		ref := *update.ImageReference
		surface.ImageReference = &ref
	}
	return nil
}

// AddSurface appends a surface with default dimensions, then applies update to it.
func (s *EstimationService) AddSurface(id string, update SurfaceUpdate) (*model.EstimationState, error) {
	return s.update(id, func(state *model.EstimationState) error {
		surface := newSurface()
		if err := applySurfaceUpdate(&surface, update); err != nil {
			return err
		}
		state.Surfaces = append(state.Surfaces, surface)
		return nil
	})
}

func (s *EstimationService) UpdateSurface(id, surfaceID string, update SurfaceUpdate) (*model.EstimationState, error) {
	return s.update(id, func(state *model.EstimationState) error {
		for i := range state.Surfaces {
			if state.Surfaces[i].ID != surfaceID {
				continue
			}
			updated := state.Surfaces[i]
			if err := applySurfaceUpdate(&updated, update); err != nil {
				return err
			}
			state.Surfaces[i] = updated
			return nil
		}
		return fmt.Errorf("%w: %s", model.ErrSurfaceNotFound, surfaceID)
	})
}

// RemoveSurface deletes a surface. The last remaining surface cannot be removed.
func (s *EstimationService) RemoveSurface(id, surfaceID string) (*model.EstimationState, error) {
	return s.update(id, func(state *model.EstimationState) error {
		for i := range state.Surfaces {
			if state.Surfaces[i].ID != surfaceID {
				continue
			}
			if len(state.Surfaces) <= 1 {
				return model.ErrLastSurface
			}
			state.Surfaces = append(state.Surfaces[:i], state.Surfaces[i+1:]...)
			return nil
		}
		return fmt.Errorf("%w: %s", model.ErrSurfaceNotFound, surfaceID)
	})
}

// SelectProduct switches the vendor product line. Existing results belong to the
// previous catalog subset and are cleared rather than re-matched.
func (s *EstimationService) SelectProduct(id, vendor, productLine string) (*model.EstimationState, error) {
	if _, err := s.catalog.Subset(vendor, productLine); err != nil {
		return nil, err
	}
	return s.update(id, func(state *model.EstimationState) error {
		if state.SelectedVendor == vendor && state.SelectedProductLine == productLine {
			return nil
		}
		if state.InProgress {
			return model.ErrRunInProgress
		}
		state.SelectedVendor = vendor
		state.SelectedProductLine = productLine
		state.Results = nil
		state.TotalProjectArea = 0
		state.LastError = ""
		return nil
	})
}

// RunAggregation classifies every ready surface and replaces the results. On
// failure the previous results stay untouched and LastError is set.
func (s *EstimationService) RunAggregation(ctx context.Context, id string) (*model.EstimationState, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	if sess.state.InProgress {
		sess.mu.Unlock()
		return nil, model.ErrRunInProgress
	}
	ready := false
	for _, surface := range sess.state.Surfaces {
		if surface.Ready() {
			ready = true
			break
		}
	}
	if !ready {
		sess.mu.Unlock()
		return nil, model.ErrInvalidInput
	}
	candidates, err := s.catalog.Subset(sess.state.SelectedVendor, sess.state.SelectedProductLine)
	if err != nil {
		sess.mu.Unlock()
		return nil, err
	}
	surfaces := sess.state.Clone().Surfaces
	sess.state.InProgress = true
	sess.mu.Unlock()

	aggregation, runErr := s.aggregator.Aggregate(ctx, surfaces, candidates)

	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.state.InProgress = false
	if runErr != nil {
		s.logger.Warn("Aggregation failed",
			zap.String("session_id", id),
			zap.Error(runErr))
		if errors.Is(runErr, model.ErrClassifierFailure) {
			sess.state.LastError = model.ErrClassifierFailure.Error()
		} else {
			sess.state.LastError = runErr.Error()
		}
		return nil, runErr
	}

	sess.state.Results = aggregation.Results
	sess.state.TotalProjectArea = aggregation.TotalProjectArea
	sess.state.LastError = ""
	return sess.state.Clone(), nil
}

func (s *EstimationService) AdjustQuantity(id string, index, delta int) (*model.EstimationState, error) {
	return s.update(id, func(state *model.EstimationState) error {
		return AdjustQuantity(state, index, delta)
	})
}

func (s *EstimationService) RemoveItem(id string, index int) (*model.EstimationState, error) {
	return s.update(id, func(state *model.EstimationState) error {
		return RemoveItem(state, index)
	})
}

// AddManualColor adds a color of the selected product line by its code.
func (s *EstimationService) AddManualColor(id, code string) (*model.EstimationState, error) {
	return s.update(id, func(state *model.EstimationState) error {
		color, err := s.catalog.Find(state.SelectedVendor, state.SelectedProductLine, code)
		if err != nil {
			return err
		}
		AddManualColor(state, color)
		return nil
	})
}

func (s *EstimationService) TotalUnits(id string) (int, error) {
	state, err := s.GetState(id)
	if err != nil {
		return 0, err
	}
	return TotalUnits(state.Results), nil
}

func (s *EstimationService) Export(id string) (string, error) {
	state, err := s.GetState(id)
	if err != nil {
		return "", err
	}
	return ExportPurchaseOrder(state), nil
}

// SaveSnapshot stores the current session state under name.
func (s *EstimationService) SaveSnapshot(ctx context.Context, id, name string) (model.Snapshot, error) {
	state, err := s.GetState(id)
	if err != nil {
		return model.Snapshot{}, err
	}

	snapshot := model.Snapshot{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: s.now().UTC(),
		State:     state,
	}
	if err := s.snapshots.Save(ctx, snapshot); err != nil {
		return model.Snapshot{}, fmt.Errorf("failed to save snapshot: %w", err)
	}
	s.metrics.RecordSnapshotSaved()

	s.logger.Info("Snapshot saved",
		zap.String("session_id", id),
		zap.String("snapshot_id", snapshot.ID),
		zap.String("name", name))
	return snapshot, nil
}

func (s *EstimationService) ListSnapshots(ctx context.Context) ([]model.Snapshot, error) {
	snapshots, err := s.snapshots.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	return snapshots, nil
}

// LoadSnapshot replaces the session state with a stored snapshot.
func (s *EstimationService) LoadSnapshot(ctx context.Context, id, snapshotID string) (*model.EstimationState, error) {
	if _, err := uuid.Parse(snapshotID); err != nil {
		return nil, fmt.Errorf("%w: %s", model.ErrSnapshotNotFound, snapshotID)
	}
	if _, err := s.session(id); err != nil {
		return nil, err
	}

	snapshot, err := s.snapshots.Get(ctx, snapshotID)
	if err != nil {
		return nil, err
	}
	if snapshot.State == nil {
		return nil, fmt.Errorf("%w: %s has no state", model.ErrSnapshotNotFound, snapshotID)
	}
	if _, err := s.catalog.Subset(snapshot.State.SelectedVendor, snapshot.State.SelectedProductLine); err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", snapshotID, err)
	}

	return s.update(id, func(state *model.EstimationState) error {
		if state.InProgress {
			return model.ErrRunInProgress
		}
		loaded := snapshot.State.Clone()
		loaded.InProgress = false
		if len(loaded.Surfaces) == 0 {
			loaded.Surfaces = []model.Surface{newSurface()}
		}
		*state = *loaded

		s.logger.Info("Snapshot loaded",
			zap.String("session_id", id),
			zap.String("snapshot_id", snapshotID))
		return nil
	})
}
