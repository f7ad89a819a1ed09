package core

import (
	"context"
	"fmt"
	"math"
	"mural_service/internal/domain/model"
	"time"

	"go.uber.org/zap"
)

// DefaultCoveragePerUnit is the area in square meters one packaged unit covers.
const DefaultCoveragePerUnit = 5.0

// AggregatedEntry is the covered area merged for one catalog color.
type AggregatedEntry struct {
	MatchedColor     model.CatalogColor
	TotalAreaCovered float64
}

// Merger accumulates detections from several surfaces into per-color totals.
// It is not safe for concurrent use.
type Merger struct {
	candidates []model.CatalogColor
	entries    map[model.ColorKey]*AggregatedEntry
	order      []model.ColorKey
	totalArea  float64
}

func NewMerger(candidates []model.CatalogColor) *Merger {
	return &Merger{
		candidates: candidates,
		entries:    make(map[model.ColorKey]*AggregatedEntry),
	}
}

// AddSurface adds the surface area to the project total and merges its detections.
// Nothing is merged when a detection is malformed or a total would stop being finite.
func (m *Merger) AddSurface(surface model.Surface, detections []model.RawDetection) error {
	surfaceArea := surface.Area()
	if !finite(surfaceArea) {
		return fmt.Errorf("surface %s: area is not finite", surface.ID)
	}
	totalArea := m.totalArea + surfaceArea
	if !finite(totalArea) {
		return fmt.Errorf("surface %s: project area is not finite", surface.ID)
	}

	resolved := make([]model.CatalogColor, len(detections))
	added := make(map[model.ColorKey]float64, len(detections))
	for i, d := range detections {
		if !finite(d.AreaPercentage) {
			return fmt.Errorf("detection %d: percentage is not a number", i)
		}
		rgb, err := ParseHex(d.HexColor)
		if err != nil {
			return fmt.Errorf("detection %d: %w", i, err)
		}
		resolved[i] = NearestMatch(rgb, m.candidates)

		key := resolved[i].Key()
		added[key] += (d.AreaPercentage / 100) * surfaceArea
		covered := added[key]
		if entry, ok := m.entries[key]; ok {
			covered += entry.TotalAreaCovered
		}
		if !finite(covered) {
			return fmt.Errorf("detection %d: covered area is not finite", i)
		}
	}

	m.totalArea = totalArea
	for i, d := range detections {
		contribution := (d.AreaPercentage / 100) * surfaceArea
		key := resolved[i].Key()
		if entry, ok := m.entries[key]; ok {
			entry.TotalAreaCovered += contribution
			continue
		}
		m.entries[key] = &AggregatedEntry{MatchedColor: resolved[i], TotalAreaCovered: contribution}
		m.order = append(m.order, key)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// TotalArea returns the summed area of every surface added so far.
func (m *Merger) TotalArea() float64 {
	return m.totalArea
}

// Entries returns the merged totals in first-seen order.
func (m *Merger) Entries() []AggregatedEntry {
	out := make([]AggregatedEntry, 0, len(m.order))
	for _, key := range m.order {
		out = append(out, *m.entries[key])
	}
	return out
}

// UnitsFor converts a covered area into whole purchasable units. Any color that
// appears at all needs at least one unit. The count saturates at math.MaxInt.
func UnitsFor(area, coveragePerUnit float64) int {
	units := math.Ceil(area / coveragePerUnit)
	switch {
	case math.IsNaN(units) || units < 1:
		return 1
	case units >= math.MaxInt:
		return math.MaxInt
	}
	return int(units)
}

func round2(v float64) float64 {
	scaled := v * 100
	if math.IsInf(scaled, 0) {
		return v
	}
	return math.Round(scaled) / 100
}

// BuildResults turns merged entries into the canonical, code-sorted result list.
func BuildResults(entries []AggregatedEntry, totalArea, coveragePerUnit float64) []model.ResultItem {
	results := make([]model.ResultItem, 0, len(entries))
	for _, entry := range entries {
		var percentage float64
		if totalArea > 0 {
			percentage = round2(100 * (entry.TotalAreaCovered / totalArea))
			if math.IsInf(percentage, 0) {
				percentage = math.MaxFloat64
			}
		}
		results = append(results, model.ResultItem{
			ColorName:           entry.MatchedColor.DisplayName,
			HexColor:            entry.MatchedColor.HexColor,
			PercentageOfProject: percentage,
			MatchedColor:        entry.MatchedColor,
			UnitsRequired:       UnitsFor(entry.TotalAreaCovered, coveragePerUnit),
		})
	}
	SortResults(results)
	return results
}

// Aggregation is the outcome of one successful run.
type Aggregation struct {
	Results          []model.ResultItem
	TotalProjectArea float64
}

// Aggregator runs the classifier over every ready surface and merges the output.
type Aggregator struct {
	classifier      model.Classifier
	images          model.ImageStore
	coveragePerUnit float64
	metrics         *Metrics
	logger          *zap.Logger
}

func NewAggregator(
	classifier model.Classifier,
	images model.ImageStore,
	coveragePerUnit float64,
	metrics *Metrics,
	logger *zap.Logger,
) *Aggregator {
	if coveragePerUnit <= 0 {
		coveragePerUnit = DefaultCoveragePerUnit
	}
	return &Aggregator{
		classifier:      classifier,
		images:          images,
		coveragePerUnit: coveragePerUnit,
		metrics:         metrics,
		logger:          logger,
	}
}

// CoveragePerUnit returns the area one unit covers.
func (a *Aggregator) CoveragePerUnit() float64 {
	return a.coveragePerUnit
}

// Aggregate classifies the ready surfaces one after another and merges the
// detections against candidates. Any classification failure aborts the whole run.
func (a *Aggregator) Aggregate(ctx context.Context, surfaces []model.Surface, candidates []model.CatalogColor) (*Aggregation, error) {
	var ready []model.Surface
	for _, s := range surfaces {
		if s.Ready() {
			ready = append(ready, s)
		}
	}
	if len(ready) == 0 {
		return nil, model.ErrInvalidInput
	}
	if len(candidates) == 0 {
		return nil, model.ErrUnknownSelection
	}

	start := time.Now()
	a.logger.Info("Starting aggregation",
		zap.Int("surfaces", len(ready)),
		zap.Int("candidates", len(candidates)))

	merger := NewMerger(candidates)
	for _, surface := range ready {
		detections, err := a.classify(ctx, surface)
		if err != nil {
			a.metrics.RecordRun("failed", time.Since(start), 0)
			return nil, fmt.Errorf("%w: surface %s: %w", model.ErrClassifierFailure, surface.ID, err)
		}
		if err := merger.AddSurface(surface, detections); err != nil {
			a.metrics.RecordRun("failed", time.Since(start), 0)
			return nil, fmt.Errorf("%w: surface %s: %w", model.ErrClassifierFailure, surface.ID, err)
		}
		a.logger.Debug("Surface classified",
			zap.String("surface_id", surface.ID),
			zap.Float64("area", surface.Area()),
			zap.Int("detections", len(detections)))
	}

	results := BuildResults(merger.Entries(), merger.TotalArea(), a.coveragePerUnit)
	duration := time.Since(start)
	a.metrics.RecordRun("success", duration, len(results))

	a.logger.Info("Aggregation completed",
		zap.Int("results", len(results)),
		zap.Float64("total_area", merger.TotalArea()),
		zap.Duration("duration", duration))

	return &Aggregation{
		Results:          results,
		TotalProjectArea: merger.TotalArea(),
	}, nil
}

func (a *Aggregator) classify(ctx context.Context, surface model.Surface) ([]model.RawDetection, error) {
	image, err := a.images.Load(ctx, *surface.ImageReference)
	if err != nil {
		return nil, fmt.Errorf("failed to load image: %w", err)
	}

	start := time.Now()
	detections, err := a.classifier.Classify(ctx, image)
	if err != nil {
		a.metrics.RecordClassifierCall("error", time.Since(start))
		a.logger.Warn("Classifier call failed",
			zap.String("surface_id", surface.ID),
			zap.Error(err))
		return nil, err
	}
	a.metrics.RecordClassifierCall("success", time.Since(start))
	return detections, nil
}
