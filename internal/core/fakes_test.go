package core

import (
	"context"
	"fmt"
	"mural_service/internal/domain/model"
	"mural_service/internal/domain/repository"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	red   = model.CatalogColor{Vendor: "Acme", ProductLine: "Basic", DisplayName: "Red", Code: "C10", HexColor: "#FF0000"}
	green = model.CatalogColor{Vendor: "Acme", ProductLine: "Basic", DisplayName: "Green", Code: "C2", HexColor: "#00FF00"}
	blue  = model.CatalogColor{Vendor: "Acme", ProductLine: "Basic", DisplayName: "Blue", Code: "C3", HexColor: "#0000FF"}

	proWhite = model.CatalogColor{Vendor: "Acme", ProductLine: "Pro", DisplayName: "White", Code: "P1", HexColor: "#FFFFFF"}
	proBlack = model.CatalogColor{Vendor: "Acme", ProductLine: "Pro", DisplayName: "Black", Code: "P2", HexColor: "#000000"}
)

func basicCandidates() []model.CatalogColor {
	return []model.CatalogColor{red, green, blue}
}

func testCatalog(t *testing.T) *repository.Catalog {
	t.Helper()
	catalog, err := repository.NewCatalog([]model.CatalogColor{red, green, blue, proWhite, proBlack})
	require.NoError(t, err)
	return catalog
}

// fakeClassifier answers by image content. Images are the raw reference bytes
// produced by refImages.
type fakeClassifier struct {
	detections map[string][]model.RawDetection
	errs       map[string]error

	// When set, every call signals started and then waits for release.
	started chan struct{}
	release chan struct{}

	mu    sync.Mutex
	calls int
}

func (f *fakeClassifier) Classify(ctx context.Context, image []byte) ([]model.RawDetection, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.started != nil {
		f.started <- struct{}{}
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	key := string(image)
	if err, ok := f.errs[key]; ok {
		return nil, err
	}
	return f.detections[key], nil
}

func (f *fakeClassifier) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// refImages returns the reference itself as the image bytes.
type refImages struct {
	missing map[string]bool
}

func (s refImages) Load(ctx context.Context, ref string) ([]byte, error) {
	if s.missing[ref] {
		return nil, fmt.Errorf("image %q not found", ref)
	}
	return []byte(ref), nil
}

func ref(s string) *string {
	return &s
}

func float(v float64) *float64 {
	return &v
}

func newTestAggregator(classifier model.Classifier, images model.ImageStore) *Aggregator {
	return NewAggregator(classifier, images, DefaultCoveragePerUnit, nil, zap.NewNop())
}
