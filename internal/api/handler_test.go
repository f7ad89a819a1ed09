package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"mural_service/internal/core"
	"mural_service/internal/domain/model"
	"mural_service/internal/domain/repository"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type stubClassifier struct {
	detections map[string][]model.RawDetection
	err        error
}

func (c *stubClassifier) Classify(ctx context.Context, image []byte) ([]model.RawDetection, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.detections[string(image)], nil
}

type echoImages struct{}

func (echoImages) Load(ctx context.Context, ref string) ([]byte, error) {
	return []byte(ref), nil
}

type testServer struct {
	t          *testing.T
	mux        *http.ServeMux
	classifier *stubClassifier
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	catalog, err := repository.NewCatalog([]model.CatalogColor{
		{Vendor: "Acme", ProductLine: "Basic", DisplayName: "Red", Code: "C10", HexColor: "#FF0000"},
		{Vendor: "Acme", ProductLine: "Basic", DisplayName: "Green", Code: "C2", HexColor: "#00FF00"},
		{Vendor: "Acme", ProductLine: "Basic", DisplayName: "Blue", Code: "C3", HexColor: "#0000FF"},
		{Vendor: "Acme", ProductLine: "Pro", DisplayName: "White", Code: "P1", HexColor: "#FFFFFF"},
	})
	require.NoError(t, err)

	classifier := &stubClassifier{detections: map[string][]model.RawDetection{
		"wall.png": {{ColorName: "red", HexColor: "#F01010", AreaPercentage: 100}},
		"door.png": {{ColorName: "green", HexColor: "#10F010", AreaPercentage: 100}},
	}}
	logger := zap.NewNop()
	aggregator := core.NewAggregator(classifier, echoImages{}, core.DefaultCoveragePerUnit, nil, logger)
	service := core.NewEstimationService(catalog, aggregator, repository.NewMemorySnapshotRepository(), nil, logger)

	mux := http.NewServeMux()
	NewHandler(service, catalog, logger).Register(mux)
	return &testServer{t: t, mux: mux, classifier: classifier}
}

func (s *testServer) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func decodeSession(t *testing.T, rec *httptest.ResponseRecorder) SessionResponse {
	t.Helper()
	var resp SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

// newScenario creates a session with a 3x2 wall and a 1x2 door.
func (s *testServer) newScenario() SessionResponse {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/sessions", SelectionRequest{Vendor: "Acme", ProductLine: "Basic"})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeSession(s.t, rec)

	width, height := 3.0, 2.0
	wall := "wall.png"
	rec = s.do(http.MethodPatch, "/api/sessions/"+created.ID+"/surfaces/"+created.State.Surfaces[0].ID,
		SurfaceRequest{WidthMeters: &width, HeightMeters: &height, ImageReference: &wall})
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())

	doorWidth := 1.0
	door := "door.png"
	rec = s.do(http.MethodPost, "/api/sessions/"+created.ID+"/surfaces",
		SurfaceRequest{WidthMeters: &doorWidth, ImageReference: &door})
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeSession(s.t, rec)
}

func TestHandler_Catalog(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/catalog/vendors", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var vendors []VendorInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &vendors))
	assert.Equal(t, []VendorInfo{{Name: "Acme", ProductLines: []string{"Basic", "Pro"}}}, vendors)

	rec = s.do(http.MethodGet, "/api/catalog/colors?vendor=Acme&product_line=Pro", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var colors []model.CatalogColor
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &colors))
	require.Len(t, colors, 1)
	assert.Equal(t, "P1", colors[0].Code)

	rec = s.do(http.MethodGet, "/api/catalog/colors?vendor=Acme&product_line=Gold", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/api/catalog/colors", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_Sessions(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/sessions", SelectionRequest{Vendor: "Acme"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/api/sessions", SelectionRequest{Vendor: "Acme", ProductLine: "Gold"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	created := s.newScenario()
	assert.Len(t, created.State.Surfaces, 2)

	rec = s.do(http.MethodGet, "/api/sessions/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created.State, decodeSession(t, rec).State)

	rec = s.do(http.MethodDelete, "/api/sessions/"+created.ID+"/surfaces/"+created.State.Surfaces[0].ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	remaining := decodeSession(t, rec).State.Surfaces
	require.Len(t, remaining, 1)

	rec = s.do(http.MethodDelete, "/api/sessions/"+created.ID+"/surfaces/"+remaining[0].ID, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodDelete, "/api/sessions/"+created.ID+"/surfaces/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	negative := -1.0
	rec = s.do(http.MethodPatch, "/api/sessions/"+created.ID+"/surfaces/"+remaining[0].ID, SurfaceRequest{WidthMeters: &negative})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodDelete, "/api/sessions/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(http.MethodGet, "/api/sessions/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_AggregateAndEditList(t *testing.T) {
	s := newTestServer(t)
	created := s.newScenario()
	base := "/api/sessions/" + created.ID

	rec := s.do(http.MethodPost, base+"/aggregate", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeSession(t, rec)
	assert.Equal(t, 8.0, resp.State.TotalProjectArea)
	assert.Equal(t, 3, resp.TotalUnits)
	require.Len(t, resp.State.Results, 2)
	assert.Equal(t, "C2", resp.State.Results[0].MatchedColor.Code)
	assert.Equal(t, 25.0, resp.State.Results[0].PercentageOfProject)
	assert.Equal(t, "C10", resp.State.Results[1].MatchedColor.Code)
	assert.Equal(t, 2, resp.State.Results[1].UnitsRequired)

	rec = s.do(http.MethodPost, base+"/results/1/adjust", AdjustRequest{Delta: -5})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decodeSession(t, rec).State.Results[1].UnitsRequired)

	rec = s.do(http.MethodPost, base+"/results/9/adjust", AdjustRequest{Delta: 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, base+"/results/first/adjust", AdjustRequest{Delta: 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, base+"/results", ManualColorRequest{Code: "C3"})
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decodeSession(t, rec)
	require.Len(t, resp.State.Results, 3)
	assert.Equal(t, "C3", resp.State.Results[1].MatchedColor.Code)

	rec = s.do(http.MethodPost, base+"/results", ManualColorRequest{Code: "P1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodDelete, base+"/results/0", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeSession(t, rec).State.Results, 2)

	rec = s.do(http.MethodGet, base+"/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))
	assert.Equal(t, "Vendor: Acme\nProduct line: Basic\nTotal area: 8.00 m2\nTotal units: 1\n\nBlue (C3): 1\nRed (C10): 0\n", rec.Body.String())
}

func TestHandler_AggregateErrors(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/sessions", SelectionRequest{Vendor: "Acme", ProductLine: "Basic"})
	require.Equal(t, http.StatusCreated, rec.Code)
	bare := decodeSession(t, rec)

	rec = s.do(http.MethodPost, "/api/sessions/"+bare.ID+"/aggregate", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	created := s.newScenario()
	s.classifier.err = errors.New("connection refused to 10.0.0.7")

	rec = s.do(http.MethodPost, "/api/sessions/"+created.ID+"/aggregate", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.NotContains(t, rec.Body.String(), "10.0.0.7")

	rec = s.do(http.MethodGet, "/api/sessions/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	state := decodeSession(t, rec).State
	assert.Equal(t, model.ErrClassifierFailure.Error(), state.LastError)
	assert.False(t, state.InProgress)

	rec = s.do(http.MethodPost, "/api/sessions/missing/aggregate", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_SelectionAndSnapshots(t *testing.T) {
	s := newTestServer(t)
	created := s.newScenario()
	base := "/api/sessions/" + created.ID

	rec := s.do(http.MethodPost, base+"/aggregate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	aggregated := decodeSession(t, rec).State

	rec = s.do(http.MethodPost, base+"/snapshots", SnapshotRequest{Name: "front"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var snapshot model.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshot))
	assert.Equal(t, "front", snapshot.Name)

	rec = s.do(http.MethodPost, base+"/snapshots", SnapshotRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/api/snapshots", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []model.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, snapshot.ID, list[0].ID)

	rec = s.do(http.MethodPut, base+"/selection", SelectionRequest{Vendor: "Acme", ProductLine: "Pro"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decodeSession(t, rec).State.Results)

	rec = s.do(http.MethodPut, base+"/selection", SelectionRequest{Vendor: "Acme", ProductLine: "Gold"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, base+"/snapshots/"+snapshot.ID+"/load", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, aggregated, decodeSession(t, rec).State)

	rec = s.do(http.MethodPost, base+"/snapshots/nope/load", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_WriteJSONEncodingFailure(t *testing.T) {
	observed, logs := observer.New(zap.ErrorLevel)
	h := &Handler{logger: zap.New(observed)}

	rec := httptest.NewRecorder()
	h.writeJSON(rec, http.StatusOK, map[string]float64{"percentage": math.NaN()})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Header().Get("Content-Type"), "application/json")
	assert.Equal(t, 1, logs.FilterMessage("Failed to encode response").Len())
}

func TestHandler_OversizedSurfaceRejected(t *testing.T) {
	s := newTestServer(t)
	created := s.newScenario()

	huge := 1e200
	rec := s.do(http.MethodPatch, "/api/sessions/"+created.ID+"/surfaces/"+created.State.Surfaces[0].ID,
		SurfaceRequest{WidthMeters: &huge, HeightMeters: &huge})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/api/sessions/"+created.ID+"/aggregate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decodeSession(t, rec).State.Results)
}
