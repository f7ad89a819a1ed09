package visionclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mural_service/internal/domain/model"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// HTTPClient calls the visual-analysis service that reports the color
// composition of an image.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func NewHTTPClient(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

type AnalyzeRequest struct {
	Image    []byte `json:"image"`
	MimeType string `json:"mime_type"`
}

// AnalyzeResponse mirrors the service payload. Pointer fields let missing
// values be told apart from zero values.
type AnalyzeResponse struct {
	Colors *[]ColorPayload `json:"colors"`
}

type ColorPayload struct {
	Name       *string  `json:"name"`
	Hex        *string  `json:"hex"`
	Percentage *float64 `json:"percentage"`
}

// Classify sends one encoded image and returns the detected colors in the
// order the service reported them.
func (c *HTTPClient) Classify(ctx context.Context, image []byte) ([]model.RawDetection, error) {
	body, err := json.Marshal(AnalyzeRequest{
		Image:    image,
		MimeType: http.DetectContentType(image),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal analyze request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create analyze request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vision service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("Vision service returned an error",
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(snippet)))
		return nil, fmt.Errorf("vision service returned status: %d", resp.StatusCode)
	}

	var payload AnalyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode vision response: %w", err)
	}

	detections, err := payload.Detections()
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Image classified", zap.Int("colors", len(detections)))
	return detections, nil
}

// Detections validates the payload structure. Percentages are passed through
// unchanged even when they do not add up to 100.
func (r AnalyzeResponse) Detections() ([]model.RawDetection, error) {
	if r.Colors == nil {
		return nil, fmt.Errorf("invalid vision response: colors missing")
	}

	detections := make([]model.RawDetection, 0, len(*r.Colors))
	for i, color := range *r.Colors {
		switch {
		case color.Name == nil:
			return nil, fmt.Errorf("invalid vision response: color %d has no name", i)
		case color.Hex == nil || *color.Hex == "":
			return nil, fmt.Errorf("invalid vision response: color %d has no hex value", i)
		case color.Percentage == nil:
			return nil, fmt.Errorf("invalid vision response: color %d has no percentage", i)
		}
		detections = append(detections, model.RawDetection{
			ColorName:      *color.Name,
			HexColor:       *color.Hex,
			AreaPercentage: *color.Percentage,
		})
	}
	return detections, nil
}
