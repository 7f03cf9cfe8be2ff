package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/id-verify/internal/capture"
	"github.com/example/id-verify/internal/facematch"
)

// FaceMatchClient calls the face-comparison endpoint of the vision service.
type FaceMatchClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewFaceMatchClient builds a face-comparison gateway adapter for the given
// base URL.
func NewFaceMatchClient(baseURL string, logger *zap.Logger) *FaceMatchClient {
	return &FaceMatchClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger.Named("face_gateway"),
	}
}

// CompareFaces sends the reference card photo and the live capture. Only
// transport failures return an error; a response the service marked
// unsuccessful, like an honest non-match, yields Match == false so the gate
// treats both identically.
func (c *FaceMatchClient) CompareFaces(ctx context.Context, reference, live capture.Image) (*facematch.Result, error) {
	body, contentType, err := encodeImages(map[string]capture.Image{
		"image1": reference,
		"image2": live,
	})
	if err != nil {
		return nil, err
	}

	url := c.baseURL + "/api/compare-faces"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create compare-faces request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute compare-faces request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("compare-faces failed with status %d: %s", resp.StatusCode, string(raw))
	}

	var payload struct {
		Success bool `json:"success"`
		Match   bool `json:"match"`
	}
	if err := decodeJSON(resp.Body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode compare-faces response: %w", err)
	}

	matched := payload.Success && payload.Match
	c.logger.Info("face comparison completed", zap.Bool("matched", matched))
	return &facematch.Result{Match: matched}, nil
}

func decodeJSON(r io.Reader, v interface{}) error {
	return json.NewDecoder(r).Decode(v)
}
