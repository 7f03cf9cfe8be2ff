// Package gateway implements HTTP adapters for the two external vision
// collaborators: the OCR text-extraction service and the face-comparison
// service. Both speak multipart uploads and JSON responses.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/id-verify/internal/capture"
	"github.com/example/id-verify/internal/ocr"
)

// OCRClient calls the text-extraction endpoint of the vision service.
type OCRClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewOCRClient builds an OCR gateway adapter for the given base URL.
func NewOCRClient(baseURL string, logger *zap.Logger) *OCRClient {
	return &OCRClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger.Named("ocr_gateway"),
	}
}

// ExtractText sends one document image and returns the recognized tokens.
// A response the service marked unsuccessful is an error: the pipeline
// treats it as a hard failure of the extraction attempt.
func (c *OCRClient) ExtractText(ctx context.Context, image capture.Image) ([]ocr.Token, error) {
	body, contentType, err := encodeImages(map[string]capture.Image{"image": image})
	if err != nil {
		return nil, err
	}

	url := c.baseURL + "/api/extract-text"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create extract-text request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute extract-text request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("extract-text failed with status %d: %s", resp.StatusCode, string(raw))
	}

	var payload struct {
		Success       bool        `json:"success"`
		ExtractedText []ocr.Token `json:"extracted_text"`
	}
	if err := decodeJSON(resp.Body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode extract-text response: %w", err)
	}
	if !payload.Success {
		return nil, errors.New("text extraction rejected by OCR service")
	}

	c.logger.Debug("text extracted", zap.Int("tokens", len(payload.ExtractedText)))
	return payload.ExtractedText, nil
}
