package ocr

import (
	"context"

	"github.com/example/id-verify/internal/capture"
)

// Token is one unit of machine-recognized text from a document image. The
// OCR service returns tokens with no guaranteed spatial ordering; layout
// metadata it sends alongside is ignored by classification.
type Token struct {
	Text string `json:"text"`
}

// Client exposes the text-extraction capability used by the verification
// pipeline.
type Client interface {
	ExtractText(ctx context.Context, image capture.Image) ([]Token, error)
}
