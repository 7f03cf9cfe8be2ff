package facematch

import (
	"context"

	"github.com/example/id-verify/internal/capture"
)

// Result is the gateway's comparison decision. A response the service
// itself marked unsuccessful counts as a non-match; only transport-level
// failures surface as errors.
type Result struct {
	Match bool
}

// Client exposes the face-comparison capability used by the verification
// pipeline.
type Client interface {
	CompareFaces(ctx context.Context, reference, live capture.Image) (*Result, error)
}
