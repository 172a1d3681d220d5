package ocr

import (
	"context"

	"github.com/classlens-inc/classlens-engine/pkg/models"
)

// LineRecognizer extracts raw text lines from a sign-in sheet photo.
// Implementations return zero or more lines with no structure
// guarantees. Use this interface for dependency injection to enable
// mocking in tests.
type LineRecognizer interface {
	RecognizeLines(ctx context.Context, image []byte) ([]models.DetectedLine, error)
}

// Ensure Engine implements LineRecognizer at compile time.
var _ LineRecognizer = (*Engine)(nil)
