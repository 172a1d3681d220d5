// Package ocr provides local text recognition for sign-in sheet photos
// using Tesseract.
package ocr

import (
	"context"
	"fmt"
	"image"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/classlens-inc/classlens-engine/pkg/apperrors"
	"github.com/classlens-inc/classlens-engine/pkg/models"
)

// Engine wraps a Tesseract client. The client holds native state and is
// not safe for concurrent use, so calls are serialized with a mutex.
type Engine struct {
	mu     sync.Mutex
	client *gosseract.Client
	logger *zap.Logger
}

// NewEngine creates a new OCR engine for the given Tesseract language.
func NewEngine(language string, logger *zap.Logger) (*Engine, error) {
	if language == "" {
		language = "eng"
	}

	client := gosseract.NewClient()
	if err := client.SetLanguage(language); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set OCR language: %w", err)
	}

	// Handwritten names are proper nouns; keep dictionary correction
	// from "fixing" them into common words.
	_ = client.SetVariable("load_system_dawg", "false")
	_ = client.SetVariable("load_freq_dawg", "false")

	return &Engine{
		client: client,
		logger: logger.Named("ocr"),
	}, nil
}

// Close releases OCR resources.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

// RecognizeLines performs OCR on an encoded image (JPEG or PNG) and
// returns one DetectedLine per non-empty text line.
func (e *Engine) RecognizeLines(ctx context.Context, imageBytes []byte) ([]models.DetectedLine, error) {
	if len(imageBytes) == 0 {
		return nil, apperrors.ErrImageUnavailable
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrRequestFailed, err)
	}

	mat, err := gocv.IMDecode(imageBytes, gocv.IMReadColor)
	if err != nil {
		return nil, apperrors.ErrImageEncodingFailed
	}
	defer mat.Close()
	if mat.Empty() {
		return nil, apperrors.ErrImageEncodingFailed
	}

	processed := preprocess(mat)
	defer processed.Close()

	buf, err := gocv.IMEncode(gocv.PNGFileExt, processed)
	if err != nil {
		return nil, fmt.Errorf("%w: encode preprocessed image: %v", apperrors.ErrImageEncodingFailed, err)
	}
	defer buf.Close()

	e.mu.Lock()
	defer e.mu.Unlock()

	// PSM 6 = a single uniform block of text, which is what a sheet of
	// name lines looks like.
	if err := e.client.SetPageSegMode(gosseract.PSM_SINGLE_BLOCK); err != nil {
		return nil, fmt.Errorf("%w: set page seg mode: %v", apperrors.ErrRequestFailed, err)
	}

	if err := e.client.SetImageFromBytes(buf.GetBytes()); err != nil {
		return nil, fmt.Errorf("%w: set image: %v", apperrors.ErrRequestFailed, err)
	}

	text, err := e.client.Text()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrRequestFailed, err)
	}

	lines := SplitLines(text)
	if len(lines) == 0 {
		return nil, apperrors.ErrNoTextFound
	}

	e.logger.Debug("local OCR produced lines", zap.Int("count", len(lines)))
	return lines, nil
}

// SplitLines converts raw recognizer output into detected lines,
// dropping empty and whitespace-only lines.
func SplitLines(text string) []models.DetectedLine {
	var lines []models.DetectedLine
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		lines = append(lines, models.DetectedLine{Text: trimmed})
	}
	return lines
}

// preprocess prepares a sheet photo for OCR: upscale small images,
// convert to grayscale, binarize with Otsu's threshold.
func preprocess(src gocv.Mat) gocv.Mat {
	h, w := src.Rows(), src.Cols()

	var scaled gocv.Mat
	minDim := h
	if w < minDim {
		minDim = w
	}
	if minDim > 0 && minDim < 600 {
		scale := 600.0 / float64(minDim)
		scaled = gocv.NewMat()
		gocv.Resize(src, &scaled, image.Point{}, scale, scale, gocv.InterpolationCubic)
	} else {
		scaled = src.Clone()
	}

	gray := gocv.NewMat()
	gocv.CvtColor(scaled, &gray, gocv.ColorBGRToGray)
	scaled.Close()

	binary := gocv.NewMat()
	gocv.Threshold(gray, &binary, 0, 255, gocv.ThresholdBinary|gocv.ThresholdOtsu)
	gray.Close()

	// Tesseract expects dark text on a light background; invert photos
	// where the foreground dominates.
	whiteCount := gocv.CountNonZero(binary)
	totalPixels := binary.Rows() * binary.Cols()
	if totalPixels > 0 && float64(whiteCount)/float64(totalPixels) < 0.5 {
		gocv.BitwiseNot(binary, &binary)
	}

	result := gocv.NewMat()
	gocv.CvtColor(binary, &result, gocv.ColorGrayToBGR)
	binary.Close()

	return result
}
