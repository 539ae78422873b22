// Package ocr extracts a reference number and a total from receipt images.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrExtraction wraps every failure of the extraction backend.
	ErrExtraction       = errors.New("receipt extraction failed")
	ErrEmptyImage       = errors.New("empty image")
	ErrUnsupportedImage = errors.New("unsupported image format")
	ErrDisabled         = errors.New("receipt extraction is not configured")
)

// Result is what a receipt yields. Missing values are left empty or zero.
type Result struct {
	ReferenceNumber string          `json:"referenceNumber"`
	Amount          decimal.Decimal `json:"amount"`
}

// Extractor reads expense data from an image.
type Extractor interface {
	ExtractExpenseData(ctx context.Context, image []byte) (Result, error)
}

// ImageFormat returns the image subtype of data ("jpeg", "png", "webp"
// or "heic"), as expected by genai.ImageData.
func ImageFormat(data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyImage
	}
	if len(data) >= 12 && bytes.Equal(data[4:8], []byte("ftyp")) {
		switch string(data[8:12]) {
		case "heic", "heix", "mif1", "msf1":
			return "heic", nil
		}
	}
	switch ct := http.DetectContentType(data); ct {
	case "image/jpeg", "image/png", "image/webp":
		return strings.TrimPrefix(ct, "image/"), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedImage, ct)
	}
}

type rawResult struct {
	ReferenceNumber string      `json:"referenceNumber"`
	Amount          json.Number `json:"amount"`
}

// parseResult decodes the model's JSON answer. Markdown code fences
// around the payload are tolerated.
func parseResult(text string) (Result, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, fmt.Errorf("%w: empty answer", ErrExtraction)
	}

	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var raw rawResult
	if err := dec.Decode(&raw); err != nil {
		return Result{}, fmt.Errorf("%w: decode answer: %v", ErrExtraction, err)
	}

	res := Result{ReferenceNumber: strings.TrimSpace(raw.ReferenceNumber)}
	if raw.Amount != "" {
		amount, err := decimal.NewFromString(raw.Amount.String())
		if err != nil {
			return Result{}, fmt.Errorf("%w: amount %q: %v", ErrExtraction, raw.Amount, err)
		}
		if amount.IsNegative() {
			return Result{}, fmt.Errorf("%w: negative amount %s", ErrExtraction, amount)
		}
		res.Amount = amount.Round(2)
	}
	return res, nil
}

// Disabled is used when no API key is configured.
type Disabled struct{}

func (Disabled) ExtractExpenseData(context.Context, []byte) (Result, error) {
	return Result{}, ErrDisabled
}
