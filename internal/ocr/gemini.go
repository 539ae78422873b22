package ocr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"several/internal/log"
)

const prompt = `From the provided image of a receipt, extract the reference number ` +
	`(labels such as "ALBARAN", "Nº", "Ref", "Invoice") and the final total amount (labels such as "TOTAL"). ` +
	`Return a JSON object with "referenceNumber" (string) and "amount" (number). ` +
	`Use a period for decimals. If a value is not found, use an empty string or 0.
Example: {"referenceNumber": "ALBV24-026039", "amount": 33.53}`

// GeminiExtractor asks a Gemini model for the receipt fields.
type GeminiExtractor struct {
	client  *genai.Client
	model   *genai.GenerativeModel
	timeout time.Duration
	logger  *log.Logger
}

// NewGeminiExtractor creates a client authenticated with apiKey.
func NewGeminiExtractor(ctx context.Context, apiKey, model string, timeout time.Duration, logger *log.Logger) (*GeminiExtractor, error) {
	if apiKey == "" {
		return nil, ErrDisabled
	}
	if logger == nil {
		logger = log.Nop()
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	m := client.GenerativeModel(model)
	m.SetTemperature(0)
	m.ResponseMIMEType = "application/json"
	m.ResponseSchema = &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"referenceNumber": {
				Type:        genai.TypeString,
				Description: "Reference number of the invoice or receipt.",
			},
			"amount": {
				Type:        genai.TypeNumber,
				Description: "Final total amount of the invoice or receipt.",
			},
		},
		Required: []string{"referenceNumber", "amount"},
	}

	return &GeminiExtractor{
		client:  client,
		model:   m,
		timeout: timeout,
		logger:  logger.WithComponent(log.ComponentOCR),
	}, nil
}

func (g *GeminiExtractor) ExtractExpenseData(ctx context.Context, image []byte) (Result, error) {
	format, err := ImageFormat(image)
	if err != nil {
		return Result{}, err
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := g.model.GenerateContent(ctx, genai.ImageData(format, image), genai.Text(prompt))
	if err != nil {
		errType := log.ErrorTypeNetwork
		if errors.Is(err, context.DeadlineExceeded) {
			errType = log.ErrorTypeTimeout
		}
		g.logger.ErrorContext(ctx, "Gemini request failed", log.NewFields().
			WithOperation(log.OpExtract).
			WithError(err, errType).ToSlice()...)
		return Result{}, fmt.Errorf("%w: generate content: %v", ErrExtraction, err)
	}

	res, err := parseResult(responseText(resp))
	if err != nil {
		return Result{}, err
	}

	g.logger.DebugContext(ctx, "Receipt extracted",
		log.FieldOperation, log.OpExtract,
		log.FieldAmount, res.Amount.String(),
		log.FieldDuration, time.Since(start).Milliseconds())
	return res, nil
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String()
}

func (g *GeminiExtractor) Close() error {
	return g.client.Close()
}
