// This file implements the request decoding helpers shared by handlers:
// size-limited JSON bodies, input sanitization and query parameters.

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"several/internal/core"
)

const defaultMaxBodyBytes = 1 << 20

// requestError is a malformed request, reported as a 4xx before any
// service call.
type requestError struct {
	status int
	field  string
	msg    string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(field, format string, args ...any) error {
	return &requestError{status: http.StatusBadRequest, field: field, msg: fmt.Sprintf(format, args...)}
}

// decodeJSON reads at most maxBytes of r's body into dst. The body must
// hold exactly one JSON value.
func decodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil || mediaType != "application/json" {
			return &requestError{status: http.StatusUnsupportedMediaType, msg: "content type must be application/json"}
		}
	}

	body, err := readBody(w, r, maxBytes)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return badRequest("", "empty request body")
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return badRequest(typeErr.Field, "invalid value for %s", typeErr.Field)
		}
		return badRequest("", "malformed JSON: %v", err)
	}
	if dec.More() {
		return badRequest("", "request body must contain a single JSON value")
	}
	return nil
}

// readBody reads the whole body, rejecting payloads over maxBytes with 413.
func readBody(w http.ResponseWriter, r *http.Request, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		maxBytes = defaultMaxBodyBytes
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &requestError{
				status: http.StatusRequestEntityTooLarge,
				msg:    fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit),
			}
		}
		return nil, badRequest("", "failed to read request body")
	}
	return body, nil
}

// readUpload returns the file sent as multipart field name, or the raw
// body for any other content type.
func readUpload(w http.ResponseWriter, r *http.Request, maxBytes int64, name string) ([]byte, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return readBody(w, r, maxBytes)
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &requestError{status: http.StatusRequestEntityTooLarge, field: name, msg: "upload too large"}
		}
		return nil, badRequest(name, "invalid multipart form")
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	f, _, err := r.FormFile(name)
	if err != nil {
		return nil, badRequest(name, "missing %s file", name)
	}
	defer func() { _ = f.Close() }()
	return io.ReadAll(f)
}

// budgetRequest is the body of budget create and update calls.
type budgetRequest struct {
	ReferenceNumber  string          `json:"referenceNumber"`
	Description      string          `json:"description"`
	CapitalTotal     decimal.Decimal `json:"capitalTotal"`
	UsablePercentage int             `json:"usablePercentage"`
	Color            string          `json:"color"`
}

func (b budgetRequest) draft() core.BudgetDraft {
	return core.BudgetDraft{
		ReferenceNumber:  sanitizeInput(b.ReferenceNumber),
		Description:      sanitizeInput(b.Description),
		CapitalTotal:     b.CapitalTotal,
		UsablePercentage: b.UsablePercentage,
		Color:            sanitizeInput(b.Color),
	}
}

// expenseRequest is the body of expense create and update calls. An empty
// budgetId asks the server to pick one with strategy.
type expenseRequest struct {
	ReferenceNumber string          `json:"referenceNumber"`
	Description     string          `json:"description"`
	Amount          decimal.Decimal `json:"amount"`
	BudgetID        string          `json:"budgetId"`
	Strategy        string          `json:"strategy"`
}

func (e expenseRequest) draft() (core.ExpenseDraft, core.Strategy, error) {
	strategy, err := parseStrategy(e.Strategy)
	if err != nil {
		return core.ExpenseDraft{}, "", err
	}
	return core.ExpenseDraft{
		ReferenceNumber: sanitizeInput(e.ReferenceNumber),
		Description:     sanitizeInput(e.Description),
		Amount:          e.Amount,
		BudgetID:        strings.TrimSpace(e.BudgetID),
	}, strategy, nil
}

// settingsRequest carries a partial settings update.
type settingsRequest struct {
	Theme                    *core.Theme            `json:"theme"`
	BudgetSortOrder          *core.BudgetSortOrder  `json:"budgetSortOrder"`
	ExpenseSortOrder         *core.ExpenseSortOrder `json:"expenseSortOrder"`
	ArchivedBudgetColor      *string                `json:"archivedBudgetColor"`
	AutoDistributionStrategy *core.Strategy         `json:"autoDistributionStrategy"`
}

func (s settingsRequest) patch() core.SettingsPatch {
	return core.SettingsPatch{
		Theme:                    s.Theme,
		BudgetSortOrder:          s.BudgetSortOrder,
		ExpenseSortOrder:         s.ExpenseSortOrder,
		ArchivedBudgetColor:      s.ArchivedBudgetColor,
		AutoDistributionStrategy: s.AutoDistributionStrategy,
	}
}

// parseStrategy accepts an empty value, meaning the configured strategy.
func parseStrategy(v string) (core.Strategy, error) {
	s := core.Strategy(strings.TrimSpace(v))
	if s != "" && !s.IsValid() {
		return "", badRequest("strategy", "unknown strategy %q", v)
	}
	return s, nil
}

// parseAmountParam reads a required positive amount from the query.
func parseAmountParam(r *http.Request, key string) (decimal.Decimal, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return decimal.Decimal{}, badRequest(key, "missing %s", key)
	}
	d, err := core.ParseAmount(v)
	if err != nil {
		return decimal.Decimal{}, badRequest(key, "invalid %s %q", key, v)
	}
	return d, nil
}
