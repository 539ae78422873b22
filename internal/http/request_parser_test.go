package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"several/internal/core"
)

func TestSanitizeInput(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  Groceries  ", "Groceries"},
		{"Rent\x00\x07 March", "Rent March"},
		{"line1\nline2\ttab", "line1\nline2\ttab"},
	}
	for _, tt := range tests {
		if got := sanitizeInput(tt.in); got != tt.want {
			t.Errorf("sanitizeInput(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in      string
		want    core.Strategy
		wantErr bool
	}{
		{"", "", false},
		{" best-fit ", core.StrategyBestFit, false},
		{"manual", core.StrategyManual, false},
		{"cheapest", "", true},
	}
	for _, tt := range tests {
		got, err := parseStrategy(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("parseStrategy(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestExpenseRequestDraft(t *testing.T) {
	req := expenseRequest{ReferenceNumber: " E-1\x01", Description: " Lunch ", BudgetID: " id-1 ", Strategy: "oldest"}
	d, strategy, err := req.draft()
	if err != nil {
		t.Fatalf("draft() error = %v", err)
	}
	if d.ReferenceNumber != "E-1" || d.Description != "Lunch" || d.BudgetID != "id-1" || strategy != core.StrategyOldest {
		t.Errorf("draft() = %+v, %q", d, strategy)
	}
}

func TestDecodeJSON_BodyLimit(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"order":["`+strings.Repeat("a", 64)+`"]}`))
	rr := httptest.NewRecorder()

	var dst orderRequest
	err := decodeJSON(rr, req, 16, &dst)
	status, _ := errorResponseFor(err)
	if status != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", status)
	}
}

func TestDecodeJSON_Empty(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("   "))
	var dst orderRequest
	if err := decodeJSON(httptest.NewRecorder(), req, 0, &dst); err == nil {
		t.Error("decodeJSON() accepted an empty body")
	}
}

func TestParseAmountParam(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/resolve?amount=12,345", nil)
	got, err := parseAmountParam(req, "amount")
	if err != nil || got.String() != "12.35" {
		t.Errorf("parseAmountParam() = %s, %v", got, err)
	}
}
