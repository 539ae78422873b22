package http

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"several/internal/core"
	"several/internal/ledger"
)

func createBudget(t *testing.T, srv *Server, ref, capital, color string) core.Budget {
	t.Helper()
	body := `{"referenceNumber":"` + ref + `","description":"Budget ` + ref + `","capitalTotal":"` + capital + `","usablePercentage":100,"color":"` + color + `"}`
	rr := do(t, srv, http.MethodPost, "/api/budgets", body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create budget %s: status = %d: %s", ref, rr.Code, rr.Body.String())
	}
	return decodeBody[core.Budget](t, rr)
}

func createExpense(t *testing.T, srv *Server, ref, amount, budgetID string) core.Expense {
	t.Helper()
	body := `{"referenceNumber":"` + ref + `","description":"Expense ` + ref + `","amount":"` + amount + `","budgetId":"` + budgetID + `"}`
	rr := do(t, srv, http.MethodPost, "/api/expenses", body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create expense %s: status = %d: %s", ref, rr.Code, rr.Body.String())
	}
	return decodeBody[core.Expense](t, rr)
}

func TestBudgetLifecycle(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	b := createBudget(t, srv, "B-1", "500", "")
	if b.Color == "" || b.ID != "id-1" {
		t.Fatalf("created budget = %+v", b)
	}

	rr := do(t, srv, http.MethodGet, "/api/budgets/"+b.ID, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get status = %d", rr.Code)
	}
	if got := decodeBody[ledger.BudgetSummary](t, rr); !got.Remaining.Equal(b.CapitalTotal) {
		t.Errorf("remaining = %s, want %s", got.Remaining, b.CapitalTotal)
	}

	rr = do(t, srv, http.MethodPut, "/api/budgets/"+b.ID,
		`{"referenceNumber":"B-1","description":"Groceries","capitalTotal":600,"usablePercentage":50,"color":"#112233"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("update status = %d: %s", rr.Code, rr.Body.String())
	}
	if got := decodeBody[core.Budget](t, rr); got.Description != "Groceries" || got.UsablePercentage != 50 {
		t.Errorf("updated budget = %+v", got)
	}

	if rr := do(t, srv, http.MethodDelete, "/api/budgets/"+b.ID, ""); rr.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rr.Code)
	}
	if rr := do(t, srv, http.MethodGet, "/api/budgets/"+b.ID, ""); rr.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d", rr.Code)
	}
}

func TestCreateBudget_Errors(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	createBudget(t, srv, "B-1", "100", "#FF0000")

	tests := []struct {
		name   string
		body   string
		status int
		field  string
	}{
		{"missing reference", `{"description":"x","capitalTotal":10,"usablePercentage":100}`, http.StatusUnprocessableEntity, "referenceNumber"},
		{"duplicate reference", `{"referenceNumber":"b-1","description":"x","capitalTotal":10,"usablePercentage":100}`, http.StatusUnprocessableEntity, "referenceNumber"},
		{"duplicate color", `{"referenceNumber":"B-2","description":"x","capitalTotal":10,"usablePercentage":100,"color":"#ff0000"}`, http.StatusUnprocessableEntity, "color"},
		{"bad percentage", `{"referenceNumber":"B-2","description":"x","capitalTotal":10,"usablePercentage":0}`, http.StatusUnprocessableEntity, "usablePercentage"},
		{"zero capital", `{"referenceNumber":"B-2","description":"x","capitalTotal":0,"usablePercentage":100}`, http.StatusUnprocessableEntity, "capitalTotal"},
		{"wrong type", `{"referenceNumber":"B-2","usablePercentage":"all"}`, http.StatusBadRequest, "usablePercentage"},
		{"malformed", `{"referenceNumber":`, http.StatusBadRequest, ""},
		{"trailing data", `{} {}`, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, http.MethodPost, "/api/budgets", tt.body)
			if rr.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rr.Code, tt.status, rr.Body.String())
			}
			if got := errorOf(t, rr).Field; got != tt.field {
				t.Errorf("field = %q, want %q", got, tt.field)
			}
		})
	}
}

func TestCreateBudget_WrongContentType(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	req := httptest.NewRequest(http.MethodPost, "/api/budgets", strings.NewReader("referenceNumber=B-1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnsupportedMediaType {
		t.Errorf("status = %d, want 415", rr.Code)
	}
}

func TestExpenseFlow(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	b := createBudget(t, srv, "B-1", "100", "#FF0000")

	e := createExpense(t, srv, "E-1", "40", b.ID)

	rr := do(t, srv, http.MethodPost, "/api/expenses",
		`{"referenceNumber":"E-2","description":"too much","amount":"70.50","budgetId":"`+b.ID+`"}`)
	if rr.Code != http.StatusUnprocessableEntity || errorOf(t, rr).Field != "amount" {
		t.Fatalf("overspend status = %d: %s", rr.Code, rr.Body.String())
	}

	rr = do(t, srv, http.MethodPut, "/api/expenses/"+e.ID,
		`{"referenceNumber":"E-1","description":"edited","amount":"100","budgetId":"`+b.ID+`"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("update status = %d: %s", rr.Code, rr.Body.String())
	}

	st := decodeBody[stateResponse](t, do(t, srv, http.MethodGet, "/api/state", ""))
	if len(st.Budgets) != 0 || len(st.Archived) != 1 {
		t.Fatalf("fully spent budget not archived: active=%d archived=%d", len(st.Budgets), len(st.Archived))
	}

	rr = do(t, srv, http.MethodDelete, "/api/expenses/"+e.ID, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rr.Code)
	}
	st = decodeBody[stateResponse](t, do(t, srv, http.MethodGet, "/api/state", ""))
	if !st.CanUndo || len(st.Expenses) != 0 || len(st.Budgets) != 1 {
		t.Fatalf("state after delete = %+v", st)
	}

	rr = do(t, srv, http.MethodPost, "/api/expenses/undo", "")
	if rr.Code != http.StatusOK || decodeBody[core.Expense](t, rr).ID != e.ID {
		t.Fatalf("undo status = %d: %s", rr.Code, rr.Body.String())
	}
	rr = do(t, srv, http.MethodPost, "/api/expenses/undo", "")
	if rr.Code != http.StatusConflict || errorOf(t, rr).Code != "nothing_to_undo" {
		t.Errorf("second undo status = %d: %s", rr.Code, rr.Body.String())
	}
}

func TestCreateExpense_AutoDistribution(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	rr := do(t, srv, http.MethodPost, "/api/expenses",
		`{"referenceNumber":"E-1","description":"x","amount":"10","strategy":"best-fit"}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409: %s", rr.Code, rr.Body.String())
	}
	if body := errorOf(t, rr); body.FallbackStrategy != core.StrategyManual || body.Code != "no_eligible_budget" {
		t.Errorf("error = %+v", body)
	}

	rr = do(t, srv, http.MethodPost, "/api/expenses",
		`{"referenceNumber":"E-1","description":"x","amount":"10"}`)
	if rr.Code != http.StatusUnprocessableEntity || errorOf(t, rr).Field != "budgetId" {
		t.Errorf("manual without budget status = %d: %s", rr.Code, rr.Body.String())
	}

	rr = do(t, srv, http.MethodPost, "/api/expenses",
		`{"referenceNumber":"E-1","description":"x","amount":"10","strategy":"cheapest"}`)
	if rr.Code != http.StatusBadRequest || errorOf(t, rr).Field != "strategy" {
		t.Errorf("unknown strategy status = %d: %s", rr.Code, rr.Body.String())
	}

	small := createBudget(t, srv, "S", "20", "#111111")
	createBudget(t, srv, "L", "200", "#222222")
	rr = do(t, srv, http.MethodPost, "/api/expenses",
		`{"referenceNumber":"E-1","description":"x","amount":"15","strategy":"best-fit"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("best-fit status = %d: %s", rr.Code, rr.Body.String())
	}
	if got := decodeBody[core.Expense](t, rr).BudgetID; got != small.ID {
		t.Errorf("best-fit picked %s, want %s", got, small.ID)
	}
}

func TestResolvePreview(t *testing.T) {
	srv, svc := newTestServer(t, Options{})
	createBudget(t, srv, "S", "20", "#111111")
	large := createBudget(t, srv, "L", "200", "#222222")

	rr := do(t, srv, http.MethodGet, "/api/resolve?amount=15&strategy=largest-available", "")
	if rr.Code != http.StatusOK || decodeBody[core.Budget](t, rr).ID != large.ID {
		t.Fatalf("resolve status = %d: %s", rr.Code, rr.Body.String())
	}
	if n := len(svc.State().Expenses); n != 0 {
		t.Errorf("preview recorded %d expenses", n)
	}

	for _, target := range []string{"/api/resolve", "/api/resolve?amount=-3", "/api/resolve?amount=abc"} {
		if rr := do(t, srv, http.MethodGet, target, ""); rr.Code != http.StatusBadRequest {
			t.Errorf("%s status = %d, want 400", target, rr.Code)
		}
	}
}

func TestDeleteBudget_Reassign(t *testing.T) {
	srv, svc := newTestServer(t, Options{})
	a := createBudget(t, srv, "A", "100", "#111111")
	b := createBudget(t, srv, "B", "100", "#222222")
	e := createExpense(t, srv, "E-1", "10", a.ID)

	rr := do(t, srv, http.MethodDelete, "/api/budgets/"+a.ID, "")
	if rr.Code != http.StatusUnprocessableEntity || errorOf(t, rr).Field != "reassignTo" {
		t.Fatalf("delete without target status = %d: %s", rr.Code, rr.Body.String())
	}

	targets := decodeBody[[]core.Budget](t, do(t, srv, http.MethodGet, "/api/budgets/"+a.ID+"/reassign-targets", ""))
	if len(targets) != 1 || targets[0].ID != b.ID {
		t.Fatalf("reassign targets = %+v", targets)
	}

	if rr := do(t, srv, http.MethodDelete, "/api/budgets/"+a.ID+"?reassignTo="+b.ID, ""); rr.Code != http.StatusNoContent {
		t.Fatalf("reassign delete status = %d: %s", rr.Code, rr.Body.String())
	}
	moved, _ := svc.State().Expense(e.ID)
	if moved.BudgetID != b.ID {
		t.Errorf("expense budget = %s, want %s", moved.BudgetID, b.ID)
	}
}

func TestMoveExpense(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	a := createBudget(t, srv, "A", "100", "#111111")
	b := createBudget(t, srv, "B", "100", "#222222")
	createBudget(t, srv, "C", "5", "#333333")
	e := createExpense(t, srv, "E-1", "10", a.ID)

	rr := do(t, srv, http.MethodGet, "/api/expenses/"+e.ID+"/move-targets", "")
	targets := decodeBody[[]candidateResponse](t, rr)
	if len(targets) != 1 || targets[0].Budget.ID != b.ID {
		t.Fatalf("move targets = %+v", targets)
	}

	rr = do(t, srv, http.MethodPost, "/api/expenses/"+e.ID+"/move", `{"budgetId":"`+a.ID+`"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("move to same budget status = %d", rr.Code)
	}
	rr = do(t, srv, http.MethodPost, "/api/expenses/"+e.ID+"/move", `{"budgetId":"`+b.ID+`"}`)
	if rr.Code != http.StatusOK || decodeBody[core.Expense](t, rr).BudgetID != b.ID {
		t.Fatalf("move status = %d: %s", rr.Code, rr.Body.String())
	}
	if rr := do(t, srv, http.MethodPost, "/api/expenses/missing/move", `{"budgetId":"`+b.ID+`"}`); rr.Code != http.StatusNotFound {
		t.Errorf("move missing status = %d", rr.Code)
	}
}

func TestListExpenses_Search(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	b := createBudget(t, srv, "A", "100", "#111111")
	createExpense(t, srv, "INV-7", "10", b.ID)
	createExpense(t, srv, "TKT-1", "10", b.ID)

	got := decodeBody[[]ledger.ExpenseView](t, do(t, srv, http.MethodGet, "/api/expenses?q=inv", ""))
	if len(got) != 1 || got[0].ReferenceNumber != "INV-7" {
		t.Errorf("search = %+v", got)
	}
}

func TestSettingsAndOrder(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	a := createBudget(t, srv, "A", "100", "#111111")
	b := createBudget(t, srv, "B", "100", "#222222")

	rr := do(t, srv, http.MethodPatch, "/api/settings", `{"theme":"dark","budgetSortOrder":"manual"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("patch status = %d: %s", rr.Code, rr.Body.String())
	}
	if got := decodeBody[core.Settings](t, rr); got.Theme != core.ThemeDark || got.BudgetSortOrder != core.BudgetManual {
		t.Errorf("settings = %+v", got)
	}

	rr = do(t, srv, http.MethodPatch, "/api/settings", `{"theme":"neon"}`)
	if rr.Code != http.StatusUnprocessableEntity || errorOf(t, rr).Field != "settings" {
		t.Errorf("invalid theme status = %d: %s", rr.Code, rr.Body.String())
	}

	rr = do(t, srv, http.MethodPut, "/api/budgets/order", `{"order":["`+b.ID+`","`+a.ID+`"]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("order status = %d: %s", rr.Code, rr.Body.String())
	}
	list := decodeBody[[]ledger.BudgetSummary](t, do(t, srv, http.MethodGet, "/api/budgets", ""))
	if len(list) != 2 || list[0].ID != b.ID {
		t.Errorf("manual order not applied: %+v", list)
	}

	rr = do(t, srv, http.MethodPut, "/api/budgets/order", `{"order":["ghost"]}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("unknown id order status = %d", rr.Code)
	}
}

func TestBackupRoundTrip(t *testing.T) {
	srv, svc := newTestServer(t, Options{})
	b := createBudget(t, srv, "A", "100", "#111111")
	createExpense(t, srv, "E-1", "10", b.ID)

	rr := do(t, srv, http.MethodGet, "/api/backup", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("export status = %d", rr.Code)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "several_backup_2024-03-15.json") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	exported := rr.Body.String()

	if rr := do(t, srv, http.MethodDelete, "/api/data", ""); rr.Code != http.StatusNoContent {
		t.Fatalf("clear status = %d", rr.Code)
	}
	if n := len(svc.State().Budgets); n != 0 {
		t.Fatalf("budgets after clear = %d", n)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "backup.json")
	_, _ = fw.Write([]byte(exported))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/backup", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("import status = %d: %s", rr.Code, rr.Body.String())
	}
	got := decodeBody[importResponse](t, rr)
	if got.Budgets != 1 || got.Expenses != 1 || got.Version != "1.4.0" || len(got.Warnings) != 0 {
		t.Errorf("import response = %+v", got)
	}
}

func TestImport_Rejected(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	for _, body := range []string{`{"hello":"world"}`, `not json`} {
		req := httptest.NewRequest(http.MethodPost, "/api/backup", strings.NewReader(body))
		rr := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusBadRequest || errorOf(t, rr).Code != "invalid_backup" {
			t.Errorf("import %q status = %d: %s", body, rr.Code, rr.Body.String())
		}
	}
}

func TestNotices(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	b := createBudget(t, srv, "A", "10", "#111111")
	createExpense(t, srv, "E-1", "10", b.ID)

	got := decodeBody[[]map[string]any](t, do(t, srv, http.MethodGet, "/api/notices", ""))
	if len(got) != 1 || got[0]["kind"] != "budget_archived" {
		t.Errorf("notices = %+v", got)
	}
}
