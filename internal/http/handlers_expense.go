package http

import (
	"net/http"

	"github.com/shopspring/decimal"

	"several/internal/core"
	"several/internal/ledger"
	"several/internal/log"
	"several/internal/services"
)

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	q := sanitizeInput(r.URL.Query().Get("q"))
	writeJSON(w, nonNil(ledger.History(s.svc.State(), q)))
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if err := decodeJSON(w, r, defaultMaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	draft, strategy, err := req.draft()
	if err != nil {
		writeError(w, r, err)
		return
	}

	e, err := s.svc.AddExpense(r.Context(), services.ExpenseRequest{Draft: draft, Strategy: strategy})
	if err != nil {
		writeError(w, r, err)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Expense created",
		log.FieldExpenseID, e.ID,
		log.FieldBudgetID, e.BudgetID,
		log.FieldAmount, core.FormatAmount(e.Amount))
	NewJSONResponse().Status(http.StatusCreated).Data(e).Write(w)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if err := decodeJSON(w, r, defaultMaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	draft, strategy, err := req.draft()
	if err != nil {
		writeError(w, r, err)
		return
	}

	e, err := s.svc.UpdateExpense(r.Context(), pathID(r), services.ExpenseRequest{Draft: draft, Strategy: strategy})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, e)
}

// handleDeleteExpense returns the removed expense, which stays available
// to POST /api/expenses/undo until the next delete.
func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	e, err := s.svc.DeleteExpense(r.Context(), pathID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, e)
}

func (s *Server) handleUndoDelete(w http.ResponseWriter, r *http.Request) {
	e, err := s.svc.UndoDelete(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, e)
}

type moveRequest struct {
	BudgetID string `json:"budgetId"`
}

func (s *Server) handleMoveExpense(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := decodeJSON(w, r, defaultMaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}

	e, err := s.svc.MoveExpense(r.Context(), pathID(r), sanitizeInput(req.BudgetID))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, e)
}

type candidateResponse struct {
	Budget    core.Budget     `json:"budget"`
	Remaining decimal.Decimal `json:"remaining"`
}

func (s *Server) handleMoveTargets(w http.ResponseWriter, r *http.Request) {
	candidates, err := s.svc.MoveTargets(pathID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]candidateResponse, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, candidateResponse{Budget: c.Budget, Remaining: c.Remaining})
	}
	writeJSON(w, out)
}

// handleResolve previews the budget a strategy would pick without
// recording anything: GET /api/resolve?amount=12.50&strategy=best-fit.
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	amount, err := parseAmountParam(r, "amount")
	if err != nil {
		writeError(w, r, err)
		return
	}
	strategy, err := parseStrategy(r.URL.Query().Get("strategy"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	b, err := s.svc.Resolve(r.Context(), amount, strategy, sanitizeInput(r.URL.Query().Get("exclude")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, b)
}
