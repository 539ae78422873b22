package http

import (
	"net/http"
	"strings"

	"several/internal/core"
	"several/internal/ledger"
	"several/internal/log"
)

type stateResponse struct {
	Version     string                 `json:"version"`
	Budgets     []ledger.BudgetSummary `json:"budgets"`
	Archived    []ledger.ArchivedYear  `json:"archived"`
	Expenses    []ledger.ExpenseView   `json:"expenses"`
	ManualOrder []string               `json:"manualBudgetOrder"`
	Settings    core.Settings          `json:"settings"`
	CanUndo     bool                   `json:"canUndo"`
	LastDeleted *core.Expense          `json:"lastDeleted,omitempty"`
}

// handleState returns everything a client needs to render the app.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	st := s.svc.State()
	writeJSON(w, stateResponse{
		Version:     s.version,
		Budgets:     nonNil(ledger.ActiveBudgets(st)),
		Archived:    nonNil(ledger.ArchivedBudgets(st)),
		Expenses:    nonNil(ledger.History(st, "")),
		ManualOrder: nonNil(st.ManualOrder),
		Settings:    st.Settings,
		CanUndo:     st.CanUndo(),
		LastDeleted: st.LastDeleted,
	})
}

func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, nonNil(ledger.ActiveBudgets(s.svc.State())))
}

func (s *Server) handleArchivedBudgets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, nonNil(ledger.ArchivedBudgets(s.svc.State())))
}

func (s *Server) handleGetBudget(w http.ResponseWriter, r *http.Request) {
	st := s.svc.State()
	b, ok := st.Budget(pathID(r))
	if !ok {
		writeError(w, r, core.ErrBudgetNotFound)
		return
	}
	writeJSON(w, ledger.Summarize([]core.Budget{b}, st.Expenses)[0])
}

func (s *Server) handleCreateBudget(w http.ResponseWriter, r *http.Request) {
	var req budgetRequest
	if err := decodeJSON(w, r, defaultMaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}

	b, err := s.svc.CreateBudget(r.Context(), req.draft())
	if err != nil {
		writeError(w, r, err)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Budget created",
		log.FieldBudgetID, b.ID, log.FieldAmount, core.FormatAmount(b.CapitalTotal))
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/budgets/"+b.ID).
		Data(b).
		Write(w)
}

func (s *Server) handleUpdateBudget(w http.ResponseWriter, r *http.Request) {
	var req budgetRequest
	if err := decodeJSON(w, r, defaultMaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}

	b, err := s.svc.UpdateBudget(r.Context(), pathID(r), req.draft())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, b)
}

// handleDeleteBudget deletes a budget. Budgets with expenses need the
// reassignTo query parameter.
func (s *Server) handleDeleteBudget(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	reassignTo := strings.TrimSpace(r.URL.Query().Get("reassignTo"))

	if err := s.svc.DeleteBudget(r.Context(), id, reassignTo); err != nil {
		writeError(w, r, err)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Budget deleted",
		log.FieldBudgetID, id, "reassign_to", reassignTo)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReassignTargets(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	if _, ok := s.svc.State().Budget(id); !ok {
		writeError(w, r, core.ErrBudgetNotFound)
		return
	}
	writeJSON(w, nonNil(s.svc.ReassignTargets(id)))
}

type orderRequest struct {
	Order []string `json:"order"`
}

func (s *Server) handleSetOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := decodeJSON(w, r, defaultMaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.SetManualOrder(r.Context(), req.Order); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, orderRequest{Order: nonNil(s.svc.State().ManualOrder)})
}

// nonNil keeps empty collections encoded as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
