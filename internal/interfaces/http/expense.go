package http

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"splitpay/internal/domain/expense"
	"splitpay/internal/domain/profile"
	"splitpay/internal/infrastructure/storage"
	"splitpay/internal/shared/auth"
)

// Expenses is the part of expense.Service the expense endpoints use.
type Expenses interface {
	Create(ctx context.Context, session auth.Session, in expense.NewExpense, receipt *storage.Upload) (*expense.Expense, error)
	List(ctx context.Context, session auth.Session) (*expense.Ledger, error)
	Summary(ctx context.Context, session auth.Session) ([]*expense.Balance, error)
	Act(ctx context.Context, session auth.Session, id, action string) (*expense.View, error)
	Delete(ctx context.Context, session auth.Session, id string) error
	OpenReceipt(ctx context.Context, session auth.Session, id string) (*storage.Object, error)
}

type ExpenseHandler struct {
	expenses Expenses
}

func NewExpenseHandler(expenses Expenses) *ExpenseHandler {
	return &ExpenseHandler{expenses: expenses}
}

type CreateExpenseRequest struct {
	Description   string          `json:"description"`
	Total         decimal.Decimal `json:"total"`
	DebtorEmail   string          `json:"debtor_email"`
	SplitEvenly   bool            `json:"split_evenly"`
	Method        string          `json:"method"`
	MethodDetails string          `json:"method_details"`
}

// HandleExpenses routes GET and POST /api/expenses
func (h *ExpenseHandler) HandleExpenses(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleList(w, r)
	case http.MethodPost:
		h.handleCreate(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *ExpenseHandler) handleList(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}

	ledger, err := h.expenses.List(r.Context(), session)
	if err != nil {
		serverError(w, r, "Failed to list expenses", err)
		return
	}
	writeJSON(w, http.StatusOK, ledger)
}

func (h *ExpenseHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}

	var (
		req     CreateExpenseRequest
		receipt *storage.Upload
	)
	if isMultipart(r) {
		upload, cleanup, ok := readUpload(w, r, "receipt", false)
		if !ok {
			return
		}
		defer cleanup()
		receipt = upload

		total, err := decimal.NewFromString(strings.TrimSpace(r.FormValue("total")))
		if err != nil {
			writeError(w, http.StatusBadRequest, expense.ErrInvalidAmount.Error())
			return
		}
		req = CreateExpenseRequest{
			Description:   r.FormValue("description"),
			Total:         total,
			DebtorEmail:   r.FormValue("debtor_email"),
			SplitEvenly:   formBool(r.FormValue("split_evenly")),
			Method:        r.FormValue("method"),
			MethodDetails: r.FormValue("method_details"),
		}
	} else if !decodeJSON(w, r, &req) {
		return
	}

	e, err := h.expenses.Create(r.Context(), session, expense.NewExpense{
		Description:   req.Description,
		Total:         req.Total,
		DebtorEmail:   req.DebtorEmail,
		SplitEvenly:   req.SplitEvenly,
		Method:        req.Method,
		MethodDetails: req.MethodDetails,
	}, receipt)
	if err != nil {
		writeExpenseError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, expense.NewView(e, session))
}

// HandleSummary handles GET /api/expenses/summary
func (h *ExpenseHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	session, ok := requireSession(w, r)
	if !ok {
		return
	}

	balances, err := h.expenses.Summary(r.Context(), session)
	if err != nil {
		serverError(w, r, "Failed to summarize expenses", err)
		return
	}
	writeJSON(w, http.StatusOK, balances)
}

// HandleAction handles POST /api/expenses/{id}/{action}
func (h *ExpenseHandler) HandleAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	session, ok := requireSession(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", "Expense not found")
	if !ok {
		return
	}

	view, err := h.expenses.Act(r.Context(), session, id, r.PathValue("action"))
	if err != nil {
		writeExpenseError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleExpenseByID handles DELETE /api/expenses/{id}
func (h *ExpenseHandler) HandleExpenseByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	session, ok := requireSession(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", "Expense not found")
	if !ok {
		return
	}

	if err := h.expenses.Delete(r.Context(), session, id); err != nil {
		writeExpenseError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleReceipt handles GET /api/expenses/{id}/receipt
func (h *ExpenseHandler) HandleReceipt(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	session, ok := requireSession(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", "Expense not found")
	if !ok {
		return
	}

	obj, err := h.expenses.OpenReceipt(r.Context(), session, id)
	if errors.Is(err, storage.ErrObjectNotFound) {
		writeError(w, http.StatusNotFound, "Receipt not found")
		return
	}
	if err != nil {
		writeExpenseError(w, r, err)
		return
	}
	streamObject(w, r, obj)
}

// writeExpenseError maps expense and group domain errors to responses.
func writeExpenseError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, expense.ErrInvalidAmount),
		errors.Is(err, expense.ErrInvalidMethod),
		errors.Is(err, expense.ErrMissingMethodDetails),
		errors.Is(err, expense.ErrInvalidDescription),
		errors.Is(err, expense.ErrSelfDebt),
		errors.Is(err, expense.ErrNoParticipants),
		errors.Is(err, expense.ErrNotGroupMember),
		errors.Is(err, expense.ErrUnknownAction),
		errors.Is(err, profile.ErrInvalidEmail),
		errors.Is(err, storage.ErrUnsupportedType):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, expense.ErrExpenseNotFound):
		writeError(w, http.StatusNotFound, "Expense not found")
	case errors.Is(err, expense.ErrForbidden):
		writeError(w, http.StatusForbidden, "Forbidden")
	case errors.Is(err, expense.ErrInvalidTransition), errors.Is(err, expense.ErrProcessorNotConnected):
		writeError(w, http.StatusConflict, err.Error())
	default:
		serverError(w, r, "Failed to process expense", err)
	}
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

func formBool(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}
