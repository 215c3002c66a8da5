package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"splitpay/internal/domain/expense"
	"splitpay/internal/domain/payment"
	"splitpay/internal/shared/auth"
)

const mpStateCookie = "mp_state"

// Payments is the part of payment.Service the processor endpoints use.
type Payments interface {
	AuthURL(state string) string
	Connect(ctx context.Context, session auth.Session, code string) error
	Disconnect(ctx context.Context, session auth.Session) error
	CreateCheckout(ctx context.Context, session auth.Session, expenseID string) (string, error)
	HandleReturn(ctx context.Context, params payment.ReturnParams) error
}

type MercadoPagoHandler struct {
	payments Payments
}

func NewMercadoPagoHandler(payments Payments) *MercadoPagoHandler {
	return &MercadoPagoHandler{payments: payments}
}

type CheckoutRequest struct {
	ExpenseID string `json:"expense_id"`
}

type CheckoutResponse struct {
	URL string `json:"url"`
}

// HandleConnect redirects the caller to the processor's authorization page.
func (h *MercadoPagoHandler) HandleConnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	session, ok := requireSession(w, r)
	if !ok {
		return
	}

	state, err := generateState()
	if err != nil {
		serverError(w, r, "Failed to generate state", err)
		return
	}

	setStateCookie(w, r, mpStateCookie, "/api/mp", state, session.UserID)
	http.Redirect(w, r, h.payments.AuthURL(state), http.StatusFound)
}

// HandleCallback stores the processor credentials for the caller. The
// state must have been issued to the same user.
func (h *MercadoPagoHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	session, ok := requireSession(w, r)
	if !ok {
		return
	}

	userID, ok := checkState(w, r, mpStateCookie, "/api/mp")
	if !ok || userID != session.UserID {
		writeError(w, http.StatusBadRequest, "Invalid OAuth state")
		return
	}

	if oauthError := r.URL.Query().Get("error"); oauthError != "" {
		http.Redirect(w, r, "/dashboard?mp=error", http.StatusFound)
		return
	}

	err := h.payments.Connect(r.Context(), session, r.URL.Query().Get("code"))
	if errors.Is(err, payment.ErrMissingCode) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "processor connect failed", "user_id", session.UserID, "error", err)
		http.Redirect(w, r, "/dashboard?mp=error", http.StatusFound)
		return
	}
	http.Redirect(w, r, "/dashboard?mp=connected", http.StatusFound)
}

// HandleCheckout handles POST /api/mp/checkout
func (h *MercadoPagoHandler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	session, ok := requireSession(w, r)
	if !ok {
		return
	}

	var req CheckoutRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !isUUID(req.ExpenseID) {
		writeError(w, http.StatusNotFound, "Expense not found")
		return
	}

	url, err := h.payments.CreateCheckout(r.Context(), session, req.ExpenseID)
	if err != nil {
		if errors.Is(err, expense.ErrExpenseNotFound) ||
			errors.Is(err, expense.ErrForbidden) ||
			errors.Is(err, expense.ErrInvalidTransition) ||
			errors.Is(err, expense.ErrProcessorNotConnected) {
			writeExpenseError(w, r, err)
			return
		}
		slog.ErrorContext(r.Context(), "checkout failed", "expense_id", req.ExpenseID, "error", err)
		writeError(w, http.StatusBadGateway, "Failed to create checkout")
		return
	}
	writeJSON(w, http.StatusOK, CheckoutResponse{URL: url})
}

// HandleReturn is the unauthenticated checkout return. It always redirects
// to the dashboard with the outcome.
func (h *MercadoPagoHandler) HandleReturn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	params := payment.ReturnParams{
		Status:    q.Get("status"),
		ExpenseID: q.Get("expense_id"),
		PaymentID: q.Get("payment_id"),
	}
	if params.ExpenseID != "" && !isUUID(params.ExpenseID) {
		params.ExpenseID = ""
	}

	outcome := payment.OutcomeSuccess
	if err := h.payments.HandleReturn(r.Context(), params); err != nil {
		slog.WarnContext(r.Context(), "checkout return rejected",
			"expense_id", params.ExpenseID,
			"payment_id", params.PaymentID,
			"status", params.Status,
			"error", err,
		)
		outcome = payment.OutcomeError
	}
	http.Redirect(w, r, "/dashboard?payment="+outcome, http.StatusFound)
}

// HandleDisconnect handles POST /api/mp/disconnect
func (h *MercadoPagoHandler) HandleDisconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	session, ok := requireSession(w, r)
	if !ok {
		return
	}

	if err := h.payments.Disconnect(r.Context(), session); err != nil {
		serverError(w, r, "Failed to disconnect", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
