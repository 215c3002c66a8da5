package http

import (
	"context"
	"errors"
	"net/http"

	"splitpay/internal/domain/paymentmethod"
	"splitpay/internal/shared/auth"
)

// PaymentMethods is the part of paymentmethod.Service the endpoints use.
type PaymentMethods interface {
	Create(ctx context.Context, session auth.Session, label, alias string) (*paymentmethod.PaymentMethod, error)
	List(ctx context.Context, session auth.Session) ([]*paymentmethod.PaymentMethod, error)
	Delete(ctx context.Context, session auth.Session, id string) error
}

type PaymentMethodHandler struct {
	methods PaymentMethods
}

func NewPaymentMethodHandler(methods PaymentMethods) *PaymentMethodHandler {
	return &PaymentMethodHandler{methods: methods}
}

type CreatePaymentMethodRequest struct {
	Label string `json:"label"`
	Alias string `json:"alias"`
}

// HandlePaymentMethods routes requests to the appropriate handler based on method
func (h *PaymentMethodHandler) HandlePaymentMethods(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleList(w, r)
	case http.MethodPost:
		h.handleCreate(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *PaymentMethodHandler) handleList(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}

	methods, err := h.methods.List(r.Context(), session)
	if err != nil {
		serverError(w, r, "Failed to list payment methods", err)
		return
	}
	writeJSON(w, http.StatusOK, methods)
}

func (h *PaymentMethodHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}

	var req CreatePaymentMethodRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	pm, err := h.methods.Create(r.Context(), session, req.Label, req.Alias)
	if errors.Is(err, paymentmethod.ErrInvalidLabel) || errors.Is(err, paymentmethod.ErrInvalidAlias) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		serverError(w, r, "Failed to create payment method", err)
		return
	}
	writeJSON(w, http.StatusCreated, pm)
}

// HandlePaymentMethodByID handles DELETE /api/payment-methods/{id}
func (h *PaymentMethodHandler) HandlePaymentMethodByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	session, ok := requireSession(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", "Payment method not found")
	if !ok {
		return
	}

	err := h.methods.Delete(r.Context(), session, id)
	if errors.Is(err, paymentmethod.ErrPaymentMethodNotFound) {
		writeError(w, http.StatusNotFound, "Payment method not found")
		return
	}
	if err != nil {
		serverError(w, r, "Failed to delete payment method", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
