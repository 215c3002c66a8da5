package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"splitpay/internal/domain/expense"
	"splitpay/internal/domain/group"
	"splitpay/internal/domain/profile"
	"splitpay/internal/infrastructure/storage"
	"splitpay/internal/shared/auth"
)

// Groups is the part of group.Service the group endpoints use.
type Groups interface {
	Create(ctx context.Context, session auth.Session, name string, members []string) (*group.Group, error)
	List(ctx context.Context, session auth.Session) ([]*group.Group, error)
	Detail(ctx context.Context, session auth.Session, id string) (*group.Detail, error)
	AddMember(ctx context.Context, session auth.Session, groupID, email string) error
	RemoveMember(ctx context.Context, session auth.Session, groupID, email string) error
	Delete(ctx context.Context, session auth.Session, id string) error
	CreateExpense(ctx context.Context, session auth.Session, groupID string, in expense.NewGroupExpense, receipt *storage.Upload) ([]*expense.Expense, error)
}

type GroupHandler struct {
	groups Groups
}

func NewGroupHandler(groups Groups) *GroupHandler {
	return &GroupHandler{groups: groups}
}

type CreateGroupRequest struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

type AddMemberRequest struct {
	Email string `json:"email"`
}

type CreateGroupExpenseRequest struct {
	Description   string          `json:"description"`
	Total         decimal.Decimal `json:"total"`
	Participants  []string        `json:"participants"`
	Method        string          `json:"method"`
	MethodDetails string          `json:"method_details"`
}

// HandleGroups routes GET and POST /api/groups
func (h *GroupHandler) HandleGroups(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		groups, err := h.groups.List(r.Context(), session)
		if err != nil {
			serverError(w, r, "Failed to list groups", err)
			return
		}
		if groups == nil {
			groups = []*group.Group{}
		}
		writeJSON(w, http.StatusOK, groups)
	case http.MethodPost:
		var req CreateGroupRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		g, err := h.groups.Create(r.Context(), session, req.Name, req.Members)
		if err != nil {
			writeGroupError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, g)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleGroupByID routes GET and DELETE /api/groups/{id}
func (h *GroupHandler) HandleGroupByID(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", "Group not found")
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		detail, err := h.groups.Detail(r.Context(), session, id)
		if err != nil {
			writeGroupError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, detail)
	case http.MethodDelete:
		if err := h.groups.Delete(r.Context(), session, id); err != nil {
			writeGroupError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleAddMember handles POST /api/groups/{id}/members
func (h *GroupHandler) HandleAddMember(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	session, ok := requireSession(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", "Group not found")
	if !ok {
		return
	}

	var req AddMemberRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.groups.AddMember(r.Context(), session, id, req.Email); err != nil {
		writeGroupError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRemoveMember handles DELETE /api/groups/{id}/members/{email}
func (h *GroupHandler) HandleRemoveMember(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	session, ok := requireSession(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", "Group not found")
	if !ok {
		return
	}

	if err := h.groups.RemoveMember(r.Context(), session, id, r.PathValue("email")); err != nil {
		writeGroupError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleGroupExpenses handles POST /api/groups/{id}/expenses. Like the
// single-debtor form it takes JSON or multipart with a receipt.
func (h *GroupHandler) HandleGroupExpenses(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	session, ok := requireSession(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", "Group not found")
	if !ok {
		return
	}

	var (
		req     CreateGroupExpenseRequest
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
		req = CreateGroupExpenseRequest{
			Description:   r.FormValue("description"),
			Total:         total,
			Participants:  r.MultipartForm.Value["participants"],
			Method:        r.FormValue("method"),
			MethodDetails: r.FormValue("method_details"),
		}
	} else if !decodeJSON(w, r, &req) {
		return
	}

	created, err := h.groups.CreateExpense(r.Context(), session, id, expense.NewGroupExpense{
		Description:   req.Description,
		Total:         req.Total,
		Participants:  req.Participants,
		Method:        req.Method,
		MethodDetails: req.MethodDetails,
	}, receipt)
	if err != nil {
		writeGroupError(w, r, err)
		return
	}

	views := make([]*expense.View, 0, len(created))
	for _, e := range created {
		views = append(views, expense.NewView(e, session))
	}
	writeJSON(w, http.StatusCreated, views)
}

func writeGroupError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, group.ErrInvalidName), errors.Is(err, profile.ErrInvalidEmail):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, group.ErrGroupNotFound), errors.Is(err, group.ErrMemberNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, group.ErrForbidden):
		writeError(w, http.StatusForbidden, "Forbidden")
	case errors.Is(err, group.ErrAlreadyMember), errors.Is(err, group.ErrCannotRemoveOwner):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeExpenseError(w, r, err)
	}
}
