package http

import (
	"context"
	"errors"
	"net/http"

	"splitpay/internal/domain/friend"
	"splitpay/internal/shared/auth"
)

// Friends is the part of friend.Service the friend endpoints use.
type Friends interface {
	Request(ctx context.Context, session auth.Session, identifier string) (*friend.Friendship, error)
	Accept(ctx context.Context, session auth.Session, id string) error
	Remove(ctx context.Context, session auth.Session, id string) error
	List(ctx context.Context, session auth.Session) (*friend.List, error)
}

type FriendHandler struct {
	friends Friends
}

func NewFriendHandler(friends Friends) *FriendHandler {
	return &FriendHandler{friends: friends}
}

type FriendRequest struct {
	Identifier string `json:"identifier"`
}

// HandleFriends routes GET and POST /api/friends
func (h *FriendHandler) HandleFriends(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		list, err := h.friends.List(r.Context(), session)
		if err != nil {
			serverError(w, r, "Failed to list friends", err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	case http.MethodPost:
		var req FriendRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		f, err := h.friends.Request(r.Context(), session, req.Identifier)
		if err != nil {
			h.writeFriendError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, f)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleAccept handles POST /api/friends/{id}/accept
func (h *FriendHandler) HandleAccept(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	session, ok := requireSession(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", "Friend request not found")
	if !ok {
		return
	}

	if err := h.friends.Accept(r.Context(), session, id); err != nil {
		h.writeFriendError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRemove handles DELETE /api/friends/{id}
func (h *FriendHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	session, ok := requireSession(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", "Friend request not found")
	if !ok {
		return
	}

	if err := h.friends.Remove(r.Context(), session, id); err != nil {
		h.writeFriendError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *FriendHandler) writeFriendError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, friend.ErrSelfRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, friend.ErrUserNotFound), errors.Is(err, friend.ErrFriendshipNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, friend.ErrForbidden):
		writeError(w, http.StatusForbidden, "Forbidden")
	case errors.Is(err, friend.ErrAlreadyExists), errors.Is(err, friend.ErrNotPending):
		writeError(w, http.StatusConflict, err.Error())
	default:
		serverError(w, r, "Failed to update friends", err)
	}
}
