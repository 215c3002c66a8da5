package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"splitpay/internal/domain/notification"
)

// Notifications is the part of notification.Service the endpoints use.
type Notifications interface {
	RegisterDevice(ctx context.Context, params notification.CreateDeviceTokenParams) (*notification.DeviceToken, error)
	UnregisterDevice(ctx context.Context, userID, token string) error
	ListNotifications(ctx context.Context, userID string, page notification.Page) (*notification.Inbox, error)
	MarkNotificationOpened(ctx context.Context, notificationID, userID string) error
	MarkAllOpened(ctx context.Context, userID string) (int, error)
}

type NotificationHandler struct {
	notificationService Notifications
}

func NewNotificationHandler(notificationService Notifications) *NotificationHandler {
	return &NotificationHandler{notificationService: notificationService}
}

// --- Request/Response types ---

type RegisterDeviceRequest struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

type UnregisterDeviceRequest struct {
	Token string `json:"token"`
}

type NotificationResponse struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Category  string            `json:"category"`
	OpenedAt  *string           `json:"opened_at"`
	CreatedAt string            `json:"created_at"`
	Data      map[string]string `json:"data"`
}

type NotificationListResponse struct {
	Notifications []NotificationResponse `json:"notifications"`
	Unread        int                    `json:"unread"`
	Pagination    PaginationResponse     `json:"pagination"`
}

type PaginationResponse struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
	Total   int `json:"total"`
	Pages   int `json:"pages"`
}

// --- Handlers ---

// HandleNotifications handles GET /api/notifications
func (h *NotificationHandler) HandleNotifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	session, ok := requireSession(w, r)
	if !ok {
		return
	}

	// Paging is normalized by the service; garbage parses as zero.
	query := r.URL.Query()
	page, _ := strconv.Atoi(query.Get("page"))
	perPage, _ := strconv.Atoi(query.Get("per_page"))

	inbox, err := h.notificationService.ListNotifications(r.Context(), session.UserID, notification.Page{Number: page, Size: perPage})
	if err != nil {
		serverError(w, r, "Failed to list notifications", err)
		return
	}

	items := make([]NotificationResponse, 0, len(inbox.Notifications))
	for _, n := range inbox.Notifications {
		items = append(items, toNotificationResponse(n))
	}

	writeJSON(w, http.StatusOK, NotificationListResponse{
		Notifications: items,
		Unread:        inbox.Unread,
		Pagination: PaginationResponse{
			Page:    inbox.Page.Number,
			PerPage: inbox.Page.Size,
			Total:   inbox.Total,
			Pages:   inbox.Pages(),
		},
	})
}

// HandleOpen handles POST /api/notifications/{id}/open
func (h *NotificationHandler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	session, ok := requireSession(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", "Notification not found")
	if !ok {
		return
	}

	err := h.notificationService.MarkNotificationOpened(r.Context(), id, session.UserID)
	if errors.Is(err, notification.ErrNotificationNotFound) {
		writeError(w, http.StatusNotFound, "Notification not found")
		return
	}
	if err != nil {
		serverError(w, r, "Failed to mark notification as opened", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// HandleOpenAll handles POST /api/notifications/open-all
func (h *NotificationHandler) HandleOpenAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	session, ok := requireSession(w, r)
	if !ok {
		return
	}

	opened, err := h.notificationService.MarkAllOpened(r.Context(), session.UserID)
	if err != nil {
		serverError(w, r, "Failed to mark notifications as opened", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"opened": opened})
}

// HandleDevices handles POST and DELETE /api/notifications/devices
func (h *NotificationHandler) HandleDevices(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleRegisterDevice(w, r)
	case http.MethodDelete:
		h.handleUnregisterDevice(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *NotificationHandler) handleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}

	var req RegisterDeviceRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	token, err := h.notificationService.RegisterDevice(r.Context(), notification.CreateDeviceTokenParams{
		UserID:   session.UserID,
		Token:    req.Token,
		Platform: req.Platform,
	})
	if errors.Is(err, notification.ErrInvalidToken) || errors.Is(err, notification.ErrInvalidPlatform) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		serverError(w, r, "Failed to register device", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"token":   token.Token,
	})
}

func (h *NotificationHandler) handleUnregisterDevice(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}

	var req UnregisterDeviceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Token == "" {
		writeError(w, http.StatusBadRequest, notification.ErrInvalidToken.Error())
		return
	}

	err := h.notificationService.UnregisterDevice(r.Context(), session.UserID, req.Token)
	if errors.Is(err, notification.ErrDeviceTokenNotFound) {
		writeError(w, http.StatusNotFound, "Device not found")
		return
	}
	if err != nil {
		serverError(w, r, "Failed to unregister device", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Helpers ---

func toNotificationResponse(n *notification.Notification) NotificationResponse {
	var openedAt *string
	if n.OpenedAt != nil {
		formatted := n.OpenedAt.Format(time.RFC3339)
		openedAt = &formatted
	}

	data := n.Data
	if data == nil {
		data = make(map[string]string)
	}

	return NotificationResponse{
		ID:        n.ID,
		Title:     n.Title,
		Message:   n.Message,
		Category:  n.Category,
		OpenedAt:  openedAt,
		CreatedAt: n.CreatedAt.Format(time.RFC3339),
		Data:      data,
	}
}
