package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"splitpay/internal/domain/profile"
	"splitpay/internal/infrastructure/storage"
	"splitpay/internal/shared/auth"
)

// Profiles is the part of profile.Service the profile endpoints use.
type Profiles interface {
	Get(ctx context.Context, session auth.Session) (*profile.Profile, error)
	ChangeUsername(ctx context.Context, session auth.Session, username string) (*profile.Profile, error)
	UploadAvatar(ctx context.Context, session auth.Session, upload *storage.Upload) (*profile.Profile, error)
	OpenAvatar(ctx context.Context, profileID string) (*storage.Object, error)
}

type ProfileHandler struct {
	profiles Profiles
}

func NewProfileHandler(profiles Profiles) *ProfileHandler {
	return &ProfileHandler{profiles: profiles}
}

type UsernameRequest struct {
	Username string `json:"username"`
}

// HandleProfile handles GET /api/profile
func (h *ProfileHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	session, ok := requireSession(w, r)
	if !ok {
		return
	}

	p, err := h.profiles.Get(r.Context(), session)
	if errors.Is(err, profile.ErrProfileNotFound) {
		writeError(w, http.StatusNotFound, "Profile not found")
		return
	}
	if err != nil {
		serverError(w, r, "Failed to get profile", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleUsername handles PATCH /api/profile/username
func (h *ProfileHandler) HandleUsername(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	session, ok := requireSession(w, r)
	if !ok {
		return
	}

	var req UsernameRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.profiles.ChangeUsername(r.Context(), session, req.Username)
	switch {
	case errors.Is(err, profile.ErrInvalidUsername):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, profile.ErrUsernameTaken), errors.Is(err, profile.ErrUsernameCooldown):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		serverError(w, r, "Failed to change username", err)
	default:
		writeJSON(w, http.StatusOK, p)
	}
}

// HandleAvatarUpload handles PUT /api/profile/avatar with a multipart
// "avatar" file.
func (h *ProfileHandler) HandleAvatarUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	session, ok := requireSession(w, r)
	if !ok {
		return
	}

	upload, cleanup, ok := readUpload(w, r, "avatar", true)
	if !ok {
		return
	}
	defer cleanup()

	p, err := h.profiles.UploadAvatar(r.Context(), session, upload)
	if errors.Is(err, storage.ErrUnsupportedType) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		serverError(w, r, "Failed to upload avatar", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleAvatar handles GET /api/profile/avatar/{id}
func (h *ProfileHandler) HandleAvatar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, ok := requireSession(w, r); !ok {
		return
	}
	id, ok := pathID(w, r, "id", "Avatar not found")
	if !ok {
		return
	}

	obj, err := h.profiles.OpenAvatar(r.Context(), id)
	if errors.Is(err, profile.ErrProfileNotFound) || errors.Is(err, storage.ErrObjectNotFound) {
		writeError(w, http.StatusNotFound, "Avatar not found")
		return
	}
	if err != nil {
		serverError(w, r, "Failed to open avatar", err)
		return
	}
	streamObject(w, r, obj)
}

// readUpload reads a multipart file field. With required false a missing
// field yields a nil upload.
func readUpload(w http.ResponseWriter, r *http.Request, field string, required bool) (*storage.Upload, func(), bool) {
	noop := func() {}
	r.Body = http.MaxBytesReader(w, r.Body, storage.MaxObjectSize+maxJSONBodySize)
	if err := r.ParseMultipartForm(storage.MaxObjectSize); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart form")
		return nil, noop, false
	}

	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) && !required {
		return nil, noop, true
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, field+" file is required")
		return nil, noop, false
	}

	upload, err := storage.PrepareUpload(file, header.Size)
	if err != nil {
		file.Close()
		switch {
		case errors.Is(err, storage.ErrTooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		case errors.Is(err, storage.ErrUnsupportedType):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusBadRequest, "Failed to read file")
		}
		return nil, noop, false
	}
	return upload, func() { file.Close() }, true
}

func streamObject(w http.ResponseWriter, r *http.Request, obj *storage.Object) {
	defer obj.Body.Close()

	w.Header().Set("Content-Type", obj.ContentType)
	if obj.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if _, err := io.Copy(w, obj.Body); err != nil {
		slog.WarnContext(r.Context(), "failed to stream object", "error", err)
	}
}
