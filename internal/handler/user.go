package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/consulthub/internal/apperror"
	"github.com/sakif/consulthub/internal/auth"
	"github.com/sakif/consulthub/internal/model"
	"github.com/sakif/consulthub/internal/service"
)

// UserHandler serves profile reads and updates. Every route sits behind
// RequireAuth.
type UserHandler struct {
	users *service.UserService
}

func NewUserHandler(users *service.UserService) *UserHandler {
	return &UserHandler{users: users}
}

// HandleGet returns a user's public profile.
//
// HTTP: GET /api/users/{username}   ("me" is the caller)
func (h *UserHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.UserFromContext(r.Context())

	user, err := h.users.Lookup(r.Context(), caller, chi.URLParam(r, "username"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, success("User retrieved successfully", user))
}

type profileRequest struct {
	Field         *string                   `json:"field"`
	Notifications *model.NotificationsPatch `json:"notifications"`
}

// HandleUpdate changes the caller's field and/or notification preferences.
//
// HTTP: PUT /api/users/
func (h *UserHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, false)
}

// HandleUpdateNotifications is HandleUpdate with field ignored.
//
// HTTP: PUT /api/users/notifications
func (h *UserHandler) HandleUpdateNotifications(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, true)
}

func (h *UserHandler) update(w http.ResponseWriter, r *http.Request, notificationsOnly bool) {
	user, _ := auth.UserFromContext(r.Context())

	b, err := readBody(r.Context(), r, profileSchema)
	if err != nil {
		writeError(w, err)
		return
	}

	if !notificationsOnly && b.invalid["field"] {
		writeError(w, apperror.ValidationFailed("field", "Invalid field"))
		return
	}
	if b.invalid["notifications"] {
		writeError(w, apperror.ValidationFailed("notifications", "Invalid notifications"))
		return
	}

	var req profileRequest
	if notificationsOnly {
		// Decode only the notifications key; field may hold any type here.
		var only struct {
			Notifications *model.NotificationsPatch `json:"notifications"`
		}
		if err := b.decode(&only); err != nil {
			writeError(w, err)
			return
		}
		req.Notifications = only.Notifications
	} else if err := b.decode(&req); err != nil {
		writeError(w, err)
		return
	}

	updated, err := h.users.UpdateProfile(r.Context(), user, service.ProfileUpdate{
		Field:         req.Field,
		Notifications: req.Notifications,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if !updated {
		writeJSON(w, http.StatusOK, success("empty update", nil))
		return
	}

	writeJSON(w, http.StatusOK, success("User updated successfully", user))
}
