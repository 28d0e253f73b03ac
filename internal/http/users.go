package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/example/ride-pool/internal/storage"
)

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !storage.ValidID(id) {
		writeJSON(w, http.StatusBadRequest, errorBody{Msg: "Invalid user ID"})
		return
	}
	u, err := s.users.GetUser(r.Context(), id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Msg: "User not found"})
	case err != nil:
		s.logFailure(r, "fetch user failed", err)
		serverError(w, err)
	default:
		writeJSON(w, http.StatusOK, u)
	}
}

type profileRequest struct {
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	College    string `json:"college"`
	Department string `json:"department"`
}

type profileResponse struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	College        string `json:"college"`
	Department     string `json:"department"`
	ProfilePicture string `json:"profilePicture,omitempty"`
}

// handleUpdateProfile applies the non-empty fields of the request.
func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Msg: "Validation Error", Details: err.Error(), Error: true})
		return
	}
	ctx := r.Context()
	u, err := s.users.GetUser(ctx, userIDFromContext(ctx))
	if errors.Is(err, storage.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorBody{Msg: "User not found"})
		return
	}
	if err != nil {
		s.logFailure(r, "fetch user failed", err)
		serverError(w, err)
		return
	}

	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&u.Name, req.Name)
	set(&u.Phone, req.Phone)
	set(&u.College, req.College)
	set(&u.Department, req.Department)

	if err := s.users.UpdateUser(ctx, u); err != nil {
		s.logFailure(r, "update profile failed", err)
		serverError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{
		ID:             u.ID,
		Name:           u.Name,
		Email:          u.Email,
		Phone:          u.Phone,
		College:        u.College,
		Department:     u.Department,
		ProfilePicture: u.ProfilePicture,
	})
}
