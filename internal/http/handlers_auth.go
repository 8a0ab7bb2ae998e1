package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"messbook/internal/auth"
)

type registerRequest struct {
	Phone    string `json:"phone"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type loginRequest struct {
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type userResponse struct {
	ID    string `json:"id"`
	Phone string `json:"phone"`
	Name  string `json:"name"`
}

type authResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	user, err := s.authn.Register(r.Context(), req.Phone, req.Name, req.Password)
	switch {
	case errors.Is(err, auth.ErrPhoneExists):
		conflict(w, "an account with this phone number already exists")
		return
	case errors.Is(err, auth.ErrInvalidPhone), errors.Is(err, auth.ErrWeakPassword):
		unprocessable(w, err.Error())
		return
	case err != nil:
		slog.ErrorContext(r.Context(), "Registration failed", "error", err)
		internalError(w, "could not create account")
		return
	}

	token, err := s.tokens.Generate(user)
	if err != nil {
		slog.ErrorContext(r.Context(), "Token generation failed", "error", err, "user_id", user.ID)
		internalError(w, "could not issue token")
		return
	}

	writeJSON(w, http.StatusCreated, authResponse{
		Token: token,
		User:  userResponse{ID: user.ID, Phone: user.Phone, Name: user.Name},
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	user, err := s.authn.Authenticate(r.Context(), req.Phone, req.Password)
	if err != nil {
		// Same answer for unknown phone and wrong password.
		unauthorized(w, "invalid phone number or password")
		return
	}

	token, err := s.tokens.Generate(user)
	if err != nil {
		slog.ErrorContext(r.Context(), "Token generation failed", "error", err, "user_id", user.ID)
		internalError(w, "could not issue token")
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		Token: token,
		User:  userResponse{ID: user.ID, Phone: user.Phone, Name: user.Name},
	})
}
