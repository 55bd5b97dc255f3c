package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/jason-s-yu/examarena/internal/auth"
	"github.com/jason-s-yu/examarena/internal/database"
	"github.com/jason-s-yu/examarena/internal/models"
)

const (
	minUsernameLen = 3
	maxUsernameLen = 32
	minPasswordLen = 6
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

func validateCredentials(req credentialsRequest) string {
	n := utf8.RuneCountInString(req.Username)
	switch {
	case n < minUsernameLen:
		return "Логин должен быть от 3 символов."
	case n > maxUsernameLen:
		return "Логин слишком длинный."
	case utf8.RuneCountInString(req.Password) < minPasswordLen:
		return "Пароль должен быть минимум 6 символов."
	}
	return ""
}

// CreateUserHandler registers a new account.
//
// Request payload:
//
//	{
//	  "username": "ivan",
//	  "password": "secret1"
//	}
//
// Responds 201 with the user, 400 on validation failure and 409 when the username is taken.
func (s *Server) CreateUserHandler(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if msg := validateCredentials(req); msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	user := models.User{Username: req.Username, Password: req.Password}
	err := s.Accounts.CreateUser(r.Context(), &user)
	if errors.Is(err, database.ErrUsernameTaken) || database.IsUniqueViolation(err) {
		http.Error(w, "Такой логин уже занят.", http.StatusConflict)
		return
	}
	if err != nil {
		s.Logger.WithError(err).Error("failed to create user")
		http.Error(w, "error creating user", http.StatusInternalServerError)
		return
	}
	user.Password = ""
	writeJSON(w, http.StatusCreated, user)
}

// LoginHandler checks the credentials and returns a JWT, also set as the
// auth_token cookie.
func (s *Server) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return
	}

	token, user, err := s.Accounts.Authenticate(r.Context(), strings.TrimSpace(req.Username), req.Password)
	if errors.Is(err, database.ErrInvalidCredentials) {
		http.Error(w, "Неверный логин или пароль.", http.StatusForbidden)
		return
	}
	if err != nil {
		s.Logger.WithError(err).Error("login failed")
		http.Error(w, "login failed", http.StatusInternalServerError)
		return
	}

	cookie := &http.Cookie{
		Name:     authCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if ttl := auth.TokenTTL(); ttl > 0 {
		cookie.MaxAge = int(ttl.Seconds())
	}
	http.SetCookie(w, cookie)
	writeJSON(w, http.StatusOK, loginResponse{Token: token, User: user})
}

// LogoutHandler clears the auth cookie.
func (s *Server) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
	w.WriteHeader(http.StatusNoContent)
}

// MeHandler returns the caller's account.
func (s *Server) MeHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFromRequest(w, r)
	if !ok {
		return
	}
	user, err := s.Accounts.GetUser(r.Context(), userID)
	if errors.Is(err, database.ErrNotFound) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if err != nil {
		s.Logger.WithError(err).Error("failed to load user")
		http.Error(w, "failed to load user", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
