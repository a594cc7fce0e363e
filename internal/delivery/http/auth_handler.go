package http

import (
	"encoding/json"
	"log"
	"net/http"

	"parley/internal/entity"
	"parley/internal/usecase"
)

type AuthHandler struct {
	authUc usecase.AuthUsecase
}

func NewAuthHandler(authUc usecase.AuthUsecase) *AuthHandler {
	return &AuthHandler{
		authUc: authUc,
	}
}

// POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req entity.RegisterRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Message: "invalid request body"})
		return
	}

	if req.Email == "" || req.Password == "" || req.Username == "" || req.Name == "" {
		writeJSON(w, http.StatusBadRequest, Response{Message: "email, username, password, and name are required"})
		return
	}

	if len(req.Password) < 6 {
		writeJSON(w, http.StatusBadRequest, Response{Message: "password must be at least 6 characters"})
		return
	}

	if len(req.Username) < 3 {
		writeJSON(w, http.StatusBadRequest, Response{Message: "username must be at least 3 characters"})
		return
	}

	authResponse, err := h.authUc.Register(r.Context(), req)
	if err != nil {
		log.Printf("Register error: %v", err)

		switch err {
		case usecase.ErrEmailAlreadyTaken:
			writeJSON(w, http.StatusConflict, Response{Message: "email already taken"})
		case usecase.ErrUsernameAlreadyTaken:
			writeJSON(w, http.StatusConflict, Response{Message: "username already taken"})
		default:
			writeJSON(w, http.StatusInternalServerError, Response{Message: "internal server error"})
		}
		return
	}

	writeJSON(w, http.StatusOK, Response{Message: "success", Data: authResponse})
}

// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req entity.LoginRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Message: "invalid request body"})
		return
	}

	if req.Email == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, Response{Message: "email and password are required"})
		return
	}

	authResponse, err := h.authUc.Login(r.Context(), req)
	if err != nil {
		if err == usecase.ErrInvalidCredentials {
			writeJSON(w, http.StatusUnauthorized, Response{Message: "invalid email or password"})
			return
		}
		log.Printf("Login error: %v", err)
		writeJSON(w, http.StatusInternalServerError, Response{Message: "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, Response{Message: "success", Data: authResponse})
}

// POST /auth/refresh
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req entity.RefreshTokenRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		writeJSON(w, http.StatusBadRequest, Response{Message: "refresh token is required"})
		return
	}

	authResponse, err := h.authUc.RefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		switch err {
		case usecase.ErrInvalidRefreshToken, usecase.ErrRevokedRefreshToken, usecase.ErrExpiredRefreshToken:
			writeJSON(w, http.StatusUnauthorized, Response{Message: "invalid refresh token"})
		default:
			log.Printf("Refresh token error: %v", err)
			writeJSON(w, http.StatusInternalServerError, Response{Message: "internal server error"})
		}
		return
	}

	writeJSON(w, http.StatusOK, Response{Message: "success", Data: authResponse})
}

// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req entity.RefreshTokenRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		writeJSON(w, http.StatusBadRequest, Response{Message: "refresh token is required"})
		return
	}

	if err := h.authUc.Logout(r.Context(), req.RefreshToken); err != nil {
		log.Printf("Logout error: %v", err)
		writeJSON(w, http.StatusInternalServerError, Response{Message: "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, Response{Message: "success"})
}
