package http

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"parley/internal/entity"
	"parley/internal/repository"
	"parley/internal/usecase"

	"github.com/go-chi/chi/v5"
)

type HttpHandler struct {
	roomUc usecase.RoomUsecase
	userUc usecase.UserUsecase
}

func NewHttpHandler(roomUc usecase.RoomUsecase, userUc usecase.UserUsecase) *HttpHandler {
	return &HttpHandler{
		roomUc: roomUc,
		userUc: userUc,
	}
}

type Response struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, response Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

// Method Post /room
func (h *HttpHandler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Message: "invalid request body"})
		return
	}

	roomId, err := h.roomUc.Create(r.Context(), req.Name)
	if err != nil {
		if err == usecase.ErrInvalidRoomName {
			writeJSON(w, http.StatusBadRequest, Response{Message: "room name is required"})
			return
		}
		log.Printf("Create room error: %v", err)
		writeJSON(w, http.StatusInternalServerError, Response{Message: "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, Response{Message: "success", Data: map[string]string{"roomId": roomId}})
}

// Method Get /room
func (h *HttpHandler) ListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.roomUc.Index(r.Context())
	if err != nil {
		log.Printf("List rooms error: %v", err)
		writeJSON(w, http.StatusInternalServerError, Response{Message: "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, Response{Message: "success", Data: rooms})
}

// Method Post /room/direct
func (h *HttpHandler) CreateDirectRoom(w http.ResponseWriter, r *http.Request) {
	claims, ok := r.Context().Value(UserContextKey).(*entity.TokenClaims)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, Response{Message: "unauthorized"})
		return
	}

	var req struct {
		PeerId string `json:"peerId"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PeerId == "" {
		writeJSON(w, http.StatusBadRequest, Response{Message: "invalid request body"})
		return
	}

	room, err := h.roomUc.EnsureDirect(r.Context(), claims.UserId, req.PeerId)
	if err != nil {
		if err == repository.ErrUserNotFound {
			writeJSON(w, http.StatusNotFound, Response{Message: "user not found"})
			return
		}
		log.Printf("Create direct room error: %v", err)
		writeJSON(w, http.StatusInternalServerError, Response{Message: "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, Response{Message: "success", Data: room})
}

// Method Get /room/:roomId/messages
func (h *HttpHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	claims, ok := r.Context().Value(UserContextKey).(*entity.TokenClaims)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, Response{Message: "unauthorized"})
		return
	}

	roomId := chi.URLParam(r, "roomId")

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	messages, err := h.roomUc.History(r.Context(), claims.UserId, roomId, limit)
	if err != nil {
		log.Printf("Get messages error: %v", err)
		writeJSON(w, http.StatusInternalServerError, Response{Message: "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, Response{Message: "success", Data: messages})
}

// Method Get /user/:id
func (h *HttpHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	userId := chi.URLParam(r, "id")

	user, err := h.userUc.Get(r.Context(), userId)
	if err != nil {
		log.Printf("Get user error: %v", err)
		writeJSON(w, http.StatusNotFound, Response{Message: "user not found"})
		return
	}

	writeJSON(w, http.StatusOK, Response{Message: "success", Data: user})
}
