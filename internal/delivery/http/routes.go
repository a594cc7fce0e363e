package http

import (
	"net/http"

	wsDelivery "parley/internal/delivery/websocket"

	"github.com/go-chi/chi/v5"
)

func MapHttpRoutes(r *chi.Mux, httpHandler HttpHandler, websocketHandler wsDelivery.WebsocketHandler, authHandler AuthHandler, authMiddleware *AuthMiddleware) {
	r.Handle("/ws", http.HandlerFunc(websocketHandler.HandleWebSocket))

	// Auth routes (public)
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", http.HandlerFunc(authHandler.Register))
		r.Post("/login", http.HandlerFunc(authHandler.Login))
		r.Post("/refresh", http.HandlerFunc(authHandler.RefreshToken))
		r.Post("/logout", http.HandlerFunc(authHandler.Logout))
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)

		// Room routes
		r.Route("/room", func(r chi.Router) {
			r.Get("/", http.HandlerFunc(httpHandler.ListRooms))
			r.Post("/", http.HandlerFunc(httpHandler.CreateRoom))
			r.Post("/direct", http.HandlerFunc(httpHandler.CreateDirectRoom))
			r.Get("/{roomId}/messages", http.HandlerFunc(httpHandler.GetMessages))
		})

		// User routes
		r.Route("/user", func(r chi.Router) {
			r.Get("/{id}", http.HandlerFunc(httpHandler.GetUser))
		})
	})
}
