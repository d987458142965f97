package routes

import (
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/cronos-live/attendance-system/handlers"
	"github.com/cronos-live/attendance-system/middleware"
)

func SetupRoutes(
	router *chi.Mux,
	allowedOrigin string,
	auth *middleware.Auth,
	authHandler *handlers.AuthHandler,
	eventHandler *handlers.EventHandler,
	reservationHandler *handlers.ReservationHandler,
	webSocketHandler *handlers.WebSocketHandler,
	profileHandler *handlers.ProfileHandler,
	pickHandler *handlers.PickHandler,
	adminHandler *handlers.AdminHandler,
) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{allowedOrigin},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Route("/auth", func(r chi.Router) {
		r.Post("/anonymous", authHandler.SignInAnonymous)
		r.Post("/phone/start", authHandler.BeginPhoneVerification)
		// Промоушен анонимной сессии: токен опционален.
		r.With(auth.Optional).Post("/phone/verify", authHandler.CompleteVerification)
	})

	router.Route("/events", func(r chi.Router) {
		// Публичные маршруты для просмотра событий и счётчиков
		r.Get("/", eventHandler.List)
		r.Get("/{eventID}", eventHandler.Get)
		r.Get("/{eventID}/counts", eventHandler.Counts)

		// Резервирование: сессия опциональна, отмена требует сессию
		r.With(auth.Optional).Post("/{eventID}/reserve", reservationHandler.Reserve)
		r.Group(func(r chi.Router) {
			r.Use(auth.Require)
			r.Get("/{eventID}/reservation", reservationHandler.My)
			r.Delete("/{eventID}/reservation", reservationHandler.Cancel)
			r.Get("/{eventID}/pick", pickHandler.Get)
			r.Post("/{eventID}/pick", pickHandler.Save)
			r.Post("/{eventID}/poster", adminHandler.UploadPoster)
		})
	})

	router.Route("/profile", func(r chi.Router) {
		r.Use(auth.Require)
		r.Get("/", profileHandler.Get)
		r.Put("/", profileHandler.Update)
	})

	router.Get("/teams", eventHandler.Teams)
	router.Get("/ws/events/{eventID}", webSocketHandler.ServeWs)
}
