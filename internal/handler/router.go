package handler

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Handlers struct {
	Auth      *AuthHandler
	Tickets   *TicketHandler
	Folders   *FolderHandler
	Calls     *CallHandler
	Pipeline  *PipelineHandler
	Recording *RecordingHandler
}

// NewRouter собирает API управления агентом
func NewRouter(h Handlers, requestTimeout time.Duration) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Printf("Incoming request: %s %s", r.Method, r.URL.Path)
			next.ServeHTTP(w, r)
		})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/auth/login", h.Auth.Login)
		r.Post("/auth/logout", h.Auth.Logout)

		// звонки и события телефонии работают и без входа: звонилка не зависит от конвейера
		r.Post("/calls", h.Calls.StartCall)
		r.Post("/calls/scan", h.Calls.ScanCall)
		r.Post("/events/phone-state", h.Pipeline.PhoneState)

		r.Route("/pipeline", func(r chi.Router) {
			r.Get("/", h.Pipeline.GetStatus)
			r.Post("/attach", h.Pipeline.Attach)
			r.Post("/detach", h.Pipeline.Detach)
		})

		r.Get("/notifications", h.Recording.ListNotifications)

		r.Group(func(r chi.Router) {
			r.Use(h.Auth.RequireUser)

			r.Get("/auth/me", h.Auth.Me)
			r.Get("/tickets", h.Tickets.GetTickets)
			r.Get("/tickets/{id}/profiles", h.Tickets.GetProfiles)

			r.Route("/settings/folder", func(r chi.Router) {
				r.Get("/", h.Folders.GetFolder)
				r.Put("/", h.Folders.SetFolder)
			})

			r.Get("/recordings", h.Recording.ListRecordings)
			r.Get("/uploads", h.Recording.ListUploads)
			r.Post("/uploads/{id}/retry", h.Recording.RetryUpload)
			r.Delete("/uploads/{id}", h.Recording.DeleteUpload)
		})
	})

	return r
}
