// Package httpapi exposes the relay operations and session management over HTTP.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/custodia-labs/graphrelay/internal/core/ports/driving"
	"github.com/custodia-labs/graphrelay/internal/logger"
	"github.com/custodia-labs/graphrelay/internal/metrics"
)

// maxBodyBytes bounds request bodies accepted by the relay.
const maxBodyBytes = 4 << 20

// NewRouter assembles the relay's HTTP routes.
func NewRouter(graph driving.GraphService, session driving.SessionService) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", healthz)
	r.Handle("/metrics", metrics.Handler())

	sr := &sessionRoutes{session: session}
	r.Route("/auth", func(r chi.Router) {
		r.Post("/device-login", errorHandler(sr.startLogin))
		r.Get("/device-login", errorHandler(sr.pendingLogin))
		r.Get("/status", errorHandler(sr.status))
		r.Delete("/session", errorHandler(sr.logout))
	})

	gr := &graphRoutes{graph: graph}
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequestSize(maxBodyBytes))

		r.Get("/me", errorHandler(gr.me))
		r.Get("/chats", errorHandler(gr.listChats))
		r.Post("/chats/{chatID}/messages", errorHandler(gr.sendChatMessage))
		r.Get("/users", errorHandler(gr.listUsers))
		r.Post("/users/{user}/sendMail", errorHandler(gr.sendMail))
		r.Get("/users/{user}/messages", errorHandler(gr.listMessages))
		r.Post("/users/{user}/events", errorHandler(gr.createMeeting))
		r.Get("/users/{user}/events", errorHandler(gr.listEvents))
		r.HandleFunc("/graph/{mode}/*", errorHandler(gr.passthrough))
	})

	return r
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// accessLog writes one structured line per request.
func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		defer func() {
			logger.Get().Info().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("http request")
		}()

		next.ServeHTTP(ww, r)
	})
}
