package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"minisite-manager/internal/logger"
	appmw "minisite-manager/internal/middleware"
)

// NewRouter creates and configures a new chi router.
func NewRouter(minisiteHandler *MinisiteHandler, versionHandler *VersionHandler, log logger.Logger) *chi.Mux {
	r := chi.NewRouter()

	// A good base middleware stack
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(appmw.Identity())

	wrap := appmw.Error(log)

	// Public routes
	r.Method(http.MethodGet, "/b/{businessSlug}/{locationSlug}", wrap(minisiteHandler.publicHandler))

	// Management API
	r.Route("/api/minisites", func(r chi.Router) {
		r.Method(http.MethodPost, "/", wrap(minisiteHandler.createHandler))
		r.Method(http.MethodGet, "/", wrap(minisiteHandler.listHandler))

		r.Route("/{minisiteID}", func(r chi.Router) {
			r.Method(http.MethodGet, "/", wrap(minisiteHandler.getHandler))
			r.Method(http.MethodPatch, "/", wrap(minisiteHandler.updateProfileHandler))
			r.Method(http.MethodPost, "/slugs", wrap(minisiteHandler.reserveSlugsHandler))
			r.Method(http.MethodGet, "/edit", wrap(minisiteHandler.editHandler))
			r.Method(http.MethodPost, "/rollback", wrap(versionHandler.rollbackHandler))

			r.Route("/versions", func(r chi.Router) {
				r.Method(http.MethodPost, "/", wrap(versionHandler.createDraftHandler))
				r.Method(http.MethodGet, "/", wrap(versionHandler.listHandler))
				r.Method(http.MethodGet, "/latest-draft", wrap(versionHandler.latestDraftHandler))
				r.Method(http.MethodGet, "/{versionID}", wrap(versionHandler.getHandler))
				r.Method(http.MethodPost, "/{versionID}/publish", wrap(versionHandler.publishHandler))
			})
		})
	})

	return r
}
