package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	// All API routes live under /api
	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Post("/signup", apiHandler.SignupHandler)
		r.Post("/login", apiHandler.LoginHandler)
		r.Get("/check_auth", apiHandler.CheckAuthHandler)
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})

		// Tenant-authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(apiHandler.AuthMiddleware)

			// Knowledge base
			r.Get("/collections", apiHandler.ListCollectionsHandler)
			r.Get("/collections/{collectionID}/chunks", apiHandler.CollectionChunksHandler)
			r.Delete("/collections/{collectionID}", apiHandler.DeleteCollectionHandler)

			// Ingestion sources
			r.Post("/ingest/wiki", apiHandler.IngestWikiHandler)
			r.Post("/ingest/issues", apiHandler.IngestIssuesHandler)
			r.Post("/ingest/issue", apiHandler.IngestIssueHandler)
			r.Post("/ingest/pdf", apiHandler.IngestPDFHandler)
			r.Post("/ingest/github", apiHandler.IngestGitHubHandler)
			r.Post("/ingest/gitlab", apiHandler.IngestGitLabHandler)

			// Conversation
			r.Post("/chat", apiHandler.ChatHandler)
			r.Get("/chat/history", apiHandler.ChatHistoryHandler)
			r.Post("/sessions/rename", apiHandler.RenameSessionHandler)
			r.Post("/sessions/delete", apiHandler.DeleteSessionHandler)
			r.Post("/sessions/reset", apiHandler.ResetSessionsHandler)

			// Structured exports
			r.Post("/export/unit-tests", apiHandler.ExportUnitTestsHandler)
			r.Post("/export/acceptance-criteria", apiHandler.ExportAcceptanceCriteriaHandler)

			// Account
			r.Get("/user-info", apiHandler.UserInfoHandler)
			r.Put("/user-info", apiHandler.UpdateUserInfoHandler)
			r.Post("/logout", apiHandler.LogoutHandler)
		})
	})

	return r
}
