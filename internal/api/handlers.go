package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"ragserver/internal/auth"
	"ragserver/internal/core"
	"ragserver/internal/extract"
	"ragserver/internal/llm"
	"ragserver/internal/store"
)

type contextKey string

const tenantContextKey contextKey = "tenant"

type APIHandler struct {
	provider    auth.Provider
	dbStore     *store.SQLiteStore
	collections *core.CollectionService
	chat        *core.ChatService
	client      *http.Client
	logger      *slog.Logger
}

func NewAPIHandler(provider auth.Provider, db *store.SQLiteStore, collections *core.CollectionService, chat *core.ChatService) *APIHandler {
	return &APIHandler{
		provider:    provider,
		dbStore:     db,
		collections: collections,
		chat:        chat,
		client:      &http.Client{Timeout: 60 * time.Second},
		logger:      slog.Default().With("component", "api"),
	}
}

// AuthMiddleware resolves the bearer credential to a tenant and stores it
// in the request context. Provider failures of any flavor surface as
// unauthenticated.
func (h *APIHandler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, kindAuth, "authorization header is required")
			return
		}

		tenant, err := h.provider.Authenticate(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			writeError(w, http.StatusUnauthorized, kindAuth, "invalid credential")
			return
		}

		ctx := context.WithValue(r.Context(), tenantContextKey, tenant)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func tenantFrom(r *http.Request) string {
	tenant, _ := r.Context().Value(tenantContextKey).(string)
	return tenant
}

// Identity handlers

type signupRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

func (h *APIHandler) SignupHandler(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, kindValidation, "invalid request body: "+err.Error())
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, kindValidation, "username and password are required")
		return
	}

	existing, err := h.dbStore.GetUserByUsername(req.Username)
	if err != nil {
		writeServiceError(w, h.logger, "signup", err)
		return
	}
	if existing != nil {
		writeError(w, http.StatusBadRequest, kindValidation, "username is already taken")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeServiceError(w, h.logger, "signup", err)
		return
	}
	user := store.User{
		Username:     req.Username,
		PasswordHash: hash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Email:        req.Email,
	}
	if err := h.dbStore.CreateUser(&user); err != nil {
		writeServiceError(w, h.logger, "signup", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "user_id": user.ID})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, kindValidation, "invalid request body: "+err.Error())
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, kindValidation, "username and password are required")
		return
	}

	user, err := h.dbStore.GetUserByUsername(req.Username)
	if err != nil {
		writeServiceError(w, h.logger, "login", err)
		return
	}
	if user == nil || !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		writeError(w, http.StatusUnauthorized, kindAuth, "invalid credentials")
		return
	}

	token, err := h.provider.Issue(user.Username)
	if err != nil {
		writeServiceError(w, h.logger, "login", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"authenticated": true, "token": token})
}

func (h *APIHandler) CheckAuthHandler(w http.ResponseWriter, r *http.Request) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "message": "no token provided"})
		return
	}
	if _, err := h.provider.Authenticate(strings.TrimPrefix(authHeader, "Bearer ")); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"authenticated": true})
}

func (h *APIHandler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *APIHandler) UserInfoHandler(w http.ResponseWriter, r *http.Request) {
	user, err := h.dbStore.GetUserByUsername(tenantFrom(r))
	if err != nil {
		writeServiceError(w, h.logger, "user-info", err)
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, kindNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type updateUserRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

func (h *APIHandler) UpdateUserInfoHandler(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, kindValidation, "invalid request body: "+err.Error())
		return
	}
	if err := h.dbStore.UpdateUserProfile(tenantFrom(r), req.FirstName, req.LastName, req.Email); err != nil {
		writeServiceError(w, h.logger, "update-user-info", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// Chat handlers

type chatRequest struct {
	Question    string   `json:"question"`
	SessionName string   `json:"session_name"`
	Collections []string `json:"collections"` // empty selects every visible collection
	llm.ModelConfig
}

type chatResponse struct {
	Answer          string   `json:"answer"`
	SourceDocuments []string `json:"source_documents"`
}

func (h *APIHandler) ChatHandler(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, kindValidation, "invalid request body: "+err.Error())
		return
	}
	if req.Question == "" || req.SessionName == "" {
		writeError(w, http.StatusBadRequest, kindValidation, "question and session_name are required")
		return
	}

	retriever, err := h.collections.BuildRetriever(r.Context(), tenant, req.Collections)
	if err != nil {
		writeServiceError(w, h.logger, "chat", err)
		return
	}

	answer, sources, err := h.chat.Ask(r.Context(), tenant, req.SessionName, req.Question, retriever, req.ModelConfig)
	if err != nil {
		writeServiceError(w, h.logger, "chat", err)
		return
	}
	if sources == nil {
		sources = []string{}
	}
	writeJSON(w, http.StatusOK, chatResponse{Answer: answer, SourceDocuments: sources})
}

func (h *APIHandler) ChatHistoryHandler(w http.ResponseWriter, r *http.Request) {
	history, err := h.chat.History(tenantFrom(r))
	if err != nil {
		writeServiceError(w, h.logger, "chat-history", err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

type renameSessionRequest struct {
	OldName string `json:"old_name"`
	NewName string `json:"new_name"`
}

func (h *APIHandler) RenameSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req renameSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, kindValidation, "invalid request body: "+err.Error())
		return
	}
	if req.OldName == "" || req.NewName == "" {
		writeError(w, http.StatusBadRequest, kindValidation, "old_name and new_name are required")
		return
	}
	if err := h.chat.RenameSession(tenantFrom(r), req.OldName, req.NewName); err != nil {
		writeServiceError(w, h.logger, "rename-session", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

type deleteSessionRequest struct {
	SessionName string `json:"session_name"`
}

func (h *APIHandler) DeleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req deleteSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, kindValidation, "invalid request body: "+err.Error())
		return
	}
	if req.SessionName == "" {
		writeError(w, http.StatusBadRequest, kindValidation, "session_name is required")
		return
	}
	if err := h.chat.DeleteSession(tenantFrom(r), req.SessionName); err != nil {
		writeServiceError(w, h.logger, "delete-session", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *APIHandler) ResetSessionsHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.chat.ResetAll(tenantFrom(r)); err != nil {
		writeServiceError(w, h.logger, "reset-sessions", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// Structured export handlers

type exportRequest struct {
	Prompt      string   `json:"prompt"`
	Collections []string `json:"collections"` // optional override of the default source collections
	llm.ModelConfig
}

func (h *APIHandler) ExportUnitTestsHandler(w http.ResponseWriter, r *http.Request) {
	h.exportCSV(w, r, []string{collectionGitLab, collectionGitHub}, func(answer string) (string, error) {
		cases, results := extract.ParseUnitTests(answer)
		return extract.UnitTestsCSV(cases, results)
	})
}

func (h *APIHandler) ExportAcceptanceCriteriaHandler(w http.ResponseWriter, r *http.Request) {
	h.exportCSV(w, r, []string{collectionIssues, collectionIssue}, func(answer string) (string, error) {
		ids, criteria := extract.ParseAcceptanceCriteria(answer)
		return extract.AcceptanceCriteriaCSV(ids, criteria)
	})
}

func (h *APIHandler) exportCSV(w http.ResponseWriter, r *http.Request, defaultCollections []string, render func(string) (string, error)) {
	tenant := tenantFrom(r)

	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, kindValidation, "invalid request body: "+err.Error())
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, kindValidation, "prompt is required")
		return
	}

	names := req.Collections
	if len(names) == 0 {
		names = defaultCollections
	}
	retriever, err := h.collections.BuildRetriever(r.Context(), tenant, names)
	if err != nil {
		writeServiceError(w, h.logger, "export", err)
		return
	}
	if core.IsNullRetriever(retriever) {
		writeError(w, http.StatusBadRequest, kindValidation,
			"no ingested chunks found for collections: "+strings.Join(names, ", "))
		return
	}

	answer, err := h.chat.Complete(r.Context(), req.Prompt, retriever, req.ModelConfig)
	if err != nil {
		writeServiceError(w, h.logger, "export", err)
		return
	}

	csvContent, err := render(answer)
	if err != nil {
		writeServiceError(w, h.logger, "export", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(csvContent))
}
