package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"ragserver/internal/fetch"
)

// Fixed collection names per ingestion source. Re-ingesting the same kind of
// source for a tenant lands in the same collection, and chunk ids are derived
// from content, so repeated ingestion is a no-op for unchanged documents.
const (
	collectionWiki   = "Wiki Space"
	collectionIssues = "Issue Tracker Project"
	collectionIssue  = "Issue Tracker Issue"
	collectionPDF    = "PDF Document"
	collectionGitHub = "GitHub Repository"
	collectionGitLab = "GitLab Repository"
)

type ingestResponse struct {
	Success      bool   `json:"success"`
	CollectionID string `json:"collection_id"`
}

type wikiIngestRequest struct {
	WikiURL     string `json:"wiki_url"`
	AccessToken string `json:"access_token"`
}

func (h *APIHandler) IngestWikiHandler(w http.ResponseWriter, r *http.Request) {
	var req wikiIngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, kindValidation, "invalid request body: "+err.Error())
		return
	}
	if req.WikiURL == "" {
		writeError(w, http.StatusBadRequest, kindValidation, "wiki_url is required")
		return
	}

	fetcher, err := fetch.NewWikiFetcher(h.client, req.WikiURL, req.AccessToken)
	if err != nil {
		writeError(w, http.StatusBadRequest, kindValidation, err.Error())
		return
	}
	text, err := fetcher.FetchSpace(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, kindCollaborator, err.Error())
		return
	}
	h.ingestText(w, r, collectionWiki, text)
}

type issuesIngestRequest struct {
	TrackerURL  string `json:"tracker_url"`
	ProjectKey  string `json:"project_key"`
	IssueID     string `json:"issue_id"`
	AccessToken string `json:"access_token"`
}

func (h *APIHandler) IngestIssuesHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeIssuesRequest(w, r)
	if !ok {
		return
	}

	fetcher := fetch.NewIssueFetcher(h.client, req.TrackerURL, req.AccessToken)
	text, err := fetcher.FetchProjectStories(r.Context(), req.ProjectKey)
	if err != nil {
		writeError(w, http.StatusInternalServerError, kindCollaborator, err.Error())
		return
	}
	h.ingestText(w, r, collectionIssues, text)
}

func (h *APIHandler) IngestIssueHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeIssuesRequest(w, r)
	if !ok {
		return
	}
	if req.IssueID == "" {
		writeError(w, http.StatusBadRequest, kindValidation, "issue_id is required")
		return
	}

	fetcher := fetch.NewIssueFetcher(h.client, req.TrackerURL, req.AccessToken)
	text, err := fetcher.FetchIssue(r.Context(), req.ProjectKey, req.IssueID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, kindCollaborator, err.Error())
		return
	}
	h.ingestText(w, r, collectionIssue, text)
}

func (h *APIHandler) decodeIssuesRequest(w http.ResponseWriter, r *http.Request) (issuesIngestRequest, bool) {
	var req issuesIngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, kindValidation, "invalid request body: "+err.Error())
		return req, false
	}
	if req.TrackerURL == "" || req.ProjectKey == "" {
		writeError(w, http.StatusBadRequest, kindValidation, "tracker_url and project_key are required")
		return req, false
	}
	return req, true
}

type repoIngestRequest struct {
	RepoURL     string `json:"repo_url"`
	AccessToken string `json:"access_token"`
}

func (h *APIHandler) IngestGitHubHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRepoRequest(w, r)
	if !ok {
		return
	}

	text, err := fetch.NewRepoFetcher(h.client).FetchGitHub(r.Context(), req.RepoURL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, kindCollaborator, err.Error())
		return
	}
	h.ingestText(w, r, collectionGitHub, text)
}

func (h *APIHandler) IngestGitLabHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRepoRequest(w, r)
	if !ok {
		return
	}

	text, err := fetch.NewRepoFetcher(h.client).FetchGitLab(r.Context(), req.RepoURL, req.AccessToken)
	if err != nil {
		writeError(w, http.StatusInternalServerError, kindCollaborator, err.Error())
		return
	}
	h.ingestText(w, r, collectionGitLab, text)
}

func (h *APIHandler) decodeRepoRequest(w http.ResponseWriter, r *http.Request) (repoIngestRequest, bool) {
	var req repoIngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, kindValidation, "invalid request body: "+err.Error())
		return req, false
	}
	if req.RepoURL == "" {
		writeError(w, http.StatusBadRequest, kindValidation, "repo_url is required")
		return req, false
	}
	return req, true
}

func (h *APIHandler) IngestPDFHandler(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, kindValidation, "a PDF file upload named 'file' is required")
		return
	}
	defer file.Close()
	if !strings.HasSuffix(strings.ToLower(header.Filename), ".pdf") {
		writeError(w, http.StatusBadRequest, kindValidation, "only PDF files are supported")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, kindValidation, "failed to read uploaded file: "+err.Error())
		return
	}
	text, err := fetch.ExtractPDFText(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		writeError(w, http.StatusBadRequest, kindValidation, "failed to parse PDF: "+err.Error())
		return
	}
	h.ingestText(w, r, collectionPDF, text)
}

func (h *APIHandler) ingestText(w http.ResponseWriter, r *http.Request, collection, text string) {
	collectionID, err := h.collections.IngestText(r.Context(), tenantFrom(r), collection, text)
	if err != nil {
		writeServiceError(w, h.logger, "ingest", err)
		return
	}
	writeJSON(w, http.StatusOK, ingestResponse{Success: true, CollectionID: collectionID})
}
