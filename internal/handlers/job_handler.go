package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/jeiths2202/ims-crawler/internal/interfaces"
	"github.com/jeiths2202/ims-crawler/internal/models"
)

// JobHandler exposes crawl job submission, status, cancellation, and the
// per-job progress stream.
type JobHandler struct {
	crawler interfaces.CrawlerService
	issues  interfaces.IssueStorage
	events  interfaces.EventService
	logger  arbor.ILogger
}

// NewJobHandler creates a new job handler
func NewJobHandler(crawler interfaces.CrawlerService, issues interfaces.IssueStorage, events interfaces.EventService, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		crawler: crawler,
		issues:  issues,
		events:  events,
		logger:  logger,
	}
}

type createJobRequest struct {
	UserID             string   `json:"user_id"`
	Query              string   `json:"query"`
	MaxIssues          int      `json:"max_issues,omitempty"`
	IncludeAttachments *bool    `json:"include_attachments,omitempty"`
	IncludeRelated     *bool    `json:"include_related,omitempty"`
	ProductCodes       []string `json:"product_codes,omitempty"`
	ForceRefresh       bool     `json:"force_refresh,omitempty"`
}

// CreateJobHandler handles POST /api/jobs. A cache hit returns the prior
// completed job; a miss starts execution in the background.
func (h *JobHandler) CreateJobHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	config := models.JobConfig{
		IncludeAttachments: true,
		IncludeRelated:     true,
		MaxIssues:          req.MaxIssues,
		ProductCodes:       req.ProductCodes,
	}
	if req.IncludeAttachments != nil {
		config.IncludeAttachments = *req.IncludeAttachments
	}
	if req.IncludeRelated != nil {
		config.IncludeRelated = *req.IncludeRelated
	}

	job, cached, err := h.crawler.CreateJob(r.Context(), req.UserID, req.Query, config, req.ForceRefresh)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !cached {
		go func() {
			if err := h.crawler.ExecuteJob(context.Background(), job.ID); err != nil {
				h.logger.Warn().
					Str("job_id", job.ID).
					Err(err).
					Msg("Job execution ended with error")
			}
		}()
	}

	WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id":    job.ID,
		"is_cached": cached,
		"status":    job.Status,
	})
}

// JobRoutesHandler dispatches /api/jobs/{id}, /api/jobs/{id}/cancel,
// /api/jobs/{id}/stream, and /api/jobs/{id}/results.
func (h *JobHandler) JobRoutesHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	parts := strings.SplitN(rest, "/", 2)
	jobID := parts[0]
	if jobID == "" {
		WriteError(w, http.StatusNotFound, "job id is required")
		return
	}

	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}

	switch action {
	case "":
		h.statusHandler(w, r, jobID)
	case "cancel":
		h.cancelHandler(w, r, jobID)
	case "stream":
		h.streamHandler(w, r, jobID)
	case "results":
		h.resultsHandler(w, r, jobID)
	default:
		WriteError(w, http.StatusNotFound, "unknown job action")
	}
}

func (h *JobHandler) statusHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	job, err := h.crawler.GetStatus(r.Context(), jobID)
	if err != nil {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

func (h *JobHandler) cancelHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	if err := h.crawler.Cancel(r.Context(), jobID); err != nil {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// resultsHandler returns the issues a completed job produced, newest ims id
// first regardless of the order ingestion finished in.
func (h *JobHandler) resultsHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	job, err := h.crawler.GetStatus(r.Context(), jobID)
	if err != nil {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}

	issues, err := h.issues.FindByIDs(r.Context(), job.ResultIssueIDs)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	sort.Slice(issues, func(i, j int) bool {
		return issues[i].IMSID > issues[j].IMSID
	})

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"job_id": job.ID,
		"status": job.Status,
		"issues": issues,
	})
}

// streamHandler serves the job's progress events over SSE until the job
// stream closes or the client disconnects.
func (h *JobHandler) streamHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	stream := h.events.Stream(jobID)
	for {
		select {
		case <-r.Context().Done():
			return
		case event, open := <-stream:
			if !open {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}
