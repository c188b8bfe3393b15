package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/JonMunkholm/catalogxlate/internal/core"
	"github.com/JonMunkholm/catalogxlate/internal/logging"
	mw "github.com/JonMunkholm/catalogxlate/internal/web/middleware"
)

// handleProcess runs one orchestration pass and reports it as plain text.
// The trigger secret processes every store; a session only its own.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	p, _ := mw.PrincipalFrom(r.Context())

	var store *string
	if !p.AllStores {
		store = &p.StoreHash
	}

	summary, err := s.jobs.ProcessPending(r.Context(), store)
	switch {
	case errors.Is(err, core.ErrRunInProgress):
		writeText(w, http.StatusConflict, "Job processing is already running, try again shortly")
		return
	case err != nil:
		logging.FromContext(r.Context()).Error("job processing failed", "error", err)
		writeText(w, http.StatusInternalServerError, "Job processing failed: "+core.FormatUserError(err))
		return
	}

	writeText(w, http.StatusOK, fmt.Sprintf(
		"Jobs processed successfully: %d pending, %d completed, %d failed, %d skipped",
		summary.Pending, summary.Completed, summary.Failed, summary.Skipped,
	))
}

// jobResponse adds the user-facing explanation of a failed job.
type jobResponse struct {
	core.TranslationJob
	ErrorDetail *core.UserMessage `json:"errorDetail,omitempty"`
}

func newJobResponse(job core.TranslationJob) jobResponse {
	resp := jobResponse{TranslationJob: job}
	if job.Error != nil {
		msg := core.MapMessage(*job.Error)
		resp.ErrorDetail = &msg
	}
	return resp
}

// scopeStore resolves the store a request acts on. Sessions are pinned to
// their own store; the trigger secret may name any store or none.
func scopeStore(r *http.Request, requested string) (string, error) {
	p, _ := mw.PrincipalFrom(r.Context())
	if p.AllStores {
		return requested, nil
	}
	if requested != "" && requested != p.StoreHash {
		return "", errForbidden
	}
	return p.StoreHash, nil
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	store, err := scopeStore(r, q.Get("store"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	filter := core.JobFilter{StoreHash: store, Status: core.JobStatus(q.Get("status"))}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, r, fmt.Errorf("%w: limit must be a positive number", core.ErrInvalidRequest))
			return
		}
		filter.Limit = n
	}

	jobs, err := s.jobs.ListJobs(r.Context(), filter)
	if err != nil {
		respondError(w, r, err)
		return
	}
	out := make([]jobResponse, len(jobs))
	for i, j := range jobs {
		out[i] = newJobResponse(j)
	}
	writeJSON(w, r, http.StatusOK, out)
}

// loadJob fetches the job named in the URL and checks the caller may see it.
// Jobs of other stores answer not found.
func (s *Server) loadJob(r *http.Request) (core.TranslationJob, error) {
	id, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		return core.TranslationJob{}, errBadJobID
	}
	job, err := s.jobs.GetJob(r.Context(), id)
	if err != nil {
		return core.TranslationJob{}, err
	}
	if p, _ := mw.PrincipalFrom(r.Context()); !p.CanAccess(job.StoreHash) {
		return core.TranslationJob{}, core.ErrJobNotFound
	}
	return job, nil
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.loadJob(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, newJobResponse(job))
}

func (s *Server) handleJobErrors(w http.ResponseWriter, r *http.Request) {
	job, err := s.loadJob(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	rows, err := s.jobs.ListJobErrors(r.Context(), job.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, rows)
}

type createJobRequest struct {
	StoreHash     string `json:"storeHash"`
	ChannelID     int64  `json:"channelId"`
	Locale        string `json:"locale"`
	DefaultLocale string `json:"defaultLocale"`
}

func (s *Server) handleCreateExport(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		respondError(w, r, fmt.Errorf("%w: %v", errBadPayload, err))
		return
	}

	store, err := scopeStore(r, req.StoreHash)
	if err != nil {
		respondError(w, r, err)
		return
	}

	job, err := s.jobs.CreateExportJob(r.Context(), core.NewJob{
		StoreHash:     store,
		ChannelID:     req.ChannelID,
		Locale:        req.Locale,
		DefaultLocale: req.DefaultLocale,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusAccepted, newJobResponse(job))
}

// handleCreateImport accepts a multipart form with a "file" part and the
// storeHash, channelId, locale and defaultLocale fields.
func (s *Server) handleCreateImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadSize)
	if err := r.ParseMultipartForm(s.opts.MaxUploadSize); err != nil {
		respondError(w, r, fmt.Errorf("%w: %v", errBadPayload, err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, r, fmt.Errorf("%w: file part is required", core.ErrInvalidRequest))
		return
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".csv") {
		respondError(w, r, fmt.Errorf("%w: file must be a .csv", core.ErrInvalidRequest))
		return
	}
	content, err := io.ReadAll(file)
	if err != nil {
		respondError(w, r, fmt.Errorf("read upload: %w", err))
		return
	}

	store, err := scopeStore(r, r.FormValue("storeHash"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	channelID, _ := strconv.ParseInt(r.FormValue("channelId"), 10, 64)

	job, err := s.jobs.CreateImportJob(r.Context(), core.NewJob{
		StoreHash:     store,
		ChannelID:     channelID,
		Locale:        r.FormValue("locale"),
		DefaultLocale: r.FormValue("defaultLocale"),
	}, content)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusAccepted, newJobResponse(job))
}
