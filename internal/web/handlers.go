package web

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"

	"github.com/JonMunkholm/talkimport/internal/core"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// multipartMemory is how much of a form ParseMultipartForm keeps in memory
// before spilling to temp files.
const multipartMemory = 8 << 20

type healthResponse struct {
	Status  string                    `json:"status"`
	Uploads *core.UploadLimiterStatus `json:"uploads,omitempty"`
	Queue   *core.DispatcherStatus    `json:"queue,omitempty"`
}

type jobListResponse struct {
	Jobs  []*core.ImportJob `json:"jobs"`
	Count int               `json:"count"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if l := s.service.Limiter(); l != nil {
		st := l.Status()
		resp.Uploads = &st
	}
	if s.queue != nil {
		st := s.queue.Status()
		resp.Queue = &st
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// handleUpload stores a multipart "file" and creates or returns its job.
// New jobs answer 202, known content answers 200 with the existing job.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Import.MaxFileSize
	// Leave room for the multipart envelope; the intake enforces the exact limit.
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartMemory)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			respondError(w, r, fmt.Errorf("%w: %v", core.ErrFileTooLarge, err))
			return
		}
		respondError(w, r, fmt.Errorf("%w: %v", errNoFile, err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, r, errNoFile)
		return
	}
	defer file.Close()

	if !isCSVUpload(header.Filename, header.Header.Get("Content-Type")) {
		respondError(w, r, core.ErrNotCSV)
		return
	}
	if header.Size == 0 {
		respondError(w, r, core.ErrEmptyFile)
		return
	}
	if header.Size > maxSize {
		respondError(w, r, fmt.Errorf("%w: %d bytes", core.ErrFileTooLarge, header.Size))
		return
	}

	job, created, err := s.service.Upload(r.Context(), file, header.Filename)
	if err != nil {
		respondError(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusAccepted
	}
	writeJSON(w, r, status, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", core.DefaultListLimit)
	jobs, err := s.service.ListJobs(r.Context(), limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if jobs == nil {
		jobs = []*core.ImportJob{}
	}
	writeJSON(w, r, http.StatusOK, jobListResponse{Jobs: jobs, Count: len(jobs)})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(r)
	if !ok {
		respondError(w, r, core.ErrJobNotFound)
		return
	}
	job, err := s.service.GetJob(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, job)
}

// handleStartJob triggers an existing job. Completed jobs are returned as is.
func (s *Server) handleStartJob(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(r)
	if !ok {
		respondError(w, r, core.ErrJobNotFound)
		return
	}
	job, err := s.service.StartImport(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusAccepted, job)
}

func jobID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	return id, err == nil
}

// parseIntParam parses a positive integer query parameter.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v < 1 {
		return defaultVal
	}
	return v
}

// isCSVUpload accepts a .csv name or a text/csv part content type.
func isCSVUpload(fileName, contentType string) bool {
	if core.IsCSVFileName(fileName) {
		return true
	}
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && mt == "text/csv"
}
