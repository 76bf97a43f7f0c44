package server

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/Sumatoshi-tech/codereport/pkg/analysis"
	"github.com/Sumatoshi-tech/codereport/pkg/github"
	"github.com/Sumatoshi-tech/codereport/pkg/intake"
	"github.com/Sumatoshi-tech/codereport/pkg/observability"
	"github.com/Sumatoshi-tech/codereport/pkg/report"
	"github.com/Sumatoshi-tech/codereport/pkg/reportstore"
	"github.com/Sumatoshi-tech/codereport/pkg/service"
)

// Messages shown on the index page.
const (
	msgNoUploadFiles   = "No supported code files found in the upload."
	msgEmptyPRURL      = "Please provide a valid GitHub PR URL."
	msgInvalidPRURL    = "Invalid GitHub PR URL format. Expected: https://github.com/owner/repo/pull/number"
	msgNoPRFiles       = "No supported code files found in the PR or unable to access the repository."
	msgNoPRSupported   = "No supported code files found in the PR."
	msgInvalidResponse = "Invalid response from GitHub API. Please check your access token if you're using one."
	msgBusy            = "The server is busy; please try again."
	msgUploadTooLarge  = "The upload exceeds the maximum size of %s."
	msgFormTooLarge    = "The request exceeds the maximum size of %s."
	prefixNetwork      = "Network error accessing GitHub API: "
	prefixPRError      = "Error analyzing PR: "
	prefixUploadError  = "Error analyzing upload: "
	prefixArchive      = "Invalid upload: "
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.renderIndex(w, r, http.StatusOK, "")
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)

	parseErr := r.ParseMultipartForm(multipartMemory)
	if parseErr != nil {
		if !s.renderTooLarge(w, r, parseErr, msgUploadTooLarge) {
			http.Redirect(w, r, "/", http.StatusSeeOther)
		}

		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)

		return
	}
	defer file.Close()

	if header.Filename == "" {
		http.Redirect(w, r, "/", http.StatusSeeOther)

		return
	}

	release, ok := s.acquire(w, r)
	if !ok {
		return
	}
	defer release()

	rep, err := s.svc.AnalyzeUpload(r.Context(), header.Filename, file)

	switch {
	case err == nil:
		s.sendReport(w, r, rep, nil)
	case errors.Is(err, analysis.ErrNoSupportedFiles):
		s.renderIndex(w, r, http.StatusUnprocessableEntity, msgNoUploadFiles)
	case errors.Is(err, intake.ErrEmptyFilename):
		http.Redirect(w, r, "/", http.StatusSeeOther)
	case errors.Is(err, intake.ErrUnsafePath), errors.Is(err, intake.ErrArchiveTooLarge), intake.IsInvalidArchive(err):
		s.renderIndex(w, r, http.StatusBadRequest, prefixArchive+err.Error())
	default:
		s.logger.ErrorContext(r.Context(), "upload analysis failed", "file", header.Filename, "error", err)
		s.renderIndex(w, r, http.StatusInternalServerError, prefixUploadError+err.Error())
	}
}

func (s *Server) handleAnalyzePR(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)

	parseErr := r.ParseForm()
	if parseErr != nil {
		if !s.renderTooLarge(w, r, parseErr, msgFormTooLarge) {
			s.renderIndex(w, r, http.StatusBadRequest, msgEmptyPRURL)
		}

		return
	}

	prURL := strings.TrimSpace(r.PostFormValue("pr_url"))
	if prURL == "" {
		s.renderIndex(w, r, http.StatusBadRequest, msgEmptyPRURL)

		return
	}

	ref, err := github.ParsePRURL(prURL)
	if err != nil {
		s.renderIndex(w, r, http.StatusBadRequest, msgInvalidPRURL)

		return
	}

	release, ok := s.acquire(w, r)
	if !ok {
		return
	}
	defer release()

	rep, err := s.svc.AnalyzePR(r.Context(), ref)
	if err == nil {
		s.sendReport(w, r, rep, &ref)

		return
	}

	s.logger.WarnContext(r.Context(), "pr analysis failed", "pr", ref.String(), "error", err)

	status, message := prErrorMessage(err)
	s.renderIndex(w, r, status, message)
}

// renderTooLarge answers 413 when err comes from the body size cap and
// reports whether it did.
func (s *Server) renderTooLarge(w http.ResponseWriter, r *http.Request, err error, format string) bool {
	var tooLarge *http.MaxBytesError
	if !errors.As(err, &tooLarge) {
		return false
	}

	s.renderIndex(w, r, http.StatusRequestEntityTooLarge, fmt.Sprintf(format, humanize.Bytes(uint64(tooLarge.Limit))))

	return true
}

// prErrorMessage maps a PR analysis failure to a status and user message.
func prErrorMessage(err error) (int, string) {
	var (
		urlErr *url.Error
		apiErr *github.APIError
	)

	switch {
	case errors.Is(err, service.ErrNoPRFiles):
		return http.StatusUnprocessableEntity, msgNoPRFiles
	case errors.Is(err, analysis.ErrNoSupportedFiles):
		return http.StatusUnprocessableEntity, msgNoPRSupported
	case errors.Is(err, github.ErrNetwork) && errors.As(err, &urlErr):
		return http.StatusBadGateway, prefixNetwork + urlErr.Error()
	case errors.Is(err, github.ErrNetwork):
		return http.StatusBadGateway, prefixNetwork + err.Error()
	case errors.Is(err, github.ErrInvalidResponse):
		return http.StatusBadGateway, msgInvalidResponse
	case errors.As(err, &apiErr):
		return http.StatusBadGateway, prefixPRError + apiErr.Error()
	default:
		return http.StatusInternalServerError, prefixPRError + err.Error()
	}
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	doc, meta, err := s.store.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, reportstore.ErrNotFound) || errors.Is(err, reportstore.ErrInvalidID) {
		http.NotFound(w, r)

		return
	}

	if err != nil {
		s.logger.ErrorContext(r.Context(), "report load failed", "id", r.PathValue("id"), "error", err)
		http.Error(w, "failed to load report", http.StatusInternalServerError)

		return
	}

	w.Header().Set(headerReportID, meta.ID)
	writeDocument(w, doc)
}

// acquire takes an analysis slot, waiting until one frees up or the request
// is abandoned.
func (s *Server) acquire(w http.ResponseWriter, r *http.Request) (func(), bool) {
	err := s.sem.Acquire(r.Context(), 1)
	if err != nil {
		s.renderIndex(w, r, http.StatusServiceUnavailable, msgBusy)

		return nil, false
	}

	return func() { s.sem.Release(1) }, true
}

func (s *Server) sendReport(w http.ResponseWriter, r *http.Request, rep *analysis.Report, ref *github.PRRef) {
	ctx := r.Context()

	doc, err := service.Document(rep, report.FormatPDF, ref, s.reportOpts)
	if err != nil {
		s.logger.ErrorContext(ctx, "report render failed", "error", err)
		s.renderIndex(w, r, http.StatusInternalServerError, "Error generating report: "+err.Error())

		return
	}

	meta, err := s.store.Put(ctx, doc)
	if err != nil {
		// The download still works; only the later /reports link is lost.
		s.logger.WarnContext(ctx, "report store failed", "error", err)
	} else {
		w.Header().Set(headerReportID, meta.ID)
		ctx = observability.WithAnalysisID(ctx, meta.ID)
	}

	s.logger.InfoContext(ctx, "report generated",
		"title", rep.Title,
		"languages", len(rep.Languages),
		"bytes", len(doc.Body))

	writeDocument(w, doc)
}

func writeDocument(w http.ResponseWriter, doc reportstore.Document) {
	contentType := doc.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.Body)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.Name}))
	w.WriteHeader(http.StatusOK)

	_, _ = w.Write(doc.Body)
}
