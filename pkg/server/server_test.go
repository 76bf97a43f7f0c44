package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/codereport/pkg/analysis/analysistest"
	"github.com/Sumatoshi-tech/codereport/pkg/github"
	"github.com/Sumatoshi-tech/codereport/pkg/reportstore"
	"github.com/Sumatoshi-tech/codereport/pkg/server"
	"github.com/Sumatoshi-tech/codereport/pkg/service"
)

var fixedNow = time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)

type fixture struct {
	handler http.Handler
	store   *reportstore.Store
}

func newFixture(t *testing.T, gh *github.Client, opts ...server.Option) fixture {
	t.Helper()

	svcOpts := []service.Option{
		service.WithWorkspaceBase(t.TempDir()),
		service.WithClock(func() time.Time { return fixedNow }),
	}
	if gh != nil {
		svcOpts = append(svcOpts, service.WithGitHub(gh))
	}

	svc := service.New(analysistest.Registry(analysistest.Python()), svcOpts...)

	store, err := reportstore.Open(filepath.Join(t.TempDir(), "reports"))
	require.NoError(t, err)

	return fixture{handler: server.New(svc, store, opts...).Handler(), store: store}
}

func (f fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	return rec
}

func uploadRequest(t *testing.T, filename, content string) *http.Request {
	t.Helper()

	var body bytes.Buffer

	mw := multipart.NewWriter(&body)

	if filename != "-" {
		part, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)

		_, err = io.WriteString(part, content)
		require.NoError(t, err)
	}

	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/analyze", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	return req
}

func prRequest(prURL string) *http.Request {
	form := url.Values{"pr_url": {prURL}}

	req := httptest.NewRequest(http.MethodPost, "/analyze_pr", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return req
}

func TestIndex(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Code Quality Analyzer")
	assert.Contains(t, rec.Body.String(), `action="/analyze_pr"`)
	assert.Contains(t, rec.Body.String(), "<li>Python</li>")
	assert.Contains(t, rec.Body.String(), "Go (file counts only)")
	assert.Contains(t, rec.Body.String(), "up to 17 MB")
	assert.NotContains(t, rec.Body.String(), `role="alert"`)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAnalyzeUploadReturnsPDF(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)

	rec := f.do(uploadRequest(t, "main.py", "print('hi')\n"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename=code_quality_report_20261019_093000.pdf",
		rec.Header().Get("Content-Disposition"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")))

	id := rec.Header().Get("X-Report-ID")
	require.NotEmpty(t, id)

	again := f.do(httptest.NewRequest(http.MethodGet, "/reports/"+id, nil))
	require.Equal(t, http.StatusOK, again.Code)
	assert.Equal(t, rec.Body.Bytes(), again.Body.Bytes())
	assert.Equal(t, rec.Header().Get("Content-Disposition"), again.Header().Get("Content-Disposition"))
}

func TestAnalyzeUploadMissingFileRedirects(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)

	rec := f.do(uploadRequest(t, "-", ""))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestAnalyzeUploadNoSupportedFiles(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)

	rec := f.do(uploadRequest(t, "notes.txt", "hello"))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "No supported code files found in the upload.")
	assert.Empty(t, rec.Header().Get("X-Report-ID"))
}

func TestAnalyzeUploadInvalidArchive(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)

	rec := f.do(uploadRequest(t, "code.zip", "definitely not a zip"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid upload: ")
}

func TestAnalyzeUploadTooLarge(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, server.WithMaxUploadBytes(1024))

	rec := f.do(uploadRequest(t, "big.py", strings.Repeat("x = 1\n", 1000)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, rec.Body.String(), "The upload exceeds the maximum size of 1.0 kB.")
}

func TestAnalyzePRValidation(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)

	rec := f.do(prRequest("  "))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Please provide a valid GitHub PR URL.")

	rec = f.do(prRequest("https://github.com/acme/widgets/issues/3"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(),
		"Invalid GitHub PR URL format. Expected: https://github.com/owner/repo/pull/number")
}

func TestAnalyzePRTooLarge(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, server.WithMaxUploadBytes(1024))

	rec := f.do(prRequest("https://github.com/acme/widgets/pull/3?pad=" + strings.Repeat("x", 4096)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, rec.Body.String(), "The request exceeds the maximum size of 1.0 kB.")
	assert.NotContains(t, rec.Body.String(), "Please provide a valid GitHub PR URL.")
}

func TestAnalyzeUploadNotMultipartRedirects(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader("file=main.py"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := f.do(req)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func fakeGitHub(t *testing.T, files ...string) *httptest.Server {
	t.Helper()

	var srv *httptest.Server

	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/widgets/pulls/3/files", func(w http.ResponseWriter, _ *http.Request) {
		entries := make([]map[string]string, 0, len(files))
		for _, name := range files {
			entries = append(entries, map[string]string{
				"filename": name, "status": "modified", "raw_url": srv.URL + "/raw/" + name,
			})
		}

		_ = json.NewEncoder(w).Encode(entries)
	})
	mux.HandleFunc("GET /raw/{path...}", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, "value = 1")
	})

	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv
}

func TestAnalyzePRReturnsPDF(t *testing.T) {
	t.Parallel()

	gh, err := github.NewClient(fakeGitHub(t, "lib/util.py").URL, github.WithRateLimit(0))
	require.NoError(t, err)

	f := newFixture(t, gh)

	rec := f.do(prRequest("https://github.com/acme/widgets/pull/3"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "attachment; filename=code_quality_report_PR_acme_widgets_3_20261019_093000.pdf",
		rec.Header().Get("Content-Disposition"))
	assert.NotEmpty(t, rec.Header().Get("X-Report-ID"))
}

func TestAnalyzePRWithoutSupportedFiles(t *testing.T) {
	t.Parallel()

	gh, err := github.NewClient(fakeGitHub(t, "README.md").URL, github.WithRateLimit(0))
	require.NoError(t, err)

	f := newFixture(t, gh)

	rec := f.do(prRequest("https://github.com/acme/widgets/pull/3"))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(),
		"No supported code files found in the PR or unable to access the repository.")
}

func TestAnalyzePRNetworkError(t *testing.T) {
	t.Parallel()

	dead := httptest.NewServer(http.NotFoundHandler())
	base := dead.URL
	dead.Close()

	gh, err := github.NewClient(base, github.WithRateLimit(0))
	require.NoError(t, err)

	f := newFixture(t, gh)

	rec := f.do(prRequest("https://github.com/acme/widgets/pull/3"))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "Network error accessing GitHub API: ")
}

func TestAnalyzePRAPIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "Bad credentials", http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	gh, err := github.NewClient(srv.URL, github.WithRateLimit(0))
	require.NoError(t, err)

	f := newFixture(t, gh)

	rec := f.do(prRequest("https://github.com/acme/widgets/pull/3"))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "Error analyzing PR: failed to fetch PR files: 401 Bad credentials")
}

func TestReportNotFound(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)

	for _, id := range []string{"not-a-uuid", "2f1c7f64-9a1e-4c1b-a3c4-6f0d3f0e9b11"} {
		rec := f.do(httptest.NewRequest(http.MethodGet, "/reports/"+id, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, id)
	}
}

func TestHealthAndReady(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = f.do(httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsHandler(t *testing.T) {
	t.Parallel()

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, "codereport_requests_total 1")
	})

	f := newFixture(t, nil, server.WithMetricsHandler(metrics))

	rec := f.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "codereport_requests_total")
}

func TestServeShutsDownOnCancel(t *testing.T) {
	t.Parallel()

	svc := service.New(analysistest.Registry(analysistest.Python()))

	store, err := reportstore.Open(t.TempDir())
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- server.New(svc, store).Serve(ctx, ln, server.Timeouts{Shutdown: time.Second}, time.Hour)
	}()

	require.Eventually(t, func() bool {
		resp, getErr := http.Get("http://" + ln.Addr().String() + "/healthz")
		if getErr != nil {
			return false
		}

		_ = resp.Body.Close()

		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()

	select {
	case err = <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
