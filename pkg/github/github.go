// Package github fetches the changed files of a GitHub pull request through
// the REST API so they can be analyzed locally.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"

	"github.com/Sumatoshi-tech/codereport/pkg/language"
)

// Sentinel errors.
var (
	ErrInvalidPRURL    = errors.New("invalid GitHub PR URL")
	ErrInvalidBaseURL  = errors.New("invalid GitHub API URL")
	ErrNetwork         = errors.New("network error accessing GitHub API")
	ErrInvalidResponse = errors.New("invalid response from GitHub API")
	ErrUnsafePath      = errors.New("file path escapes destination")
	ErrFileTooLarge    = errors.New("file exceeds download limit")
)

// Defaults.
const (
	DefaultAPIURL      = "https://api.github.com"
	DefaultMaxFiles    = 3000
	DefaultTimeout     = 30 * time.Second
	DefaultMaxFileSize = 20 << 20
	defaultPerPage     = 100
	defaultRPS         = 10
	maxErrorBodyBytes  = 4 << 10
	statusRemoved      = "removed"
	rawHost            = "raw.githubusercontent.com"
	publicAPIHost      = "api.github.com"
	acceptJSON         = "application/vnd.github+json"
	defaultUserAgent   = "codereport"
	contentsPathMarker = "/contents/"
)

var (
	prURLRe   = regexp.MustCompile(`^https?://github\.com/([^/]+)/([^/]+)/pull/(\d+)(?:[/?#].*)?$`)
	validName = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
)

// PRRef identifies a pull request.
type PRRef struct {
	Owner  string
	Repo   string
	Number int
}

// String renders "owner/repo PR #n", the report title for a PR.
func (r PRRef) String() string {
	return fmt.Sprintf("%s/%s PR #%d", r.Owner, r.Repo, r.Number)
}

// ParsePRURL parses https://github.com/<owner>/<repo>/pull/<n>, allowing
// trailing segments such as /files.
func ParsePRURL(raw string) (PRRef, error) {
	match := prURLRe.FindStringSubmatch(strings.TrimSpace(raw))
	if match == nil {
		return PRRef{}, fmt.Errorf("%w: %q", ErrInvalidPRURL, raw)
	}

	if !validName.MatchString(match[1]) || !validName.MatchString(match[2]) {
		return PRRef{}, fmt.Errorf("%w: %q", ErrInvalidPRURL, raw)
	}

	number, err := strconv.Atoi(match[3])
	if err != nil || number <= 0 {
		return PRRef{}, fmt.Errorf("%w: %q", ErrInvalidPRURL, raw)
	}

	return PRRef{Owner: match[1], Repo: match[2], Number: number}, nil
}

// APIError is a non-200 response from the files listing.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("failed to fetch PR files: %d %s", e.StatusCode, e.Body)
}

// FetchResult describes what was downloaded.
type FetchResult struct {
	// Files are the downloaded paths, relative to the destination.
	Files []string
	// Skipped are PR paths that were not downloaded.
	Skipped   []string
	Languages map[language.Language]int
}

// Client talks to the GitHub REST API.
type Client struct {
	baseURL   *url.URL
	token     string
	userAgent string
	maxFiles  int
	maxBytes  int64
	http      *http.Client
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithToken sends "Authorization: token <t>" on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithRateLimit throttles API and download requests to rps per second.
// A non-positive rps disables throttling.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)

			return
		}

		c.limiter = rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
	}
}

// WithMaxFiles caps how many PR files are listed.
func WithMaxFiles(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxFiles = n
		}
	}
}

// WithMaxFileSize caps the size of one downloaded file. Larger files are
// skipped rather than truncated.
func WithMaxFileSize(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBytes = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// NewClient returns a client for the API at baseURL (DefaultAPIURL when
// empty). The URL must be absolute http or https.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}

	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, baseURL)
	}

	c := &Client{
		baseURL:   u,
		userAgent: defaultUserAgent,
		maxFiles:  DefaultMaxFiles,
		maxBytes:  DefaultMaxFileSize,
		http:      &http.Client{Timeout: DefaultTimeout},
		limiter:   rate.NewLimiter(defaultRPS, defaultRPS),
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// prFile is one entry of the pulls/{n}/files listing.
type prFile struct {
	Filename    string `json:"filename"`
	Status      string `json:"status"`
	RawURL      string `json:"raw_url"`
	ContentsURL string `json:"contents_url"`
}

// FetchPRFiles downloads the supported, non-removed files of ref into dir,
// preserving their repository paths. Individual download failures are
// skipped; a failed listing is an error.
func (c *Client) FetchPRFiles(ctx context.Context, ref PRRef, dir string) (FetchResult, error) {
	files, err := c.listFiles(ctx, ref)
	if err != nil {
		return FetchResult{}, err
	}

	result := FetchResult{Languages: make(map[language.Language]int)}

	for _, file := range files {
		lang, ok := language.ForPath(file.Filename)
		if !ok || file.Status == statusRemoved {
			result.Skipped = append(result.Skipped, file.Filename)

			continue
		}

		downloadErr := c.download(ctx, file, dir)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, fmt.Errorf("fetch PR files: %w", ctxErr)
		}

		if downloadErr != nil {
			c.logger.WarnContext(ctx, "pr file skipped", "file", file.Filename, "error", downloadErr)
			result.Skipped = append(result.Skipped, file.Filename)

			continue
		}

		result.Files = append(result.Files, file.Filename)
		result.Languages[lang]++
	}

	attrs := []any{"pr", ref.String(), "downloaded", len(result.Files), "skipped", len(result.Skipped)}
	for _, lang := range language.All() {
		if n := result.Languages[lang]; n > 0 {
			attrs = append(attrs, string(lang), n)
		}
	}

	c.logger.InfoContext(ctx, "pr files fetched", attrs...)

	return result, nil
}

func (c *Client) listFiles(ctx context.Context, ref PRRef) ([]prFile, error) {
	var files []prFile

	for page := 1; len(files) < c.maxFiles; page++ {
		endpoint := c.baseURL.JoinPath("repos", ref.Owner, ref.Repo, "pulls", strconv.Itoa(ref.Number), "files")
		endpoint.RawQuery = url.Values{
			"per_page": {strconv.Itoa(defaultPerPage)},
			"page":     {strconv.Itoa(page)},
		}.Encode()

		var batch []prFile

		err := c.getJSON(ctx, endpoint.String(), &batch)
		if err != nil {
			return nil, err
		}

		files = append(files, batch...)

		if len(batch) < defaultPerPage {
			break
		}
	}

	if len(files) > c.maxFiles {
		files = files[:c.maxFiles]
	}

	return files, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	resp, err := c.do(ctx, endpoint, acceptJSON)
	if err != nil {
		return err
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	err = json.NewDecoder(resp.Body).Decode(out)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}

	return nil
}

func (c *Client) do(ctx context.Context, endpoint, accept string) (*http.Response, error) {
	err := c.limiter.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("wait for rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", c.userAgent)

	if c.token != "" {
		req.Header.Set("Authorization", "token "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}

	return resp, nil
}

func (c *Client) download(ctx context.Context, file prFile, dir string) error {
	target, err := SafeJoin(dir, file.Filename)
	if err != nil {
		return err
	}

	rawURL := file.RawURL
	if rawURL == "" {
		rawURL = DeriveRawURL(file.ContentsURL)
	}

	if rawURL == "" {
		return fmt.Errorf("no download URL for %s", file.Filename)
	}

	resp, err := c.do(ctx, rawURL, "*/*")
	if err != nil {
		return err
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Body: http.StatusText(resp.StatusCode)}
	}

	err = os.MkdirAll(filepath.Dir(target), 0o750)
	if err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	written, copyErr := io.Copy(out, io.LimitReader(resp.Body, c.maxBytes+1))
	closeErr := out.Close()

	err = errors.Join(copyErr, closeErr)
	if err == nil && written > c.maxBytes {
		err = fmt.Errorf("%w (%s)", ErrFileTooLarge, humanize.Bytes(uint64(c.maxBytes)))
	}

	if err != nil {
		_ = os.Remove(target)

		return fmt.Errorf("write %s: %w", file.Filename, err)
	}

	return nil
}

// SafeJoin joins a slash-separated repository path onto dir, rejecting
// absolute paths and paths that climb out of dir.
func SafeJoin(dir, name string) (string, error) {
	local := filepath.FromSlash(name)
	if name == "" || !filepath.IsLocal(local) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}

	return filepath.Join(dir, local), nil
}

// DeriveRawURL turns a contents API URL such as
// https://api.github.com/repos/o/r/contents/a/b.py?ref=sha into
// https://raw.githubusercontent.com/o/r/sha/a/b.py. It returns "" when the
// URL has no contents path.
func DeriveRawURL(contentsURL string) string {
	u, err := url.Parse(contentsURL)
	if err != nil || !strings.Contains(u.Path, contentsPathMarker) {
		return ""
	}

	repoPath, filePath, _ := strings.Cut(u.Path, contentsPathMarker)
	repoPath = strings.TrimPrefix(repoPath, "/repos")
	repoPath = strings.TrimPrefix(repoPath, "/api/v3/repos")

	raw := url.URL{Scheme: u.Scheme, Host: u.Host}
	if u.Host == publicAPIHost {
		raw.Host = rawHost
	}

	if ref := u.Query().Get("ref"); ref != "" {
		raw.Path = path.Join(repoPath, ref, filePath)
	} else {
		raw.Path = path.Join(repoPath, filePath)
	}

	return raw.String()
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, DefaultMaxFileSize))
	_ = body.Close()
}
