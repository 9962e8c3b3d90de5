package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"

	"github.com/jeiths2202/ims-crawler/internal/common"
)

// Service implements ScraperService against an IMS web frontend. One
// instance serves one user at a time; the orchestrator serializes access.
type Service struct {
	config *common.ScraperConfig

	mu        sync.Mutex
	client    *http.Client
	baseURL   string
	username  string
	loggedIn  bool
	loginTime time.Time

	limiter *rate.Limiter
	logger  arbor.ILogger
}

// NewService creates a new scraper service
func NewService(config *common.ScraperConfig, logger arbor.ILogger) *Service {
	rps := config.RequestsPerSecond
	if rps <= 0 {
		rps = 4
	}
	return &Service{
		config:  config,
		limiter: rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		logger:  logger,
	}
}

// ensureClient lazily builds the HTTP client with a fresh cookie jar.
func (s *Service) ensureClient() (*http.Client, error) {
	if s.client != nil {
		return s.client, nil
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	s.client = &http.Client{
		Jar:     jar,
		Timeout: s.config.NavigationTimeout,
	}
	return s.client, nil
}

// sessionAlive reports whether the cached login is still usable.
func (s *Service) sessionAlive() bool {
	if !s.loggedIn || s.client == nil {
		return false
	}
	maxAge := s.config.SessionMaxAge
	if maxAge <= 0 {
		maxAge = 20 * time.Minute
	}
	return time.Since(s.loginTime) < maxAge
}

// InvalidateSession drops any cached session so the next Login
// re-authenticates from scratch.
func (s *Service) InvalidateSession() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.client = nil
	s.loggedIn = false
	s.username = ""
	s.logger.Debug().Msg("Scraper session invalidated")
}

// fetch issues a rate-limited GET through the session and returns the body.
func (s *Service) fetch(ctx context.Context, rawURL string, timeout time.Duration) ([]byte, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	client := s.client
	s.mu.Unlock()
	if client == nil {
		return nil, fmt.Errorf("not logged in")
	}

	reqCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", s.config.UserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, rawURL)
	}
	return io.ReadAll(resp.Body)
}

// postForm issues a rate-limited form POST through the session.
func (s *Service) postForm(ctx context.Context, rawURL string, form url.Values, timeout time.Duration) (*http.Response, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	client, err := s.ensureClient()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	reqCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", s.config.UserAgent)

	return client.Do(req)
}

// absoluteURL resolves a path against the session base URL.
func (s *Service) absoluteURL(path string) string {
	base := strings.TrimRight(s.baseURL, "/")
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}
