package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/jeiths2202/ims-crawler/internal/models"
)

// loginBrowser drives a headless browser through the IMS login form for
// deployments where the form submit is wired through JavaScript. On success
// the browser's session cookies are copied into the HTTP client jar so all
// subsequent crawling stays on plain HTTP.
func (s *Service) loginBrowser(ctx context.Context, creds models.IMSCredentials) error {
	timeout := s.config.NavigationTimeout + s.config.SelectorTimeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}

	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(s.config.UserAgent),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	browserCtx, timeoutCancel := context.WithTimeout(browserCtx, timeout)
	defer timeoutCancel()

	loginURL := s.absoluteURL("/tody/auth/login.do")
	var finalURL string
	var cookies []*network.Cookie

	err := chromedp.Run(browserCtx,
		network.Enable(),
		chromedp.Navigate(loginURL),
		chromedp.WaitVisible(`input[name="id"]`, chromedp.ByQuery),
		chromedp.SendKeys(`input[name="id"]`, creds.Username, chromedp.ByQuery),
		chromedp.SendKeys(`input[name="password"]`, creds.Password, chromedp.ByQuery),
		chromedp.Submit(`input[name="password"]`, chromedp.ByQuery),
		chromedp.Sleep(2*time.Second),
		chromedp.Location(&finalURL),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = network.GetCookies().WithURLs([]string{s.baseURL}).Do(ctx)
			return err
		}),
	)
	if err != nil {
		return fmt.Errorf("browser login failed: %w", err)
	}

	if strings.Contains(strings.ToLower(finalURL), "login") {
		return ErrAuthenticationFailed
	}

	return s.adoptCookies(cookies)
}

// adoptCookies installs browser session cookies into the HTTP client jar.
func (s *Service) adoptCookies(cookies []*network.Cookie) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	client, err := s.ensureClient()
	if err != nil {
		return err
	}

	base, err := url.Parse(s.baseURL)
	if err != nil {
		return fmt.Errorf("invalid base url: %w", err)
	}

	httpCookies := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		httpCookies = append(httpCookies, &http.Cookie{
			Name:   c.Name,
			Value:  c.Value,
			Path:   c.Path,
			Domain: c.Domain,
		})
	}
	client.Jar.SetCookies(base, httpCookies)

	s.logger.Debug().
		Int("cookie_count", len(httpCookies)).
		Msg("Browser session cookies adopted")
	return nil
}
