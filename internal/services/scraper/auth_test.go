package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/jeiths2202/ims-crawler/internal/common"
	"github.com/jeiths2202/ims-crawler/internal/models"
)

func TestLoginRejected(t *testing.T) {
	tests := []struct {
		name     string
		finalURL string
		body     string
		want     bool
	}{
		{"landed back on login url", "http://ims.local/tody/auth/login.do", "<html></html>", true},
		{"login in url path", "http://ims.local/Login?error=1", "", true},
		{"landed on error page", "http://ims.local/error", "<html>something went wrong</html>", true},
		{"error path after redirect", "http://ims.local/tody/error?code=auth", "<html>oops</html>", true},
		{"password field in body", "http://ims.local/tody/main.do", `<input name="password">`, true},
		{"login form id in body", "http://ims.local/tody/main.do", `<form id="loginForm">`, true},
		{"login.do action in body", "http://ims.local/tody/main.do", `<form action="/tody/auth/login.do">`, true},
		{"clean landing", "http://ims.local/tody/main.do", "<html>dashboard</html>", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, loginRejected(tt.finalURL, tt.body))
		})
	}
}

func newLoginTestService() *Service {
	cfg := &common.ScraperConfig{
		LoginTimeout:      5 * time.Second,
		NavigationTimeout: 5 * time.Second,
		RequestsPerSecond: 1000,
		BrowserFallback:   false,
	}
	s := NewService(cfg, arbor.NewLogger())
	return s
}

func TestLoginSuccess(t *testing.T) {
	var loginCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tody/auth/login.do":
			loginCalls++
			require.Equal(t, http.MethodPost, r.Method)
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "kim", r.PostForm.Get("id"))
			assert.Equal(t, "secret", r.PostForm.Get("password"))
			http.Redirect(w, r, "/tody/main.do", http.StatusFound)
		case "/tody/main.do":
			fmt.Fprint(w, "<html>dashboard</html>")
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	s := newLoginTestService()
	creds := models.IMSCredentials{BaseURL: srv.URL, Username: "kim", Password: "secret"}

	require.NoError(t, s.Login(context.Background(), creds))
	assert.Equal(t, 1, loginCalls)

	// A live session for the same user is reused without a round trip.
	require.NoError(t, s.Login(context.Background(), creds))
	assert.Equal(t, 1, loginCalls)
}

func TestLoginRejectedCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// IMS answers 200 with the login form again instead of redirecting.
		fmt.Fprint(w, `<html><form id="loginForm"><input name="password"></form></html>`)
	}))
	defer srv.Close()

	s := newLoginTestService()
	err := s.Login(context.Background(), models.IMSCredentials{BaseURL: srv.URL, Username: "kim", Password: "wrong"})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	assert.Equal(t, "Authentication failed", err.Error())
}

func TestLoginErrorRedirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tody/auth/login.do":
			// Some deployments send failed logins to an error page whose
			// body carries no login-form markers.
			http.Redirect(w, r, "/error", http.StatusFound)
		case "/error":
			fmt.Fprint(w, "<html>An error has occurred.</html>")
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	s := newLoginTestService()
	err := s.Login(context.Background(), models.IMSCredentials{BaseURL: srv.URL, Username: "kim", Password: "secret"})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestInvalidateSessionForcesRelogin(t *testing.T) {
	var loginCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/tody/auth/login.do" {
			loginCalls++
			http.Redirect(w, r, "/tody/main.do", http.StatusFound)
			return
		}
		fmt.Fprint(w, "<html>dashboard</html>")
	}))
	defer srv.Close()

	s := newLoginTestService()
	creds := models.IMSCredentials{BaseURL: srv.URL, Username: "kim", Password: "secret"}

	require.NoError(t, s.Login(context.Background(), creds))
	s.InvalidateSession()
	require.NoError(t, s.Login(context.Background(), creds))
	assert.Equal(t, 2, loginCalls)
}
