package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/recipe-share/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := &config.Config{}
	cfg.Server.Port = 0
	cfg.Server.MaxUploadBytes = 1 << 20
	cfg.Server.Timeouts.ShutdownTimeout = time.Second
	cfg.Database.Path = ":memory:"
	cfg.Session.Secret = "server-test-secret-0123456789"
	cfg.Session.MaxAge = time.Hour
	cfg.Upload.Driver = config.DriverLocal
	cfg.Upload.Dir = t.TempDir()
	cfg.Auth.BcryptCost = 4
	cfg.RateLimit.RequestsPerSecond = 0
	cfg.RateLimit.Burst = 1
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) *httptest.Server {
	t.Helper()

	s, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

type browser struct {
	t      *testing.T
	base   string
	client *http.Client
}

func newBrowser(t *testing.T, base string) *browser {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &browser{
		t:    t,
		base: base,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (b *browser) send(method, path string, form url.Values) (int, string, string) {
	b.t.Helper()
	return b.sendWithHeader(method, path, form, nil)
}

func (b *browser) sendWithHeader(method, path string, form url.Values, header http.Header) (int, string, string) {
	b.t.Helper()

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequest(method, b.base+path, body)
	require.NoError(b.t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := b.client.Do(req)
	require.NoError(b.t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(b.t, err)
	return resp.StatusCode, resp.Header.Get("Location"), string(data)
}

func (b *browser) get(path string) (int, string, string) {
	return b.send(http.MethodGet, path, nil)
}

func (b *browser) post(path string, form url.Values) (int, string, string) {
	return b.send(http.MethodPost, path, form)
}

// TestScenario walks through the whole site the way a visitor would:
// register, log in, post, search, comment, like, unlike, edit, delete.
func TestScenario(t *testing.T) {
	ts := newTestServer(t, testConfig(t))
	alice := newBrowser(t, ts.URL)

	status, loc, _ := alice.post("/register", url.Values{
		"username":         {"alice"},
		"email":            {"alice@example.com"},
		"password":         {"secret123"},
		"confirm_password": {"secret123"},
	})
	require.Equal(t, http.StatusSeeOther, status)
	require.Equal(t, "/login", loc)

	status, loc, _ = alice.get("/post")
	require.Equal(t, http.StatusSeeOther, status)
	require.Equal(t, "/login?next=%2Fpost", loc)

	status, loc, _ = alice.post("/login", url.Values{
		"email":    {"alice@example.com"},
		"password": {"secret123"},
		"next":     {"/post"},
	})
	require.Equal(t, http.StatusSeeOther, status)
	require.Equal(t, "/post", loc)

	status, loc, _ = alice.post("/post", url.Values{
		"title":       {"Garlic Pasta"},
		"ingredients": {"pasta\ngarlic"},
		"steps":       {"boil\nfry garlic\nmix"},
	})
	require.Equal(t, http.StatusSeeOther, status)
	require.Equal(t, "/", loc)

	status, _, body := alice.get("/?search=pasta")
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, body, "Garlic Pasta")
	require.Contains(t, body, "Recipe posted successfully!")

	recipePath := extractRecipePath(t, body)

	status, loc, _ = alice.post(recipePath, url.Values{"content": {"Tastes great"}})
	require.Equal(t, http.StatusSeeOther, status)
	require.Equal(t, recipePath, loc)

	status, loc, _ = alice.post(recipePath+"/like", url.Values{"next": {recipePath}})
	require.Equal(t, http.StatusSeeOther, status)
	require.Equal(t, recipePath, loc)

	_, _, body = alice.get(recipePath)
	assert.Contains(t, body, "Tastes great")
	assert.Contains(t, body, "1 like")
	assert.Contains(t, body, "Unlike")

	alice.post(recipePath+"/like", nil)
	_, _, body = alice.get(recipePath)
	assert.Contains(t, body, "0 likes")

	status, loc, _ = alice.post(recipePath+"/edit", url.Values{
		"title":       {"Garlic Pasta Deluxe"},
		"ingredients": {"pasta\ngarlic\nparsley"},
		"steps":       {"boil\nfry garlic\nmix"},
	})
	require.Equal(t, http.StatusSeeOther, status)
	require.Equal(t, recipePath, loc)

	_, _, body = alice.get("/dashboard")
	assert.Contains(t, body, "Garlic Pasta Deluxe")

	id := strings.TrimPrefix(recipePath, "/recipe/")
	status, loc, _ = alice.post("/recipe/delete/"+id, nil)
	require.Equal(t, http.StatusSeeOther, status)
	require.Equal(t, "/", loc)

	status, _, _ = alice.get(recipePath)
	assert.Equal(t, http.StatusNotFound, status)

	status, loc, _ = alice.get("/logout")
	require.Equal(t, http.StatusSeeOther, status)
	require.Equal(t, "/login", loc)

	status, _, _ = alice.get("/dashboard")
	assert.Equal(t, http.StatusSeeOther, status)
}

// extractRecipePath finds the first /recipe/{id} link on a page.
func extractRecipePath(t *testing.T, body string) string {
	t.Helper()
	const marker = `href="/recipe/`
	i := strings.Index(body, marker)
	require.GreaterOrEqual(t, i, 0, "no recipe link on page")
	rest := body[i+len(`href="`):]
	end := strings.IndexByte(rest, '"')
	require.Greater(t, end, 0)
	return rest[:end]
}

func TestRateLimit_Login(t *testing.T) {
	cfg := testConfig(t)
	cfg.RateLimit.RequestsPerSecond = 0.001
	cfg.RateLimit.Burst = 2
	ts := newTestServer(t, cfg)
	b := newBrowser(t, ts.URL)

	form := url.Values{"email": {"x@example.com"}, "password": {"nope"}}
	status, _, _ := b.post("/login", form)
	assert.Equal(t, http.StatusUnauthorized, status)
	status, _, _ = b.post("/login", form)
	assert.Equal(t, http.StatusUnauthorized, status)
	status, _, _ = b.post("/login", form)
	assert.Equal(t, http.StatusTooManyRequests, status)

	status, _, _ = b.get("/login")
	assert.Equal(t, http.StatusOK, status)
}

func TestRateLimit_IgnoresForwardedForByDefault(t *testing.T) {
	cfg := testConfig(t)
	cfg.RateLimit.RequestsPerSecond = 0.001
	cfg.RateLimit.Burst = 1
	ts := newTestServer(t, cfg)
	b := newBrowser(t, ts.URL)

	form := url.Values{"email": {"x@example.com"}, "password": {"nope"}}
	status, _, _ := b.sendWithHeader(http.MethodPost, "/login", form, http.Header{"X-Forwarded-For": {"203.0.113.1"}})
	assert.Equal(t, http.StatusUnauthorized, status)
	status, _, _ = b.sendWithHeader(http.MethodPost, "/login", form, http.Header{"X-Forwarded-For": {"203.0.113.2"}})
	assert.Equal(t, http.StatusTooManyRequests, status)
}

func TestRateLimit_TrustProxyUsesForwardedFor(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.TrustProxy = true
	cfg.RateLimit.RequestsPerSecond = 0.001
	cfg.RateLimit.Burst = 1
	ts := newTestServer(t, cfg)
	b := newBrowser(t, ts.URL)

	form := url.Values{"email": {"x@example.com"}, "password": {"nope"}}
	status, _, _ := b.sendWithHeader(http.MethodPost, "/login", form, http.Header{"X-Forwarded-For": {"203.0.113.1"}})
	assert.Equal(t, http.StatusUnauthorized, status)
	status, _, _ = b.sendWithHeader(http.MethodPost, "/login", form, http.Header{"X-Forwarded-For": {"203.0.113.1"}})
	assert.Equal(t, http.StatusTooManyRequests, status)
	status, _, _ = b.sendWithHeader(http.MethodPost, "/login", form, http.Header{"X-Forwarded-For": {"203.0.113.2"}})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestCrossOriginPostRejected(t *testing.T) {
	ts := newTestServer(t, testConfig(t))
	alice := newBrowser(t, ts.URL)

	alice.post("/register", url.Values{
		"username":         {"alice"},
		"email":            {"alice@example.com"},
		"password":         {"secret123"},
		"confirm_password": {"secret123"},
	})
	status, _, _ := alice.post("/login", url.Values{
		"email":    {"alice@example.com"},
		"password": {"secret123"},
	})
	require.Equal(t, http.StatusSeeOther, status)
	status, _, _ = alice.post("/post", url.Values{
		"title":       {"Soup"},
		"ingredients": {"water"},
		"steps":       {"boil"},
	})
	require.Equal(t, http.StatusSeeOther, status)

	_, _, body := alice.get("/")
	recipePath := extractRecipePath(t, body)

	for name, header := range map[string]http.Header{
		"fetch metadata": {"Sec-Fetch-Site": {"cross-site"}},
		"origin":         {"Origin": {"https://evil.example"}},
	} {
		t.Run(name, func(t *testing.T) {
			status, _, _ := alice.sendWithHeader(http.MethodPost, recipePath+"/like", url.Values{}, header)
			assert.Equal(t, http.StatusForbidden, status)
		})
	}

	_, _, body = alice.get(recipePath)
	assert.Contains(t, body, "0 likes")

	status, _, _ = alice.sendWithHeader(http.MethodPost, recipePath+"/like", url.Values{}, http.Header{"Sec-Fetch-Site": {"same-origin"}})
	assert.Equal(t, http.StatusSeeOther, status)
	_, _, body = alice.get(recipePath)
	assert.Contains(t, body, "1 like")
}

func TestHealthAndNotFound(t *testing.T) {
	ts := newTestServer(t, testConfig(t))
	b := newBrowser(t, ts.URL)

	status, _, body := b.get("/healthz")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"status":"ok"`)

	status, _, _ = b.get("/no/such/page")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestNew_RejectsShortSecret(t *testing.T) {
	cfg := testConfig(t)
	cfg.Session.Secret = "short"

	_, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}
