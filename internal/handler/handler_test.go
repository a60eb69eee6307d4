package handler

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/recipe-share/internal/auth"
	"github.com/sakif/recipe-share/internal/model"
	"github.com/sakif/recipe-share/internal/repository"
	sqliteRepo "github.com/sakif/recipe-share/internal/repository/sqlite"
	"github.com/sakif/recipe-share/internal/service"
	"github.com/sakif/recipe-share/internal/upload"
	"github.com/sakif/recipe-share/web"
)

// testApp is the full handler stack over an in-memory database.
type testApp struct {
	db     *sqliteRepo.DB
	images *upload.LocalStore
	router http.Handler
	server *httptest.Server
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := sqliteRepo.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	images, err := upload.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	tokens, err := auth.NewTokenService("handler-test-secret-0123456789")
	require.NoError(t, err)
	sessions := auth.NewSessionManager(db, tokens, time.Hour, logger)
	passwords := auth.NewPasswordServiceForTest(bcrypt.MinCost)

	recipes := service.NewRecipeService(db, db, db, db, images, logger)
	comments := service.NewCommentService(db, db, logger)
	authService := service.NewAuthService(db, passwords, sessions, logger)

	view, err := NewRenderer(web.Templates, recipes.ImageURL, logger)
	require.NoError(t, err)

	cookie := auth.CookieOptions{}
	ah := NewAuthHandler(authService, view, cookie, logger)
	rh := NewRecipeHandler(recipes, comments, view, 1<<20, logger)
	uh := NewUploadsHandler(images, view)
	hh := NewHealthHandler(db, logger)

	r := chi.NewRouter()
	r.Get("/healthz", hh.HandleHealth)
	r.Get("/uploads/{name}", uh.HandleImage)
	r.Group(func(r chi.Router) {
		r.Use(auth.LoadSession(sessions, cookie, logger))
		r.Get("/", rh.HandleHome)
		r.Get("/register", ah.HandleRegisterForm)
		r.Post("/register", ah.HandleRegister)
		r.Get("/login", ah.HandleLoginForm)
		r.Post("/login", ah.HandleLogin)
		r.Get("/recipe/{id}", rh.HandleDetail)
		r.Post("/recipe/{id}", rh.HandleComment)
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(DenyAnonymous()))
			r.Get("/logout", ah.HandleLogout)
			r.Get("/dashboard", rh.HandleDashboard)
			r.Get("/post", rh.HandleNewForm)
			r.Post("/post", rh.HandleCreate)
			r.Get("/recipe/{id}/edit", rh.HandleEditForm)
			r.Post("/recipe/{id}/edit", rh.HandleUpdate)
			r.Post("/recipe/delete/{id}", rh.HandleDelete)
			r.Post("/recipe/{id}/like", rh.HandleLike)
		})
	})
	r.NotFound(view.NotFound)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &testApp{db: db, images: images, router: r, server: srv}
}

// testClient is a browser: it keeps cookies and does not follow redirects,
// so tests can check each Location.
type testClient struct {
	t    *testing.T
	base string
	http *http.Client
}

func (a *testApp) newClient(t *testing.T) *testClient {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &testClient{
		t:    t,
		base: a.server.URL,
		http: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (c *testClient) do(req *http.Request) (*http.Response, string) {
	c.t.Helper()
	resp, err := c.http.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	return resp, string(body)
}

// serveDirect runs req through the router in-process with the client's
// cookies attached. Used where a real connection would race the server
// closing it early.
func (c *testClient) serveDirect(app *testApp, req *http.Request) *httptest.ResponseRecorder {
	c.t.Helper()
	u, err := url.Parse(c.base)
	require.NoError(c.t, err)
	for _, ck := range c.http.Jar.Cookies(u) {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	app.router.ServeHTTP(rec, req)
	return rec
}

func (c *testClient) get(path string) (*http.Response, string) {
	c.t.Helper()
	req, err := http.NewRequest(http.MethodGet, c.base+path, nil)
	require.NoError(c.t, err)
	return c.do(req)
}

func (c *testClient) postForm(path string, form url.Values) (*http.Response, string) {
	c.t.Helper()
	req, err := http.NewRequest(http.MethodPost, c.base+path, strings.NewReader(form.Encode()))
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

// postMultipart sends fields and, when fileName is not empty, an "image"
// file part.
func (c *testClient) postMultipart(path string, fields map[string]string, fileName, fileBody string) (*http.Response, string) {
	c.t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(c.t, mw.WriteField(k, v))
	}
	if fileName != "" {
		fw, err := mw.CreateFormFile("image", fileName)
		require.NoError(c.t, err)
		_, err = io.WriteString(fw, fileBody)
		require.NoError(c.t, err)
	}
	require.NoError(c.t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, c.base+path, &buf)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(req)
}

// register signs name up with password "secret123".
func (c *testClient) register(name string) {
	c.t.Helper()
	resp, body := c.postForm("/register", url.Values{
		"username":         {name},
		"email":            {name + "@example.com"},
		"password":         {"secret123"},
		"confirm_password": {"secret123"},
	})
	require.Equal(c.t, http.StatusSeeOther, resp.StatusCode, body)
}

func (c *testClient) login(name string) {
	c.t.Helper()
	resp, body := c.postForm("/login", url.Values{
		"email":    {name + "@example.com"},
		"password": {"secret123"},
	})
	require.Equal(c.t, http.StatusSeeOther, resp.StatusCode, body)
}

// signUp registers and logs in a fresh client.
func (a *testApp) signUp(t *testing.T, name string) *testClient {
	t.Helper()
	c := a.newClient(t)
	c.register(name)
	c.login(name)
	return c
}

func (c *testClient) postRecipe(title string) {
	c.t.Helper()
	resp, body := c.postMultipart("/post", map[string]string{
		"title":       title,
		"ingredients": "pasta\nsalt",
		"steps":       "boil\nserve",
	}, "", "")
	require.Equal(c.t, http.StatusSeeOther, resp.StatusCode, body)
}

// recipeByTitle looks a recipe up straight from the database.
func (a *testApp) recipeByTitle(t *testing.T, title string) model.Recipe {
	t.Helper()
	recipes, err := a.db.ListRecipes(context.Background(), repository.ListOptions{Search: title})
	require.NoError(t, err)
	require.NotEmpty(t, recipes, "recipe %q not found", title)
	return recipes[0]
}
