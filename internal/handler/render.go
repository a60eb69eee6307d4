// Package handler contains the HTTP handlers for the recipe site.
//
// Handlers parse the request, take the caller's identity from the request
// context, call one service method and turn the result into a page or a
// redirect. They hold no business rules; every decision about who may do
// what lives in internal/service.
package handler

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/sakif/recipe-share/internal/apperror"
	"github.com/sakif/recipe-share/internal/auth"
	"github.com/sakif/recipe-share/internal/flash"
)

// pageNames lists the templates under templates/ that render a full page.
var pageNames = []string{
	"home", "register", "login", "dashboard", "post", "edit", "detail", "error",
}

// Page is what every template receives.
type Page struct {
	Title    string
	LoggedIn bool
	// Flashes holds the messages queued by earlier requests followed by
	// any added while handling this one.
	Flashes []flash.Message
	// Form pre-fills inputs; Errors holds one message per invalid field.
	Form   map[string]string
	Errors map[string]string
	Data   any
}

// Renderer executes the page templates.
//
// TEMPLATE SETS:
// Each page is parsed into its own set together with base.html and
// partials.html. Every page defines "content", so sharing one set would
// let the last parsed page win.
type Renderer struct {
	pages  map[string]*template.Template
	logger *slog.Logger
}

// NewRenderer parses the templates in fsys. imageURL maps a stored image
// name to the URL browsers fetch it from.
func NewRenderer(fsys fs.FS, imageURL func(string) string, logger *slog.Logger) (*Renderer, error) {
	funcs := template.FuncMap{
		"imageURL": imageURL,
		"lines":    lines,
	}

	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		tmpl, err := template.New(name).Funcs(funcs).ParseFS(fsys,
			"templates/base.html",
			"templates/partials.html",
			"templates/"+name+".html",
		)
		if err != nil {
			return nil, fmt.Errorf("handler: parsing %s template: %w", name, err)
		}
		pages[name] = tmpl
	}

	return &Renderer{pages: pages, logger: logger}, nil
}

// lines splits multi-line recipe text into its non-blank lines.
func lines(s string) []string {
	var out []string
	for _, l := range strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

// render writes the named page with the given status.
//
// The page is executed into a buffer first. A template error then still
// produces a clean 500 instead of half a page behind a 200 header.
func (v *Renderer) render(w http.ResponseWriter, r *http.Request, status int, name string, p Page) {
	tmpl, ok := v.pages[name]
	if !ok {
		v.logger.Error("unknown template", slog.String("template", name))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	_, p.LoggedIn = auth.IdentityFromContext(r.Context())
	p.Flashes = append(flash.Pop(w, r), p.Flashes...)

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base", p); err != nil {
		v.logger.Error("failed to render template",
			slog.String("template", name),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		v.logger.Debug("writing response", slog.String("error", err.Error()))
	}
}

// renderError shows the error page.
func (v *Renderer) renderError(w http.ResponseWriter, r *http.Request, status int, message string) {
	v.render(w, r, status, "error", Page{
		Title: http.StatusText(status),
		Data:  message,
	})
}

// NotFound renders the 404 page. It serves as the router's fallback.
func (v *Renderer) NotFound(w http.ResponseWriter, r *http.Request) {
	v.renderError(w, r, http.StatusNotFound, "The page you asked for does not exist.")
}

// fail maps a service error onto a response.
//
// ERROR MAPPING:
//
//	ErrValidation      → re-render form, 422, inline field messages
//	ErrInvalidImage    → re-render form, 422, inline message + flash
//	ErrConflict        → re-render form, 409, inline message + flash
//	ErrAuthentication  → re-render form, 401, generic flash
//	ErrForbidden       → flash, redirect /
//	ErrUnauthenticated → flash, redirect /login?next=...
//	ErrNotFound        → 404 page
//	anything else      → 500 page, logged
//
// form is the page to re-render with p for form errors. When form is ""
// form errors fall back to a 400 page.
func (v *Renderer) fail(w http.ResponseWriter, r *http.Request, err error, form string, p Page) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		v.logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		v.renderError(w, r, http.StatusInternalServerError, "An internal error occurred")
		return
	}

	switch {
	case errors.Is(err, apperror.ErrForbidden):
		flash.Add(w, r, flash.Danger, appErr.Message)
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return

	case errors.Is(err, apperror.ErrUnauthenticated):
		redirectToLogin(w, r, appErr.Message)
		return

	case errors.Is(err, apperror.ErrNotFound):
		v.NotFound(w, r)
		return
	}

	status := http.StatusUnprocessableEntity
	notice := ""
	switch {
	case errors.Is(err, apperror.ErrInvalidImage):
		notice = appErr.Message
	case errors.Is(err, apperror.ErrConflict):
		status = http.StatusConflict
		notice = appErr.Message
	case errors.Is(err, apperror.ErrAuthentication):
		status = http.StatusUnauthorized
		notice = appErr.Message
	case errors.Is(err, apperror.ErrValidation):
	default:
		v.logger.Error("unmapped application error",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		v.renderError(w, r, http.StatusInternalServerError, "An internal error occurred")
		return
	}

	if form == "" {
		v.renderError(w, r, http.StatusBadRequest, appErr.Message)
		return
	}

	if notice != "" {
		p.Flashes = append(p.Flashes, flash.Message{Category: flash.Danger, Text: notice})
	}
	p.Errors = appErr.Fields
	v.render(w, r, status, form, p)
}

// redirectToLogin queues message and sends the visitor to the login page,
// remembering where they were going.
func redirectToLogin(w http.ResponseWriter, r *http.Request, message string) {
	flash.Add(w, r, flash.Warning, message)
	target := "/login"
	if next := returnPath(r); next != "" && next != "/" {
		target += "?next=" + url.QueryEscape(next)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// returnPath is the page to come back to after logging in. For GET it is
// the requested URL. A POST cannot be replayed, so its form may name the
// page instead through "next"; otherwise the path itself is used.
func returnPath(r *http.Request) string {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return r.URL.RequestURI()
	}
	if next := safeNext(r.FormValue("next")); next != "" {
		return next
	}
	return r.URL.Path
}

// DenyAnonymous is the handler auth.RequireAuth uses for visitors who are
// not logged in.
func DenyAnonymous() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		redirectToLogin(w, r, "Please log in to access this page.")
	})
}

// safeNext returns next if it is a path on this site, or "".
//
// OPEN REDIRECTS:
// "//evil.example" and "/\evil.example" are treated by browsers as
// scheme-relative URLs to another host, so only paths with a single
// leading slash and no scheme or host are accepted.
func safeNext(next string) string {
	if next == "" || next[0] != '/' {
		return ""
	}
	if len(next) > 1 && (next[1] == '/' || next[1] == '\\') {
		return ""
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return ""
	}
	return next
}
