package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/recipe-share/internal/auth"
	"github.com/sakif/recipe-share/internal/flash"
	"github.com/sakif/recipe-share/internal/service"
)

// AuthHandler serves registration, login and logout.
//
// HANDLER RESPONSIBILITIES:
//   - HandleRegisterForm / HandleRegister → sign-up page and submission
//   - HandleLoginForm / HandleLogin       → login page, sets the session cookie
//   - HandleLogout                        → ends the session, clears the cookie
type AuthHandler struct {
	auth   *service.AuthService
	view   *Renderer
	cookie auth.CookieOptions
	logger *slog.Logger
}

func NewAuthHandler(authService *service.AuthService, view *Renderer, cookie auth.CookieOptions, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		auth:   authService,
		view:   view,
		cookie: cookie,
		logger: logger,
	}
}

// HandleRegisterForm shows the sign-up form.
//
// HTTP: GET /register
func (h *AuthHandler) HandleRegisterForm(w http.ResponseWriter, r *http.Request) {
	h.view.render(w, r, http.StatusOK, "register", Page{Title: "Register"})
}

// HandleRegister creates the account and sends the user to the login page.
//
// HTTP: POST /register
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	in := service.RegisterInput{
		Username:        r.PostFormValue("username"),
		Email:           r.PostFormValue("email"),
		Password:        r.PostFormValue("password"),
		ConfirmPassword: r.PostFormValue("confirm_password"),
	}

	if _, err := h.auth.Register(r.Context(), in); err != nil {
		// Passwords are never echoed back into the form.
		h.view.fail(w, r, err, "register", Page{
			Title: "Register",
			Form:  map[string]string{"username": in.Username, "email": in.Email},
		})
		return
	}

	flash.Add(w, r, flash.Success, "Account created, please log in")
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// HandleLoginForm shows the login form. A next query parameter is carried
// through the form so the user lands where they were headed.
//
// HTTP: GET /login
func (h *AuthHandler) HandleLoginForm(w http.ResponseWriter, r *http.Request) {
	h.view.render(w, r, http.StatusOK, "login", Page{
		Title: "Log in",
		Form:  map[string]string{"next": safeNext(r.URL.Query().Get("next"))},
	})
}

// HandleLogin checks the credentials and sets the session cookie.
//
// HTTP: POST /login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	in := service.LoginInput{
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	}
	next := safeNext(r.FormValue("next"))

	res, err := h.auth.Login(r.Context(), in)
	if err != nil {
		h.view.fail(w, r, err, "login", Page{
			Title: "Log in",
			Form:  map[string]string{"email": in.Email, "next": next},
		})
		return
	}

	auth.SetSessionCookie(w, res.Token, res.ExpiresAt, h.cookie)
	flash.Add(w, r, flash.Success, "Logged in successfully!")

	if next == "" {
		next = "/dashboard"
	}
	http.Redirect(w, r, next, http.StatusSeeOther)
}

// HandleLogout ends the session.
//
// HTTP: GET /logout
//
// The cookie is cleared even if deleting the session row fails; the
// service logs that failure.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.auth.Logout(r.Context(), auth.SessionToken(r))
	auth.ClearSessionCookie(w, h.cookie)

	flash.Add(w, r, flash.Success, "You have been logged out.")
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
