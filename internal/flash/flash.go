// Package flash carries one-shot notices across a redirect in a cookie.
//
// A handler calls Add before redirecting; the next page render calls Pop,
// which returns the messages and deletes the cookie so they are shown once.
package flash

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
)

const cookieName = "flash"

// maxMessages bounds the cookie size if something keeps adding without a
// render in between.
const maxMessages = 5

// Category drives the styling of a notice.
type Category string

const (
	Success Category = "success"
	Info    Category = "info"
	Warning Category = "warning"
	Danger  Category = "danger"
)

type Message struct {
	Category Category `json:"c"`
	Text     string   `json:"t"`
}

// Add queues a message for the next page. Messages already waiting in the
// request cookie are kept, so a notice survives a chain of redirects.
func Add(w http.ResponseWriter, r *http.Request, category Category, text string) {
	msgs := append(read(r), Message{Category: category, Text: text})
	if len(msgs) > maxMessages {
		msgs = msgs[len(msgs)-maxMessages:]
	}

	raw, err := json.Marshal(msgs)
	if err != nil {
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    base64.RawURLEncoding.EncodeToString(raw),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	// Later Adds in the same request see the queued messages.
	r.AddCookie(&http.Cookie{Name: cookieName, Value: base64.RawURLEncoding.EncodeToString(raw)})
}

// Pop returns the pending messages and clears the cookie.
func Pop(w http.ResponseWriter, r *http.Request) []Message {
	msgs := read(r)
	if _, err := r.Cookie(cookieName); err == nil {
		http.SetCookie(w, &http.Cookie{
			Name:     cookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return msgs
}

// read decodes the newest flash cookie on r. A cookie that does not decode
// is treated as empty; it only ever holds display text.
func read(r *http.Request) []Message {
	cookies := r.CookiesNamed(cookieName)
	if len(cookies) == 0 {
		return nil
	}

	raw, err := base64.RawURLEncoding.DecodeString(cookies[len(cookies)-1].Value)
	if err != nil {
		return nil
	}

	var msgs []Message
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return nil
	}
	return msgs
}
