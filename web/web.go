// Package web embeds the HTML templates so the server binary is
// self-contained.
package web

import "embed"

// Templates holds templates/*.html. Every page is parsed together with
// base.html and partials.html.
//
//go:embed templates/*.html
var Templates embed.FS
