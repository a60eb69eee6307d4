package handler

import (
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/recipe-share/internal/upload"
)

// UploadsHandler serves images kept by an upload.LocalStore.
type UploadsHandler struct {
	store *upload.LocalStore
	view  *Renderer
}

func NewUploadsHandler(store *upload.LocalStore, view *Renderer) *UploadsHandler {
	return &UploadsHandler{store: store, view: view}
}

// HandleImage streams one stored image.
//
// HTTP: GET /uploads/{name}
//
// Only names that survive upload.CleanImageName unchanged are served, so
// the route cannot reach files outside the upload directory or anything
// that is not an image.
func (h *UploadsHandler) HandleImage(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	clean, ok := upload.CleanImageName(name)
	if !ok || clean != name {
		h.view.renderError(w, r, http.StatusNotFound, "The page you asked for does not exist.")
		return
	}

	f, err := os.Open(h.store.Path(name))
	if err != nil {
		h.view.renderError(w, r, http.StatusNotFound, "The page you asked for does not exist.")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		h.view.renderError(w, r, http.StatusNotFound, "The page you asked for does not exist.")
		return
	}

	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeContent(w, r, name, info.ModTime(), f)
}
