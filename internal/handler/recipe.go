package handler

import (
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/recipe-share/internal/auth"
	"github.com/sakif/recipe-share/internal/flash"
	"github.com/sakif/recipe-share/internal/model"
	"github.com/sakif/recipe-share/internal/service"
	"github.com/sakif/recipe-share/internal/upload"
)

// RecipeHandler serves the recipe pages: listing, posting, editing,
// deleting, the detail page with its comments, likes and the dashboard.
type RecipeHandler struct {
	recipes  *service.RecipeService
	comments *service.CommentService
	view     *Renderer
	// maxUpload caps the size of a multipart request body in bytes.
	maxUpload int64
	logger    *slog.Logger
}

func NewRecipeHandler(
	recipes *service.RecipeService,
	comments *service.CommentService,
	view *Renderer,
	maxUpload int64,
	logger *slog.Logger,
) *RecipeHandler {
	return &RecipeHandler{
		recipes:   recipes,
		comments:  comments,
		view:      view,
		maxUpload: maxUpload,
		logger:    logger,
	}
}

type homeData struct {
	Recipes []model.Recipe
	Search  string
}

// HandleHome lists recipes, filtered by the search query parameter.
//
// HTTP: GET /?search=pasta
func (h *RecipeHandler) HandleHome(w http.ResponseWriter, r *http.Request) {
	search := r.URL.Query().Get("search")

	recipes, err := h.recipes.List(r.Context(), search)
	if err != nil {
		h.view.fail(w, r, err, "", Page{})
		return
	}

	h.view.render(w, r, http.StatusOK, "home", Page{
		Title: "Recipes",
		Data:  homeData{Recipes: recipes, Search: search},
	})
}

// HandleNewForm shows the empty recipe form.
//
// HTTP: GET /post
func (h *RecipeHandler) HandleNewForm(w http.ResponseWriter, r *http.Request) {
	h.view.render(w, r, http.StatusOK, "post", Page{Title: "Post a recipe"})
}

// HandleCreate posts a recipe.
//
// HTTP: POST /post (multipart/form-data, optional file field "image")
func (h *RecipeHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())

	in, image, cleanup, ok := h.parseRecipeForm(w, r)
	if !ok {
		return
	}
	defer cleanup()

	if _, err := h.recipes.Create(r.Context(), id, in, image); err != nil {
		h.view.fail(w, r, err, "post", Page{Title: "Post a recipe", Form: recipeFormValues(in)})
		return
	}

	flash.Add(w, r, flash.Success, "Recipe posted successfully!")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleEditForm shows the recipe form filled in with the current values.
//
// HTTP: GET /recipe/{id}/edit
func (h *RecipeHandler) HandleEditForm(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())

	recipe, err := h.recipes.GetForEdit(r.Context(), id, chi.URLParam(r, "id"))
	if err != nil {
		h.view.fail(w, r, err, "", Page{})
		return
	}

	h.view.render(w, r, http.StatusOK, "edit", Page{
		Title: "Edit recipe",
		Form: recipeFormValues(service.RecipeInput{
			Title:       recipe.Title,
			Ingredients: recipe.Ingredients,
			Steps:       recipe.Steps,
		}),
		Data: recipe,
	})
}

// HandleUpdate saves an edited recipe.
//
// HTTP: POST /recipe/{id}/edit
func (h *RecipeHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())
	recipeID := chi.URLParam(r, "id")

	in, image, cleanup, ok := h.parseRecipeForm(w, r)
	if !ok {
		return
	}
	defer cleanup()

	if _, err := h.recipes.Update(r.Context(), id, recipeID, in, image); err != nil {
		current, getErr := h.recipes.Get(r.Context(), recipeID)
		if getErr != nil {
			current = &model.Recipe{ID: recipeID}
		}
		h.view.fail(w, r, err, "edit", Page{
			Title: "Edit recipe",
			Form:  recipeFormValues(in),
			Data:  current,
		})
		return
	}

	flash.Add(w, r, flash.Success, "Recipe updated successfully!")
	http.Redirect(w, r, "/recipe/"+recipeID, http.StatusSeeOther)
}

// HandleDelete removes a recipe with its comments, likes and image.
//
// HTTP: POST /recipe/delete/{id}
func (h *RecipeHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())

	if err := h.recipes.Delete(r.Context(), id, chi.URLParam(r, "id")); err != nil {
		h.view.fail(w, r, err, "", Page{})
		return
	}

	flash.Add(w, r, flash.Success, "Recipe deleted successfully!")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleDetail shows a recipe with its comments. Anyone may view it.
//
// HTTP: GET /recipe/{id}
func (h *RecipeHandler) HandleDetail(w http.ResponseWriter, r *http.Request) {
	viewer, _ := auth.IdentityFromContext(r.Context())

	detail, err := h.recipes.Detail(r.Context(), viewer, chi.URLParam(r, "id"))
	if err != nil {
		h.view.fail(w, r, err, "", Page{})
		return
	}

	h.view.render(w, r, http.StatusOK, "detail", Page{
		Title: detail.Recipe.Title,
		Data:  detail,
	})
}

// HandleComment adds a comment to the recipe.
//
// HTTP: POST /recipe/{id}
//
// The route itself is public so the detail page and its comment form share
// a path; CommentService.Add turns an anonymous caller away.
func (h *RecipeHandler) HandleComment(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())
	recipeID := chi.URLParam(r, "id")
	in := service.CommentInput{Content: r.PostFormValue("content")}

	if _, err := h.comments.Add(r.Context(), id, recipeID, in); err != nil {
		detail, detailErr := h.recipes.Detail(r.Context(), id, recipeID)
		if detailErr != nil {
			h.view.fail(w, r, err, "", Page{})
			return
		}
		h.view.fail(w, r, err, "detail", Page{
			Title: detail.Recipe.Title,
			Form:  map[string]string{"content": in.Content},
			Data:  detail,
		})
		return
	}

	flash.Add(w, r, flash.Success, "Comment added successfully!")
	http.Redirect(w, r, "/recipe/"+recipeID, http.StatusSeeOther)
}

// HandleLike toggles the caller's like and returns them to the page named
// by the "next" form field, or the recipe page.
//
// HTTP: POST /recipe/{id}/like
func (h *RecipeHandler) HandleLike(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())
	recipeID := chi.URLParam(r, "id")

	if _, err := h.recipes.ToggleLike(r.Context(), id, recipeID); err != nil {
		h.view.fail(w, r, err, "", Page{})
		return
	}

	next := safeNext(r.PostFormValue("next"))
	if next == "" {
		next = "/recipe/" + recipeID
	}
	http.Redirect(w, r, next, http.StatusSeeOther)
}

// HandleDashboard shows the caller's own and liked recipes.
//
// HTTP: GET /dashboard
func (h *RecipeHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())

	dash, err := h.recipes.Dashboard(r.Context(), id)
	if err != nil {
		h.view.fail(w, r, err, "", Page{})
		return
	}

	h.view.render(w, r, http.StatusOK, "dashboard", Page{
		Title: "Dashboard",
		Data:  dash,
	})
}

// parseRecipeForm reads the recipe fields and the optional image from a
// multipart (or urlencoded) body. ok is false when a response has already
// been written. cleanup releases the upload's temporary files.
func (h *RecipeHandler) parseRecipeForm(w http.ResponseWriter, r *http.Request) (service.RecipeInput, *upload.File, func(), bool) {
	noop := func() {}

	if h.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	}

	// Parts beyond 8 MiB spill to temporary files; MaxBytesReader caps the total.
	if err := r.ParseMultipartForm(8 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			h.view.renderError(w, r, http.StatusRequestEntityTooLarge, "The upload is too large.")
			return service.RecipeInput{}, nil, noop, false
		}
		h.view.renderError(w, r, http.StatusBadRequest, "The form could not be read.")
		return service.RecipeInput{}, nil, noop, false
	}

	in := service.RecipeInput{
		Title:       r.PostFormValue("title"),
		Ingredients: r.PostFormValue("ingredients"),
		Steps:       r.PostFormValue("steps"),
	}

	cleanup := func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		// No file part, or not a multipart request at all.
		return in, nil, cleanup, true
	}
	if header.Filename == "" {
		file.Close()
		return in, nil, cleanup, true
	}

	return in, &upload.File{Name: header.Filename, Body: file}, closeAnd(file, cleanup), true
}

func closeAnd(f multipart.File, then func()) func() {
	return func() {
		f.Close()
		then()
	}
}

func recipeFormValues(in service.RecipeInput) map[string]string {
	return map[string]string{
		"title":       in.Title,
		"ingredients": in.Ingredients,
		"steps":       in.Steps,
	}
}
