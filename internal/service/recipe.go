package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/recipe-share/internal/apperror"
	"github.com/sakif/recipe-share/internal/auth"
	"github.com/sakif/recipe-share/internal/model"
	"github.com/sakif/recipe-share/internal/repository"
	"github.com/sakif/recipe-share/internal/upload"
)

// RecipeInput is the recipe form shared by create and edit.
type RecipeInput struct {
	Title       string `form:"title" validate:"required,max=200"`
	Ingredients string `form:"ingredients" validate:"required"`
	Steps       string `form:"steps" validate:"required"`
}

func (in *RecipeInput) trim() {
	in.Title = strings.TrimSpace(in.Title)
	in.Ingredients = strings.TrimSpace(in.Ingredients)
	in.Steps = strings.TrimSpace(in.Steps)
}

// RecipeDetail is everything the recipe page shows.
type RecipeDetail struct {
	Recipe   *model.Recipe
	Comments []model.Comment
	// Liked is true when the viewer is logged in and likes the recipe.
	Liked bool
	// IsAuthor is true when the viewer wrote the recipe.
	IsAuthor bool
}

// Dashboard is the logged-in user's home page.
type Dashboard struct {
	User     *model.User
	Authored []model.Recipe
	Liked    []model.Recipe
}

// RecipeService implements the recipe use cases: listing, posting, editing,
// deleting, liking, and the detail and dashboard views.
type RecipeService struct {
	users    repository.UserRepository
	recipes  repository.RecipeRepository
	comments repository.CommentRepository
	likes    repository.LikeRepository
	images   upload.Store
	logger   *slog.Logger
}

func NewRecipeService(
	users repository.UserRepository,
	recipes repository.RecipeRepository,
	comments repository.CommentRepository,
	likes repository.LikeRepository,
	images upload.Store,
	logger *slog.Logger,
) *RecipeService {
	return &RecipeService{
		users:    users,
		recipes:  recipes,
		comments: comments,
		likes:    likes,
		images:   images,
		logger:   logger,
	}
}

// ImageURL is where a browser fetches a stored image.
func (s *RecipeService) ImageURL(name string) string {
	if name == "" {
		return ""
	}
	return s.images.URL(name)
}

// List returns every recipe in posting order, or only those whose title
// contains search (case-insensitive) when search is not blank.
func (s *RecipeService) List(ctx context.Context, search string) ([]model.Recipe, error) {
	recipes, err := s.recipes.ListRecipes(ctx, repository.ListOptions{Search: strings.TrimSpace(search)})
	if err != nil {
		s.logger.Error("failed to list recipes", slog.String("error", err.Error()))
		return nil, fmt.Errorf("service/recipe: listing: %w", err)
	}
	return recipes, nil
}

// Create posts a recipe for the caller.
//
// ORDER OF CHECKS:
// Form fields and the image name are validated before anything is written,
// so a bad extension leaves neither a file nor a row behind. The file is
// written before the row; a crash in between leaves an unreferenced file.
func (s *RecipeService) Create(ctx context.Context, id auth.Identity, in RecipeInput, image *upload.File) (*model.Recipe, error) {
	if err := requireIdentity(id); err != nil {
		return nil, err
	}

	in.trim()
	if err := validateInput(in); err != nil {
		return nil, err
	}

	imageName, err := checkImage(image)
	if err != nil {
		return nil, err
	}

	if imageName != "" {
		if err := s.images.Save(ctx, imageName, image.Body); err != nil {
			return nil, fmt.Errorf("service/recipe: storing image: %w", err)
		}
	}

	recipe := &model.Recipe{
		Title:       in.Title,
		Ingredients: in.Ingredients,
		Steps:       in.Steps,
		Image:       imageName,
		AuthorID:    id.UserID,
	}
	if err := s.recipes.CreateRecipe(ctx, recipe); err != nil {
		s.logger.Error("failed to create recipe",
			slog.String("userID", id.UserID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service/recipe: creating: %w", err)
	}

	s.logger.Info("recipe created",
		slog.String("recipeID", recipe.ID),
		slog.String("userID", id.UserID),
		slog.Bool("image", recipe.HasImage()),
	)
	return recipe, nil
}

// Get returns a recipe by ID.
func (s *RecipeService) Get(ctx context.Context, recipeID string) (*model.Recipe, error) {
	return s.recipes.GetRecipeByID(ctx, recipeID)
}

// GetForEdit returns the recipe if the caller wrote it. It backs the
// pre-filled edit form.
func (s *RecipeService) GetForEdit(ctx context.Context, id auth.Identity, recipeID string) (*model.Recipe, error) {
	if err := requireIdentity(id); err != nil {
		return nil, err
	}
	recipe, err := s.recipes.GetRecipeByID(ctx, recipeID)
	if err != nil {
		return nil, err
	}
	if recipe.AuthorID != id.UserID {
		return nil, apperror.Forbidden("You are not allowed to edit this recipe.")
	}
	return recipe, nil
}

// Update overwrites title, ingredients and steps. The image changes only
// when a new one is supplied; the previous file is left in place.
func (s *RecipeService) Update(ctx context.Context, id auth.Identity, recipeID string, in RecipeInput, image *upload.File) (*model.Recipe, error) {
	recipe, err := s.GetForEdit(ctx, id, recipeID)
	if err != nil {
		return nil, err
	}

	in.trim()
	if err := validateInput(in); err != nil {
		return nil, err
	}

	imageName, err := checkImage(image)
	if err != nil {
		return nil, err
	}

	if imageName != "" {
		if err := s.images.Save(ctx, imageName, image.Body); err != nil {
			return nil, fmt.Errorf("service/recipe: storing image: %w", err)
		}
		recipe.Image = imageName
	}

	recipe.Title = in.Title
	recipe.Ingredients = in.Ingredients
	recipe.Steps = in.Steps

	if err := s.recipes.UpdateRecipe(ctx, recipe); err != nil {
		s.logger.Error("failed to update recipe",
			slog.String("recipeID", recipeID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service/recipe: updating: %w", err)
	}

	s.logger.Info("recipe updated", slog.String("recipeID", recipe.ID))
	return recipe, nil
}

// Delete removes the caller's recipe with its comments and likes, then its
// image. A failure to remove the image is logged and otherwise ignored:
// the recipe is already gone.
func (s *RecipeService) Delete(ctx context.Context, id auth.Identity, recipeID string) error {
	if err := requireIdentity(id); err != nil {
		return err
	}

	recipe, err := s.recipes.GetRecipeByID(ctx, recipeID)
	if err != nil {
		return err
	}
	if recipe.AuthorID != id.UserID {
		return apperror.Forbidden("You don't have permission to delete this recipe.")
	}

	if err := s.recipes.DeleteRecipe(ctx, recipe.ID); err != nil {
		s.logger.Error("failed to delete recipe",
			slog.String("recipeID", recipeID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("service/recipe: deleting: %w", err)
	}

	if recipe.HasImage() {
		if err := s.images.Delete(ctx, recipe.Image); err != nil {
			s.logger.Error("failed to remove recipe image",
				slog.String("recipeID", recipeID),
				slog.String("image", recipe.Image),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.Info("recipe deleted", slog.String("recipeID", recipeID))
	return nil
}

// Detail loads the recipe page. viewer may be the zero Identity.
func (s *RecipeService) Detail(ctx context.Context, viewer auth.Identity, recipeID string) (*RecipeDetail, error) {
	recipe, err := s.recipes.GetRecipeByID(ctx, recipeID)
	if err != nil {
		return nil, err
	}

	comments, err := s.comments.ListComments(ctx, recipeID)
	if err != nil {
		return nil, fmt.Errorf("service/recipe: loading comments: %w", err)
	}

	detail := &RecipeDetail{
		Recipe:   recipe,
		Comments: comments,
		IsAuthor: viewer.UserID != "" && viewer.UserID == recipe.AuthorID,
	}

	if viewer.UserID != "" {
		detail.Liked, err = s.likes.HasLiked(ctx, viewer.UserID, recipeID)
		if err != nil {
			return nil, fmt.Errorf("service/recipe: checking like: %w", err)
		}
	}

	return detail, nil
}

// ToggleLike likes the recipe if the caller does not already, and unlikes
// it otherwise. It returns whether the caller likes it afterwards.
func (s *RecipeService) ToggleLike(ctx context.Context, id auth.Identity, recipeID string) (bool, error) {
	if err := requireIdentity(id); err != nil {
		return false, err
	}

	// Resolve the recipe first so an unknown ID is a clean NotFound rather
	// than a constraint error from the insert.
	if _, err := s.recipes.GetRecipeByID(ctx, recipeID); err != nil {
		return false, err
	}

	liked, err := s.likes.ToggleLike(ctx, id.UserID, recipeID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return false, err
		}
		return false, fmt.Errorf("service/recipe: toggling like: %w", err)
	}

	s.logger.Info("like toggled",
		slog.String("recipeID", recipeID),
		slog.String("userID", id.UserID),
		slog.Bool("liked", liked),
	)
	return liked, nil
}

// Dashboard gathers the caller's recipes and the recipes they like.
func (s *RecipeService) Dashboard(ctx context.Context, id auth.Identity) (*Dashboard, error) {
	if err := requireIdentity(id); err != nil {
		return nil, err
	}

	user, err := s.users.GetUserByID(ctx, id.UserID)
	if err != nil {
		return nil, err
	}

	authored, err := s.recipes.ListRecipesByAuthor(ctx, id.UserID)
	if err != nil {
		return nil, fmt.Errorf("service/recipe: listing own recipes: %w", err)
	}

	liked, err := s.recipes.ListRecipesLikedBy(ctx, id.UserID)
	if err != nil {
		return nil, fmt.Errorf("service/recipe: listing liked recipes: %w", err)
	}

	return &Dashboard{User: user, Authored: authored, Liked: liked}, nil
}

// checkImage validates an optional upload. It returns "" when no image
// was supplied and the sanitised name otherwise.
func checkImage(image *upload.File) (string, error) {
	if image == nil || image.Name == "" {
		return "", nil
	}
	name, ok := upload.CleanImageName(image.Name)
	if !ok {
		return "", apperror.InvalidImage(image.Name)
	}
	return name, nil
}

func requireIdentity(id auth.Identity) error {
	if id.UserID == "" {
		return apperror.Unauthenticated("Please log in to access this page.")
	}
	return nil
}
