// Package repository declares the persistence interfaces the service layer
// depends on. The SQLite implementation lives in repository/sqlite; tests use
// in-memory fakes.
package repository

import (
	"context"
	"time"

	"github.com/sakif/recipe-share/internal/model"
)

// ListOptions narrows a recipe listing. An empty Search returns everything.
type ListOptions struct {
	Search string
}

type UserRepository interface {
	// CreateUser inserts the user and fills ID and CreatedAt. A duplicate
	// email yields apperror.ErrConflict.
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	CountUsersByEmail(ctx context.Context, email string) (int, error)
}

type RecipeRepository interface {
	CreateRecipe(ctx context.Context, recipe *model.Recipe) error
	GetRecipeByID(ctx context.Context, id string) (*model.Recipe, error)
	ListRecipes(ctx context.Context, opts ListOptions) ([]model.Recipe, error)
	ListRecipesByAuthor(ctx context.Context, authorID string) ([]model.Recipe, error)
	ListRecipesLikedBy(ctx context.Context, userID string) ([]model.Recipe, error)
	UpdateRecipe(ctx context.Context, recipe *model.Recipe) error
	// DeleteRecipe removes the recipe together with its comments and likes
	// in a single transaction.
	DeleteRecipe(ctx context.Context, id string) error
}

type CommentRepository interface {
	CreateComment(ctx context.Context, comment *model.Comment) error
	// ListComments returns the recipe's comments, newest first.
	ListComments(ctx context.Context, recipeID string) ([]model.Comment, error)
	CountComments(ctx context.Context, recipeID string) (int, error)
}

type LikeRepository interface {
	// ToggleLike flips membership of (userID, recipeID) atomically and
	// returns true when the pair is now present.
	ToggleLike(ctx context.Context, userID, recipeID string) (bool, error)
	HasLiked(ctx context.Context, userID, recipeID string) (bool, error)
	ListLikers(ctx context.Context, recipeID string) ([]string, error)
}

type SessionRepository interface {
	CreateSession(ctx context.Context, session *model.Session) error
	GetSession(ctx context.Context, id string) (*model.Session, error)
	DeleteSession(ctx context.Context, id string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}
