package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/recipe-share/internal/apperror"
	"github.com/sakif/recipe-share/internal/auth"
	"github.com/sakif/recipe-share/internal/model"
	"github.com/sakif/recipe-share/internal/repository"
)

// CommentInput is the comment form on the recipe page.
type CommentInput struct {
	Content string `form:"content" validate:"required"`
}

type CommentService struct {
	comments repository.CommentRepository
	recipes  repository.RecipeRepository
	logger   *slog.Logger
}

func NewCommentService(comments repository.CommentRepository, recipes repository.RecipeRepository, logger *slog.Logger) *CommentService {
	return &CommentService{
		comments: comments,
		recipes:  recipes,
		logger:   logger,
	}
}

// Add posts a comment on recipeID as the caller. Anonymous callers get
// ErrUnauthenticated and nothing is stored.
func (s *CommentService) Add(ctx context.Context, id auth.Identity, recipeID string, in CommentInput) (*model.Comment, error) {
	if id.UserID == "" {
		return nil, apperror.Unauthenticated("Please log in to comment.")
	}

	if _, err := s.recipes.GetRecipeByID(ctx, recipeID); err != nil {
		return nil, err
	}

	in.Content = strings.TrimSpace(in.Content)
	if err := validateInput(in); err != nil {
		return nil, err
	}

	comment := &model.Comment{
		Content:  in.Content,
		RecipeID: recipeID,
		AuthorID: id.UserID,
	}
	if err := s.comments.CreateComment(ctx, comment); err != nil {
		s.logger.Error("failed to create comment",
			slog.String("recipeID", recipeID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service/comment: creating: %w", err)
	}

	s.logger.Info("comment added",
		slog.String("commentID", comment.ID),
		slog.String("recipeID", recipeID),
		slog.String("userID", id.UserID),
	)
	return comment, nil
}
