package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/recipe-share/internal/apperror"
	"github.com/sakif/recipe-share/internal/model"
	"github.com/sakif/recipe-share/internal/repository"
)

var _ repository.CommentRepository = (*DB)(nil)

// CreateComment stores a comment. A recipe or author that does not exist
// is reported as apperror.ErrNotFound.
func (db *DB) CreateComment(ctx context.Context, comment *model.Comment) error {
	comment.ID = xid.New().String()
	comment.CreatedAt = time.Now().UTC()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO comments (id, content, user_id, recipe_id, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		comment.ID,
		comment.Content,
		comment.AuthorID,
		comment.RecipeID,
		comment.CreatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return apperror.NotFound("recipe", comment.RecipeID)
		}
		return fmt.Errorf("sqlite: creating comment: %w", err)
	}

	return nil
}

// ListComments returns the comments on recipeID, newest first. Comments
// created within the same clock tick fall back to insertion order, newest
// first as well.
func (db *DB) ListComments(ctx context.Context, recipeID string) ([]model.Comment, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT c.id, c.content, c.recipe_id, c.user_id, u.username, c.created_at
		 FROM comments c
		 JOIN users u ON u.id = c.user_id
		 WHERE c.recipe_id = ?
		 ORDER BY c.created_at DESC, c.rowid DESC`,
		recipeID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing comments: %w", err)
	}
	defer rows.Close()

	comments := make([]model.Comment, 0)
	for rows.Next() {
		var c model.Comment
		if err := rows.Scan(
			&c.ID,
			&c.Content,
			&c.RecipeID,
			&c.AuthorID,
			&c.AuthorName,
			&c.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning comment row: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating comment rows: %w", err)
	}

	return comments, nil
}

func (db *DB) CountComments(ctx context.Context, recipeID string) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM comments WHERE recipe_id = ?`, recipeID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting comments: %w", err)
	}
	return n, nil
}
