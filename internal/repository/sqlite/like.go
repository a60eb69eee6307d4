package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sakif/recipe-share/internal/apperror"
	"github.com/sakif/recipe-share/internal/repository"
)

var _ repository.LikeRepository = (*DB)(nil)

// ToggleLike flips whether userID likes recipeID and reports the new state.
//
// ATOMICITY:
// The delete and the conditional insert share one transaction, and the
// (user_id, recipe_id) primary key rejects a second row for the pair. Two
// racing toggles therefore end in a consistent state with at most one row,
// never a duplicate.
func (db *DB) ToggleLike(ctx context.Context, userID, recipeID string) (bool, error) {
	var liked bool

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`DELETE FROM likes WHERE user_id = ? AND recipe_id = ?`,
			userID, recipeID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: removing like: %w", err)
		}
		removed, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: checking like removal: %w", err)
		}
		if removed > 0 {
			liked = false
			return nil
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO likes (user_id, recipe_id) VALUES (?, ?)
			 ON CONFLICT (user_id, recipe_id) DO NOTHING`,
			userID, recipeID,
		)
		if err != nil {
			if isForeignKeyViolation(err) {
				return apperror.NotFound("recipe", recipeID)
			}
			return fmt.Errorf("sqlite: adding like: %w", err)
		}
		liked = true
		return nil
	})
	if err != nil {
		return false, err
	}

	return liked, nil
}

func (db *DB) HasLiked(ctx context.Context, userID, recipeID string) (bool, error) {
	var exists bool
	err := db.conn.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM likes WHERE user_id = ? AND recipe_id = ?)`,
		userID, recipeID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking like: %w", err)
	}
	return exists, nil
}

// ListLikers returns the IDs of the users who like recipeID.
func (db *DB) ListLikers(ctx context.Context, recipeID string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT user_id FROM likes WHERE recipe_id = ? ORDER BY rowid`, recipeID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing likers: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scanning liker row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating liker rows: %w", err)
	}
	return ids, nil
}
