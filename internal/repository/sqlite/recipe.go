package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/recipe-share/internal/apperror"
	"github.com/sakif/recipe-share/internal/model"
	"github.com/sakif/recipe-share/internal/repository"
)

var _ repository.RecipeRepository = (*DB)(nil)

// recipeColumns is the SELECT list shared by every recipe read.
//
// JOINED FIELDS:
// AuthorName comes from users and LikeCount from a correlated COUNT over
// likes. Neither is stored on the recipe row, so a like or a rename is
// visible on the next read without touching recipes.
const recipeColumns = `
	r.id, r.title, r.ingredients, r.steps, r.image, r.user_id,
	u.username,
	(SELECT COUNT(*) FROM likes l WHERE l.recipe_id = r.id),
	r.created_at, r.updated_at`

const recipeFrom = `
	FROM recipes r
	JOIN users u ON u.id = r.user_id`

// CreateRecipe inserts recipe and fills ID and both timestamps.
// A missing author surfaces as apperror.ErrNotFound.
func (db *DB) CreateRecipe(ctx context.Context, recipe *model.Recipe) error {
	recipe.ID = xid.New().String()

	now := time.Now().UTC()
	recipe.CreatedAt = now
	recipe.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO recipes (id, title, ingredients, steps, image, user_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		recipe.ID,
		recipe.Title,
		recipe.Ingredients,
		recipe.Steps,
		recipe.Image,
		recipe.AuthorID,
		recipe.CreatedAt,
		recipe.UpdatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return apperror.NotFound("user", recipe.AuthorID)
		}
		return fmt.Errorf("sqlite: creating recipe: %w", err)
	}

	return nil
}

// GetRecipeByID returns the recipe with its author name and like count.
func (db *DB) GetRecipeByID(ctx context.Context, id string) (*model.Recipe, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+recipeColumns+recipeFrom+` WHERE r.id = ?`, id)

	recipe, err := scanRecipe(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("recipe", id)
		}
		return nil, fmt.Errorf("sqlite: getting recipe %s: %w", id, err)
	}
	return recipe, nil
}

// ListRecipes returns recipes in the order they were posted. When
// opts.Search is set only recipes whose title contains it are returned.
//
// SEARCH:
// LIKE treats % and _ as wildcards, so both (and the escape character
// itself) are escaped before the term is wrapped in %...%. SQLite's LIKE
// folds ASCII letters only; "É" will not match "é".
func (db *DB) ListRecipes(ctx context.Context, opts repository.ListOptions) ([]model.Recipe, error) {
	query := `SELECT ` + recipeColumns + recipeFrom
	var args []any

	if term := strings.TrimSpace(opts.Search); term != "" {
		query += ` WHERE r.title LIKE ? ESCAPE '\'`
		args = append(args, "%"+escapeLike(term)+"%")
	}
	query += ` ORDER BY r.rowid ASC`

	return db.queryRecipes(ctx, "listing recipes", query, args...)
}

// ListRecipesByAuthor returns the recipes posted by authorID, oldest first.
func (db *DB) ListRecipesByAuthor(ctx context.Context, authorID string) ([]model.Recipe, error) {
	return db.queryRecipes(ctx, "listing recipes by author",
		`SELECT `+recipeColumns+recipeFrom+`
		 WHERE r.user_id = ?
		 ORDER BY r.rowid ASC`,
		authorID,
	)
}

// ListRecipesLikedBy returns the recipes userID currently likes.
func (db *DB) ListRecipesLikedBy(ctx context.Context, userID string) ([]model.Recipe, error) {
	return db.queryRecipes(ctx, "listing liked recipes",
		`SELECT `+recipeColumns+recipeFrom+`
		 JOIN likes mine ON mine.recipe_id = r.id AND mine.user_id = ?
		 ORDER BY r.rowid ASC`,
		userID,
	)
}

// UpdateRecipe overwrites title, ingredients, steps and image, and bumps
// UpdatedAt. The author never changes.
func (db *DB) UpdateRecipe(ctx context.Context, recipe *model.Recipe) error {
	recipe.UpdatedAt = time.Now().UTC()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE recipes
		 SET title = ?, ingredients = ?, steps = ?, image = ?, updated_at = ?
		 WHERE id = ?`,
		recipe.Title,
		recipe.Ingredients,
		recipe.Steps,
		recipe.Image,
		recipe.UpdatedAt,
		recipe.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating recipe %s: %w", recipe.ID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking update result: %w", err)
	}
	if rows == 0 {
		return apperror.NotFound("recipe", recipe.ID)
	}

	return nil
}

// DeleteRecipe removes the recipe, its comments and its likes.
//
// CASCADE:
// The foreign keys also cascade, but the children are deleted explicitly
// inside one transaction so the outcome does not depend on the
// foreign_keys PRAGMA being set on the connection. Either everything goes
// or nothing does.
func (db *DB) DeleteRecipe(ctx context.Context, id string) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM comments WHERE recipe_id = ?`, id); err != nil {
			return fmt.Errorf("sqlite: deleting comments of recipe %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM likes WHERE recipe_id = ?`, id); err != nil {
			return fmt.Errorf("sqlite: deleting likes of recipe %s: %w", id, err)
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM recipes WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("sqlite: deleting recipe %s: %w", id, err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: checking delete result: %w", err)
		}
		if rows == 0 {
			return apperror.NotFound("recipe", id)
		}
		return nil
	})
}

func (db *DB) queryRecipes(ctx context.Context, op, query string, args ...any) ([]model.Recipe, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %s: %w", op, err)
	}
	defer rows.Close()

	recipes := make([]model.Recipe, 0)
	for rows.Next() {
		recipe, err := scanRecipe(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning recipe row: %w", err)
		}
		recipes = append(recipes, *recipe)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating recipe rows: %w", err)
	}

	return recipes, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecipe(s scanner) (*model.Recipe, error) {
	var r model.Recipe
	err := s.Scan(
		&r.ID,
		&r.Title,
		&r.Ingredients,
		&r.Steps,
		&r.Image,
		&r.AuthorID,
		&r.AuthorName,
		&r.LikeCount,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes s match literally inside a LIKE pattern using '\' as
// the escape character.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
