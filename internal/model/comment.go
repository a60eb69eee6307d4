package model

import "time"

// Comment belongs to exactly one recipe and one author. Comments are removed
// together with their recipe.
type Comment struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	RecipeID   string    `json:"recipeId"`
	AuthorID   string    `json:"authorId"`
	AuthorName string    `json:"authorName"`
	CreatedAt  time.Time `json:"createdAt"`
}
