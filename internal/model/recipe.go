package model

import "time"

// Recipe is a posted recipe. AuthorID is always set; Image is the stored
// (sanitised) filename or "" when the recipe has no picture.
//
// AuthorName and LikeCount are not columns of the recipes table. The
// repository fills them from joins when reading.
type Recipe struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Ingredients string    `json:"ingredients"`
	Steps       string    `json:"steps"`
	Image       string    `json:"image,omitempty"`
	AuthorID    string    `json:"authorId"`
	AuthorName  string    `json:"authorName"`
	LikeCount   int       `json:"likeCount"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// HasImage reports whether an image file is associated with the recipe.
func (r *Recipe) HasImage() bool {
	return r.Image != ""
}
