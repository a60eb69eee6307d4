package sqlite

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/sakif/recipe-share/internal/apperror"
)

func TestToggleLike_FlipsState(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	author := createTestUser(t, db, "alice")
	fan := createTestUser(t, db, "bob")
	recipe := createTestRecipe(t, db, author, "Soup")

	wantStates := []bool{true, false, true}
	for i, want := range wantStates {
		liked, err := db.ToggleLike(ctx, fan.ID, recipe.ID)
		if err != nil {
			t.Fatalf("toggle %d: ToggleLike() error = %v", i, err)
		}
		if liked != want {
			t.Errorf("toggle %d: liked = %v, want %v", i, liked, want)
		}

		has, err := db.HasLiked(ctx, fan.ID, recipe.ID)
		if err != nil {
			t.Fatalf("HasLiked() error = %v", err)
		}
		if has != want {
			t.Errorf("toggle %d: HasLiked() = %v, want %v", i, has, want)
		}
	}
}

func TestToggleLike_AuthorCanLikeOwnRecipe(t *testing.T) {
	db := newTestDB(t)
	author := createTestUser(t, db, "alice")
	recipe := createTestRecipe(t, db, author, "Soup")

	liked, err := db.ToggleLike(context.Background(), author.ID, recipe.ID)
	if err != nil {
		t.Fatalf("ToggleLike() error = %v", err)
	}
	if !liked {
		t.Error("author should be able to like their own recipe")
	}
}

func TestToggleLike_UnknownRecipe(t *testing.T) {
	db := newTestDB(t)
	fan := createTestUser(t, db, "bob")

	_, err := db.ToggleLike(context.Background(), fan.ID, "missing")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("ToggleLike() error = %v, want ErrNotFound", err)
	}
}

// An even number of concurrent toggles must leave the pair unliked and an
// odd number must leave exactly one row.
func TestToggleLike_Concurrent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	author := createTestUser(t, db, "alice")
	fan := createTestUser(t, db, "bob")
	recipe := createTestRecipe(t, db, author, "Soup")

	const toggles = 9
	var wg sync.WaitGroup
	errs := make(chan error, toggles)
	for i := 0; i < toggles; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := db.ToggleLike(ctx, fan.ID, recipe.ID); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("ToggleLike() error = %v", err)
	}

	likers, err := db.ListLikers(ctx, recipe.ID)
	if err != nil {
		t.Fatalf("ListLikers() error = %v", err)
	}
	if len(likers) != 1 || likers[0] != fan.ID {
		t.Errorf("ListLikers() = %v, want [%s]", likers, fan.ID)
	}
}

func TestListLikers(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	author := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")
	carol := createTestUser(t, db, "carol")
	recipe := createTestRecipe(t, db, author, "Soup")

	for _, u := range []string{bob.ID, carol.ID} {
		if _, err := db.ToggleLike(ctx, u, recipe.ID); err != nil {
			t.Fatalf("ToggleLike() error = %v", err)
		}
	}

	likers, err := db.ListLikers(ctx, recipe.ID)
	if err != nil {
		t.Fatalf("ListLikers() error = %v", err)
	}
	if len(likers) != 2 || likers[0] != bob.ID || likers[1] != carol.ID {
		t.Errorf("ListLikers() = %v, want [%s %s]", likers, bob.ID, carol.ID)
	}
}
