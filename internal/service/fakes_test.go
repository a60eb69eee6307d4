package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/recipe-share/internal/apperror"
	"github.com/sakif/recipe-share/internal/auth"
	"github.com/sakif/recipe-share/internal/model"
	"github.com/sakif/recipe-share/internal/repository"
	"github.com/sakif/recipe-share/internal/upload"
)

// fakeStore is an in-memory implementation of every repository the
// services use. It keeps insertion order the way SQLite's rowid does.
type fakeStore struct {
	mu       sync.Mutex
	seq      int
	users    []model.User
	recipes  []model.Recipe
	comments []model.Comment
	likes    map[[2]string]bool
	sessions map[string]model.Session
}

var (
	_ repository.UserRepository    = (*fakeStore)(nil)
	_ repository.RecipeRepository  = (*fakeStore)(nil)
	_ repository.CommentRepository = (*fakeStore)(nil)
	_ repository.LikeRepository    = (*fakeStore)(nil)
	_ repository.SessionRepository = (*fakeStore)(nil)
)

func newFakeStore() *fakeStore {
	return &fakeStore{
		likes:    make(map[[2]string]bool),
		sessions: make(map[string]model.Session),
	}
}

func (f *fakeStore) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%d", prefix, f.seq)
}

// --- users ---

func (f *fakeStore) CreateUser(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.Email == u.Email {
			return apperror.Conflict("user", u.Email)
		}
	}
	u.ID = f.nextID("user")
	u.CreatedAt = time.Now().UTC()
	f.users = append(f.users, *u)
	return nil
}

func (f *fakeStore) GetUserByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.ID == id {
			return &u, nil
		}
	}
	return nil, apperror.NotFound("user", id)
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}

func (f *fakeStore) CountUsersByEmail(_ context.Context, email string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, u := range f.users {
		if u.Email == email {
			n++
		}
	}
	return n, nil
}

// --- recipes ---

func (f *fakeStore) username(id string) string {
	for _, u := range f.users {
		if u.ID == id {
			return u.Username
		}
	}
	return ""
}

func (f *fakeStore) decorate(r model.Recipe) model.Recipe {
	r.AuthorName = f.username(r.AuthorID)
	r.LikeCount = 0
	for pair := range f.likes {
		if pair[1] == r.ID {
			r.LikeCount++
		}
	}
	return r
}

func (f *fakeStore) CreateRecipe(_ context.Context, r *model.Recipe) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r.ID = f.nextID("recipe")
	r.CreatedAt = time.Now().UTC()
	r.UpdatedAt = r.CreatedAt
	f.recipes = append(f.recipes, *r)
	return nil
}

func (f *fakeStore) GetRecipeByID(_ context.Context, id string) (*model.Recipe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.recipes {
		if r.ID == id {
			d := f.decorate(r)
			return &d, nil
		}
	}
	return nil, apperror.NotFound("recipe", id)
}

func (f *fakeStore) filter(keep func(model.Recipe) bool) []model.Recipe {
	out := make([]model.Recipe, 0)
	for _, r := range f.recipes {
		if keep(r) {
			out = append(out, f.decorate(r))
		}
	}
	return out
}

func (f *fakeStore) ListRecipes(_ context.Context, opts repository.ListOptions) ([]model.Recipe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	needle := strings.ToLower(opts.Search)
	return f.filter(func(r model.Recipe) bool {
		return strings.Contains(strings.ToLower(r.Title), needle)
	}), nil
}

func (f *fakeStore) ListRecipesByAuthor(_ context.Context, authorID string) ([]model.Recipe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.filter(func(r model.Recipe) bool { return r.AuthorID == authorID }), nil
}

func (f *fakeStore) ListRecipesLikedBy(_ context.Context, userID string) ([]model.Recipe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.filter(func(r model.Recipe) bool { return f.likes[[2]string{userID, r.ID}] }), nil
}

func (f *fakeStore) UpdateRecipe(_ context.Context, r *model.Recipe) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.recipes {
		if f.recipes[i].ID == r.ID {
			r.UpdatedAt = time.Now().UTC()
			f.recipes[i].Title = r.Title
			f.recipes[i].Ingredients = r.Ingredients
			f.recipes[i].Steps = r.Steps
			f.recipes[i].Image = r.Image
			f.recipes[i].UpdatedAt = r.UpdatedAt
			return nil
		}
	}
	return apperror.NotFound("recipe", r.ID)
}

func (f *fakeStore) DeleteRecipe(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := -1
	for i, r := range f.recipes {
		if r.ID == id {
			idx = i
		}
	}
	if idx < 0 {
		return apperror.NotFound("recipe", id)
	}
	f.recipes = append(f.recipes[:idx], f.recipes[idx+1:]...)

	kept := f.comments[:0]
	for _, c := range f.comments {
		if c.RecipeID != id {
			kept = append(kept, c)
		}
	}
	f.comments = kept

	for pair := range f.likes {
		if pair[1] == id {
			delete(f.likes, pair)
		}
	}
	return nil
}

// --- comments ---

func (f *fakeStore) CreateComment(_ context.Context, c *model.Comment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c.ID = f.nextID("comment")
	c.CreatedAt = time.Now().UTC()
	f.comments = append(f.comments, *c)
	return nil
}

func (f *fakeStore) ListComments(_ context.Context, recipeID string) ([]model.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Comment, 0)
	for i := len(f.comments) - 1; i >= 0; i-- {
		if c := f.comments[i]; c.RecipeID == recipeID {
			c.AuthorName = f.username(c.AuthorID)
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) CountComments(_ context.Context, recipeID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.comments {
		if c.RecipeID == recipeID {
			n++
		}
	}
	return n, nil
}

// --- likes ---

func (f *fakeStore) ToggleLike(_ context.Context, userID, recipeID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := [2]string{userID, recipeID}
	if f.likes[key] {
		delete(f.likes, key)
		return false, nil
	}
	f.likes[key] = true
	return true, nil
}

func (f *fakeStore) HasLiked(_ context.Context, userID, recipeID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.likes[[2]string{userID, recipeID}], nil
}

func (f *fakeStore) ListLikers(_ context.Context, recipeID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0)
	for pair := range f.likes {
		if pair[1] == recipeID {
			out = append(out, pair[0])
		}
	}
	return out, nil
}

// --- sessions ---

func (f *fakeStore) CreateSession(_ context.Context, s *model.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[s.ID] = *s
	return nil
}

func (f *fakeStore) GetSession(_ context.Context, id string) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, apperror.NotFound("session", id)
	}
	return &s, nil
}

func (f *fakeStore) DeleteSession(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, id)
	return nil
}

func (f *fakeStore) DeleteExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, s := range f.sessions {
		if s.Expired(now) {
			delete(f.sessions, id)
			n++
		}
	}
	return n, nil
}

// --- wiring ---

// testEnv bundles the services over one fakeStore and a temp upload dir.
type testEnv struct {
	store    *fakeStore
	images   *upload.LocalStore
	auth     *AuthService
	recipes  *RecipeService
	comments *CommentService
	sessions *auth.SessionManager
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := newFakeStore()
	logger := newTestLogger()

	images, err := upload.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}

	tokens, err := auth.NewTokenService("service-test-secret-0123456789")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	sessions := auth.NewSessionManager(store, tokens, time.Hour, logger)
	passwords := auth.NewPasswordServiceForTest(bcrypt.MinCost)

	return &testEnv{
		store:    store,
		images:   images,
		auth:     NewAuthService(store, passwords, sessions, logger),
		recipes:  NewRecipeService(store, store, store, store, images, logger),
		comments: NewCommentService(store, store, logger),
		sessions: sessions,
	}
}

// registerUser signs up name with password "secret123" and returns an
// identity for them.
func (e *testEnv) registerUser(t *testing.T, name string) auth.Identity {
	t.Helper()
	u, err := e.auth.Register(context.Background(), RegisterInput{
		Username:        name,
		Email:           name + "@example.com",
		Password:        "secret123",
		ConfirmPassword: "secret123",
	})
	if err != nil {
		t.Fatalf("Register(%s): %v", name, err)
	}
	return auth.Identity{UserID: u.ID}
}

func (e *testEnv) postRecipe(t *testing.T, id auth.Identity, title string) *model.Recipe {
	t.Helper()
	r, err := e.recipes.Create(context.Background(), id, RecipeInput{
		Title:       title,
		Ingredients: "pasta\nsalt",
		Steps:       "boil\nserve",
	}, nil)
	if err != nil {
		t.Fatalf("Create(%s): %v", title, err)
	}
	return r
}

func imageFile(name, body string) *upload.File {
	return &upload.File{Name: name, Body: strings.NewReader(body)}
}
