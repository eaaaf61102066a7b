// Package controller keeps the local session, the server state and the
// rendered UI consistent across user-triggered operations.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"microblog-client/internal/api"
	"microblog-client/internal/models"
	"microblog-client/internal/notify"
	"microblog-client/internal/session"
)

var (
	// ErrMissingCredentials is returned when username or password is empty.
	ErrMissingCredentials = errors.New("missing username or password")
	// ErrMissingFields is returned when a registration field is empty.
	ErrMissingFields = errors.New("missing registration field")
	// ErrEmptyContent is returned for empty or whitespace-only post content.
	ErrEmptyContent = errors.New("post content is empty")
	// ErrProfileUnavailable is returned when a fresh token cannot be validated.
	ErrProfileUnavailable = errors.New("failed to get user information after login")
	// ErrNotAuthenticated is returned when an operation needs a token and none is held.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrNotConfirmed is returned when the user declines a destructive action.
	ErrNotConfirmed = errors.New("action not confirmed")
	// ErrInFlight is returned when the same operation is already pending.
	ErrInFlight = errors.New("operation already in progress")
	// ErrSessionChanged is returned when the session changed while a login was pending.
	ErrSessionChanged = errors.New("session changed during login")
)

// Messages shown to the user.
const (
	MsgMissingCredentials = "Please enter both username and password"
	MsgMissingFields      = "Please fill in all fields"
	MsgEmptyContent       = "Please enter some content for your post"
	MsgProfileUnavailable = "Failed to get user information after login"
	MsgSessionSaveFailed  = "Failed to save session"
	MsgLoginInProgress    = "Login already in progress"
	MsgPostCreated        = "Post created successfully"
	MsgPostUpdated        = "Post updated successfully"
	DeletePrompt          = "Are you sure you want to delete this post?"
)

// Backend is the REST surface the controller needs. *api.Client satisfies it.
type Backend interface {
	Login(ctx context.Context, username, password string) (string, error)
	Register(ctx context.Context, r api.RegisterRequest) (*models.User, error)
	Me(ctx context.Context, token string) (*models.User, error)
	CreatePost(ctx context.Context, token, content string) (*models.Post, error)
	UpdatePost(ctx context.Context, token string, id int64, content string) (*models.Post, error)
	PostsWithCounts(ctx context.Context, token string) ([]models.Post, error)
	DeletePost(ctx context.Context, token string, id int64) (string, error)
	Like(ctx context.Context, token string, id int64) error
	Unlike(ctx context.Context, token string, id int64) error
	Retweet(ctx context.Context, token string, id int64) error
	Unretweet(ctx context.Context, token string, id int64) error
}

// Controller orchestrates request sequences against the backend and keeps
// the session store, the feed cache and the UI in step. Operations may be
// called from several goroutines; no lock is held across network calls.
type Controller struct {
	backend Backend
	session *session.Store
	ui      UI
	log     *log.Logger

	mu          sync.Mutex
	feed        []models.Post
	feedVersion uint64
	inFlight    map[int64]bool
	pending     map[string]bool
}

// New creates a Controller. A nil logger uses the standard logger.
func New(backend Backend, store *session.Store, ui UI, logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.Default()
	}
	return &Controller{
		backend:  backend,
		session:  store,
		ui:       ui,
		log:      logger,
		inFlight: make(map[int64]bool),
		pending:  make(map[string]bool),
	}
}

// View returns a snapshot of the current state.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := View{
		Session:     c.session.Snapshot(),
		Feed:        append([]models.Post(nil), c.feed...),
		InFlight:    make(map[int64]bool, len(c.inFlight)),
		FeedVersion: c.feedVersion,
	}
	for id := range c.inFlight {
		v.InFlight[id] = true
	}
	return v
}

func (c *Controller) render() {
	c.ui.Render(c.View())
}

// Resume restores a persisted token and validates it against the backend.
func (c *Controller) Resume(ctx context.Context) error {
	if err := c.session.Restore(); err != nil {
		c.log.Printf("Error restoring session: %v", err)
		c.render()
		return err
	}
	c.render()
	if !c.session.IsAuthenticated() {
		return nil
	}
	return c.FetchProfile(ctx)
}

// Start resumes the session and, if it is still valid, loads the feed.
func (c *Controller) Start(ctx context.Context) error {
	if err := c.Resume(ctx); err != nil {
		return err
	}
	if !c.session.IsAuthenticated() {
		return nil
	}
	return c.LoadFeed(ctx)
}

// Login exchanges credentials for a token and validates it by fetching the
// profile. The session only becomes authenticated once both succeed.
func (c *Controller) Login(ctx context.Context, username, password string) error {
	c.ui.ClearError(notify.ScopeLogin)
	if strings.TrimSpace(username) == "" || password == "" {
		c.ui.ShowError(notify.ScopeLogin, MsgMissingCredentials)
		return ErrMissingCredentials
	}
	if !c.acquire("login") {
		c.ui.ShowError(notify.ScopeLogin, MsgLoginInProgress)
		return ErrInFlight
	}
	defer c.release("login")

	gen := c.session.Generation()
	token, err := c.backend.Login(ctx, username, password)
	if err != nil {
		c.log.Printf("Login error: %v", err)
		c.ui.ShowError(notify.ScopeLogin, api.Message(err))
		return fmt.Errorf("login: %w", err)
	}

	user, err := c.backend.Me(ctx, token)
	if err != nil {
		c.log.Printf("Error getting user info: %v", err)
		cleared, cerr := c.session.Invalidate(gen)
		if cerr != nil {
			c.log.Printf("Error clearing session: %v", cerr)
		}
		if cleared {
			c.resetFeed()
			c.render()
		}
		c.ui.ShowError(notify.ScopeLogin, MsgProfileUnavailable)
		return fmt.Errorf("%w: %w", ErrProfileUnavailable, err)
	}

	ok, err := c.session.Authenticate(gen, token, user)
	if err != nil {
		c.log.Printf("Error saving session: %v", err)
		c.ui.ShowError(notify.ScopeLogin, MsgSessionSaveFailed)
		return err
	}
	if !ok {
		c.log.Printf("Discarding login for a session that has since changed")
		return ErrSessionChanged
	}
	c.resetFeed()
	c.log.Printf("Login successful: %s", user.Username)
	c.ui.ClearError(notify.ScopeLogin)
	c.render()

	// Feed failures are logged by LoadFeed and do not undo the login.
	_ = c.LoadFeed(ctx)
	return nil
}

// Register creates an account and then logs in with the same credentials.
// Login is not attempted when registration fails.
func (c *Controller) Register(ctx context.Context, username, email, password string) error {
	c.ui.ClearError(notify.ScopeRegister)
	if strings.TrimSpace(username) == "" || strings.TrimSpace(email) == "" || password == "" {
		c.ui.ShowError(notify.ScopeRegister, MsgMissingFields)
		return ErrMissingFields
	}

	_, err := c.backend.Register(ctx, api.RegisterRequest{Username: username, Email: email, Password: password})
	if err != nil {
		c.log.Printf("Registration error: %v", err)
		c.ui.ShowError(notify.ScopeRegister, api.Message(err))
		return fmt.Errorf("register: %w", err)
	}
	c.log.Printf("Registration successful: %s", username)
	return c.Login(ctx, username, password)
}

// FetchProfile validates the held token. Any failure other than
// cancellation logs the user out silently: the session is cleared and the UI
// re-rendered, but no notice is shown.
func (c *Controller) FetchProfile(ctx context.Context) error {
	token, gen := c.session.Token()
	if token == "" {
		return ErrNotAuthenticated
	}

	user, err := c.backend.Me(ctx, token)
	if err != nil {
		c.log.Printf("Error getting user info: %v", err)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		cleared, cerr := c.session.Invalidate(gen)
		if cerr != nil {
			c.log.Printf("Error clearing session: %v", cerr)
		}
		if cleared {
			c.resetFeed()
			c.render()
		}
		return fmt.Errorf("fetch profile: %w", err)
	}

	if !c.session.SetUser(gen, user) {
		c.log.Printf("Discarding profile for a session that has since changed")
		return nil
	}
	c.render()
	return nil
}

// LoadFeed replaces the feed cache with the server's list. Failures are
// logged and leave both the session and the cache untouched.
func (c *Controller) LoadFeed(ctx context.Context) error {
	token, gen := c.session.Token()
	if token == "" {
		return ErrNotAuthenticated
	}

	posts, err := c.backend.PostsWithCounts(ctx, token)
	if err != nil {
		c.log.Printf("Error loading posts: %v", err)
		return fmt.Errorf("load feed: %w", err)
	}

	c.mu.Lock()
	if c.session.Generation() != gen {
		c.mu.Unlock()
		return nil
	}
	c.feed = posts
	c.feedVersion++
	c.mu.Unlock()

	c.render()
	return nil
}

// CreatePost publishes content and reloads the feed. Empty content is
// rejected before any request is made.
func (c *Controller) CreatePost(ctx context.Context, content string) error {
	if strings.TrimSpace(content) == "" {
		c.ui.ShowMessage(notify.KindError, MsgEmptyContent)
		return ErrEmptyContent
	}
	token, _ := c.session.Token()
	if token == "" {
		return ErrNotAuthenticated
	}
	if !c.acquire("create") {
		return ErrInFlight
	}
	defer c.release("create")

	if _, err := c.backend.CreatePost(ctx, token, content); err != nil {
		c.log.Printf("Failed to create post: %v", err)
		c.ui.ShowMessage(notify.KindError, api.Message(err))
		return fmt.Errorf("create post: %w", err)
	}
	c.ui.ShowMessage(notify.KindSuccess, MsgPostCreated)
	_ = c.LoadFeed(ctx)
	return nil
}

// EditPost replaces the content of one of the user's posts.
func (c *Controller) EditPost(ctx context.Context, id int64, content string) error {
	if strings.TrimSpace(content) == "" {
		c.ui.ShowMessage(notify.KindError, MsgEmptyContent)
		return ErrEmptyContent
	}
	token, _ := c.session.Token()
	if token == "" {
		return ErrNotAuthenticated
	}
	if !c.markInFlight(id) {
		return ErrInFlight
	}
	defer c.clearInFlight(id)

	if _, err := c.backend.UpdatePost(ctx, token, id, content); err != nil {
		c.log.Printf("Edit error: %v", err)
		c.ui.ShowMessage(notify.KindError, api.Message(err))
		return fmt.Errorf("edit post %d: %w", id, err)
	}
	c.ui.ShowMessage(notify.KindSuccess, MsgPostUpdated)
	_ = c.LoadFeed(ctx)
	return nil
}

// DeletePost asks for confirmation, then deletes the post. The post is
// marked in flight until the call resolves, whatever the outcome.
func (c *Controller) DeletePost(ctx context.Context, id int64) error {
	token, _ := c.session.Token()
	if token == "" {
		return ErrNotAuthenticated
	}
	if !c.ui.Confirm(ctx, DeletePrompt) {
		return ErrNotConfirmed
	}
	if !c.markInFlight(id) {
		return ErrInFlight
	}
	defer c.clearInFlight(id)

	msg, err := c.backend.DeletePost(ctx, token, id)
	if err != nil {
		c.log.Printf("Delete error: %v", err)
		c.ui.ShowMessage(notify.KindError, api.Message(err))
		return fmt.Errorf("delete post %d: %w", id, err)
	}
	c.ui.ShowMessage(notify.KindSuccess, msg)
	_ = c.LoadFeed(ctx)
	return nil
}

// ToggleLike asks the server to like the post and reloads the feed.
// Failures are logged only.
func (c *Controller) ToggleLike(ctx context.Context, id int64) error {
	return c.react(ctx, id, "like", c.backend.Like)
}

// ToggleRetweet asks the server to retweet the post and reloads the feed.
// Failures are logged only.
func (c *Controller) ToggleRetweet(ctx context.Context, id int64) error {
	return c.react(ctx, id, "retweet", c.backend.Retweet)
}

// Unlike removes the user's like. Failures are logged only.
func (c *Controller) Unlike(ctx context.Context, id int64) error {
	return c.react(ctx, id, "unlike", c.backend.Unlike)
}

// Unretweet removes the user's retweet. Failures are logged only.
func (c *Controller) Unretweet(ctx context.Context, id int64) error {
	return c.react(ctx, id, "unretweet", c.backend.Unretweet)
}

func (c *Controller) react(ctx context.Context, id int64, action string, call func(context.Context, string, int64) error) error {
	token, _ := c.session.Token()
	if token == "" {
		return ErrNotAuthenticated
	}
	key := fmt.Sprintf("%s:%d", action, id)
	if !c.acquire(key) {
		return ErrInFlight
	}
	defer c.release(key)

	if err := call(ctx, token, id); err != nil {
		c.log.Printf("Error on %s of post %d: %v", action, id, err)
		return fmt.Errorf("%s post %d: %w", action, id, err)
	}
	_ = c.LoadFeed(ctx)
	return nil
}

// Logout clears the local session. The token is not revoked server-side.
func (c *Controller) Logout() error {
	err := c.session.Clear()
	c.resetFeed()
	c.render()
	if err != nil {
		c.log.Printf("Error clearing session: %v", err)
		return err
	}
	return nil
}

func (c *Controller) resetFeed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.feed = nil
}

func (c *Controller) acquire(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending[key] {
		return false
	}
	c.pending[key] = true
	return true
}

func (c *Controller) release(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, key)
}

func (c *Controller) markInFlight(id int64) bool {
	c.mu.Lock()
	if c.inFlight[id] {
		c.mu.Unlock()
		return false
	}
	c.inFlight[id] = true
	c.mu.Unlock()
	c.render()
	return true
}

func (c *Controller) clearInFlight(id int64) {
	c.mu.Lock()
	delete(c.inFlight, id)
	c.mu.Unlock()
	c.render()
}
