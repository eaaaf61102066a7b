package handlers

import (
	"context"
	"html/template"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"microblog-client/internal/controller"
	"microblog-client/internal/models"
	"microblog-client/internal/notify"
)

// Context key type to avoid collisions.
type contextKey string

// ConfirmContextKey carries the browser's answer to a confirmation prompt.
const ConfirmContextKey contextKey = "confirm"

// WithConfirmation returns a context answering the next Confirm call with ok.
func WithConfirmation(ctx context.Context, ok bool) context.Context {
	return context.WithValue(ctx, ConfirmContextKey, ok)
}

// Handlers serves the web UI for a single local session. It is the UI the
// controller drives: it caches the last rendered view and collects notices on
// a board that the next page shows.
type Handlers struct {
	ctrl        *controller.Controller
	board       *notify.Board
	templateDir string

	mu   sync.Mutex
	view controller.View
}

// NewHandlers creates a new Handlers instance. Bind must be called before serving.
func NewHandlers(templateDir string) *Handlers {
	return &Handlers{board: notify.NewBoard(), templateDir: templateDir}
}

// Bind attaches the controller the handlers forward user actions to.
func (h *Handlers) Bind(ctrl *controller.Controller) {
	h.ctrl = ctrl
}

// Render implements controller.Renderer.
func (h *Handlers) Render(v controller.View) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.view = v
}

func (h *Handlers) currentView() controller.View {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.view
}

// ShowError implements controller.Notifier.
func (h *Handlers) ShowError(scope notify.Scope, message string) {
	h.board.ShowError(scope, message)
}

// ClearError implements controller.Notifier.
func (h *Handlers) ClearError(scope notify.Scope) {
	h.board.ClearError(scope)
}

// ShowMessage implements controller.Notifier.
func (h *Handlers) ShowMessage(kind notify.Kind, message string) {
	h.board.ShowMessage(kind, message)
}

// Confirm answers with the confirmation attached to ctx. The prompt itself was
// shown by the browser before the form was submitted.
func (h *Handlers) Confirm(ctx context.Context, _ string) bool {
	ok, _ := ctx.Value(ConfirmContextKey).(bool)
	return ok
}

// RequireSession wraps handlers to require an authenticated session.
func (h *Handlers) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.ctrl.View().Authenticated() {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Index sends the browser to the page matching the session state.
func (h *Handlers) Index(w http.ResponseWriter, r *http.Request) {
	if h.ctrl.View().Authenticated() {
		http.Redirect(w, r, "/feed", http.StatusFound)
		return
	}
	http.Redirect(w, r, "/login", http.StatusFound)
}

// LoginViewModel holds data for the login page.
type LoginViewModel struct {
	LoginError    string
	RegisterError string
	Username      string
	Notices       []notify.Notice
}

func (h *Handlers) loginView(username string) LoginViewModel {
	return LoginViewModel{
		LoginError:    h.board.Error(notify.ScopeLogin),
		RegisterError: h.board.Error(notify.ScopeRegister),
		Username:      username,
		Notices:       h.board.Notices(),
	}
}

// LoginForm renders the login and registration forms.
func (h *Handlers) LoginForm(w http.ResponseWriter, r *http.Request) {
	if h.ctrl.View().Authenticated() {
		http.Redirect(w, r, "/feed", http.StatusFound)
		return
	}
	h.render(w, r, "login.html", h.loginView(""))
}

// Login handles the login form submission.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.board.ShowError(notify.ScopeLogin, "Invalid form submission")
		h.render(w, r, "login.html", h.loginView(""))
		return
	}

	username := strings.TrimSpace(r.FormValue("username"))
	if err := h.ctrl.Login(r.Context(), username, r.FormValue("password")); err != nil {
		h.render(w, r, "login.html", h.loginView(username))
		return
	}
	http.Redirect(w, r, "/feed", http.StatusFound)
}

// Register handles the registration form submission.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.board.ShowError(notify.ScopeRegister, "Invalid form submission")
		h.render(w, r, "login.html", h.loginView(""))
		return
	}

	username := strings.TrimSpace(r.FormValue("username"))
	err := h.ctrl.Register(r.Context(), username, strings.TrimSpace(r.FormValue("email")), r.FormValue("password"))
	if err != nil {
		h.render(w, r, "login.html", h.loginView(""))
		return
	}
	http.Redirect(w, r, "/feed", http.StatusFound)
}

// Logout forgets the session and returns to the login page.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.Logout(); err != nil {
		log.Printf("Logout error: %v", err)
	}
	http.Redirect(w, r, "/login", http.StatusFound)
}

// PostItem represents a post in the feed view.
type PostItem struct {
	models.Post
	Time    string
	Pending bool
}

// FeedViewModel is the data passed to the feed template.
type FeedViewModel struct {
	Username string
	Posts    []PostItem
	Notices  []notify.Notice
}

// Feed reloads the feed and renders it.
func (h *Handlers) Feed(w http.ResponseWriter, r *http.Request) {
	// Load failures keep the cached feed.
	_ = h.ctrl.LoadFeed(r.Context())

	view := h.currentView()
	if !view.Authenticated() {
		// Another request may have ended the session meanwhile.
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	items := make([]PostItem, 0, len(view.Feed))
	for _, p := range view.Feed {
		items = append(items, PostItem{
			Post:    p,
			Time:    p.Timestamp.Local().Format("Jan 02, 15:04"),
			Pending: view.InFlight[p.ID],
		})
	}
	h.render(w, r, "feed.html", FeedViewModel{
		Username: view.Username(),
		Posts:    items,
		Notices:  h.board.Notices(),
	})
}

// CreatePost handles the new post form.
func (h *Handlers) CreatePost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}
	_ = h.ctrl.CreatePost(r.Context(), r.FormValue("content"))
	http.Redirect(w, r, "/feed", http.StatusSeeOther)
}

// EditPost handles the inline edit form of an owned post.
func (h *Handlers) EditPost(w http.ResponseWriter, r *http.Request) {
	id, ok := postID(w, r)
	if !ok {
		return
	}
	_ = h.ctrl.EditPost(r.Context(), id, r.FormValue("content"))
	http.Redirect(w, r, "/feed", http.StatusSeeOther)
}

// DeletePost deletes a post if the form carries confirm=yes.
func (h *Handlers) DeletePost(w http.ResponseWriter, r *http.Request) {
	id, ok := postID(w, r)
	if !ok {
		return
	}
	ctx := WithConfirmation(r.Context(), r.FormValue("confirm") == "yes")
	_ = h.ctrl.DeletePost(ctx, id)
	http.Redirect(w, r, "/feed", http.StatusSeeOther)
}

// LikePost likes a post. Failures only reach the log.
func (h *Handlers) LikePost(w http.ResponseWriter, r *http.Request) {
	id, ok := postID(w, r)
	if !ok {
		return
	}
	_ = h.ctrl.ToggleLike(r.Context(), id)
	http.Redirect(w, r, "/feed", http.StatusSeeOther)
}

// RetweetPost retweets a post. Failures only reach the log.
func (h *Handlers) RetweetPost(w http.ResponseWriter, r *http.Request) {
	id, ok := postID(w, r)
	if !ok {
		return
	}
	_ = h.ctrl.ToggleRetweet(r.Context(), id)
	http.Redirect(w, r, "/feed", http.StatusSeeOther)
}

func postID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "Invalid post id", http.StatusBadRequest)
		return 0, false
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (h *Handlers) render(w http.ResponseWriter, r *http.Request, viewName string, data any) {
	tmpl, err := template.ParseFiles(filepath.Join(h.templateDir, "base.html"), filepath.Join(h.templateDir, viewName))
	if err != nil {
		log.Printf("Template error: %v", err)
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}
	target := "base.html"
	if r.Header.Get("HX-Request") == "true" {
		target = "content"
	}
	if err := tmpl.ExecuteTemplate(w, target, data); err != nil {
		log.Printf("Template execution error: %v", err)
	}
}
