// Package apitest provides an in-memory implementation of the microblog REST
// backend for tests and local development.
package apitest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"
)

// EditWindow is how long after creation a post can be edited.
const EditWindow = 10 * time.Minute

// timestampLayout mimics the zone-less datetimes the real backend emits.
const timestampLayout = "2006-01-02T15:04:05.000000"

type user struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash []byte
	CreatedAt    time.Time
}

type post struct {
	ID        int64
	OwnerID   int64
	Content   string
	Timestamp time.Time
}

// Failure is a canned response returned instead of the real handler.
type Failure struct {
	Status      int
	ContentType string
	Body        string
}

// Backend is the in-memory backend state. The zero value is not usable; call New.
type Backend struct {
	mu       sync.Mutex
	users    map[int64]*user
	byName   map[string]*user
	tokens   map[string]int64
	posts    map[int64]*post
	likes    map[int64]map[int64]bool
	retweets map[int64]map[int64]bool
	nextUser int64
	nextPost int64

	failures map[string][]Failure
	counts   map[string]int

	// Now is the backend clock.
	Now func() time.Time
}

// New creates an empty backend.
func New() *Backend {
	return &Backend{
		users:    make(map[int64]*user),
		byName:   make(map[string]*user),
		tokens:   make(map[string]int64),
		posts:    make(map[int64]*post),
		likes:    make(map[int64]map[int64]bool),
		retweets: make(map[int64]map[int64]bool),
		failures: make(map[string][]Failure),
		counts:   make(map[string]int),
		Now:      time.Now,
	}
}

// Server is a Backend served over HTTP.
type Server struct {
	*Backend
	*httptest.Server
}

// NewServer starts a Backend on a local httptest server. Callers must Close it.
func NewServer() *Server {
	b := New()
	return &Server{Backend: b, Server: httptest.NewServer(b.Handler())}
}

// Route templates, also used as keys for FailNext and Count.
const (
	RouteToken     = "/api/v1/auth/token"
	RouteRegister  = "/api/v1/auth/register"
	RouteMe        = "/api/v1/auth/me"
	RoutePosts     = "/api/v1/posts/"
	RouteFeed      = "/api/v1/posts/with_counts/"
	RoutePost      = "/api/v1/posts/{id}"
	RouteLike      = "/api/v1/posts/{id}/like"
	RouteUnlike    = "/api/v1/posts/{id}/unlike"
	RouteRetweet   = "/api/v1/posts/{id}/retweet"
	RouteUnretweet = "/api/v1/posts/{id}/unretweet"
)

// Handler returns the HTTP handler implementing the REST contract.
func (b *Backend) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(b.track)

	r.HandleFunc(RouteToken, b.handleToken).Methods(http.MethodPost)
	r.HandleFunc(RouteRegister, b.handleRegister).Methods(http.MethodPost)
	r.HandleFunc(RouteMe, b.authed(b.handleMe)).Methods(http.MethodGet)
	r.HandleFunc(RoutePosts, b.authed(b.handleCreatePost)).Methods(http.MethodPost)
	r.HandleFunc(RouteFeed, b.authed(b.handleFeed)).Methods(http.MethodGet)
	r.HandleFunc(RoutePost, b.authed(b.handleUpdatePost)).Methods(http.MethodPut)
	r.HandleFunc(RoutePost, b.authed(b.handleDeletePost)).Methods(http.MethodDelete)
	r.HandleFunc(RouteLike, b.authed(b.reaction(b.likes, true, "Already liked", ""))).Methods(http.MethodPost)
	r.HandleFunc(RouteUnlike, b.authed(b.reaction(b.likes, false, "", "Not liked yet"))).Methods(http.MethodPost)
	r.HandleFunc(RouteRetweet, b.authed(b.reaction(b.retweets, true, "Already retweeted", ""))).Methods(http.MethodPost)
	r.HandleFunc(RouteUnretweet, b.authed(b.reaction(b.retweets, false, "", "Not retweeted yet"))).Methods(http.MethodPost)
	return r
}

func routeKey(method, template string) string {
	return method + " " + template
}

// FailNext makes the next request to method+route return f instead of being handled.
func (b *Backend) FailNext(method, route string, f Failure) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := routeKey(method, route)
	b.failures[key] = append(b.failures[key], f)
}

// Count returns how many requests reached method+route.
func (b *Backend) Count(method, route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts[routeKey(method, route)]
}

// Total returns how many requests the backend received.
func (b *Backend) Total() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.counts {
		n += c
	}
	return n
}

func (b *Backend) track(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		template := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if t, err := route.GetPathTemplate(); err == nil {
				template = t
			}
		}
		key := routeKey(r.Method, template)

		b.mu.Lock()
		b.counts[key]++
		var f *Failure
		if queue := b.failures[key]; len(queue) > 0 {
			f = &queue[0]
			b.failures[key] = queue[1:]
		}
		b.mu.Unlock()

		if f != nil {
			if f.ContentType != "" {
				w.Header().Set("Content-Type", f.ContentType)
			}
			w.WriteHeader(f.Status)
			w.Write([]byte(f.Body))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Seed creates an account directly and returns its id.
func (b *Backend) Seed(username, email, password string) (int64, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addUser(username, email, hash).ID, nil
}

// SeedPost creates a post owned by the given user and returns its id.
func (b *Backend) SeedPost(ownerID int64, content string) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextPost++
	p := &post{ID: b.nextPost, OwnerID: ownerID, Content: content, Timestamp: b.Now().UTC()}
	b.posts[p.ID] = p
	return p.ID
}

// RevokeTokens invalidates every issued token.
func (b *Backend) RevokeTokens() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens = make(map[string]int64)
}

// PostCount returns how many posts exist.
func (b *Backend) PostCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.posts)
}

func (b *Backend) addUser(username, email string, hash []byte) *user {
	b.nextUser++
	u := &user{ID: b.nextUser, Username: username, Email: email, PasswordHash: hash, CreatedAt: b.Now().UTC()}
	b.users[u.ID] = u
	b.byName[username] = u
	return u
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// writeValidation mirrors the 422 body of the real backend.
func writeValidation(w http.ResponseWriter, field, msg string) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
		"detail": []map[string]any{{
			"loc":  []string{"body", field},
			"msg":  msg,
			"type": "value_error",
		}},
	})
}

func userJSON(u *user) map[string]any {
	return map[string]any{
		"id":         u.ID,
		"username":   u.Username,
		"email":      u.Email,
		"created_at": u.CreatedAt.Format(timestampLayout),
	}
}

func (b *Backend) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid form")
		return
	}
	username := r.PostFormValue("username")
	password := r.PostFormValue("password")
	if username == "" || password == "" {
		writeValidation(w, "username", "Field required")
		return
	}

	b.mu.Lock()
	u, ok := b.byName[username]
	b.mu.Unlock()
	if !ok || bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)) != nil {
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeDetail(w, http.StatusUnauthorized, "Incorrect username or password")
		return
	}

	token := uuid.NewString()
	b.mu.Lock()
	b.tokens[token] = u.ID
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"access_token": token, "token_type": "bearer"})
}

func (b *Backend) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if in.Username == "" || in.Password == "" {
		writeValidation(w, "username", "Field required")
		return
	}
	if !strings.Contains(in.Email, "@") {
		writeValidation(w, "email", "value is not a valid email address")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.MinCost)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "An error occurred while creating the user")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.byName[in.Username]; exists {
		writeDetail(w, http.StatusBadRequest, "Username already registered")
		return
	}
	for _, u := range b.users {
		if u.Email == in.Email {
			writeDetail(w, http.StatusBadRequest, "Email already registered")
			return
		}
	}
	u := b.addUser(in.Username, in.Email, hash)
	writeJSON(w, http.StatusOK, userJSON(u))
}

type authedHandler func(w http.ResponseWriter, r *http.Request, u *user)

func (b *Backend) authed(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeDetail(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		b.mu.Lock()
		id, found := b.tokens[token]
		u := b.users[id]
		b.mu.Unlock()
		if !found || u == nil {
			writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		next(w, r, u)
	}
}

func (b *Backend) handleMe(w http.ResponseWriter, r *http.Request, u *user) {
	writeJSON(w, http.StatusOK, userJSON(u))
}

func (b *Backend) readContent(w http.ResponseWriter, r *http.Request) (string, bool) {
	var in struct {
		Content *string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid JSON body")
		return "", false
	}
	if in.Content == nil {
		writeValidation(w, "content", "Field required")
		return "", false
	}
	return *in.Content, true
}

func (b *Backend) postJSON(p *post, owner string) map[string]any {
	return map[string]any{
		"id":             p.ID,
		"content":        p.Content,
		"timestamp":      p.Timestamp.Format(timestampLayout),
		"owner_id":       p.OwnerID,
		"owner_username": owner,
	}
}

func (b *Backend) handleCreatePost(w http.ResponseWriter, r *http.Request, u *user) {
	content, ok := b.readContent(w, r)
	if !ok {
		return
	}
	b.mu.Lock()
	b.nextPost++
	p := &post{ID: b.nextPost, OwnerID: u.ID, Content: content, Timestamp: b.Now().UTC()}
	b.posts[p.ID] = p
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, b.postJSON(p, u.Username))
}

func (b *Backend) handleFeed(w http.ResponseWriter, r *http.Request, u *user) {
	b.mu.Lock()
	posts := make([]*post, 0, len(b.posts))
	for _, p := range b.posts {
		posts = append(posts, p)
	}
	sort.Slice(posts, func(i, j int) bool {
		if posts[i].Timestamp.Equal(posts[j].Timestamp) {
			return posts[i].ID > posts[j].ID
		}
		return posts[i].Timestamp.After(posts[j].Timestamp)
	})

	out := make([]map[string]any, 0, len(posts))
	for _, p := range posts {
		owner := ""
		if o := b.users[p.OwnerID]; o != nil {
			owner = o.Username
		}
		item := b.postJSON(p, owner)
		item["likes_count"] = len(b.likes[p.ID])
		item["retweets_count"] = len(b.retweets[p.ID])
		item["is_owner"] = p.OwnerID == u.ID
		out = append(out, item)
	}
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

// lookupPost resolves the {id} route variable. The caller must hold b.mu.
func (b *Backend) lookupPost(w http.ResponseWriter, r *http.Request) (*post, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeValidation(w, "post_id", "Input should be a valid integer")
		return nil, false
	}
	p, ok := b.posts[id]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Post not found")
		return nil, false
	}
	return p, true
}

func (b *Backend) handleUpdatePost(w http.ResponseWriter, r *http.Request, u *user) {
	content, ok := b.readContent(w, r)
	if !ok {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.lookupPost(w, r)
	if !ok {
		return
	}
	if p.OwnerID != u.ID {
		writeDetail(w, http.StatusForbidden, "Not authorized to edit this post")
		return
	}
	if b.Now().UTC().Sub(p.Timestamp) > EditWindow {
		writeDetail(w, http.StatusNotFound, "You can only edit a post within 10 minutes of its creation")
		return
	}
	p.Content = content
	writeJSON(w, http.StatusOK, b.postJSON(p, u.Username))
}

func (b *Backend) handleDeletePost(w http.ResponseWriter, r *http.Request, u *user) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.lookupPost(w, r)
	if !ok {
		return
	}
	if p.OwnerID != u.ID {
		writeDetail(w, http.StatusForbidden, "Not authorized to delete this post")
		return
	}
	delete(b.posts, p.ID)
	delete(b.likes, p.ID)
	delete(b.retweets, p.ID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Post deleted successfully"})
}

// reaction handles like/retweet and their removal against set.
func (b *Backend) reaction(set map[int64]map[int64]bool, add bool, dupDetail, missingDetail string) authedHandler {
	return func(w http.ResponseWriter, r *http.Request, u *user) {
		b.mu.Lock()
		defer b.mu.Unlock()
		p, ok := b.lookupPost(w, r)
		if !ok {
			return
		}
		users := set[p.ID]
		switch {
		case add && users[u.ID]:
			writeDetail(w, http.StatusNotFound, dupDetail)
			return
		case add:
			if users == nil {
				users = make(map[int64]bool)
				set[p.ID] = users
			}
			users[u.ID] = true
		case !users[u.ID]:
			writeDetail(w, http.StatusNotFound, missingDetail)
			return
		default:
			delete(users, u.ID)
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
