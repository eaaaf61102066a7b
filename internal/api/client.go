// Package api is a client for the microblog REST backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"microblog-client/internal/models"

	"github.com/google/uuid"
)

// Prefix is the path prefix of every backend endpoint.
const Prefix = "/api/v1"

// RequestIDHeader carries a per-request identifier for log correlation.
const RequestIDHeader = "X-Request-ID"

// Client talks to the backend. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Client for baseURL. A nil httpClient uses a client
// without a timeout; cancel through the request context instead.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	req, err := c.newRequest(ctx, http.MethodPost, "/auth/token", "", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var out tokenResponse
	if err := c.do(req, "Login failed", &out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", &Error{StatusCode: http.StatusOK, Detail: "Login failed"}
	}
	return out.AccessToken, nil
}

// RegisterRequest is the body of a registration call.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates an account. It does not log in.
func (c *Client) Register(ctx context.Context, r RegisterRequest) (*models.User, error) {
	req, err := c.newJSONRequest(ctx, http.MethodPost, "/auth/register", "", r)
	if err != nil {
		return nil, err
	}
	var user models.User
	if err := c.do(req, "Registration failed", &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Me returns the profile that token belongs to.
func (c *Client) Me(ctx context.Context, token string) (*models.User, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/auth/me", token, nil)
	if err != nil {
		return nil, err
	}
	var user models.User
	if err := c.do(req, "Failed to get user info", &user); err != nil {
		return nil, err
	}
	return &user, nil
}

type contentRequest struct {
	Content string `json:"content"`
}

// CreatePost publishes a new post.
func (c *Client) CreatePost(ctx context.Context, token, content string) (*models.Post, error) {
	req, err := c.newJSONRequest(ctx, http.MethodPost, "/posts/", token, contentRequest{Content: content})
	if err != nil {
		return nil, err
	}
	var post models.Post
	if err := c.do(req, "Failed to create post", &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// UpdatePost replaces the content of a post. The backend only allows this
// shortly after creation.
func (c *Client) UpdatePost(ctx context.Context, token string, id int64, content string) (*models.Post, error) {
	req, err := c.newJSONRequest(ctx, http.MethodPut, postPath(id, ""), token, contentRequest{Content: content})
	if err != nil {
		return nil, err
	}
	var post models.Post
	if err := c.do(req, "Failed to update post", &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// PostsWithCounts returns the feed with like and retweet counts and the
// ownership flag computed for the caller.
func (c *Client) PostsWithCounts(ctx context.Context, token string) ([]models.Post, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/posts/with_counts/", token, nil)
	if err != nil {
		return nil, err
	}
	var posts []models.Post
	if err := c.do(req, "Failed to load posts", &posts); err != nil {
		return nil, err
	}
	if posts == nil {
		posts = []models.Post{}
	}
	return posts, nil
}

const deletedMessage = "Post deleted successfully"

// DeletePost removes a post and returns the backend's confirmation message.
// The response body may be JSON or plain text.
func (c *Client) DeletePost(ctx context.Context, token string, id int64) (string, error) {
	req, err := c.newRequest(ctx, http.MethodDelete, postPath(id, ""), token, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("delete post %d: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", decodeError(resp, "Failed to delete post")
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || !isJSON(resp.Header) {
		return deletedMessage, nil
	}
	var out struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &out); err != nil || out.Message == "" {
		return deletedMessage, nil
	}
	return out.Message, nil
}

// Like marks a post as liked by the caller.
func (c *Client) Like(ctx context.Context, token string, id int64) error {
	return c.postAction(ctx, token, id, "like", "Failed to toggle like")
}

// Unlike removes the caller's like.
func (c *Client) Unlike(ctx context.Context, token string, id int64) error {
	return c.postAction(ctx, token, id, "unlike", "Failed to toggle like")
}

// Retweet marks a post as retweeted by the caller.
func (c *Client) Retweet(ctx context.Context, token string, id int64) error {
	return c.postAction(ctx, token, id, "retweet", "Failed to toggle retweet")
}

// Unretweet removes the caller's retweet.
func (c *Client) Unretweet(ctx context.Context, token string, id int64) error {
	return c.postAction(ctx, token, id, "unretweet", "Failed to toggle retweet")
}

func (c *Client) postAction(ctx context.Context, token string, id int64, action, fallback string) error {
	req, err := c.newRequest(ctx, http.MethodPost, postPath(id, action), token, nil)
	if err != nil {
		return err
	}
	return c.do(req, fallback, nil)
}

func postPath(id int64, action string) string {
	p := fmt.Sprintf("/posts/%d", id)
	if action != "" {
		p += "/" + action
	}
	return p
}

func (c *Client) newJSONRequest(ctx context.Context, method, path, token string, payload any) (*http.Request, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := c.newRequest(ctx, method, path, token, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *Client) newRequest(ctx context.Context, method, path, token string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+Prefix+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, uuid.NewString())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// do sends req and decodes a successful JSON body into out, if out is non-nil.
func (c *Client) do(req *http.Request, fallback string, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp, fallback)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{StatusCode: resp.StatusCode, Detail: unparseableBody}
	}
	return nil
}
