package api_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"microblog-client/internal/api"
	"microblog-client/internal/apitest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// ClientTestSuite runs the client against the in-memory backend
type ClientTestSuite struct {
	suite.Suite
	srv    *apitest.Server
	client *api.Client
	ctx    context.Context
}

func (suite *ClientTestSuite) SetupTest() {
	suite.srv = apitest.NewServer()
	suite.client = api.NewClient(suite.srv.URL+"/", nil)
	suite.ctx = context.Background()

	_, err := suite.srv.Seed("alice", "alice@example.com", "secret")
	require.NoError(suite.T(), err)
}

func (suite *ClientTestSuite) TearDownTest() {
	suite.srv.Close()
}

func (suite *ClientTestSuite) login() string {
	token, err := suite.client.Login(suite.ctx, "alice", "secret")
	require.NoError(suite.T(), err)
	return token
}

func (suite *ClientTestSuite) TestLoginAndMe() {
	token := suite.login()
	assert.NotEmpty(suite.T(), token)

	user, err := suite.client.Me(suite.ctx, token)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "alice", user.Username)
	assert.False(suite.T(), user.CreatedAt.IsZero())
}

func (suite *ClientTestSuite) TestLoginWrongPassword() {
	_, err := suite.client.Login(suite.ctx, "alice", "nope")
	require.Error(suite.T(), err)

	var apiErr *api.Error
	require.True(suite.T(), errors.As(err, &apiErr))
	assert.Equal(suite.T(), http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(suite.T(), "Incorrect username or password", apiErr.Detail)
}

func (suite *ClientTestSuite) TestMeInvalidToken() {
	_, err := suite.client.Me(suite.ctx, "bogus")
	require.Error(suite.T(), err)
	assert.Equal(suite.T(), http.StatusUnauthorized, api.StatusCode(err))
	assert.Equal(suite.T(), "Could not validate credentials", api.Message(err))
}

func (suite *ClientTestSuite) TestRegister() {
	user, err := suite.client.Register(suite.ctx, api.RegisterRequest{
		Username: "bob", Email: "bob@example.com", Password: "pw",
	})
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "bob", user.Username)
	assert.Equal(suite.T(), "bob@example.com", user.Email)

	_, err = suite.client.Login(suite.ctx, "bob", "pw")
	assert.NoError(suite.T(), err)
}

func (suite *ClientTestSuite) TestRegisterDuplicate() {
	_, err := suite.client.Register(suite.ctx, api.RegisterRequest{
		Username: "alice", Email: "other@example.com", Password: "pw",
	})
	require.Error(suite.T(), err)
	assert.Equal(suite.T(), "Username already registered", api.Message(err))
}

func (suite *ClientTestSuite) TestRegisterValidationListDetail() {
	_, err := suite.client.Register(suite.ctx, api.RegisterRequest{
		Username: "carol", Email: "not-an-email", Password: "pw",
	})
	require.Error(suite.T(), err)
	assert.Equal(suite.T(), http.StatusUnprocessableEntity, api.StatusCode(err))
	assert.Equal(suite.T(), "value is not a valid email address", api.Message(err))
}

func (suite *ClientTestSuite) TestCreateAndListPosts() {
	token := suite.login()

	first, err := suite.client.CreatePost(suite.ctx, token, "first")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "alice", first.OwnerUsername)

	_, err = suite.client.CreatePost(suite.ctx, token, "second")
	require.NoError(suite.T(), err)

	posts, err := suite.client.PostsWithCounts(suite.ctx, token)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), posts, 2)
	assert.Equal(suite.T(), "second", posts[0].Content, "newest first")
	assert.True(suite.T(), posts[0].IsOwner)
	assert.Zero(suite.T(), posts[0].LikesCount)
}

func (suite *ClientTestSuite) TestEmptyFeedIsNotNil() {
	posts, err := suite.client.PostsWithCounts(suite.ctx, suite.login())
	require.NoError(suite.T(), err)
	assert.NotNil(suite.T(), posts)
	assert.Empty(suite.T(), posts)
}

func (suite *ClientTestSuite) TestLikeAndRetweetCounts() {
	token := suite.login()
	post, err := suite.client.CreatePost(suite.ctx, token, "hello")
	require.NoError(suite.T(), err)

	require.NoError(suite.T(), suite.client.Like(suite.ctx, token, post.ID))
	require.NoError(suite.T(), suite.client.Retweet(suite.ctx, token, post.ID))

	posts, err := suite.client.PostsWithCounts(suite.ctx, token)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), posts, 1)
	assert.Equal(suite.T(), 1, posts[0].LikesCount)
	assert.Equal(suite.T(), 1, posts[0].RetweetsCount)

	err = suite.client.Like(suite.ctx, token, post.ID)
	assert.Equal(suite.T(), "Already liked", api.Message(err))

	require.NoError(suite.T(), suite.client.Unlike(suite.ctx, token, post.ID))
	require.NoError(suite.T(), suite.client.Unretweet(suite.ctx, token, post.ID))

	posts, err = suite.client.PostsWithCounts(suite.ctx, token)
	require.NoError(suite.T(), err)
	assert.Zero(suite.T(), posts[0].LikesCount)
	assert.Zero(suite.T(), posts[0].RetweetsCount)
}

func (suite *ClientTestSuite) TestUpdatePost() {
	token := suite.login()
	post, err := suite.client.CreatePost(suite.ctx, token, "draft")
	require.NoError(suite.T(), err)

	updated, err := suite.client.UpdatePost(suite.ctx, token, post.ID, "final")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "final", updated.Content)
}

func (suite *ClientTestSuite) TestDeletePostMessage() {
	token := suite.login()
	post, err := suite.client.CreatePost(suite.ctx, token, "bye")
	require.NoError(suite.T(), err)

	msg, err := suite.client.DeletePost(suite.ctx, token, post.ID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "Post deleted successfully", msg)

	_, err = suite.client.DeletePost(suite.ctx, token, post.ID)
	require.Error(suite.T(), err)
	assert.Equal(suite.T(), http.StatusNotFound, api.StatusCode(err))
	assert.Equal(suite.T(), "Post not found", api.Message(err))
}

func (suite *ClientTestSuite) TestDeletePostPlainTextError() {
	token := suite.login()
	suite.srv.FailNext(http.MethodDelete, apitest.RoutePost, apitest.Failure{
		Status: http.StatusInternalServerError, ContentType: "text/plain", Body: "database is locked\n",
	})

	_, err := suite.client.DeletePost(suite.ctx, token, 1)
	require.Error(suite.T(), err)
	assert.Equal(suite.T(), "database is locked", api.Message(err))
}

func (suite *ClientTestSuite) TestDeletePostBrokenJSONError() {
	token := suite.login()
	suite.srv.FailNext(http.MethodDelete, apitest.RoutePost, apitest.Failure{
		Status: http.StatusInternalServerError, ContentType: "application/json", Body: "{not json",
	})

	_, err := suite.client.DeletePost(suite.ctx, token, 1)
	require.Error(suite.T(), err)
	assert.Equal(suite.T(), "Error processing server response", api.Message(err))
}

func (suite *ClientTestSuite) TestDeletePostEmptyErrorBodyFallsBack() {
	token := suite.login()
	suite.srv.FailNext(http.MethodDelete, apitest.RoutePost, apitest.Failure{Status: http.StatusBadGateway})

	_, err := suite.client.DeletePost(suite.ctx, token, 1)
	require.Error(suite.T(), err)
	assert.Equal(suite.T(), "Failed to delete post", api.Message(err))
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientTestSuite))
}

func TestDeletePost_PlainTextSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("gone"))
	}))
	defer srv.Close()

	msg, err := api.NewClient(srv.URL, nil).DeletePost(context.Background(), "t", 3)
	require.NoError(t, err)
	assert.Equal(t, "Post deleted successfully", msg)
}

func TestRequestHeaders(t *testing.T) {
	var got http.Header
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		path = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := api.NewClient(srv.URL, nil).Retweet(context.Background(), "tok", 42)
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/posts/42/retweet", path)
	assert.Equal(t, "Bearer tok", got.Get("Authorization"))
	assert.NotEmpty(t, got.Get(api.RequestIDHeader))
}

func TestNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := api.NewClient(url, nil).Login(context.Background(), "a", "b")
	require.Error(t, err)
	assert.Zero(t, api.StatusCode(err))
}

func TestCanceledContext(t *testing.T) {
	srv := apitest.NewServer()
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := api.NewClient(srv.URL, nil).Me(ctx, "tok")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
