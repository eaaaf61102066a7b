package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestamp_ZonelessIsUTC(t *testing.T) {
	var p Post
	err := json.Unmarshal([]byte(`{"id":1,"timestamp":"2024-05-01T10:00:00.123456"}`), &p)
	require.NoError(t, err)

	want := time.Date(2024, 5, 1, 10, 0, 0, 123456000, time.UTC)
	assert.True(t, p.Timestamp.Equal(want), "got %v", p.Timestamp)
}

func TestTimestamp_RFC3339(t *testing.T) {
	var p Post
	err := json.Unmarshal([]byte(`{"timestamp":"2024-05-01T12:00:00+02:00"}`), &p)
	require.NoError(t, err)

	want := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	assert.True(t, p.Timestamp.Equal(want))
}

func TestTimestamp_Invalid(t *testing.T) {
	var p Post
	err := json.Unmarshal([]byte(`{"timestamp":"yesterday"}`), &p)
	assert.Error(t, err)
}

func TestTimestamp_Empty(t *testing.T) {
	var u User
	err := json.Unmarshal([]byte(`{"id":3,"username":"bob","created_at":""}`), &u)
	require.NoError(t, err)
	assert.True(t, u.CreatedAt.IsZero())
	assert.Equal(t, "bob", u.Username)
}

func TestSession_Authenticated(t *testing.T) {
	assert.False(t, Session{}.Authenticated())
	assert.True(t, Session{Token: "abc"}.Authenticated())
}
