package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGetUser(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/internal/users/alice", r.URL.Path)
		json.NewEncoder(w).Encode(User{ID: "alice", Username: "alice", Name: "Alice"})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, time.Second, zap.NewNop())
	user, err := client.GetUser(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", user.Name)
}

func TestBulkUsers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "alice,bob", r.URL.Query().Get("ids"))
		json.NewEncoder(w).Encode(map[string][]User{"users": {
			{ID: "alice"}, {ID: "bob"},
		}})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, time.Second, zap.NewNop())
	users, err := client.BulkUsers(context.Background(), []string{"alice", "bob"})
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func TestBulkUsersEmptyInput(t *testing.T) {
	client := NewHTTPClient("http://unused", time.Second, zap.NewNop())
	users, err := client.BulkUsers(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, users, "no ids means no request at all")
}

func TestNon200IsAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, time.Second, zap.NewNop())
	_, err := client.GetUser(context.Background(), "alice")
	assert.Error(t, err)
}
