package deploy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepare(t *testing.T) {
	manifest := `services:
  app:
    image: nginx
    environment:
      WEB_PORT: "8080"
    volumes:
      - /opt/data:/data
`
	out, err := Prepare(manifest,
		map[string]string{"WEB_PORT": "9090"},
		map[string]string{"/opt/data": "/mnt/tank/data"})
	require.NoError(t, err)
	assert.Contains(t, out, "9090")
	assert.Contains(t, out, "/mnt/tank/data:/data")
	assert.NotContains(t, out, "/opt/data")
}

func TestPrepareNoOverrides(t *testing.T) {
	manifest := "services:\n  app:\n    image: nginx\n"
	out, err := Prepare(manifest, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, manifest, out, "no overrides leaves the manifest byte-identical")
}

func TestHTTPClientDeployStack(t *testing.T) {
	var gotPath, gotKey string
	var gotPayload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path + "?" + r.URL.RawQuery
		gotKey = r.Header.Get("X-API-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		json.NewEncoder(w).Encode(map[string]any{"Id": float64(42), "Name": "jellyfin"})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "key123", false, nil)
	resp, err := client.DeployStack(context.Background(), StackRequest{
		Name:       "jellyfin",
		Manifest:   "services: {}",
		EndpointID: 3,
		Env:        map[string]string{"TZ": "UTC"},
	})
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, 42, resp.StackID)
	assert.Equal(t, "/api/stacks/create/standalone/string?endpointId=3", gotPath)
	assert.Equal(t, "key123", gotKey)
	assert.Equal(t, "jellyfin", gotPayload["Name"])
	assert.Equal(t, "services: {}", gotPayload["StackFileContent"])
	require.Len(t, gotPayload["Env"], 1)
}

func TestHTTPClientDeployStackRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad manifest", http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "key", false, nil)
	resp, err := client.DeployStack(context.Background(), StackRequest{Name: "x", EndpointID: 1})
	require.NoError(t, err, "a target rejection is a result, not a transport error")
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "400")
}

func TestHTTPClientDeployStackUnreachable(t *testing.T) {
	client := NewHTTPClient("http://127.0.0.1:1", "key", false, nil)
	resp, err := client.DeployStack(context.Background(), StackRequest{Name: "x", EndpointID: 1})
	require.NoError(t, err)
	assert.False(t, resp.Success)
}

func TestHTTPClientValidate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/users" && r.Header.Get("X-API-Key") == "good" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	assert.True(t, NewHTTPClient(server.URL, "good", false, nil).Validate(context.Background()))
	assert.False(t, NewHTTPClient(server.URL, "bad", false, nil).Validate(context.Background()))
	assert.False(t, NewHTTPClient("http://127.0.0.1:1", "good", false, nil).Validate(context.Background()))
}
