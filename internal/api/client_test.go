package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostgenius/panel/internal/fetch"
)

type call struct {
	method, path, cookie, contentType string
}

func newTestClient(t *testing.T) (*Client, *[]call) {
	t.Helper()
	var calls []call
	record := func(r *http.Request) {
		c := call{method: r.Method, path: r.URL.Path, contentType: r.Header.Get("Content-Type")}
		if ck, err := r.Cookie(fetch.DefaultSessionCookie); err == nil {
			c.cookie = ck.Value
		}
		calls = append(calls, c)
	}

	r := chi.NewRouter()
	r.Post("/services/{id}/{action}", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		if chi.URLParam(r, "id") == "404" {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]string{"detail": "Service not found"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": chi.URLParam(r, "action")})
	})
	r.Post("/users/logout/", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		w.WriteHeader(http.StatusOK)
	})
	r.Post("/validate", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"detail":[{"loc":["body","content"],"msg":"field required"}]}`))
	})
	r.Get("/broken", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		http.Error(w, "upstream down", http.StatusBadGateway)
	})
	r.Post("/echo", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		var in map[string]any
		_ = json.NewDecoder(r.Body).Decode(&in)
		_ = json.NewEncoder(w).Encode(in)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	s, err := fetch.NewSession(srv.URL, fetch.WithSessionCookie(fetch.DefaultSessionCookie, "tok"))
	require.NoError(t, err)
	return NewClient(s), &calls
}

func TestManageService(t *testing.T) {
	c, calls := newTestClient(t)

	require.NoError(t, c.ManageService(context.Background(), 42, ServiceStop))

	require.Len(t, *calls, 1)
	got := (*calls)[0]
	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "/services/42/stop", got.path)
	assert.Equal(t, "tok", got.cookie)
	assert.Equal(t, "application/json", got.contentType)
}

func TestManageService_Rejected(t *testing.T) {
	c, _ := newTestClient(t)

	err := c.ManageService(context.Background(), 404, ServiceStart)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAPI))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "Service not found", apiErr.Detail)
	assert.Contains(t, apiErr.Error(), "Service not found")
}

func TestManageService_InvalidAction(t *testing.T) {
	c, calls := newTestClient(t)

	err := c.ManageService(context.Background(), 1, ServiceAction("delete"))

	assert.Error(t, err)
	assert.Empty(t, *calls)
}

func TestLogout(t *testing.T) {
	c, calls := newTestClient(t)

	require.NoError(t, c.Logout(context.Background()))

	require.Len(t, *calls, 1)
	assert.Equal(t, "/users/logout/", (*calls)[0].path)
}

func TestAPIError_ValidationDetail(t *testing.T) {
	c, _ := newTestClient(t)

	err := c.PostJSON(context.Background(), "/validate", map[string]string{}, nil)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "field required", apiErr.Detail)
}

func TestAPIError_NonJSONBody(t *testing.T) {
	c, _ := newTestClient(t)

	err := c.GetJSON(context.Background(), "/broken", nil)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Empty(t, apiErr.Detail)
	assert.Contains(t, apiErr.Error(), "Bad Gateway")
}

func TestPostJSON_RoundTrip(t *testing.T) {
	c, _ := newTestClient(t)

	var out struct {
		RecipientID int    `json:"recipient_id"`
		Content     string `json:"content"`
	}
	err := c.PostJSON(context.Background(), "/echo", map[string]any{"recipient_id": 3, "content": "hi"}, &out)

	require.NoError(t, err)
	assert.Equal(t, 3, out.RecipientID)
	assert.Equal(t, "hi", out.Content)
}

func TestParseServiceAction(t *testing.T) {
	tests := []struct {
		in      string
		want    ServiceAction
		wantErr bool
	}{
		{in: "start", want: ServiceStart},
		{in: "stop-service", want: ServiceStop},
		{in: "restart", want: ServiceRestart},
		{in: "pause", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseServiceAction(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}
