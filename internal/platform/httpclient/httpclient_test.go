package httpclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RequiresValidBaseURL(t *testing.T) {
	_, err := New("", time.Second)
	assert.Error(t, err)

	_, err = New("not a url", time.Second)
	assert.Error(t, err)
}

func TestDoJSON_SendsHeadersAndDecodes(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/echo", r.URL.Path)
		assert.Equal(t, "42", r.URL.Query().Get("id"))
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		assert.Equal(t, "override", r.Header.Get("X-Extra"))

		var in map[string]string
		_ = json.NewDecoder(r.Body).Decode(&in)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"echo": in["msg"]})
	}))
	defer ts.Close()

	c, err := New(ts.URL+"/", time.Second,
		WithHeader("X-Api-Key", "secret"),
		WithHeader("X-Extra", "default"),
	)
	require.NoError(t, err)

	var out struct {
		Echo string `json:"echo"`
	}
	err = c.DoJSON(context.Background(), http.MethodPost, "v1/echo",
		url.Values{"id": []string{"42"}},
		map[string]string{"X-Extra": "override"},
		map[string]string{"msg": "hola"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "hola", out.Echo)
}

func TestDoJSON_Non2xxReturnsHTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer ts.Close()

	c, err := New(ts.URL, time.Second)
	require.NoError(t, err)

	err = c.DoJSON(context.Background(), http.MethodGet, "/x", nil, nil, nil, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, StatusCode(err))
}
