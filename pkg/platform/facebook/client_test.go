package facebook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"postflow/pkg/config"
	"postflow/pkg/platform"

	"github.com/stretchr/testify/require"
)

func newGraph(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Get("code") == "good-code":
			_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "short-token", "expires_in": 3600})
		case q.Get("grant_type") == "fb_exchange_token" && q.Get("fb_exchange_token") == "short-token":
			_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "long-token", "expires_in": 5184000})
		default:
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "Invalid verification code format.", "code": 100}})
		}
	})
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "long-token", r.URL.Query().Get("access_token"))
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "u_1", "name": "Dana"})
	})
	mux.HandleFunc("/me/accounts", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "long-token", r.URL.Query().Get("access_token"))
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []map[string]any{
			{"id": "p_1", "name": "Bakery", "category": "Food", "access_token": "page-1-token"},
			{"id": "p_2", "name": "Cafe", "access_token": "page-2-token"},
		}})
	})
	mux.HandleFunc("/p_1/feed", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("access_token") != "page-1-token" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "Error validating access token"}})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "p_1_12345"})
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newClient(srv *httptest.Server) *Client {
	return New(config.OAuthClient{
		ClientID:     "app",
		ClientSecret: "secret",
		RedirectURL:  "https://app.example.com/oauth/facebook/callback",
		APIBaseURL:   srv.URL,
	}, 5*time.Second)
}

func TestAuthCodeURL(t *testing.T) {
	c := New(config.OAuthClient{ClientID: "app", RedirectURL: "https://app.example.com/cb"}, time.Second)

	u, err := url.Parse(c.AuthCodeURL("st4te", "ignored"))
	require.NoError(t, err)
	require.Equal(t, "www.facebook.com", u.Host)
	require.Equal(t, "st4te", u.Query().Get("state"))
	require.Equal(t, "app", u.Query().Get("client_id"))
	require.Equal(t, "pages_show_list,pages_read_engagement,pages_manage_posts", u.Query().Get("scope"))
}

func TestExchange(t *testing.T) {
	c := newClient(newGraph(t))

	grant, err := c.Exchange(context.Background(), "good-code", "")
	require.NoError(t, err)
	require.Equal(t, "long-token", grant.Token.AccessToken)
	require.Equal(t, int64(5184000), grant.Token.ExpiresIn)
	require.Equal(t, "long-token", grant.UserToken)
	require.Equal(t, "u_1", grant.Account.ID)
	require.Len(t, grant.Pages, 2)
	require.Equal(t, "page-1-token", grant.Pages[0].AccessToken)
}

func TestExchangeSurfacesGraphError(t *testing.T) {
	c := newClient(newGraph(t))

	_, err := c.Exchange(context.Background(), "bad-code", "")
	var apiErr *platform.APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	require.Contains(t, apiErr.Message, "Invalid verification code")
}

func TestResolvePage(t *testing.T) {
	c := newClient(newGraph(t))

	page, err := c.ResolvePage(context.Background(), "long-token", "p_2")
	require.NoError(t, err)
	require.Equal(t, "page-2-token", page.AccessToken)

	_, err = c.ResolvePage(context.Background(), "long-token", "p_404")
	require.ErrorIs(t, err, platform.ErrPageNotFound)
}

func TestPublish(t *testing.T) {
	c := newClient(newGraph(t))

	pub, err := c.Publish(context.Background(), platform.Auth{AccountID: "p_1", AccessToken: "page-1-token"}, platform.Content{Text: "hello"})
	require.NoError(t, err)
	require.Equal(t, "p_1_12345", pub.ExternalID)
	require.Equal(t, "https://www.facebook.com/p_1_12345", pub.URL)

	_, err = c.Publish(context.Background(), platform.Auth{AccountID: "p_1", AccessToken: "stale"}, platform.Content{Text: "hello"})
	var apiErr *platform.APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

func TestRefreshUnsupported(t *testing.T) {
	_, err := New(config.OAuthClient{}, time.Second).Refresh(context.Background(), "rt")
	require.ErrorIs(t, err, platform.ErrRefreshUnsupported)
}

func TestPublishWithoutPostIDIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)

	_, err := newClient(srv).Publish(context.Background(), platform.Auth{AccountID: "p_1", AccessToken: "page-1-token"}, platform.Content{Text: "hello"})
	require.ErrorIs(t, err, platform.ErrNoIdentifier)
}
