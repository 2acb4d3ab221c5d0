package oauth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"postflow/pkg/httpapi"
	"postflow/pkg/middleware"
	"postflow/pkg/platform"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newTestRouter(f *fixture) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.Error())
	NewHandler(f.svc, f.svc.cfg).Register(r)
	return r
}

func TestCallbackRedirectsToFrontend(t *testing.T) {
	f := newFixture(t)
	r := newTestRouter(f)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/oauth/twitter/callback?code=abc&state=xyz", nil))
	require.Equal(t, http.StatusFound, w.Code)

	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "app.example.com", loc.Host)
	require.Equal(t, "/connect/callback", loc.Path)
	require.Equal(t, "oauth", loc.Query().Get("source"))
	require.Equal(t, "twitter", loc.Query().Get("platform"))
	require.Equal(t, "abc", loc.Query().Get("code"))
	require.Equal(t, "xyz", loc.Query().Get("state"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/oauth/twitter/callback?error=access_denied&error_description=nope", nil))
	loc, err = url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "access_denied", loc.Query().Get("error"))
	require.Equal(t, "nope", loc.Query().Get("error_description"))
	require.Empty(t, loc.Query().Get("code"))
}

func TestExchangeAndConnectOverHTTP(t *testing.T) {
	f := newFixture(t)
	r := newTestRouter(f)
	state := f.authorize(t, f.twitter, "twitter")
	f.twitter.EXPECT().Exchange(gomock.Any(), "abc", gomock.Any()).Return(twitterGrant(), nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/oauth/twitter/exchange",
		strings.NewReader(`{"code":"abc","state":"`+state+`"}`)))
	require.Equal(t, http.StatusOK, w.Code)

	var exchanged ExchangeResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &exchanged))
	require.NotEmpty(t, exchanged.SessionKey)

	req := httptest.NewRequest(http.MethodPost, "/oauth/twitter/connect",
		strings.NewReader(`{"session_key":"`+exchanged.SessionKey+`"}`))
	req.Header.Set(httpapi.HeaderWorkspaceID, "ws-1")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)
	require.NotContains(t, w.Body.String(), "at-1")

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "ws-1", body["workspace_id"])
	require.Equal(t, "42", body["platform_account_id"])
}

func TestExchangeErrorEnvelope(t *testing.T) {
	f := newFixture(t)
	r := newTestRouter(f)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/oauth/twitter/exchange",
		strings.NewReader(`{"code":"abc","state":"forged"}`)))
	require.Equal(t, http.StatusBadRequest, w.Code)

	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "INVALID_STATE", body.Error.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/oauth/myspace/authorize", nil))
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "UNSUPPORTED_PLATFORM")
}

func TestExchangeRejectedByProviderIsBadRequest(t *testing.T) {
	f := newFixture(t)
	r := newTestRouter(f)
	state := f.authorize(t, f.twitter, "twitter")
	f.twitter.EXPECT().Exchange(gomock.Any(), "abc", gomock.Any()).
		Return(nil, &platform.APIError{Platform: platform.Twitter, StatusCode: http.StatusBadRequest, Message: "invalid_grant"})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/oauth/twitter/exchange",
		strings.NewReader(`{"code":"abc","state":"`+state+`"}`)))
	require.Equal(t, http.StatusBadRequest, w.Code)

	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "EXCHANGE_FAILED", body.Error.Code)
	require.Equal(t, "code exchange failed", body.Error.Message)
}
