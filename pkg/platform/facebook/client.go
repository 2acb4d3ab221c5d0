// Package facebook talks to the Graph API: the login dialog, short to long
// lived token exchange, page discovery and page feed publishing.
package facebook

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"postflow/pkg/config"
	"postflow/pkg/platform"

	"github.com/go-resty/resty/v2"
)

const (
	defaultGraphURL  = "https://graph.facebook.com/v19.0"
	defaultDialogURL = "https://www.facebook.com/v19.0/dialog/oauth"
)

var defaultScopes = []string{"pages_show_list", "pages_read_engagement", "pages_manage_posts"}

type Client struct {
	http      *resty.Client
	cfg       config.OAuthClient
	graphURL  string
	dialogURL string
}

var (
	_ platform.Provider     = (*Client)(nil)
	_ platform.PageResolver = (*Client)(nil)
)

func New(cfg config.OAuthClient, timeout time.Duration) *Client {
	graphURL := strings.TrimRight(cfg.APIBaseURL, "/")
	if graphURL == "" {
		graphURL = defaultGraphURL
	}
	dialogURL := cfg.AuthURL
	if dialogURL == "" {
		dialogURL = defaultDialogURL
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = defaultScopes
	}

	return &Client{
		http: resty.New().
			SetBaseURL(graphURL).
			SetHeader("User-Agent", "postflow/1.0").
			SetTimeout(timeout),
		cfg:       cfg,
		graphURL:  graphURL,
		dialogURL: dialogURL,
	}
}

func (c *Client) Code() platform.Code { return platform.Facebook }

// AuthCodeURL builds the login dialog URL. The Graph login does not support
// PKCE so verifier is ignored.
func (c *Client) AuthCodeURL(state, _ string) string {
	q := url.Values{}
	q.Set("client_id", c.cfg.ClientID)
	q.Set("redirect_uri", c.cfg.RedirectURL)
	q.Set("state", state)
	q.Set("response_type", "code")
	q.Set("scope", strings.Join(c.cfg.Scopes, ","))
	return c.dialogURL + "?" + q.Encode()
}

type graphError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type meResponse struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Picture struct {
		Data struct {
			URL string `json:"url"`
		} `json:"data"`
	} `json:"picture"`
}

type accountsResponse struct {
	Data []platform.Page `json:"data"`
}

func (c *Client) apiError(resp *resty.Response, gerr *graphError) error {
	msg := gerr.Error.Message
	if msg == "" {
		msg = resp.String()
	}
	return &platform.APIError{Platform: platform.Facebook, StatusCode: resp.StatusCode(), Message: msg}
}

func (c *Client) get(ctx context.Context, path string, query map[string]string, out any) error {
	var gerr graphError
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(query).
		SetResult(out).
		SetError(&gerr).
		Get(path)
	if err != nil {
		return fmt.Errorf("facebook: GET %s: %w", path, err)
	}
	if resp.IsError() {
		return c.apiError(resp, &gerr)
	}
	return nil
}

// Exchange trades the code for a short lived user token, upgrades it to a
// long lived one and lists the pages the user manages.
func (c *Client) Exchange(ctx context.Context, code, _ string) (*platform.Grant, error) {
	var short tokenResponse
	if err := c.get(ctx, "/oauth/access_token", map[string]string{
		"client_id":     c.cfg.ClientID,
		"client_secret": c.cfg.ClientSecret,
		"redirect_uri":  c.cfg.RedirectURL,
		"code":          code,
	}, &short); err != nil {
		return nil, err
	}

	var long tokenResponse
	if err := c.get(ctx, "/oauth/access_token", map[string]string{
		"grant_type":        "fb_exchange_token",
		"client_id":         c.cfg.ClientID,
		"client_secret":     c.cfg.ClientSecret,
		"fb_exchange_token": short.AccessToken,
	}, &long); err != nil {
		return nil, err
	}

	var me meResponse
	if err := c.get(ctx, "/me", map[string]string{
		"fields":       "id,name,picture",
		"access_token": long.AccessToken,
	}, &me); err != nil {
		return nil, err
	}
	if me.ID == "" {
		return nil, fmt.Errorf("facebook: me: %w", platform.ErrNoIdentifier)
	}

	pages, err := c.listPages(ctx, long.AccessToken)
	if err != nil {
		return nil, err
	}

	return &platform.Grant{
		Token: platform.Token{
			AccessToken: long.AccessToken,
			ExpiresIn:   long.ExpiresIn,
		},
		Account: platform.Account{
			ID:         me.ID,
			Name:       me.Name,
			PictureURL: me.Picture.Data.URL,
		},
		UserToken: long.AccessToken,
		Pages:     pages,
	}, nil
}

func (c *Client) listPages(ctx context.Context, userToken string) ([]platform.Page, error) {
	var accounts accountsResponse
	if err := c.get(ctx, "/me/accounts", map[string]string{
		"fields":       "id,name,category,access_token",
		"access_token": userToken,
	}, &accounts); err != nil {
		return nil, err
	}
	return accounts.Data, nil
}

// ResolvePage looks pageID up among the pages userToken manages and returns
// it with its own page token.
func (c *Client) ResolvePage(ctx context.Context, userToken, pageID string) (*platform.Page, error) {
	pages, err := c.listPages(ctx, userToken)
	if err != nil {
		return nil, err
	}
	for i := range pages {
		if pages[i].ID == pageID {
			return &pages[i], nil
		}
	}
	return nil, platform.ErrPageNotFound
}

// Refresh is not offered by the Graph API; page tokens derived from a long
// lived user token do not expire.
func (c *Client) Refresh(context.Context, string) (*platform.Token, error) {
	return nil, platform.ErrRefreshUnsupported
}

type feedResponse struct {
	ID string `json:"id"`
}

// Publish posts content to the page feed of auth.AccountID.
func (c *Client) Publish(ctx context.Context, auth platform.Auth, content platform.Content) (*platform.Publication, error) {
	form := map[string]string{
		"message":      content.Text,
		"access_token": auth.AccessToken,
	}
	if content.Link != "" {
		form["link"] = content.Link
	}

	var out feedResponse
	var gerr graphError
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(form).
		SetResult(&out).
		SetError(&gerr).
		Post("/" + url.PathEscape(auth.AccountID) + "/feed")
	if err != nil {
		return nil, fmt.Errorf("facebook: publish: %w", err)
	}
	if resp.IsError() {
		return nil, c.apiError(resp, &gerr)
	}
	if out.ID == "" {
		return nil, fmt.Errorf("facebook: publish: %w", platform.ErrNoIdentifier)
	}

	return &platform.Publication{
		ExternalID: out.ID,
		URL:        "https://www.facebook.com/" + out.ID,
	}, nil
}
