package oauth2x

import (
	"context"
	"fmt"

	"postflow/pkg/platform"

	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2"
)

// Twitter is the X API v2 with OAuth 2.0 user context.
var Twitter = Spec{
	Code: platform.Twitter,
	Endpoint: oauth2.Endpoint{
		AuthURL:   "https://twitter.com/i/oauth2/authorize",
		TokenURL:  "https://api.twitter.com/2/oauth2/token",
		AuthStyle: oauth2.AuthStyleInHeader,
	},
	Scopes:     []string{"tweet.read", "tweet.write", "users.read", "offline.access"},
	APIBaseURL: "https://api.twitter.com",
	PKCE:       true,
	Me:         twitterMe,
	Publish:    twitterPublish,
}

func twitterMe(ctx context.Context, r *resty.Request) (platform.Account, error) {
	var out struct {
		Data struct {
			ID              string `json:"id"`
			Name            string `json:"name"`
			Username        string `json:"username"`
			ProfileImageURL string `json:"profile_image_url"`
		} `json:"data"`
	}
	resp, err := r.SetQueryParam("user.fields", "profile_image_url").SetResult(&out).Get("/2/users/me")
	if err != nil {
		return platform.Account{}, fmt.Errorf("twitter: me: %w", err)
	}
	if resp.IsError() {
		return platform.Account{}, apiError(platform.Twitter, resp)
	}
	if out.Data.ID == "" {
		return platform.Account{}, fmt.Errorf("twitter: me: %w", platform.ErrNoIdentifier)
	}
	return platform.Account{
		ID:         out.Data.ID,
		Name:       out.Data.Name,
		Username:   out.Data.Username,
		PictureURL: out.Data.ProfileImageURL,
	}, nil
}

func twitterPublish(ctx context.Context, r *resty.Request, _ platform.Auth, content platform.Content) (*platform.Publication, error) {
	text := content.Text
	if content.Link != "" {
		text = text + " " + content.Link
	}

	var out struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	resp, err := r.SetBody(map[string]any{"text": text}).SetResult(&out).Post("/2/tweets")
	if err != nil {
		return nil, fmt.Errorf("twitter: publish: %w", err)
	}
	if resp.IsError() {
		return nil, apiError(platform.Twitter, resp)
	}
	if out.Data.ID == "" {
		return nil, fmt.Errorf("twitter: publish: %w", platform.ErrNoIdentifier)
	}
	return &platform.Publication{
		ExternalID: out.Data.ID,
		URL:        "https://x.com/i/web/status/" + out.Data.ID,
	}, nil
}

// LinkedIn uses OpenID userinfo for the member identity and the UGC API
// for sharing.
var LinkedIn = Spec{
	Code: platform.LinkedIn,
	Endpoint: oauth2.Endpoint{
		AuthURL:   "https://www.linkedin.com/oauth/v2/authorization",
		TokenURL:  "https://www.linkedin.com/oauth/v2/accessToken",
		AuthStyle: oauth2.AuthStyleInParams,
	},
	Scopes:     []string{"openid", "profile", "w_member_social"},
	APIBaseURL: "https://api.linkedin.com",
	Me:         linkedinMe,
	Publish:    linkedinPublish,
}

func linkedinMe(ctx context.Context, r *resty.Request) (platform.Account, error) {
	var out struct {
		Sub     string `json:"sub"`
		Name    string `json:"name"`
		Email   string `json:"email"`
		Picture string `json:"picture"`
	}
	resp, err := r.SetResult(&out).Get("/v2/userinfo")
	if err != nil {
		return platform.Account{}, fmt.Errorf("linkedin: userinfo: %w", err)
	}
	if resp.IsError() {
		return platform.Account{}, apiError(platform.LinkedIn, resp)
	}
	if out.Sub == "" {
		return platform.Account{}, fmt.Errorf("linkedin: userinfo: %w", platform.ErrNoIdentifier)
	}
	return platform.Account{
		ID:         out.Sub,
		Name:       out.Name,
		Username:   out.Email,
		PictureURL: out.Picture,
	}, nil
}

func linkedinPublish(ctx context.Context, r *resty.Request, auth platform.Auth, content platform.Content) (*platform.Publication, error) {
	body := map[string]any{
		"author":         "urn:li:person:" + auth.AccountID,
		"lifecycleState": "PUBLISHED",
		"specificContent": map[string]any{
			"com.linkedin.ugc.ShareContent": map[string]any{
				"shareCommentary":    map[string]any{"text": content.Text},
				"shareMediaCategory": "NONE",
			},
		},
		"visibility": map[string]any{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}

	var out struct {
		ID string `json:"id"`
	}
	resp, err := r.
		SetHeader("X-Restli-Protocol-Version", "2.0.0").
		SetBody(body).
		SetResult(&out).
		Post("/v2/ugcPosts")
	if err != nil {
		return nil, fmt.Errorf("linkedin: publish: %w", err)
	}
	if resp.IsError() {
		return nil, apiError(platform.LinkedIn, resp)
	}

	id := out.ID
	if id == "" {
		id = resp.Header().Get("X-RestLi-Id")
	}
	if id == "" {
		return nil, fmt.Errorf("linkedin: publish: %w", platform.ErrNoIdentifier)
	}
	return &platform.Publication{
		ExternalID: id,
		URL:        "https://www.linkedin.com/feed/update/" + id,
	}, nil
}
