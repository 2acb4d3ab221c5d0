// Package oauth2x adapts standard OAuth 2.0 platforms (authorization code
// with optional PKCE and refresh tokens) to platform.Provider.
package oauth2x

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"postflow/pkg/config"
	"postflow/pkg/platform"

	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2"
)

// Spec describes one platform: where its OAuth endpoints live and how to
// read the profile and publish with a bearer token.
type Spec struct {
	Code       platform.Code
	Endpoint   oauth2.Endpoint
	Scopes     []string
	APIBaseURL string
	PKCE       bool
	Me         func(ctx context.Context, r *resty.Request) (platform.Account, error)
	Publish    func(ctx context.Context, r *resty.Request, auth platform.Auth, content platform.Content) (*platform.Publication, error)
}

type Provider struct {
	spec  Spec
	oauth *oauth2.Config
	http  *resty.Client
}

var _ platform.Provider = (*Provider)(nil)

func New(spec Spec, cfg config.OAuthClient, timeout time.Duration) *Provider {
	endpoint := spec.Endpoint
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = spec.Scopes
	}
	baseURL := strings.TrimRight(cfg.APIBaseURL, "/")
	if baseURL == "" {
		baseURL = spec.APIBaseURL
	}

	return &Provider{
		spec: spec,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
		http: resty.New().
			SetBaseURL(baseURL).
			SetHeader("User-Agent", "postflow/1.0").
			SetTimeout(timeout),
	}
}

func (p *Provider) Code() platform.Code { return p.spec.Code }

func (p *Provider) AuthCodeURL(state, verifier string) string {
	opts := []oauth2.AuthCodeOption{oauth2.AccessTypeOffline}
	if p.spec.PKCE && verifier != "" {
		opts = append(opts, oauth2.S256ChallengeOption(verifier))
	}
	return p.oauth.AuthCodeURL(state, opts...)
}

// oauthContext makes the oauth2 package use the same transport and timeout
// as the API calls.
func (p *Provider) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.http.GetClient())
}

func (p *Provider) Exchange(ctx context.Context, code, verifier string) (*platform.Grant, error) {
	var opts []oauth2.AuthCodeOption
	if p.spec.PKCE && verifier != "" {
		opts = append(opts, oauth2.VerifierOption(verifier))
	}

	tok, err := p.oauth.Exchange(p.oauthContext(ctx), code, opts...)
	if err != nil {
		return nil, p.wrapTokenError("exchange", err)
	}

	account, err := p.spec.Me(ctx, p.request(ctx, tok.AccessToken))
	if err != nil {
		return nil, err
	}

	return &platform.Grant{
		Token:   toToken(tok, ""),
		Account: account,
	}, nil
}

func (p *Provider) Refresh(ctx context.Context, refreshToken string) (*platform.Token, error) {
	if refreshToken == "" {
		return nil, platform.ErrRefreshUnsupported
	}

	// An already expired token forces the source to hit the token endpoint.
	src := p.oauth.TokenSource(p.oauthContext(ctx), &oauth2.Token{
		RefreshToken: refreshToken,
		Expiry:       time.Unix(1, 0),
	})
	tok, err := src.Token()
	if err != nil {
		return nil, p.wrapTokenError("refresh", err)
	}

	out := toToken(tok, refreshToken)
	return &out, nil
}

func (p *Provider) Publish(ctx context.Context, auth platform.Auth, content platform.Content) (*platform.Publication, error) {
	return p.spec.Publish(ctx, p.request(ctx, auth.AccessToken), auth, content)
}

func (p *Provider) request(ctx context.Context, accessToken string) *resty.Request {
	return p.http.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetHeader("Content-Type", "application/json")
}

func (p *Provider) wrapTokenError(op string, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		msg := re.ErrorDescription
		if msg == "" {
			msg = re.ErrorCode
		}
		if msg == "" {
			msg = string(re.Body)
		}
		return &platform.APIError{Platform: p.spec.Code, StatusCode: status, Message: op + ": " + msg}
	}
	return fmt.Errorf("%s: %s: %w", p.spec.Code, op, err)
}

// toToken keeps the previous refresh token when the provider does not rotate it.
func toToken(tok *oauth2.Token, previousRefresh string) platform.Token {
	out := platform.Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    tok.ExpiresIn,
	}
	if out.RefreshToken == "" {
		out.RefreshToken = previousRefresh
	}
	if out.ExpiresIn == 0 && !tok.Expiry.IsZero() {
		out.ExpiresIn = int64(time.Until(tok.Expiry).Seconds())
	}
	return out
}

// apiError turns a failed resty response into a platform.APIError.
func apiError(code platform.Code, resp *resty.Response) error {
	return &platform.APIError{Platform: code, StatusCode: resp.StatusCode(), Message: strings.TrimSpace(resp.String())}
}
