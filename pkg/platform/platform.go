// Package platform defines the contract every social network client
// implements: the OAuth code flow, token refresh and publishing.
package platform

//go:generate mockgen -destination mock/provider.go -package mock postflow/pkg/platform Provider,PageResolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

type Code string

const (
	Facebook  Code = "facebook"
	Instagram Code = "instagram"
	Threads   Code = "threads"
	WhatsApp  Code = "whatsapp"
	Twitter   Code = "twitter"
	LinkedIn  Code = "linkedin"
)

func (c Code) String() string {
	switch c {
	case Facebook, Instagram, Threads, WhatsApp, Twitter, LinkedIn:
		return string(c)
	default:
		return ""
	}
}

// ParseCode normalises s into a known Code.
func ParseCode(s string) (Code, bool) {
	c := Code(strings.ToLower(strings.TrimSpace(s)))
	return c, c.String() != ""
}

// MetaFamily reports whether deliveries from c are signed with
// X-Hub-Signature-256 and subscribed through the hub challenge.
func (c Code) MetaFamily() bool {
	switch c {
	case Facebook, Instagram, Threads, WhatsApp:
		return true
	default:
		return false
	}
}

var (
	ErrRefreshUnsupported = errors.New("platform does not issue refresh tokens")
	ErrPageNotFound       = errors.New("page not found")
	// ErrNoIdentifier is returned when a successful reply does not carry the
	// id of the account or post it refers to.
	ErrNoIdentifier = errors.New("reply carried no identifier")
)

// Account identifies the remote account a credential acts as.
type Account struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Username   string `json:"username,omitempty"`
	PictureURL string `json:"picture_url,omitempty"`
}

// Page is a linkable destination managed by the authorising user, for
// example a Facebook page. AccessToken is the page scoped token.
type Page struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Category    string `json:"category,omitempty"`
	AccessToken string `json:"access_token,omitempty"`
}

type Token struct {
	AccessToken  string
	RefreshToken string
	// ExpiresIn is the lifetime in seconds as reported by the provider; zero
	// means the token does not expire.
	ExpiresIn int64
}

// ExpiresAt resolves the lifetime against now.
func (t Token) ExpiresAt(now time.Time) *time.Time {
	if t.ExpiresIn <= 0 {
		return nil
	}
	at := now.Add(time.Duration(t.ExpiresIn) * time.Second).UTC()
	return &at
}

// Grant is what a successful code exchange yields.
type Grant struct {
	Token   Token
	Account Account
	// UserToken is a user level token kept to resolve pages later.
	UserToken string
	Pages     []Page
	Metadata  map[string]any
}

// Auth is what a publish call needs from a stored credential.
type Auth struct {
	AccountID   string
	AccessToken string
	Metadata    map[string]any
}

type Content struct {
	Text      string
	Link      string
	MediaURLs []string
}

type Publication struct {
	ExternalID string
	URL        string
	Metrics    map[string]any
}

type Provider interface {
	Code() Code
	AuthCodeURL(state, verifier string) string
	Exchange(ctx context.Context, code, verifier string) (*Grant, error)
	Refresh(ctx context.Context, refreshToken string) (*Token, error)
	Publish(ctx context.Context, auth Auth, content Content) (*Publication, error)
}

// PageResolver is implemented by providers whose grant carries pages.
type PageResolver interface {
	ResolvePage(ctx context.Context, userToken, pageID string) (*Page, error)
}

// APIError is a non 2xx answer from a platform API.
type APIError struct {
	Platform   Code
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s api: status %d: %s", e.Platform, e.StatusCode, e.Message)
}

// Registry resolves providers by code.
type Registry struct {
	providers map[Code]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[Code]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Code()] = p
	}
	return r
}

func (r *Registry) Get(code Code) (Provider, bool) {
	p, ok := r.providers[code]
	return p, ok
}

func (r *Registry) Codes() []Code {
	out := make([]Code, 0, len(r.providers))
	for c := range r.providers {
		out = append(out, c)
	}
	return out
}
