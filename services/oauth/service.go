package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"postflow/pkg/config"
	"postflow/pkg/errutil"
	"postflow/pkg/events"
	"postflow/pkg/logger"
	"postflow/pkg/platform"
	"postflow/pkg/util"
	"postflow/services/credential"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const tokenBytes = 32

// ========================================================
// Service Definition
// ========================================================

type Service struct {
	cfg         *config.Config
	registry    *platform.Registry
	store       *Store
	credentials *credential.Store
	emitter     events.Emitter
	now         func() time.Time
}

type ServiceParams struct {
	fx.In

	Config      *config.Config
	Registry    *platform.Registry
	Store       *Store
	Credentials *credential.Store
	Emitter     events.Emitter `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		cfg:         p.Config,
		registry:    p.Registry,
		store:       p.Store,
		credentials: p.Credentials,
		emitter:     p.Emitter,
		now:         time.Now,
	}
}

type AuthorizeResult struct {
	AuthorizationURL string `json:"authorization_url"`
	State            string `json:"state"`
}

// PageOption is a page offered for selection. Tokens never leave the
// service.
type PageOption struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
}

type ExchangeResult struct {
	SessionKey    string           `json:"session_key"`
	Platform      platform.Code    `json:"platform"`
	Account       platform.Account `json:"account"`
	Pages         []PageOption     `json:"pages,omitempty"`
	DefaultPageID string           `json:"default_page_id,omitempty"`
}

type ConnectRequest struct {
	WorkspaceID string `json:"workspace_id"`
	SessionKey  string `json:"session_key" binding:"required"`
	PageID      string `json:"page_id"`
}

func (s *Service) provider(name string) (platform.Provider, error) {
	code, ok := platform.ParseCode(name)
	if ok {
		if p, found := s.registry.Get(code); found {
			return p, nil
		}
	}
	return nil, errutil.New(errutil.StatusUnsupportedPlatform,
		fmt.Sprintf("platform %q is not supported", name),
		errutil.WithDetails(errutil.Detail{Field: "platform", Message: name}))
}

// ========================================================
// Authorize
// ========================================================

// Authorize starts a connection: it mints a single use state and returns the
// platform consent URL carrying it.
func (s *Service) Authorize(ctx context.Context, platformName string) (*AuthorizeResult, error) {
	p, err := s.provider(platformName)
	if err != nil {
		return nil, err
	}

	state, err := util.RandomToken(tokenBytes)
	if err != nil {
		return nil, errutil.Internal("failed to generate state", err)
	}
	verifier := oauth2.GenerateVerifier()

	if err := s.store.SaveState(ctx, state, AuthState{
		Platform:  p.Code(),
		Verifier:  verifier,
		CreatedAt: s.now().UTC(),
	}, s.cfg.OAuth.StateTTL); err != nil {
		return nil, errutil.Internal("failed to store state", err)
	}

	return &AuthorizeResult{
		AuthorizationURL: p.AuthCodeURL(state, verifier),
		State:            state,
	}, nil
}

// ========================================================
// Exchange
// ========================================================

// Exchange trades the authorization code for tokens and parks the result
// under a fresh session key until Connect picks it up.
func (s *Service) Exchange(ctx context.Context, platformName, code, state string) (*ExchangeResult, error) {
	log := logger.FromContext(ctx).With(zap.String("platform", platformName))

	p, err := s.provider(platformName)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(code) == "" {
		return nil, errutil.ValidationFailed("code is required", nil,
			errutil.WithDetails(errutil.Detail{Field: "code", Message: "required"}))
	}
	if strings.TrimSpace(state) == "" {
		return nil, errutil.New(errutil.StatusInvalidState, "state is required")
	}

	entry, err := s.store.ConsumeState(ctx, state)
	if errors.Is(err, ErrNotFound) {
		return nil, errutil.New(errutil.StatusInvalidState, "state is unknown, expired or already used")
	}
	if err != nil {
		return nil, errutil.Internal("failed to read state", err)
	}
	if entry.Platform != p.Code() {
		return nil, errutil.New(errutil.StatusPlatformMismatch,
			fmt.Sprintf("state was issued for %s", entry.Platform))
	}

	grant, err := p.Exchange(ctx, code, entry.Verifier)
	if err != nil {
		log.Warn("code exchange failed", zap.Error(err))
		return nil, errutil.New(errutil.StatusExchangeFailed, "code exchange failed", errutil.WithErr(err))
	}
	if grant.Account.ID == "" {
		log.Warn("code exchange returned no account identity")
		return nil, errutil.New(errutil.StatusExchangeFailed, "platform did not identify the connected account")
	}

	// Expiry is resolved here, against the time the token was issued, not
	// when the user finishes selecting.
	now := s.now().UTC()
	pending := &PendingExchange{
		Platform:     p.Code(),
		Account:      grant.Account,
		AccessToken:  grant.Token.AccessToken,
		RefreshToken: grant.Token.RefreshToken,
		ExpiresAt:    grant.Token.ExpiresAt(now),
		UserToken:    grant.UserToken,
		Metadata:     grant.Metadata,
		CreatedAt:    now,
	}

	result := &ExchangeResult{Platform: p.Code(), Account: grant.Account}
	for i, page := range grant.Pages {
		result.Pages = append(result.Pages, PageOption{ID: page.ID, Name: page.Name, Category: page.Category})
		// Only the provisional default keeps its token; any other selection
		// is looked up again at connect time.
		if i > 0 {
			page.AccessToken = ""
		}
		pending.Pages = append(pending.Pages, page)
	}
	if len(grant.Pages) > 0 {
		result.DefaultPageID = grant.Pages[0].ID
	}

	sessionKey, err := util.RandomToken(tokenBytes)
	if err != nil {
		return nil, errutil.Internal("failed to generate session key", err)
	}
	if err := s.store.SavePending(ctx, sessionKey, pending, s.cfg.OAuth.PendingTTL); err != nil {
		return nil, errutil.Internal("failed to store pending exchange", err)
	}
	result.SessionKey = sessionKey

	log.Info("oauth exchange completed",
		zap.String("account_id", grant.Account.ID),
		zap.Int("pages", len(grant.Pages)),
	)
	return result, nil
}

// ========================================================
// Connect
// ========================================================

// Connect consumes a pending exchange and stores the chosen account or page
// as a credential of the workspace.
func (s *Service) Connect(ctx context.Context, platformName string, req ConnectRequest) (*credential.Credential, error) {
	p, err := s.provider(platformName)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.WorkspaceID) == "" {
		return nil, errutil.ValidationFailed("workspace_id is required", nil,
			errutil.WithDetails(errutil.Detail{Field: "workspace_id", Message: "required"}))
	}

	pending, err := s.store.ConsumePending(ctx, req.SessionKey)
	if errors.Is(err, ErrNotFound) {
		return nil, errutil.New(errutil.StatusSessionExpired, "session expired or already used, start the connection again")
	}
	if err != nil {
		return nil, errutil.Internal("failed to read pending exchange", err)
	}
	if pending.Platform != p.Code() {
		return nil, errutil.New(errutil.StatusPlatformMismatch,
			fmt.Sprintf("session belongs to %s", pending.Platform))
	}

	var c *credential.Credential
	if req.PageID != "" || len(pending.Pages) > 0 {
		page, err := s.selectPage(ctx, p, pending, req.PageID)
		if err != nil {
			return nil, err
		}
		c = pageCredential(req.WorkspaceID, pending, page)
	} else {
		c = accountCredential(req.WorkspaceID, pending)
	}

	stored, err := s.credentials.Upsert(ctx, c)
	if err != nil {
		return nil, err
	}

	events.Publish(ctx, s.emitter, events.Event{
		Name:        events.CredentialConnected,
		WorkspaceID: stored.WorkspaceID,
		SubjectID:   stored.ID,
		Data:        map[string]any{"platform": stored.Platform, "account_id": stored.AccountID},
	})
	logger.FromContext(ctx).Info("credential connected",
		zap.String("credential_id", stored.ID),
		zap.String("workspace_id", stored.WorkspaceID),
		zap.String("platform", stored.Platform),
	)
	return stored, nil
}

func (s *Service) selectPage(ctx context.Context, p platform.Provider, pending *PendingExchange, pageID string) (*platform.Page, error) {
	if pageID == "" {
		pageID = pending.Pages[0].ID
	}
	for i := range pending.Pages {
		if pending.Pages[i].ID == pageID && pending.Pages[i].AccessToken != "" {
			return &pending.Pages[i], nil
		}
	}

	resolver, ok := p.(platform.PageResolver)
	if !ok || pending.UserToken == "" {
		return nil, selectionNotFound(pageID)
	}
	page, err := resolver.ResolvePage(ctx, pending.UserToken, pageID)
	if errors.Is(err, platform.ErrPageNotFound) {
		return nil, selectionNotFound(pageID)
	}
	if err != nil {
		return nil, errutil.BadGateway("page lookup failed", err)
	}
	return page, nil
}

func selectionNotFound(pageID string) error {
	return errutil.New(errutil.StatusSelectionNotFound,
		fmt.Sprintf("page %s is not managed by the authorising account", pageID),
		errutil.WithDetails(errutil.Detail{Field: "page_id", Message: pageID}))
}

// Page tokens derived from a long lived user token do not expire.
func pageCredential(workspaceID string, pending *PendingExchange, page *platform.Page) *credential.Credential {
	meta, _ := json.Marshal(map[string]any{
		"kind":            "page",
		"category":        page.Category,
		"user_account_id": pending.Account.ID,
	})
	return &credential.Credential{
		WorkspaceID: workspaceID,
		Platform:    string(pending.Platform),
		AccountID:   page.ID,
		AccountName: page.Name,
		AccessToken: page.AccessToken,
		ExpiresAt:   nil,
		Metadata:    meta,
	}
}

func accountCredential(workspaceID string, pending *PendingExchange) *credential.Credential {
	metadata := map[string]any{"kind": "account"}
	for k, v := range pending.Metadata {
		metadata[k] = v
	}
	if pending.Account.PictureURL != "" {
		metadata["picture_url"] = pending.Account.PictureURL
	}
	meta, _ := json.Marshal(metadata)

	c := &credential.Credential{
		WorkspaceID: workspaceID,
		Platform:    string(pending.Platform),
		AccountID:   pending.Account.ID,
		AccountName: pending.Account.Name,
		Username:    pending.Account.Username,
		AccessToken: pending.AccessToken,
		ExpiresAt:   pending.ExpiresAt,
		Metadata:    meta,
	}
	if pending.RefreshToken != "" {
		rt := pending.RefreshToken
		c.RefreshToken = &rt
	}
	return c
}

// ========================================================
// Disconnect
// ========================================================

func (s *Service) Disconnect(ctx context.Context, workspaceID, credentialID string) error {
	c, err := s.credentials.Delete(ctx, workspaceID, credentialID)
	if err != nil {
		return err
	}
	events.Publish(ctx, s.emitter, events.Event{
		Name:        events.CredentialDisconnected,
		WorkspaceID: workspaceID,
		SubjectID:   c.ID,
		Data:        map[string]any{"platform": c.Platform, "account_id": c.AccountID},
	})
	return nil
}
