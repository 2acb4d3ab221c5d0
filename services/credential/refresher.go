package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"postflow/pkg/errutil"
	"postflow/pkg/events"
	"postflow/pkg/lock"
	"postflow/pkg/logger"
	"postflow/pkg/platform"
	"postflow/pkg/rediskey"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// refreshSkew treats tokens about to expire as expired so a publish call
	// does not race the expiry.
	refreshSkew    = time.Minute
	refreshLockTTL = 30 * time.Second
)

// Refresher hands out usable credentials, refreshing expired tokens. Only one
// refresh per credential runs at a time: singleflight collapses callers in
// this process and a redis lock serialises processes.
type Refresher struct {
	store    *Store
	registry *platform.Registry
	locker   lock.Locker
	emitter  events.Emitter
	group    singleflight.Group
	now      func() time.Time
}

type RefresherParams struct {
	fx.In

	Store    *Store
	Registry *platform.Registry
	Locker   lock.Locker
	Emitter  events.Emitter `optional:"true"`
}

func NewRefresher(p RefresherParams) *Refresher {
	return &Refresher{
		store:    p.Store,
		registry: p.Registry,
		locker:   p.Locker,
		emitter:  p.Emitter,
		now:      time.Now,
	}
}

// Auth returns publish auth for c, refreshing the token first when it has
// expired. A failed or impossible refresh yields CREDENTIAL_EXPIRED.
func (r *Refresher) Auth(ctx context.Context, c *Credential) (platform.Auth, error) {
	if c.Expired(r.now(), refreshSkew) {
		if !c.CanRefresh() {
			return platform.Auth{}, errutil.New(errutil.StatusCredentialExpired,
				fmt.Sprintf("credential %s expired and has no refresh token", c.ID))
		}
		refreshed, err := r.Refresh(ctx, c.ID)
		if err != nil {
			return platform.Auth{}, err
		}
		c = refreshed
	}
	return AuthOf(c), nil
}

// AuthOf converts a credential into what a platform client needs.
func AuthOf(c *Credential) platform.Auth {
	auth := platform.Auth{AccountID: c.AccountID, AccessToken: c.AccessToken}
	if len(c.Metadata) > 0 {
		_ = json.Unmarshal(c.Metadata, &auth.Metadata)
	}
	return auth
}

// Refresh renews the tokens of credential id.
func (r *Refresher) Refresh(ctx context.Context, id string) (*Credential, error) {
	v, err, _ := r.group.Do(id, func() (any, error) {
		var out *Credential
		err := r.locker.WithLock(ctx, rediskey.BuildCredentialLockKey(id), refreshLockTTL, func(ctx context.Context) error {
			c, err := r.refreshLocked(ctx, id)
			out = c
			return err
		})
		return out, err
	})
	if err != nil {
		return nil, err
	}
	return v.(*Credential), nil
}

func (r *Refresher) refreshLocked(ctx context.Context, id string) (*Credential, error) {
	log := logger.FromContext(ctx).With(zap.String("credential_id", id))

	c, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	// Another holder of the lock may have refreshed already.
	if !c.Expired(r.now(), refreshSkew) {
		return c, nil
	}

	provider, ok := r.registry.Get(platform.Code(c.Platform))
	if !ok {
		return nil, errutil.New(errutil.StatusUnsupportedPlatform, "platform "+c.Platform+" is not configured")
	}

	refreshToken := ""
	if c.RefreshToken != nil {
		refreshToken = *c.RefreshToken
	}
	token, err := provider.Refresh(ctx, refreshToken)
	if err != nil {
		log.Warn("credential refresh failed", zap.String("platform", c.Platform), zap.Error(err))
		if markErr := r.store.MarkExpired(ctx, id); markErr != nil {
			log.Error("failed to mark credential expired", zap.Error(markErr))
		}
		events.Publish(ctx, r.emitter, events.Event{
			Name:        events.CredentialRefreshFailed,
			WorkspaceID: c.WorkspaceID,
			SubjectID:   c.ID,
			Data:        map[string]any{"platform": c.Platform, "error": err.Error()},
		})
		return nil, errutil.New(errutil.StatusCredentialExpired, "credential refresh failed", errutil.WithErr(err))
	}

	expiresAt := token.ExpiresAt(r.now())
	var newRefresh *string
	if token.RefreshToken != "" {
		newRefresh = &token.RefreshToken
	}
	if err := r.store.UpdateTokens(ctx, id, token.AccessToken, newRefresh, expiresAt); err != nil {
		return nil, err
	}

	c.AccessToken = token.AccessToken
	if newRefresh != nil {
		c.RefreshToken = newRefresh
	}
	c.ExpiresAt = expiresAt
	c.Status = StatusActive
	log.Info("credential refreshed", zap.String("platform", c.Platform))
	return c, nil
}
