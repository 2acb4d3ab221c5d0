package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"postflow/pkg/errutil"
	"postflow/pkg/sealer"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Store struct {
	db     *gorm.DB
	node   *snowflake.Node
	sealer sealer.Sealer
}

type StoreParams struct {
	fx.In

	DB     *gorm.DB
	Node   *snowflake.Node
	Sealer sealer.Sealer
}

func NewStore(p StoreParams) *Store {
	return &Store{db: p.DB, node: p.Node, sealer: p.Sealer}
}

func (s *Store) seal(c *Credential) (*Credential, error) {
	out := *c
	access, err := s.sealer.Seal(c.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("seal access token: %w", err)
	}
	out.AccessToken = access

	if c.RefreshToken != nil {
		refresh, err := s.sealer.Seal(*c.RefreshToken)
		if err != nil {
			return nil, fmt.Errorf("seal refresh token: %w", err)
		}
		out.RefreshToken = &refresh
	}
	return &out, nil
}

func (s *Store) open(c *Credential) error {
	access, err := s.sealer.Open(c.AccessToken)
	if err != nil {
		return fmt.Errorf("open access token of credential %s: %w", c.ID, err)
	}
	c.AccessToken = access

	if c.RefreshToken != nil {
		refresh, err := s.sealer.Open(*c.RefreshToken)
		if err != nil {
			return fmt.Errorf("open refresh token of credential %s: %w", c.ID, err)
		}
		c.RefreshToken = &refresh
	}
	return nil
}

// Upsert inserts c or, when (workspace, platform, account) already exists,
// replaces its tokens and profile in place. The stored row is returned, so
// a reconnect keeps the original id.
func (s *Store) Upsert(ctx context.Context, c *Credential) (*Credential, error) {
	if c.ID == "" {
		c.ID = s.node.Generate().String()
	}
	if c.Status == "" {
		c.Status = StatusActive
	}

	row, err := s.seal(c)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "workspace_id"}, {Name: "platform"}, {Name: "platform_account_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"platform_account_name", "platform_username", "access_token", "refresh_token",
			"expires_at", "status", "metadata", "updated_at",
		}),
	}).Create(row).Error
	if err != nil {
		zap.L().Error("failed to upsert credential",
			zap.String("workspace_id", c.WorkspaceID),
			zap.String("platform", c.Platform),
			zap.Error(err),
		)
		return nil, errutil.Internal("failed to save credential", err)
	}

	var stored Credential
	if err := s.db.WithContext(ctx).
		Where("workspace_id = ? AND platform = ? AND platform_account_id = ?", c.WorkspaceID, c.Platform, c.AccountID).
		First(&stored).Error; err != nil {
		return nil, errutil.Internal("failed to load credential", err)
	}
	if err := s.open(&stored); err != nil {
		return nil, err
	}
	return &stored, nil
}

// Get loads a credential with its tokens opened.
func (s *Store) Get(ctx context.Context, id string) (*Credential, error) {
	var c Credential
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errutil.NotFound("credential not found", err)
		}
		return nil, err
	}
	if err := s.open(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

// GetInWorkspace is Get scoped to a workspace.
func (s *Store) GetInWorkspace(ctx context.Context, workspaceID, id string) (*Credential, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.WorkspaceID != workspaceID {
		return nil, errutil.NotFound("credential not found", nil)
	}
	return c, nil
}

// UpdateTokens stores a refreshed token set and reactivates the credential.
// A nil refreshToken keeps the one on file.
func (s *Store) UpdateTokens(ctx context.Context, id, accessToken string, refreshToken *string, expiresAt *time.Time) error {
	access, err := s.sealer.Seal(accessToken)
	if err != nil {
		return err
	}
	updates := map[string]any{
		"access_token": access,
		"expires_at":   expiresAt,
		"status":       StatusActive,
	}
	if refreshToken != nil {
		refresh, err := s.sealer.Seal(*refreshToken)
		if err != nil {
			return err
		}
		updates["refresh_token"] = refresh
	}

	res := s.db.WithContext(ctx).Model(&Credential{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errutil.NotFound("credential not found", nil)
	}
	return nil
}

// MarkExpired flags a credential whose refresh failed so the UI can ask for
// a reconnect.
func (s *Store) MarkExpired(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Model(&Credential{}).
		Where("id = ?", id).
		Update("status", StatusExpired).Error
}

// Delete removes the credential from the workspace.
func (s *Store) Delete(ctx context.Context, workspaceID, id string) (*Credential, error) {
	var c Credential
	if err := s.db.WithContext(ctx).
		Omit("access_token", "refresh_token").
		Where("id = ? AND workspace_id = ?", id, workspaceID).
		First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errutil.NotFound("credential not found", err)
		}
		return nil, err
	}
	if err := s.db.WithContext(ctx).Delete(&Credential{}, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}
