package credential

import (
	"time"

	"gorm.io/datatypes"
)

type Status string

var (
	StatusActive  Status = "ACTIVE"
	StatusExpired Status = "EXPIRED"
)

func (s Status) String() string {
	switch s {
	case StatusActive, StatusExpired:
		return string(s)
	default:
		return ""
	}
}

// Credential is a connected platform account or page. AccessToken and
// RefreshToken are plaintext in memory; the Store seals them on write.
type Credential struct {
	ID           string         `gorm:"column:id;primaryKey" json:"id"`
	CreatedAt    time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"column:updated_at" json:"updated_at"`
	WorkspaceID  string         `gorm:"column:workspace_id;uniqueIndex:idx_credentials_account" json:"workspace_id"`
	Platform     string         `gorm:"column:platform;uniqueIndex:idx_credentials_account" json:"platform"`
	AccountID    string         `gorm:"column:platform_account_id;uniqueIndex:idx_credentials_account" json:"platform_account_id"`
	AccountName  string         `gorm:"column:platform_account_name" json:"platform_account_name"`
	Username     string         `gorm:"column:platform_username" json:"platform_username,omitempty"`
	AccessToken  string         `gorm:"column:access_token;type:text" json:"-"`
	RefreshToken *string        `gorm:"column:refresh_token;type:text" json:"-"`
	ExpiresAt    *time.Time     `gorm:"column:expires_at" json:"expires_at"`
	Status       Status         `gorm:"column:status;default:ACTIVE" json:"status"`
	Metadata     datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
}

// Expired reports whether the access token is past, or within skew of, its
// expiry. Credentials without an expiry never expire.
func (c *Credential) Expired(now time.Time, skew time.Duration) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return !now.Add(skew).Before(*c.ExpiresAt)
}

// CanRefresh reports whether a refresh token is on file.
func (c *Credential) CanRefresh() bool {
	return c.RefreshToken != nil && *c.RefreshToken != ""
}

func Models() []any {
	return []any{&Credential{}}
}
