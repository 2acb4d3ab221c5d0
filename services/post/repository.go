package post

import (
	"context"
	"errors"
	"fmt"

	"postflow/pkg/errutil"
	"postflow/pkg/events"

	"gorm.io/gorm"
)

// Transition moves p to status to with a compare-and-set on its current
// status. When the row moved underneath the caller the update affects no
// row and a conflict is returned; p is left untouched in that case.
func Transition(ctx context.Context, db *gorm.DB, p *Post, to PostStatus, updates map[string]any) error {
	if err := ValidateTransition(p.Status, to); err != nil {
		return err
	}

	if updates == nil {
		updates = map[string]any{}
	}
	updates["status"] = to

	res := db.WithContext(ctx).Model(&Post{}).
		Where("id = ? AND status = ?", p.ID, p.Status).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errutil.Conflict(fmt.Sprintf("post %s is no longer %s", p.ID, p.Status), nil)
	}

	p.Status = to
	return nil
}

// Load fetches a post with its targets.
func Load(ctx context.Context, db *gorm.DB, id string) (*Post, error) {
	var p Post
	if err := db.WithContext(ctx).
		Preload("Targets", func(tx *gorm.DB) *gorm.DB { return tx.Order("created_at ASC, id ASC") }).
		Where("id = ?", id).
		First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errutil.NotFound("post not found", err)
		}
		return nil, err
	}
	return &p, nil
}

// StatusChanged emits post.status_changed for p.
func StatusChanged(ctx context.Context, emitter events.Emitter, p *Post, from PostStatus) {
	events.Publish(ctx, emitter, events.Event{
		Name:        events.PostStatusChanged,
		WorkspaceID: p.WorkspaceID,
		SubjectID:   p.ID,
		Data:        map[string]any{"from": string(from), "to": string(p.Status)},
	})
}
