package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/kshikongo/chat-app/internal/models"
)

type GroupRepository struct {
	db DBTX
}

func NewGroupRepository(db DBTX) *GroupRepository {
	return &GroupRepository{db: db}
}

func (r *GroupRepository) Create(ctx context.Context, group *models.Group) error {
	query := `
		INSERT INTO groups (name, description, created_by)
		VALUES ($1, $2, $3)
		RETURNING id, is_active, created_at, updated_at
	`
	return r.db.QueryRow(ctx, query, group.Name, group.Description, group.CreatedBy).
		Scan(&group.ID, &group.IsActive, &group.CreatedAt, &group.UpdatedAt)
}

func (r *GroupRepository) GetByID(ctx context.Context, groupID int64) (*models.Group, error) {
	return r.get(ctx, groupID, false)
}

// GetByIDForUpdate locks the group row for the length of the transaction.
// Membership mutations go through this so concurrent changes to the same
// group serialize.
func (r *GroupRepository) GetByIDForUpdate(ctx context.Context, groupID int64) (*models.Group, error) {
	return r.get(ctx, groupID, true)
}

func (r *GroupRepository) get(ctx context.Context, groupID int64, forUpdate bool) (*models.Group, error) {
	query := `
		SELECT id, name, description, created_by, is_active, last_message, last_message_at,
		       created_at, updated_at
		FROM groups
		WHERE id = $1
	`
	if forUpdate {
		query += " FOR UPDATE"
	}

	var group models.Group
	err := r.db.QueryRow(ctx, query, groupID).Scan(
		&group.ID,
		&group.Name,
		&group.Description,
		&group.CreatedBy,
		&group.IsActive,
		&group.LastMessage,
		&group.LastMessageAt,
		&group.CreatedAt,
		&group.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &group, nil
}

func (r *GroupRepository) GetMember(
	ctx context.Context,
	groupID int64,
	userID int64,
) (*models.GroupMember, error) {
	query := `
		SELECT group_id, user_id, is_admin, unread_count, joined_at
		FROM group_members
		WHERE group_id = $1 AND user_id = $2
	`
	var member models.GroupMember
	err := r.db.QueryRow(ctx, query, groupID, userID).Scan(
		&member.GroupID,
		&member.UserID,
		&member.IsAdmin,
		&member.UnreadCount,
		&member.JoinedAt,
	)
	if err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *GroupRepository) ListMembers(ctx context.Context, groupID int64) ([]models.GroupMember, error) {
	query := `
		SELECT group_id, user_id, is_admin, unread_count, joined_at
		FROM group_members
		WHERE group_id = $1
		ORDER BY joined_at ASC, user_id ASC
	`
	rows, err := r.db.Query(ctx, query, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := make([]models.GroupMember, 0)
	for rows.Next() {
		var member models.GroupMember
		if err := rows.Scan(
			&member.GroupID,
			&member.UserID,
			&member.IsAdmin,
			&member.UnreadCount,
			&member.JoinedAt,
		); err != nil {
			return nil, err
		}
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return members, nil
}

func (r *GroupRepository) ListForMember(ctx context.Context, userID int64) ([]models.GroupSummary, error) {
	query := `
		SELECT g.id, g.name, g.description, g.created_by, g.is_active,
		       g.last_message, g.last_message_at, g.created_at, g.updated_at,
		       gm.unread_count, gm.is_admin
		FROM groups g
		JOIN group_members gm ON gm.group_id = g.id
		WHERE gm.user_id = $1
		ORDER BY COALESCE(g.last_message_at, g.created_at) DESC, g.id DESC
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := make([]models.GroupSummary, 0)
	for rows.Next() {
		var summary models.GroupSummary
		if err := rows.Scan(
			&summary.ID,
			&summary.Name,
			&summary.Description,
			&summary.CreatedBy,
			&summary.IsActive,
			&summary.LastMessage,
			&summary.LastMessageAt,
			&summary.CreatedAt,
			&summary.UpdatedAt,
			&summary.UnreadCount,
			&summary.IsAdmin,
		); err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return summaries, nil
}

// AddMember inserts a membership row, reporting false when the user was
// already a member.
func (r *GroupRepository) AddMember(
	ctx context.Context,
	groupID int64,
	userID int64,
	isAdmin bool,
) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO group_members (group_id, user_id, is_admin)
		VALUES ($1, $2, $3)
		ON CONFLICT (group_id, user_id) DO NOTHING
	`, groupID, userID, isAdmin)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *GroupRepository) RemoveMember(ctx context.Context, groupID int64, userID int64) error {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM group_members
		WHERE group_id = $1 AND user_id = $2
	`, groupID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *GroupRepository) SetAdmin(ctx context.Context, groupID int64, userID int64, isAdmin bool) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE group_members
		SET is_admin = $3
		WHERE group_id = $1 AND user_id = $2
	`, groupID, userID, isAdmin)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ApplyMessage refreshes the group's denormalized preview and bumps unread
// counters for every member except the sender. System messages (nil sender)
// count as unread for everyone.
func (r *GroupRepository) ApplyMessage(
	ctx context.Context,
	groupID int64,
	senderID *int64,
	preview string,
	sentAt time.Time,
) error {
	if _, err := r.db.Exec(ctx, `
		UPDATE groups
		SET last_message = $2, last_message_at = $3, updated_at = NOW()
		WHERE id = $1
	`, groupID, preview, sentAt); err != nil {
		return err
	}

	_, err := r.db.Exec(ctx, `
		UPDATE group_members
		SET unread_count = unread_count + 1
		WHERE group_id = $1 AND ($2::BIGINT IS NULL OR user_id <> $2)
	`, groupID, senderID)
	return err
}

func (r *GroupRepository) ResetUnread(ctx context.Context, groupID int64, userID int64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE group_members
		SET unread_count = 0
		WHERE group_id = $1 AND user_id = $2
	`, groupID, userID)
	return err
}
