package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/kshikongo/chat-app/internal/models"
)

type ConversationRepository struct {
	db DBTX
}

func NewConversationRepository(db DBTX) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// CreateOrGet returns the conversation for the unordered pair, creating it on
// first contact. The pair is stored canonically (lower id first) and guarded by
// a unique index, so concurrent calls from both participants converge on one row.
func (r *ConversationRepository) CreateOrGet(
	ctx context.Context,
	userA int64,
	userB int64,
) (*models.Conversation, error) {
	if userA > userB {
		userA, userB = userB, userA
	}

	query := `
		INSERT INTO conversations (participant_a, participant_b)
		VALUES ($1, $2)
		ON CONFLICT (participant_a, participant_b)
		DO UPDATE SET updated_at = conversations.updated_at
		RETURNING id, participant_a, participant_b, last_message, last_message_at,
		          unread_a, unread_b, created_at, updated_at
	`

	var conversation models.Conversation
	err := r.db.QueryRow(ctx, query, userA, userB).Scan(
		&conversation.ID,
		&conversation.ParticipantA,
		&conversation.ParticipantB,
		&conversation.LastMessage,
		&conversation.LastMessageAt,
		&conversation.UnreadA,
		&conversation.UnreadB,
		&conversation.CreatedAt,
		&conversation.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &conversation, nil
}

func (r *ConversationRepository) GetByID(ctx context.Context, conversationID int64) (*models.Conversation, error) {
	query := `
		SELECT id, participant_a, participant_b, last_message, last_message_at,
		       unread_a, unread_b, created_at, updated_at
		FROM conversations
		WHERE id = $1
	`

	var conversation models.Conversation
	err := r.db.QueryRow(ctx, query, conversationID).Scan(
		&conversation.ID,
		&conversation.ParticipantA,
		&conversation.ParticipantB,
		&conversation.LastMessage,
		&conversation.LastMessageAt,
		&conversation.UnreadA,
		&conversation.UnreadB,
		&conversation.CreatedAt,
		&conversation.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &conversation, nil
}

func (r *ConversationRepository) GetByIDForParticipant(
	ctx context.Context,
	conversationID int64,
	participantID int64,
) (*models.Conversation, error) {
	conversation, err := r.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conversation.HasParticipant(participantID) {
		return nil, pgx.ErrNoRows
	}
	return conversation, nil
}

func (r *ConversationRepository) ListForParticipant(
	ctx context.Context,
	participantID int64,
) ([]models.ConversationSummary, error) {
	query := `
		SELECT id, participant_a, participant_b, last_message, last_message_at,
		       unread_a, unread_b, created_at, updated_at
		FROM conversations
		WHERE participant_a = $1 OR participant_b = $1
		ORDER BY COALESCE(last_message_at, created_at) DESC, id DESC
	`

	rows, err := r.db.Query(ctx, query, participantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := make([]models.ConversationSummary, 0)
	for rows.Next() {
		var summary models.ConversationSummary
		if err := rows.Scan(
			&summary.ID,
			&summary.ParticipantA,
			&summary.ParticipantB,
			&summary.LastMessage,
			&summary.LastMessageAt,
			&summary.UnreadA,
			&summary.UnreadB,
			&summary.CreatedAt,
			&summary.UpdatedAt,
		); err != nil {
			return nil, err
		}
		summary.PeerID = summary.Peer(participantID)
		summary.UnreadCount = summary.UnreadFor(participantID)
		summaries = append(summaries, summary)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return summaries, nil
}

// ApplyMessage refreshes the denormalized preview fields and bumps the unread
// counter of every participant except the sender. Runs in the same transaction
// as the message insert.
func (r *ConversationRepository) ApplyMessage(
	ctx context.Context,
	conversationID int64,
	senderID int64,
	preview string,
	sentAt time.Time,
) error {
	_, err := r.db.Exec(ctx, `
		UPDATE conversations
		SET last_message = $2,
		    last_message_at = $3,
		    unread_a = unread_a + CASE WHEN participant_a <> $4 THEN 1 ELSE 0 END,
		    unread_b = unread_b + CASE WHEN participant_b <> $4 THEN 1 ELSE 0 END,
		    updated_at = NOW()
		WHERE id = $1
	`, conversationID, preview, sentAt, senderID)
	return err
}

func (r *ConversationRepository) ResetUnread(
	ctx context.Context,
	conversationID int64,
	participantID int64,
) error {
	_, err := r.db.Exec(ctx, `
		UPDATE conversations
		SET unread_a = CASE WHEN participant_a = $2 THEN 0 ELSE unread_a END,
		    unread_b = CASE WHEN participant_b = $2 THEN 0 ELSE unread_b END
		WHERE id = $1
	`, conversationID, participantID)
	return err
}

func (r *ConversationRepository) Delete(ctx context.Context, conversationID int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, conversationID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
