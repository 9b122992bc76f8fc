package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/kshikongo/chat-app/internal/models"
)

type MessageRepository struct {
	db DBTX
}

func NewMessageRepository(db DBTX) *MessageRepository {
	return &MessageRepository{db: db}
}

const messagePreviewLength = 80

// Create appends a message to a thread's log. created_at is assigned by the
// database, which makes it the ordering authority for the thread.
func (r *MessageRepository) Create(ctx context.Context, message *models.Message) error {
	query := `
		INSERT INTO messages (
			thread_type, thread_id, sender_id, kind, content,
			file_name, file_size, reply_to_id, forwarded_from_id, forwarded_sender_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, read_by, edited, deleted, created_at
	`
	return r.db.QueryRow(ctx, query,
		message.ThreadType,
		message.ThreadID,
		message.SenderID,
		message.Kind,
		message.Content,
		message.FileName,
		message.FileSize,
		message.ReplyToID,
		message.ForwardedFromID,
		message.ForwardedSender,
	).Scan(&message.ID, &message.ReadBy, &message.Edited, &message.Deleted, &message.CreatedAt)
}

func (r *MessageRepository) GetByID(ctx context.Context, messageID int64) (*models.Message, error) {
	query := `
		SELECT id, thread_type, thread_id, sender_id, kind, content,
		       file_name, file_size, reply_to_id, forwarded_from_id, forwarded_sender_id,
		       read_by, edited, edited_at, deleted, created_at
		FROM messages
		WHERE id = $1
	`
	var message models.Message
	err := r.db.QueryRow(ctx, query, messageID).Scan(
		&message.ID,
		&message.ThreadType,
		&message.ThreadID,
		&message.SenderID,
		&message.Kind,
		&message.Content,
		&message.FileName,
		&message.FileSize,
		&message.ReplyToID,
		&message.ForwardedFromID,
		&message.ForwardedSender,
		&message.ReadBy,
		&message.Edited,
		&message.EditedAt,
		&message.Deleted,
		&message.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &message, nil
}

// ListByThread returns one page of a thread's log in (created_at, id) ascending
// order. Each row referencing another message via reply_to_id carries a
// preview of the referent; a deleted or missing referent resolves to an
// unavailable placeholder rather than an error.
func (r *MessageRepository) ListByThread(
	ctx context.Context,
	threadType string,
	threadID int64,
	limit int,
	offset int,
) ([]models.Message, int, error) {
	totalQuery := `
		SELECT COUNT(*)
		FROM messages
		WHERE thread_type = $1 AND thread_id = $2
	`
	var total int
	if err := r.db.QueryRow(ctx, totalQuery, threadType, threadID).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT m.id, m.thread_type, m.thread_id, m.sender_id, m.kind, m.content,
		       m.file_name, m.file_size, m.reply_to_id, m.forwarded_from_id, m.forwarded_sender_id,
		       m.read_by, m.edited, m.edited_at, m.deleted, m.created_at,
		       rm.id, rm.sender_id, LEFT(rm.content, $5), rm.deleted
		FROM messages m
		LEFT JOIN messages rm ON rm.id = m.reply_to_id
		WHERE m.thread_type = $1 AND m.thread_id = $2
		ORDER BY m.created_at ASC, m.id ASC
		LIMIT $3 OFFSET $4
	`

	rows, err := r.db.Query(ctx, query, threadType, threadID, limit, offset, messagePreviewLength)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var message models.Message
		var replyID, replySenderID *int64
		var replyContent *string
		var replyDeleted *bool

		if err := rows.Scan(
			&message.ID,
			&message.ThreadType,
			&message.ThreadID,
			&message.SenderID,
			&message.Kind,
			&message.Content,
			&message.FileName,
			&message.FileSize,
			&message.ReplyToID,
			&message.ForwardedFromID,
			&message.ForwardedSender,
			&message.ReadBy,
			&message.Edited,
			&message.EditedAt,
			&message.Deleted,
			&message.CreatedAt,
			&replyID,
			&replySenderID,
			&replyContent,
			&replyDeleted,
		); err != nil {
			return nil, 0, err
		}

		if message.ReplyToID != nil {
			message.Reply = buildReplyPreview(*message.ReplyToID, replyID, replySenderID, replyContent, replyDeleted)
		}

		messages = append(messages, message)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return messages, total, nil
}

func buildReplyPreview(
	replyToID int64,
	referentID *int64,
	senderID *int64,
	content *string,
	deleted *bool,
) *models.MessagePreview {
	if referentID == nil || (deleted != nil && *deleted) {
		return &models.MessagePreview{
			MessageID: replyToID,
			Content:   "message unavailable",
			Available: false,
		}
	}

	preview := &models.MessagePreview{
		MessageID: *referentID,
		SenderID:  senderID,
		Available: true,
	}
	if content != nil {
		preview.Content = *content
	}
	return preview
}

// UpdateContent edits message text in place. Sender, thread, kind, links, and
// created_at never change.
func (r *MessageRepository) UpdateContent(
	ctx context.Context,
	messageID int64,
	content string,
	editedAt time.Time,
) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE messages
		SET content = $2, edited = TRUE, edited_at = $3
		WHERE id = $1 AND NOT deleted
	`, messageID, content, editedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// SoftDelete marks the message deleted and blanks its content. The row stays
// behind so dangling reply links resolve to a placeholder instead of nothing.
func (r *MessageRepository) SoftDelete(ctx context.Context, messageID int64) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE messages
		SET deleted = TRUE, content = ''
		WHERE id = $1 AND NOT deleted
	`, messageID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// MarkThreadRead stamps the reader onto every unread message in the thread
// that they did not send.
func (r *MessageRepository) MarkThreadRead(
	ctx context.Context,
	threadType string,
	threadID int64,
	readerID int64,
) error {
	_, err := r.db.Exec(ctx, `
		UPDATE messages
		SET read_by = array_append(read_by, $3)
		WHERE thread_type = $1
		  AND thread_id = $2
		  AND (sender_id IS NULL OR sender_id <> $3)
		  AND NOT read_by @> ARRAY[$3::BIGINT]
	`, threadType, threadID, readerID)
	return err
}
