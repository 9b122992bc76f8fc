package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kshikongo/chat-app/internal/models"
	"github.com/kshikongo/chat-app/internal/repository"
)

const lastMessagePreviewLength = 80

var sendableKinds = map[string]struct{}{
	models.MessageKindText:  {},
	models.MessageKindImage: {},
	models.MessageKindVideo: {},
	models.MessageKindAudio: {},
	models.MessageKindFile:  {},
}

// MessageService is the append-only message log shared by direct conversations
// and groups. Every accepted write also updates the thread's denormalized
// preview and unread counters in the same transaction, so subscribers never
// observe one without the other.
type MessageService struct {
	db               *pgxpool.Pool
	conversationRepo *repository.ConversationRepository
	groupRepo        *repository.GroupRepository
	messageRepo      *repository.MessageRepository
}

type SendMessageInput struct {
	Kind            string
	Content         string
	FileName        *string
	FileSize        *int64
	ReplyToID       *int64
	ForwardedFromID *int64
}

// MessageDelivery is what the fan-out engine needs after a committed write:
// the message and the user ids subscribed to its thread.
type MessageDelivery struct {
	Message    *models.Message
	Recipients []int64
}

func NewMessageService(
	db *pgxpool.Pool,
	conversationRepo *repository.ConversationRepository,
	groupRepo *repository.GroupRepository,
	messageRepo *repository.MessageRepository,
) *MessageService {
	return &MessageService{
		db:               db,
		conversationRepo: conversationRepo,
		groupRepo:        groupRepo,
		messageRepo:      messageRepo,
	}
}

func (s *MessageService) Send(
	ctx context.Context,
	actorID int64,
	threadType string,
	threadID int64,
	input SendMessageInput,
) (*MessageDelivery, error) {
	if threadID <= 0 {
		return nil, ErrInvalidInput
	}
	if input.Kind == "" {
		input.Kind = models.MessageKindText
	}
	if _, ok := sendableKinds[input.Kind]; !ok {
		return nil, ErrInvalidInput
	}

	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, ErrInvalidInput
	}

	recipients, err := s.threadRecipients(ctx, actorID, threadType, threadID)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txMessageRepo := repository.NewMessageRepository(tx)

	message := &models.Message{
		ThreadType: threadType,
		ThreadID:   threadID,
		SenderID:   &actorID,
		Kind:       input.Kind,
		Content:    content,
		FileName:   input.FileName,
		FileSize:   input.FileSize,
	}

	if input.ReplyToID != nil {
		referent, err := txMessageRepo.GetByID(ctx, *input.ReplyToID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrInvalidInput
			}
			return nil, err
		}
		if referent.ThreadType != threadType || referent.ThreadID != threadID {
			return nil, ErrInvalidInput
		}
		message.ReplyToID = input.ReplyToID
		message.Reply = &models.MessagePreview{
			MessageID: referent.ID,
			SenderID:  referent.SenderID,
			Content:   truncatePreview(referent.Content),
			Available: !referent.Deleted,
		}
		if referent.Deleted {
			message.Reply.SenderID = nil
			message.Reply.Content = "message unavailable"
		}
	}

	if input.ForwardedFromID != nil {
		origin, err := txMessageRepo.GetByID(ctx, *input.ForwardedFromID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrInvalidInput
			}
			return nil, err
		}
		message.ForwardedFromID = input.ForwardedFromID
		message.ForwardedSender = origin.SenderID
	}

	if err := txMessageRepo.Create(ctx, message); err != nil {
		return nil, err
	}

	if err := s.applySideEffects(ctx, tx, message); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return &MessageDelivery{Message: message, Recipients: recipients}, nil
}

func (s *MessageService) Edit(
	ctx context.Context,
	actorID int64,
	messageID int64,
	newContent string,
) (*MessageDelivery, error) {
	content := strings.TrimSpace(newContent)
	if content == "" {
		return nil, ErrInvalidInput
	}

	message, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if message.Deleted {
		return nil, pgx.ErrNoRows
	}
	if message.SenderID == nil || *message.SenderID != actorID {
		return nil, ErrForbidden
	}

	recipients, err := s.threadRecipients(ctx, actorID, message.ThreadType, message.ThreadID)
	if err != nil {
		return nil, err
	}

	editedAt := time.Now().UTC()
	if err := s.messageRepo.UpdateContent(ctx, messageID, content, editedAt); err != nil {
		return nil, err
	}

	message.Content = content
	message.Edited = true
	message.EditedAt = &editedAt

	return &MessageDelivery{Message: message, Recipients: recipients}, nil
}

func (s *MessageService) Delete(
	ctx context.Context,
	actorID int64,
	messageID int64,
) (*MessageDelivery, error) {
	message, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if message.Deleted {
		return nil, pgx.ErrNoRows
	}

	isSender := message.SenderID != nil && *message.SenderID == actorID
	if !isSender {
		if message.ThreadType != models.ThreadGroup {
			return nil, ErrForbidden
		}
		member, err := s.groupRepo.GetMember(ctx, message.ThreadID, actorID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrForbidden
			}
			return nil, err
		}
		if !member.IsAdmin {
			return nil, ErrForbidden
		}
	}

	recipients, err := s.deletionRecipients(ctx, actorID, message)
	if err != nil {
		return nil, err
	}

	if err := s.messageRepo.SoftDelete(ctx, messageID); err != nil {
		return nil, err
	}

	message.Deleted = true
	message.Content = ""

	return &MessageDelivery{Message: message, Recipients: recipients}, nil
}

// MarkRead stamps the reader onto every unread message in the thread and
// resets their unread counter, atomically.
func (s *MessageService) MarkRead(
	ctx context.Context,
	actorID int64,
	threadType string,
	threadID int64,
) error {
	if _, err := s.threadRecipients(ctx, actorID, threadType, threadID); err != nil {
		return err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txMessageRepo := repository.NewMessageRepository(tx)
	if err := txMessageRepo.MarkThreadRead(ctx, threadType, threadID, actorID); err != nil {
		return err
	}

	switch threadType {
	case models.ThreadDirect:
		if err := repository.NewConversationRepository(tx).ResetUnread(ctx, threadID, actorID); err != nil {
			return err
		}
	case models.ThreadGroup:
		if err := repository.NewGroupRepository(tx).ResetUnread(ctx, threadID, actorID); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (s *MessageService) List(
	ctx context.Context,
	actorID int64,
	threadType string,
	threadID int64,
	page int,
	limit int,
) ([]models.Message, int, error) {
	if page <= 0 || limit <= 0 {
		return nil, 0, ErrInvalidInput
	}

	if _, err := s.threadRecipients(ctx, actorID, threadType, threadID); err != nil {
		return nil, 0, err
	}

	return s.messageRepo.ListByThread(ctx, threadType, threadID, limit, (page-1)*limit)
}

// threadRecipients resolves the member set of a thread and doubles as the
// access check: an actor outside the membership gets ErrForbidden.
func (s *MessageService) threadRecipients(
	ctx context.Context,
	actorID int64,
	threadType string,
	threadID int64,
) ([]int64, error) {
	switch threadType {
	case models.ThreadDirect:
		conversation, err := s.conversationRepo.GetByID(ctx, threadID)
		if err != nil {
			return nil, err
		}
		if !conversation.HasParticipant(actorID) {
			return nil, ErrForbidden
		}
		return []int64{conversation.ParticipantA, conversation.ParticipantB}, nil
	case models.ThreadGroup:
		if _, err := s.groupRepo.GetByID(ctx, threadID); err != nil {
			return nil, err
		}
		members, err := s.groupRepo.ListMembers(ctx, threadID)
		if err != nil {
			return nil, err
		}
		recipients := make([]int64, 0, len(members))
		isMember := false
		for _, member := range members {
			recipients = append(recipients, member.UserID)
			if member.UserID == actorID {
				isMember = true
			}
		}
		if !isMember {
			return nil, ErrForbidden
		}
		return recipients, nil
	default:
		return nil, ErrInvalidInput
	}
}

// deletionRecipients tolerates an already-deleted parent thread: an admin may
// clean up messages orphaned by a conversation deletion.
func (s *MessageService) deletionRecipients(
	ctx context.Context,
	actorID int64,
	message *models.Message,
) ([]int64, error) {
	recipients, err := s.threadRecipients(ctx, actorID, message.ThreadType, message.ThreadID)
	if err == nil {
		return recipients, nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return []int64{actorID}, nil
	}
	return nil, err
}

func (s *MessageService) applySideEffects(ctx context.Context, tx pgx.Tx, message *models.Message) error {
	preview := truncatePreview(message.Content)
	switch message.ThreadType {
	case models.ThreadDirect:
		return repository.NewConversationRepository(tx).
			ApplyMessage(ctx, message.ThreadID, *message.SenderID, preview, message.CreatedAt)
	case models.ThreadGroup:
		return repository.NewGroupRepository(tx).
			ApplyMessage(ctx, message.ThreadID, message.SenderID, preview, message.CreatedAt)
	default:
		return ErrInvalidInput
	}
}

func truncatePreview(content string) string {
	runes := []rune(content)
	if len(runes) <= lastMessagePreviewLength {
		return content
	}
	return string(runes[:lastMessagePreviewLength])
}

func FormatChatTimestamp(ts time.Time) string {
	return ts.UTC().Format(time.RFC3339)
}
