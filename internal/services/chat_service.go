package services

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/kshikongo/chat-app/internal/models"
	"github.com/kshikongo/chat-app/internal/repository"
)

var (
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("conflict")
	ErrInvalidInput = errors.New("invalid input")
	ErrUserNotFound = errors.New("user not found")
)

type userReader interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

// ChatService owns direct conversations: the two-participant threads created
// lazily on first contact.
type ChatService struct {
	conversationRepo *repository.ConversationRepository
	userRepo         userReader
}

func NewChatService(
	conversationRepo *repository.ConversationRepository,
	userRepo userReader,
) *ChatService {
	return &ChatService{
		conversationRepo: conversationRepo,
		userRepo:         userRepo,
	}
}

func (s *ChatService) ListConversations(
	ctx context.Context,
	actorID int64,
) ([]models.ConversationSummary, error) {
	return s.conversationRepo.ListForParticipant(ctx, actorID)
}

// CreateConversation is get-or-create: a second attempt for the same pair
// returns the existing conversation. Uniqueness is enforced by the canonical
// pair index, so concurrent first contact from both sides yields one row.
func (s *ChatService) CreateConversation(
	ctx context.Context,
	actorID int64,
	peerID int64,
) (*models.Conversation, error) {
	if peerID <= 0 || peerID == actorID {
		return nil, ErrInvalidInput
	}

	if _, err := s.userRepo.GetByID(ctx, peerID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return s.conversationRepo.CreateOrGet(ctx, actorID, peerID)
}

// DeleteConversation removes the conversation record for either participant
// and returns it so both sides can be notified. Messages are not cascaded;
// readers resolve the orphans defensively.
func (s *ChatService) DeleteConversation(
	ctx context.Context,
	actorID int64,
	conversationID int64,
) (*models.Conversation, error) {
	conversation, err := s.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conversation.HasParticipant(actorID) {
		return nil, ErrForbidden
	}

	if err := s.conversationRepo.Delete(ctx, conversationID); err != nil {
		return nil, err
	}
	return conversation, nil
}
