package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/kshikongo/chat-app/internal/models"
	"github.com/kshikongo/chat-app/internal/repository"
)

var (
	testDBOnce sync.Once
	testDBPool *pgxpool.Pool
	testDBErr  error
)

func TestChatServiceConversationGetOrCreateConverges(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	service := NewChatService(repository.NewConversationRepository(pool), repository.NewUserRepository(pool))

	alice := createChatTestUser(t, ctx, pool, "alice")
	bob := createChatTestUser(t, ctx, pool, "bob")
	t.Cleanup(func() { cleanupChatTestUsers(t, ctx, pool, alice, bob) })

	first, err := service.CreateConversation(ctx, alice, bob)
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	second, err := service.CreateConversation(ctx, bob, alice)
	if err != nil {
		t.Fatalf("CreateConversation from the other side: %v", err)
	}

	if first.ID != second.ID {
		t.Fatalf("expected one conversation for the pair, got %d and %d", first.ID, second.ID)
	}
	if first.ParticipantA >= first.ParticipantB {
		t.Fatalf("expected canonical pair ordering, got (%d, %d)", first.ParticipantA, first.ParticipantB)
	}
}

func TestMessageServiceSendBumpsUnreadAndMarkReadClears(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	chatService := NewChatService(repository.NewConversationRepository(pool), repository.NewUserRepository(pool))
	messageService := newIntegrationMessageService(pool)

	alice := createChatTestUser(t, ctx, pool, "alice")
	bob := createChatTestUser(t, ctx, pool, "bob")
	t.Cleanup(func() { cleanupChatTestUsers(t, ctx, pool, alice, bob) })

	conversation, err := chatService.CreateConversation(ctx, alice, bob)
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}

	delivery, err := messageService.Send(ctx, alice, models.ThreadDirect, conversation.ID, SendMessageInput{
		Content: "first message",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(delivery.Recipients) != 2 {
		t.Fatalf("expected both participants as recipients, got %v", delivery.Recipients)
	}

	summaries, err := chatService.ListConversations(ctx, bob)
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(summaries) != 1 || summaries[0].UnreadCount != 1 {
		t.Fatalf("expected one unread conversation for bob, got %+v", summaries)
	}
	if summaries[0].PeerID != alice {
		t.Fatalf("expected peer %d, got %d", alice, summaries[0].PeerID)
	}

	senderSummaries, err := chatService.ListConversations(ctx, alice)
	if err != nil {
		t.Fatalf("ListConversations sender: %v", err)
	}
	if senderSummaries[0].UnreadCount != 0 {
		t.Fatalf("sender must not count their own message as unread, got %d", senderSummaries[0].UnreadCount)
	}

	if err := messageService.MarkRead(ctx, bob, models.ThreadDirect, conversation.ID); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}

	summaries, err = chatService.ListConversations(ctx, bob)
	if err != nil {
		t.Fatalf("ListConversations after MarkRead: %v", err)
	}
	if summaries[0].UnreadCount != 0 {
		t.Fatalf("expected unread cleared, got %d", summaries[0].UnreadCount)
	}

	messages, _, err := messageService.List(ctx, bob, models.ThreadDirect, conversation.ID, 1, 50)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("expected one message, got %d", len(messages))
	}
	if !containsID(messages[0].ReadBy, bob) {
		t.Fatalf("expected bob stamped on read_by, got %v", messages[0].ReadBy)
	}
}

func TestMessageServiceReplyPreviewSurvivesDeletion(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	chatService := NewChatService(repository.NewConversationRepository(pool), repository.NewUserRepository(pool))
	messageService := newIntegrationMessageService(pool)

	alice := createChatTestUser(t, ctx, pool, "alice")
	bob := createChatTestUser(t, ctx, pool, "bob")
	t.Cleanup(func() { cleanupChatTestUsers(t, ctx, pool, alice, bob) })

	conversation, err := chatService.CreateConversation(ctx, alice, bob)
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}

	original, err := messageService.Send(ctx, alice, models.ThreadDirect, conversation.ID, SendMessageInput{
		Content: "delete me later",
	})
	if err != nil {
		t.Fatalf("Send original: %v", err)
	}

	replyTo := original.Message.ID
	if _, err := messageService.Send(ctx, bob, models.ThreadDirect, conversation.ID, SendMessageInput{
		Content:   "replying",
		ReplyToID: &replyTo,
	}); err != nil {
		t.Fatalf("Send reply: %v", err)
	}

	if _, err := messageService.Delete(ctx, alice, original.Message.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	messages, total, err := messageService.List(ctx, bob, models.ThreadDirect, conversation.ID, 1, 50)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 2 || len(messages) != 2 {
		t.Fatalf("expected both rows to remain, got %d/%d", len(messages), total)
	}
	if !messages[0].CreatedAt.Before(messages[1].CreatedAt) && messages[0].ID > messages[1].ID {
		t.Fatalf("expected ascending order, got ids %d then %d", messages[0].ID, messages[1].ID)
	}
	if !messages[0].Deleted || messages[0].Content != "" {
		t.Fatalf("expected first message soft-deleted with blank content, got %+v", messages[0])
	}

	reply := messages[1].Reply
	if reply == nil {
		t.Fatalf("expected reply preview on second message")
	}
	if reply.Available || reply.Content != "message unavailable" {
		t.Fatalf("expected unavailable placeholder, got %+v", reply)
	}
}

func TestGroupServiceMembershipLifecycle(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	groupService := NewGroupService(pool, repository.NewGroupRepository(pool), repository.NewUserRepository(pool))

	creator := createChatTestUser(t, ctx, pool, "creator")
	member := createChatTestUser(t, ctx, pool, "member")
	other := createChatTestUser(t, ctx, pool, "other")
	t.Cleanup(func() { cleanupChatTestUsers(t, ctx, pool, creator, member, other) })

	created, err := groupService.CreateGroup(ctx, creator, "Weekend plans", "", []int64{member})
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if created.SystemMessage == nil || created.SystemMessage.SenderID != nil {
		t.Fatalf("expected senderless system message, got %+v", created.SystemMessage)
	}

	groupID := created.Group.ID

	added, err := groupService.AddMembers(ctx, creator, groupID, []int64{other, member})
	if err != nil {
		t.Fatalf("AddMembers: %v", err)
	}
	if added.SystemMessage == nil {
		t.Fatalf("expected system message for the new member")
	}

	// All candidates already present: nothing to announce.
	repeat, err := groupService.AddMembers(ctx, creator, groupID, []int64{other})
	if err != nil {
		t.Fatalf("AddMembers repeat: %v", err)
	}
	if repeat.SystemMessage != nil {
		t.Fatalf("expected no system message for an idempotent add, got %+v", repeat.SystemMessage)
	}

	if _, err := groupService.RemoveMember(ctx, creator, groupID, creator); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden removing the creator, got %v", err)
	}
	if _, err := groupService.Demote(ctx, creator, groupID, creator); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden demoting the creator, got %v", err)
	}
	if _, err := groupService.Leave(ctx, creator, groupID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden when the creator leaves, got %v", err)
	}
	if _, err := groupService.Promote(ctx, member, groupID, other); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden when a non-creator promotes, got %v", err)
	}

	if _, err := groupService.Promote(ctx, creator, groupID, member); err != nil {
		t.Fatalf("Promote: %v", err)
	}
	detail, err := groupService.GetGroup(ctx, member, groupID)
	if err != nil {
		t.Fatalf("GetGroup: %v", err)
	}
	promoted := detail.Member(member)
	if promoted == nil || !promoted.IsAdmin {
		t.Fatalf("expected member promoted to admin, got %+v", promoted)
	}

	left, err := groupService.Leave(ctx, other, groupID)
	if err != nil {
		t.Fatalf("Leave: %v", err)
	}
	if !containsID(left.Recipients, other) {
		t.Fatalf("expected the leaver among recipients, got %v", left.Recipients)
	}
	if _, err := groupService.GetGroup(ctx, other, groupID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for a former member, got %v", err)
	}
}

func integrationTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	testDBOnce.Do(func() {
		_ = godotenv.Load(".env")
		_ = godotenv.Load(filepath.Join("..", "..", ".env"))

		dbURL := os.Getenv("DB_URL")
		if dbURL == "" {
			testDBErr = fmt.Errorf("DB_URL is not set")
			return
		}

		cfg, err := pgxpool.ParseConfig(dbURL)
		if err != nil {
			testDBErr = err
			return
		}

		testDBPool, testDBErr = pgxpool.NewWithConfig(context.Background(), cfg)
		if testDBErr != nil {
			return
		}
		testDBErr = testDBPool.Ping(context.Background())
	})

	if testDBErr != nil {
		t.Skipf("skipping integration test: %v", testDBErr)
	}
	return testDBPool
}

func newIntegrationMessageService(pool *pgxpool.Pool) *MessageService {
	return NewMessageService(
		pool,
		repository.NewConversationRepository(pool),
		repository.NewGroupRepository(pool),
		repository.NewMessageRepository(pool),
	)
}

func createChatTestUser(t *testing.T, ctx context.Context, pool *pgxpool.Pool, name string) int64 {
	t.Helper()

	userRepo := repository.NewUserRepository(pool)
	user := &models.User{
		Email:        fmt.Sprintf("chat-test-%s-%d@example.com", name, time.Now().UnixNano()),
		PasswordHash: "test-hash",
		DisplayName:  name,
		Role:         models.RoleGeneral,
	}
	if err := userRepo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser(%s): %v", name, err)
	}
	return user.ID
}

func cleanupChatTestUsers(t *testing.T, ctx context.Context, pool *pgxpool.Pool, userIDs ...int64) {
	t.Helper()

	if len(userIDs) == 0 {
		return
	}

	if _, err := pool.Exec(ctx, `
		DELETE FROM messages
		WHERE (thread_type = 'group' AND thread_id IN (SELECT id FROM groups WHERE created_by = ANY($1)))
		   OR (thread_type = 'direct' AND thread_id IN (
			SELECT id FROM conversations WHERE participant_a = ANY($1) OR participant_b = ANY($1)
		   ))
	`, userIDs); err != nil {
		t.Fatalf("cleanup messages: %v", err)
	}
	if _, err := pool.Exec(ctx, "DELETE FROM groups WHERE created_by = ANY($1)", userIDs); err != nil {
		t.Fatalf("cleanup groups: %v", err)
	}
	if _, err := pool.Exec(ctx, "DELETE FROM users WHERE id = ANY($1)", userIDs); err != nil {
		t.Fatalf("cleanup users: %v", err)
	}
}

func containsID(ids []int64, id int64) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
