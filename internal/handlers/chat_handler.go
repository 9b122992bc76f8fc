package handlers

import (
	"context"
	"errors"
	"strings"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/kshikongo/chat-app/internal/models"
	"github.com/kshikongo/chat-app/internal/services"
	chatws "github.com/kshikongo/chat-app/internal/websocket"
	"github.com/kshikongo/chat-app/pkg/utils"
)

type conversationApplicationService interface {
	ListConversations(ctx context.Context, actorID int64) ([]models.ConversationSummary, error)
	CreateConversation(ctx context.Context, actorID int64, peerID int64) (*models.Conversation, error)
	DeleteConversation(ctx context.Context, actorID int64, conversationID int64) (*models.Conversation, error)
}

type messageApplicationService interface {
	Send(ctx context.Context, actorID int64, threadType string, threadID int64, input services.SendMessageInput) (*services.MessageDelivery, error)
	List(ctx context.Context, actorID int64, threadType string, threadID int64, page int, limit int) ([]models.Message, int, error)
	MarkRead(ctx context.Context, actorID int64, threadType string, threadID int64) error
}

type groupLister interface {
	ListGroups(ctx context.Context, actorID int64) ([]models.GroupSummary, error)
}

type ChatHandler struct {
	conversations conversationApplicationService
	messages      messageApplicationService
	groups        groupLister
	hub           *chatws.Hub
	jwtSecret     string
}

func NewChatHandler(
	conversations conversationApplicationService,
	messages messageApplicationService,
	groups groupLister,
	hub *chatws.Hub,
	jwtSecret string,
) *ChatHandler {
	return &ChatHandler{
		conversations: conversations,
		messages:      messages,
		groups:        groups,
		hub:           hub,
		jwtSecret:     jwtSecret,
	}
}

func (h *ChatHandler) ListConversations(c *fiber.Ctx) error {
	actorID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	conversations, err := h.conversations.ListConversations(c.Context(), actorID)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(fiber.Map{"conversations": conversations})
}

type createConversationRequest struct {
	PeerID int64 `json:"peer_id"`
}

func (h *ChatHandler) CreateConversation(c *fiber.Ctx) error {
	actorID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req createConversationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	conversation, err := h.conversations.CreateConversation(c.Context(), actorID, req.PeerID)
	if err != nil {
		return mapServiceError(c, err)
	}

	h.hub.Publish(
		[]int64{conversation.ParticipantA, conversation.ParticipantB},
		chatws.Event{Type: chatws.EventConversationUpdated, Data: conversation},
	)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"conversation": conversation})
}

func (h *ChatHandler) DeleteConversation(c *fiber.Ctx) error {
	actorID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	conversationID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid conversation id"})
	}

	conversation, err := h.conversations.DeleteConversation(c.Context(), actorID, conversationID)
	if err != nil {
		return mapServiceError(c, err)
	}

	h.hub.Publish(
		[]int64{conversation.ParticipantA, conversation.ParticipantB},
		chatws.Event{Type: chatws.EventConversationRemoved, Data: fiber.Map{"id": conversationID}},
	)

	return c.JSON(fiber.Map{"message": "Conversation deleted"})
}

func (h *ChatHandler) GetMessages(c *fiber.Ctx) error {
	return h.listThreadMessages(c, models.ThreadDirect)
}

func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	return h.sendThreadMessage(c, models.ThreadDirect)
}

func (h *ChatHandler) MarkRead(c *fiber.Ctx) error {
	return h.markThreadRead(c, models.ThreadDirect)
}

func (h *ChatHandler) listThreadMessages(c *fiber.Ctx, threadType string) error {
	actorID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	threadID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid thread id"})
	}

	page := parsePositiveInt(c.Query("page"), 1)
	limit := parsePositiveInt(c.Query("limit"), defaultPageLimit)
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	messages, total, err := h.messages.List(c.Context(), actorID, threadType, threadID, page, limit)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"messages":   messages,
		"pagination": buildPaginationMeta(page, limit, total),
	})
}

type sendMessageRequest struct {
	Kind            string  `json:"kind"`
	Content         string  `json:"content"`
	FileName        *string `json:"file_name"`
	FileSize        *int64  `json:"file_size"`
	ReplyToID       *int64  `json:"reply_to_id"`
	ForwardedFromID *int64  `json:"forwarded_from_id"`
}

func (h *ChatHandler) sendThreadMessage(c *fiber.Ctx, threadType string) error {
	actorID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	threadID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid thread id"})
	}

	var req sendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	delivery, err := h.messages.Send(c.Context(), actorID, threadType, threadID, services.SendMessageInput{
		Kind:            req.Kind,
		Content:         req.Content,
		FileName:        req.FileName,
		FileSize:        req.FileSize,
		ReplyToID:       req.ReplyToID,
		ForwardedFromID: req.ForwardedFromID,
	})
	if err != nil {
		return mapServiceError(c, err)
	}

	h.hub.Publish(delivery.Recipients, chatws.Event{
		Type: chatws.EventMessageAdded,
		Data: delivery.Message,
	})

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": delivery.Message})
}

func (h *ChatHandler) markThreadRead(c *fiber.Ctx, threadType string) error {
	actorID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	threadID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid thread id"})
	}

	if err := h.messages.MarkRead(c.Context(), actorID, threadType, threadID); err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(fiber.Map{"message": "Marked read"})
}

func (h *ChatHandler) WebSocketAuth(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{"error": "WebSocket upgrade required"})
	}

	claims, err := h.parseWSClaims(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid or expired token"})
	}

	c.Locals("user_id", claims.UserID)
	c.Locals("role", claims.Role)
	return c.Next()
}

// HandleWebSocket registers the client, pushes the connect-time snapshot, and
// then serves the read/write pumps until disconnect. Unregistering releases
// the client's fan-out resources.
func (h *ChatHandler) HandleWebSocket(conn *websocket.Conn) {
	rawUserID, _ := conn.Locals("user_id").(string)
	userID, ok := chatws.ParseClientUserID(rawUserID)
	if !ok {
		_ = conn.Close()
		return
	}

	client := chatws.NewClient(h.hub, conn, userID)
	h.hub.Register(client)
	go client.WritePump()

	h.pushSnapshot(client, userID)
	client.ReadPump(h.messages)
}

func (h *ChatHandler) pushSnapshot(client *chatws.Client, userID int64) {
	ctx := context.Background()

	conversations, err := h.conversations.ListConversations(ctx, userID)
	if err != nil {
		return
	}
	groups, err := h.groups.ListGroups(ctx, userID)
	if err != nil {
		return
	}

	client.Enqueue(chatws.Event{
		Type: chatws.EventSnapshot,
		Data: fiber.Map{
			"conversations": conversations,
			"groups":        groups,
		},
	})
}

func (h *ChatHandler) parseWSClaims(c *fiber.Ctx) (*utils.Claims, error) {
	tokenString := strings.TrimSpace(c.Query("token"))
	if tokenString == "" {
		authHeader := strings.TrimSpace(c.Get("Authorization"))
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				tokenString = parts[1]
			}
		}
	}

	if tokenString == "" {
		return nil, errors.New("missing token")
	}

	return utils.ValidateToken(tokenString, h.jwtSecret)
}
