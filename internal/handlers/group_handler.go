package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/kshikongo/chat-app/internal/models"
	"github.com/kshikongo/chat-app/internal/services"
	chatws "github.com/kshikongo/chat-app/internal/websocket"
)

type groupApplicationService interface {
	ListGroups(ctx context.Context, actorID int64) ([]models.GroupSummary, error)
	GetGroup(ctx context.Context, actorID int64, groupID int64) (*models.GroupDetail, error)
	CreateGroup(ctx context.Context, actorID int64, name, description string, memberIDs []int64) (*services.GroupDelivery, error)
	AddMembers(ctx context.Context, actorID int64, groupID int64, userIDs []int64) (*services.GroupDelivery, error)
	RemoveMember(ctx context.Context, actorID int64, groupID int64, userID int64) (*services.GroupDelivery, error)
	Promote(ctx context.Context, actorID, groupID, userID int64) (*services.GroupDelivery, error)
	Demote(ctx context.Context, actorID, groupID, userID int64) (*services.GroupDelivery, error)
	Leave(ctx context.Context, actorID int64, groupID int64) (*services.GroupDelivery, error)
}

type GroupHandler struct {
	service groupApplicationService
	chat    *ChatHandler
	hub     *chatws.Hub
}

func NewGroupHandler(service groupApplicationService, chat *ChatHandler, hub *chatws.Hub) *GroupHandler {
	return &GroupHandler{
		service: service,
		chat:    chat,
		hub:     hub,
	}
}

func (h *GroupHandler) ListGroups(c *fiber.Ctx) error {
	actorID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	groups, err := h.service.ListGroups(c.Context(), actorID)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(fiber.Map{"groups": groups})
}

func (h *GroupHandler) GetGroup(c *fiber.Ctx) error {
	actorID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	groupID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid group id"})
	}

	group, err := h.service.GetGroup(c.Context(), actorID, groupID)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(fiber.Map{"group": group})
}

type createGroupRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	MemberIDs   []int64 `json:"member_ids"`
}

func (h *GroupHandler) CreateGroup(c *fiber.Ctx) error {
	actorID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req createGroupRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	delivery, err := h.service.CreateGroup(c.Context(), actorID, req.Name, req.Description, req.MemberIDs)
	if err != nil {
		return mapServiceError(c, err)
	}

	h.publishGroupChange(delivery)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"group": delivery.Group})
}

type addMembersRequest struct {
	UserIDs []int64 `json:"user_ids"`
}

func (h *GroupHandler) AddMembers(c *fiber.Ctx) error {
	actorID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	groupID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid group id"})
	}

	var req addMembersRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	delivery, err := h.service.AddMembers(c.Context(), actorID, groupID, req.UserIDs)
	if err != nil {
		return mapServiceError(c, err)
	}

	h.publishGroupChange(delivery)

	return c.JSON(fiber.Map{"group": delivery.Group})
}

func (h *GroupHandler) RemoveMember(c *fiber.Ctx) error {
	actorID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	groupID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid group id"})
	}
	userID, err := parseIDParam(c, "userId")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid user id"})
	}

	delivery, err := h.service.RemoveMember(c.Context(), actorID, groupID, userID)
	if err != nil {
		return mapServiceError(c, err)
	}

	h.publishGroupChange(delivery)
	h.hub.Publish([]int64{userID}, chatws.Event{
		Type: chatws.EventGroupRemoved,
		Data: fiber.Map{"id": groupID},
	})

	return c.JSON(fiber.Map{"message": "Member removed"})
}

func (h *GroupHandler) Promote(c *fiber.Ctx) error {
	return h.setAdmin(c, true)
}

func (h *GroupHandler) Demote(c *fiber.Ctx) error {
	return h.setAdmin(c, false)
}

func (h *GroupHandler) setAdmin(c *fiber.Ctx, promote bool) error {
	actorID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	groupID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid group id"})
	}
	userID, err := parseIDParam(c, "userId")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid user id"})
	}

	var delivery *services.GroupDelivery
	if promote {
		delivery, err = h.service.Promote(c.Context(), actorID, groupID, userID)
	} else {
		delivery, err = h.service.Demote(c.Context(), actorID, groupID, userID)
	}
	if err != nil {
		return mapServiceError(c, err)
	}

	h.publishGroupChange(delivery)

	return c.JSON(fiber.Map{"message": "Member role updated"})
}

func (h *GroupHandler) Leave(c *fiber.Ctx) error {
	actorID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	groupID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid group id"})
	}

	delivery, err := h.service.Leave(c.Context(), actorID, groupID)
	if err != nil {
		return mapServiceError(c, err)
	}

	h.publishGroupChange(delivery)
	h.hub.Publish([]int64{actorID}, chatws.Event{
		Type: chatws.EventGroupRemoved,
		Data: fiber.Map{"id": groupID},
	})

	return c.JSON(fiber.Map{"message": "Left group"})
}

func (h *GroupHandler) GetMessages(c *fiber.Ctx) error {
	return h.chat.listThreadMessages(c, models.ThreadGroup)
}

func (h *GroupHandler) SendMessage(c *fiber.Ctx) error {
	return h.chat.sendThreadMessage(c, models.ThreadGroup)
}

func (h *GroupHandler) MarkRead(c *fiber.Ctx) error {
	return h.chat.markThreadRead(c, models.ThreadGroup)
}

// publishGroupChange pushes the membership change and, when one was emitted,
// the system message to the affected users.
func (h *GroupHandler) publishGroupChange(delivery *services.GroupDelivery) {
	h.hub.Publish(delivery.Recipients, chatws.Event{
		Type: chatws.EventGroupUpdated,
		Data: delivery.Group,
	})
	if delivery.SystemMessage != nil {
		h.hub.Publish(delivery.Recipients, chatws.Event{
			Type: chatws.EventMessageAdded,
			Data: delivery.SystemMessage,
		})
	}
}
