package handlers

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/kshikongo/chat-app/internal/services"
	chatws "github.com/kshikongo/chat-app/internal/websocket"
)

const maxAttachmentSizeBytes = 25 * 1024 * 1024

type messageEditor interface {
	Edit(ctx context.Context, actorID int64, messageID int64, newContent string) (*services.MessageDelivery, error)
	Delete(ctx context.Context, actorID int64, messageID int64) (*services.MessageDelivery, error)
}

type MessageHandler struct {
	service messageEditor
	storage services.StorageService
	hub     *chatws.Hub
}

func NewMessageHandler(service messageEditor, storage services.StorageService, hub *chatws.Hub) *MessageHandler {
	return &MessageHandler{
		service: service,
		storage: storage,
		hub:     hub,
	}
}

type editMessageRequest struct {
	Content string `json:"content"`
}

func (h *MessageHandler) EditMessage(c *fiber.Ctx) error {
	actorID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	messageID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid message id"})
	}

	var req editMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	delivery, err := h.service.Edit(c.Context(), actorID, messageID, req.Content)
	if err != nil {
		return mapServiceError(c, err)
	}

	h.hub.Publish(delivery.Recipients, chatws.Event{
		Type: chatws.EventMessageModified,
		Data: delivery.Message,
	})

	return c.JSON(fiber.Map{"message": delivery.Message})
}

func (h *MessageHandler) DeleteMessage(c *fiber.Ctx) error {
	actorID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	messageID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid message id"})
	}

	delivery, err := h.service.Delete(c.Context(), actorID, messageID)
	if err != nil {
		return mapServiceError(c, err)
	}

	h.hub.Publish(delivery.Recipients, chatws.Event{
		Type: chatws.EventMessageRemoved,
		Data: fiber.Map{
			"id":          delivery.Message.ID,
			"thread_type": delivery.Message.ThreadType,
			"thread_id":   delivery.Message.ThreadID,
		},
	})

	return c.JSON(fiber.Map{"message": "Message deleted"})
}

// UploadAttachment stores the bytes with the storage collaborator and returns
// the URL; sending the message that references it is a separate call.
func (h *MessageHandler) UploadAttachment(c *fiber.Ctx) error {
	if _, err := parseActorID(c); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	if h.storage == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Storage is not configured"})
	}

	bucketClass := c.Params("class")
	if !services.ValidBucketClass(bucketClass) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid bucket class"})
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "File is required"})
	}
	if fileHeader.Size > maxAttachmentSizeBytes {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "File too large"})
	}

	file, err := fileHeader.Open()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to read file"})
	}
	defer file.Close()

	objectName := fmt.Sprintf("%s%s", uuid.NewString(), filepath.Ext(fileHeader.Filename))
	url, err := h.storage.UploadFile(c.Context(), file, objectName, bucketClass)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to upload file"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"url":       url,
		"file_name": fileHeader.Filename,
		"file_size": fileHeader.Size,
	})
}
