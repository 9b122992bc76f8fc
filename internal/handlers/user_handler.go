package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/kshikongo/chat-app/internal/models"
)

type profileApplicationService interface {
	Resolve(ctx context.Context, userID int64) (*models.UserProfile, error)
	ListByRole(ctx context.Context, role string) ([]models.UserProfile, error)
	UpdateProfile(ctx context.Context, actorID int64, displayName string, avatarURL *string) error
	ChangeEmail(ctx context.Context, actorID int64, currentPassword, newEmail string) error
	ChangePassword(ctx context.Context, actorID int64, currentPassword, newPassword string) error
	DeleteUser(ctx context.Context, actorID int64, targetID int64) error
}

type UserHandler struct {
	service profileApplicationService
}

func NewUserHandler(service profileApplicationService) *UserHandler {
	return &UserHandler{service: service}
}

func (h *UserHandler) ListUsers(c *fiber.Ctx) error {
	role := c.Query("role", models.RoleGeneral)

	users, err := h.service.ListByRole(c.Context(), role)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(fiber.Map{"users": users})
}

func (h *UserHandler) GetUser(c *fiber.Ctx) error {
	userID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid user id"})
	}

	profile, err := h.service.Resolve(c.Context(), userID)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(fiber.Map{"user": profile})
}

type updateProfileRequest struct {
	DisplayName string  `json:"display_name"`
	AvatarURL   *string `json:"avatar_url"`
}

func (h *UserHandler) UpdateProfile(c *fiber.Ctx) error {
	actorID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req updateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if err := h.service.UpdateProfile(c.Context(), actorID, req.DisplayName, req.AvatarURL); err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(fiber.Map{"message": "Profile updated"})
}

type changeEmailRequest struct {
	CurrentPassword string `json:"current_password"`
	NewEmail        string `json:"new_email"`
}

func (h *UserHandler) ChangeEmail(c *fiber.Ctx) error {
	actorID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req changeEmailRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if err := h.service.ChangeEmail(c.Context(), actorID, req.CurrentPassword, req.NewEmail); err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(fiber.Map{"message": "Email updated"})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *UserHandler) ChangePassword(c *fiber.Ctx) error {
	actorID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req changePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if err := h.service.ChangePassword(c.Context(), actorID, req.CurrentPassword, req.NewPassword); err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(fiber.Map{"message": "Password updated"})
}

// DeleteUser sits behind the admin middleware; the service still refuses
// self-deletion.
func (h *UserHandler) DeleteUser(c *fiber.Ctx) error {
	actorID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	targetID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid user id"})
	}

	if err := h.service.DeleteUser(c.Context(), actorID, targetID); err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(fiber.Map{"message": "User deleted"})
}
