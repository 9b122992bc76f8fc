package services

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/kshikongo/chat-app/internal/models"
	"github.com/kshikongo/chat-app/pkg/utils"
)

// A user counts as active when seen within this window. Derived at read time,
// never stored.
const activeWindow = 24 * time.Hour

type userStore interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
	ListByRole(ctx context.Context, role string) ([]models.User, error)
	UpdateProfile(ctx context.Context, id int64, displayName string, avatarURL *string) error
	UpdateEmail(ctx context.Context, id int64, email string) error
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
	Delete(ctx context.Context, id int64) error
}

// ProfileService is the identity directory: one users table with a role
// column rather than role-partitioned collections.
type ProfileService struct {
	userRepo userStore
}

func NewProfileService(userRepo userStore) *ProfileService {
	return &ProfileService{userRepo: userRepo}
}

func (s *ProfileService) Resolve(ctx context.Context, userID int64) (*models.UserProfile, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	profile := profileFromUser(user, time.Now())
	return &profile, nil
}

func (s *ProfileService) ListByRole(ctx context.Context, role string) ([]models.UserProfile, error) {
	if role != models.RoleGeneral && role != models.RoleAdmin {
		return nil, ErrInvalidInput
	}

	users, err := s.userRepo.ListByRole(ctx, role)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	profiles := make([]models.UserProfile, 0, len(users))
	for i := range users {
		profiles = append(profiles, profileFromUser(&users[i], now))
	}
	return profiles, nil
}

func (s *ProfileService) UpdateProfile(
	ctx context.Context,
	actorID int64,
	displayName string,
	avatarURL *string,
) error {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return ErrInvalidInput
	}
	return s.userRepo.UpdateProfile(ctx, actorID, displayName, avatarURL)
}

// ChangeEmail requires step-up re-authentication: the current password is
// verified before the address changes.
func (s *ProfileService) ChangeEmail(
	ctx context.Context,
	actorID int64,
	currentPassword string,
	newEmail string,
) error {
	parsed, err := mail.ParseAddress(strings.TrimSpace(newEmail))
	if err != nil {
		return ErrInvalidInput
	}

	if err := s.reauthenticate(ctx, actorID, currentPassword); err != nil {
		return err
	}

	if err := s.userRepo.UpdateEmail(ctx, actorID, strings.ToLower(parsed.Address)); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return err
	}
	return nil
}

// ChangePassword also requires step-up re-authentication.
func (s *ProfileService) ChangePassword(
	ctx context.Context,
	actorID int64,
	currentPassword string,
	newPassword string,
) error {
	if len(newPassword) < 8 {
		return ErrInvalidInput
	}

	if err := s.reauthenticate(ctx, actorID, currentPassword); err != nil {
		return err
	}

	hashed, err := utils.HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.userRepo.UpdatePassword(ctx, actorID, hashed)
}

// DeleteUser is an administrative action and never allowed on oneself.
func (s *ProfileService) DeleteUser(ctx context.Context, actorID int64, targetID int64) error {
	if targetID == actorID {
		return ErrForbidden
	}

	if err := s.userRepo.Delete(ctx, targetID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *ProfileService) reauthenticate(ctx context.Context, actorID int64, password string) error {
	user, err := s.userRepo.GetByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		return err
	}
	if !utils.CheckPassword(password, user.PasswordHash) {
		return ErrForbidden
	}
	return nil
}

func profileFromUser(user *models.User, now time.Time) models.UserProfile {
	return models.UserProfile{
		ID:          user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		Role:        user.Role,
		AvatarURL:   user.AvatarURL,
		LastActive:  user.LastActive,
		Active:      now.Sub(user.LastActive) < activeWindow,
	}
}
