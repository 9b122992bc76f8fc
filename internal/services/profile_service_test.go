package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/kshikongo/chat-app/internal/models"
	"github.com/kshikongo/chat-app/pkg/utils"
)

type stubUserStore struct {
	user           *models.User
	getErr         error
	listResult     []models.User
	listErr        error
	updateEmailErr error
	deleteErr      error
	lastEmail      string
	lastHash       string
	lastDeletedID  int64
}

func (r *stubUserStore) GetByID(_ context.Context, _ int64) (*models.User, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	return r.user, nil
}

func (r *stubUserStore) ListByRole(_ context.Context, _ string) ([]models.User, error) {
	return r.listResult, r.listErr
}

func (r *stubUserStore) UpdateProfile(_ context.Context, _ int64, _ string, _ *string) error {
	return nil
}

func (r *stubUserStore) UpdateEmail(_ context.Context, _ int64, email string) error {
	r.lastEmail = email
	return r.updateEmailErr
}

func (r *stubUserStore) UpdatePassword(_ context.Context, _ int64, passwordHash string) error {
	r.lastHash = passwordHash
	return nil
}

func (r *stubUserStore) Delete(_ context.Context, id int64) error {
	r.lastDeletedID = id
	return r.deleteErr
}

func hashForTest(t *testing.T, password string) string {
	t.Helper()
	hash, err := utils.HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	return hash
}

func TestProfileServiceListByRoleRejectsUnknownRole(t *testing.T) {
	service := NewProfileService(&stubUserStore{})

	_, err := service.ListByRole(context.Background(), "superuser")
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestProfileServiceResolveDerivesActiveFromLastActive(t *testing.T) {
	store := &stubUserStore{
		user: &models.User{ID: 1, Email: "a@example.com", LastActive: time.Now().Add(-time.Hour)},
	}
	service := NewProfileService(store)

	profile, err := service.Resolve(context.Background(), 1)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !profile.Active {
		t.Fatalf("expected user seen an hour ago to be active")
	}

	store.user.LastActive = time.Now().Add(-48 * time.Hour)
	profile, err = service.Resolve(context.Background(), 1)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if profile.Active {
		t.Fatalf("expected user seen two days ago to be inactive")
	}
}

func TestProfileServiceResolveMapsMissingUser(t *testing.T) {
	service := NewProfileService(&stubUserStore{getErr: pgx.ErrNoRows})

	_, err := service.Resolve(context.Background(), 99)
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestProfileServiceUpdateProfileRejectsBlankName(t *testing.T) {
	service := NewProfileService(&stubUserStore{})

	err := service.UpdateProfile(context.Background(), 1, "   ", nil)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestProfileServiceChangeEmailRejectsInvalidAddress(t *testing.T) {
	service := NewProfileService(&stubUserStore{})

	err := service.ChangeEmail(context.Background(), 1, "secret", "not-an-email")
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestProfileServiceChangeEmailRequiresCurrentPassword(t *testing.T) {
	store := &stubUserStore{
		user: &models.User{ID: 1, PasswordHash: hashForTest(t, "current-secret")},
	}
	service := NewProfileService(store)

	err := service.ChangeEmail(context.Background(), 1, "wrong-secret", "new@example.com")
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for wrong password, got %v", err)
	}

	if err := service.ChangeEmail(context.Background(), 1, "current-secret", " New@Example.COM "); err != nil {
		t.Fatalf("ChangeEmail: %v", err)
	}
	if store.lastEmail != "new@example.com" {
		t.Fatalf("expected lowercased address, got %q", store.lastEmail)
	}
}

func TestProfileServiceChangeEmailMapsDuplicateAddress(t *testing.T) {
	store := &stubUserStore{
		user:           &models.User{ID: 1, PasswordHash: hashForTest(t, "current-secret")},
		updateEmailErr: &pgconn.PgError{Code: "23505"},
	}
	service := NewProfileService(store)

	err := service.ChangeEmail(context.Background(), 1, "current-secret", "taken@example.com")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestProfileServiceChangePasswordRejectsShortPassword(t *testing.T) {
	service := NewProfileService(&stubUserStore{})

	err := service.ChangePassword(context.Background(), 1, "current-secret", "short")
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestProfileServiceChangePasswordStoresNewHash(t *testing.T) {
	store := &stubUserStore{
		user: &models.User{ID: 1, PasswordHash: hashForTest(t, "current-secret")},
	}
	service := NewProfileService(store)

	if err := service.ChangePassword(context.Background(), 1, "current-secret", "next-secret"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if !utils.CheckPassword("next-secret", store.lastHash) {
		t.Fatalf("stored hash does not match the new password")
	}
}

func TestProfileServiceDeleteUser(t *testing.T) {
	store := &stubUserStore{}
	service := NewProfileService(store)

	if err := service.DeleteUser(context.Background(), 1, 1); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for self-deletion, got %v", err)
	}

	store.deleteErr = pgx.ErrNoRows
	if err := service.DeleteUser(context.Background(), 1, 99); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	store.deleteErr = &pgconn.PgError{Code: "23503"}
	if err := service.DeleteUser(context.Background(), 1, 2); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	store.deleteErr = nil
	if err := service.DeleteUser(context.Background(), 1, 2); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if store.lastDeletedID != 2 {
		t.Fatalf("expected delete of user 2, got %d", store.lastDeletedID)
	}
}
