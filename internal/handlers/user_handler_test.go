package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kshikongo/chat-app/internal/models"
	"github.com/kshikongo/chat-app/internal/services"
)

type stubProfileService struct {
	resolveResult *models.UserProfile
	resolveErr    error
	listResult    []models.UserProfile
	listErr       error
	changeErr     error
	deleteErr     error
	lastRole      string
	lastTargetID  int64
	lastActorID   int64
}

func (s *stubProfileService) Resolve(_ context.Context, userID int64) (*models.UserProfile, error) {
	s.lastTargetID = userID
	return s.resolveResult, s.resolveErr
}

func (s *stubProfileService) ListByRole(_ context.Context, role string) ([]models.UserProfile, error) {
	s.lastRole = role
	return s.listResult, s.listErr
}

func (s *stubProfileService) UpdateProfile(_ context.Context, actorID int64, _ string, _ *string) error {
	s.lastActorID = actorID
	return s.changeErr
}

func (s *stubProfileService) ChangeEmail(_ context.Context, actorID int64, _, _ string) error {
	s.lastActorID = actorID
	return s.changeErr
}

func (s *stubProfileService) ChangePassword(_ context.Context, actorID int64, _, _ string) error {
	s.lastActorID = actorID
	return s.changeErr
}

func (s *stubProfileService) DeleteUser(_ context.Context, actorID int64, targetID int64) error {
	s.lastActorID = actorID
	s.lastTargetID = targetID
	return s.deleteErr
}

func TestListUsersDefaultsToGeneralRole(t *testing.T) {
	service := &stubProfileService{
		listResult: []models.UserProfile{
			{ID: 8, Email: "peer@example.com", DisplayName: "Peer", Role: models.RoleGeneral, LastActive: time.Now(), Active: true},
		},
	}
	handler := NewUserHandler(service)

	app := newTestApp("42")
	app.Get("/api/v1/users", handler.ListUsers)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if service.lastRole != models.RoleGeneral {
		t.Fatalf("expected general role by default, got %q", service.lastRole)
	}

	var body struct {
		Users []models.UserProfile `json:"users"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(body.Users) != 1 || !body.Users[0].Active {
		t.Fatalf("unexpected response: %+v", body.Users)
	}
}

func TestGetUserReturnsNotFound(t *testing.T) {
	service := &stubProfileService{resolveErr: services.ErrUserNotFound}
	handler := NewUserHandler(service)

	app := newTestApp("42")
	app.Get("/api/v1/users/:id", handler.GetUser)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/99", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestChangePasswordMapsForbidden(t *testing.T) {
	service := &stubProfileService{changeErr: services.ErrForbidden}
	handler := NewUserHandler(service)

	app := newTestApp("42")
	app.Put("/api/v1/users/password", handler.ChangePassword)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/users/password", strings.NewReader(`{"current_password":"wrong","new_password":"long-enough"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestDeleteUserForwardsActorAndTarget(t *testing.T) {
	service := &stubProfileService{}
	handler := NewUserHandler(service)

	app := newTestApp("1")
	app.Delete("/api/v1/users/:id", handler.DeleteUser)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/users/2", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if service.lastActorID != 1 || service.lastTargetID != 2 {
		t.Fatalf("unexpected forwarded ids: actor=%d target=%d", service.lastActorID, service.lastTargetID)
	}
}
