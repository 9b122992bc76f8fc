package services

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/kshikongo/chat-app/internal/models"
)

func TestGroupServiceCreateGroupValidatesInput(t *testing.T) {
	service := &GroupService{}
	ctx := context.Background()

	if _, err := service.CreateGroup(ctx, 1, "   ", "", []int64{2}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for blank name, got %v", err)
	}

	// The creator and invalid ids are dropped, leaving no one to add.
	if _, err := service.CreateGroup(ctx, 1, "Team", "", []int64{1, 1, 0, -3}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty member set, got %v", err)
	}
}

func TestGroupServiceCreateGroupRequiresKnownMembers(t *testing.T) {
	service := &GroupService{userRepo: &stubUserDirectory{}}

	_, err := service.CreateGroup(context.Background(), 1, "Team", "", []int64{2})
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestGroupServiceAddMembersValidatesInput(t *testing.T) {
	service := &GroupService{}

	_, err := service.AddMembers(context.Background(), 1, 3, []int64{0, -1})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestGroupServiceResolveNamesFallsBackToEmail(t *testing.T) {
	service := &GroupService{userRepo: &stubUserDirectory{users: map[int64]*models.User{
		2: {ID: 2, DisplayName: "Alice", Email: "alice@example.com"},
		3: {ID: 3, Email: "bob@example.com"},
	}}}

	names, err := service.resolveNames(context.Background(), []int64{2, 3})
	if err != nil {
		t.Fatalf("resolveNames: %v", err)
	}
	if !reflect.DeepEqual(names, []string{"Alice", "bob@example.com"}) {
		t.Fatalf("unexpected names: %v", names)
	}
}

func TestDedupeIDs(t *testing.T) {
	got := dedupeIDs([]int64{3, 3, 0, -1, 7, 5, 7}, 5)
	if !reflect.DeepEqual(got, []int64{3, 7}) {
		t.Fatalf("unexpected ids: %v", got)
	}
}
