package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kshikongo/chat-app/internal/models"
	"github.com/kshikongo/chat-app/internal/repository"
)

// GroupService owns group membership and roles. Role transitions per
// (group, user): non-member -> member -> member+admin -> member -> non-member.
// The creator is fixed at creation: always a member and admin, never removable,
// never demotable, and not allowed to leave (there is no succession mechanism).
//
// Every membership mutation locks the group row for the transaction, so
// concurrent mutations of the same group serialize.
type GroupService struct {
	db        *pgxpool.Pool
	groupRepo *repository.GroupRepository
	userRepo  userReader
}

// GroupDelivery carries a committed membership change to the fan-out engine.
// Recipients is the post-change member set plus anyone just removed, since
// they need to see the thread disappear.
type GroupDelivery struct {
	Group         *models.Group
	SystemMessage *models.Message
	Recipients    []int64
}

func NewGroupService(
	db *pgxpool.Pool,
	groupRepo *repository.GroupRepository,
	userRepo userReader,
) *GroupService {
	return &GroupService{
		db:        db,
		groupRepo: groupRepo,
		userRepo:  userRepo,
	}
}

func (s *GroupService) ListGroups(ctx context.Context, actorID int64) ([]models.GroupSummary, error) {
	return s.groupRepo.ListForMember(ctx, actorID)
}

func (s *GroupService) GetGroup(ctx context.Context, actorID int64, groupID int64) (*models.GroupDetail, error) {
	group, err := s.groupRepo.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}

	members, err := s.groupRepo.ListMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}

	detail := &models.GroupDetail{Group: *group, Members: members}
	if detail.Member(actorID) == nil {
		return nil, ErrForbidden
	}
	return detail, nil
}

func (s *GroupService) CreateGroup(
	ctx context.Context,
	actorID int64,
	name string,
	description string,
	memberIDs []int64,
) (*GroupDelivery, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidInput
	}

	members := dedupeIDs(memberIDs, actorID)
	if len(members) == 0 {
		return nil, ErrInvalidInput
	}

	names, err := s.resolveNames(ctx, members)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txGroupRepo := repository.NewGroupRepository(tx)

	group := &models.Group{
		Name:        name,
		Description: strings.TrimSpace(description),
		CreatedBy:   actorID,
	}
	if err := txGroupRepo.Create(ctx, group); err != nil {
		return nil, err
	}

	if _, err := txGroupRepo.AddMember(ctx, group.ID, actorID, true); err != nil {
		return nil, err
	}
	for _, memberID := range members {
		if _, err := txGroupRepo.AddMember(ctx, group.ID, memberID, false); err != nil {
			return nil, err
		}
	}

	notice, err := s.emitSystemMessage(ctx, tx, group.ID, actorID,
		fmt.Sprintf("%s added to the group", strings.Join(names, ", ")))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return &GroupDelivery{
		Group:         group,
		SystemMessage: notice,
		Recipients:    append(members, actorID),
	}, nil
}

// AddMembers is idempotent: ids already in the group are skipped, and the
// system message names only the members actually added.
func (s *GroupService) AddMembers(
	ctx context.Context,
	actorID int64,
	groupID int64,
	userIDs []int64,
) (*GroupDelivery, error) {
	candidates := dedupeIDs(userIDs, 0)
	if len(candidates) == 0 {
		return nil, ErrInvalidInput
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txGroupRepo := repository.NewGroupRepository(tx)

	group, err := txGroupRepo.GetByIDForUpdate(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if err := s.requireAdmin(ctx, txGroupRepo, groupID, actorID); err != nil {
		return nil, err
	}

	added := make([]int64, 0, len(candidates))
	for _, userID := range candidates {
		if _, err := s.userRepo.GetByID(ctx, userID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrUserNotFound
			}
			return nil, err
		}
		inserted, err := txGroupRepo.AddMember(ctx, groupID, userID, false)
		if err != nil {
			return nil, err
		}
		if inserted {
			added = append(added, userID)
		}
	}

	var notice *models.Message
	if len(added) > 0 {
		names, err := s.resolveNames(ctx, added)
		if err != nil {
			return nil, err
		}
		notice, err = s.emitSystemMessage(ctx, tx, groupID, actorID,
			fmt.Sprintf("%s added to the group", strings.Join(names, ", ")))
		if err != nil {
			return nil, err
		}
	}

	recipients, err := memberIDs(ctx, txGroupRepo, groupID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return &GroupDelivery{Group: group, SystemMessage: notice, Recipients: recipients}, nil
}

func (s *GroupService) RemoveMember(
	ctx context.Context,
	actorID int64,
	groupID int64,
	userID int64,
) (*GroupDelivery, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txGroupRepo := repository.NewGroupRepository(tx)

	group, err := txGroupRepo.GetByIDForUpdate(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if err := s.requireAdmin(ctx, txGroupRepo, groupID, actorID); err != nil {
		return nil, err
	}
	if userID == group.CreatedBy {
		return nil, ErrForbidden
	}

	// Dropping the membership row removes the user from admins as well;
	// admins are a flag on membership, never a separate set.
	if err := txGroupRepo.RemoveMember(ctx, groupID, userID); err != nil {
		return nil, err
	}

	names, err := s.resolveNames(ctx, []int64{userID})
	if err != nil {
		return nil, err
	}
	notice, err := s.emitSystemMessage(ctx, tx, groupID, actorID,
		fmt.Sprintf("%s removed from the group", names[0]))
	if err != nil {
		return nil, err
	}

	recipients, err := memberIDs(ctx, txGroupRepo, groupID)
	if err != nil {
		return nil, err
	}
	recipients = append(recipients, userID)

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return &GroupDelivery{Group: group, SystemMessage: notice, Recipients: recipients}, nil
}

// Promote and Demote are reserved to the group creator.
func (s *GroupService) Promote(ctx context.Context, actorID, groupID, userID int64) (*GroupDelivery, error) {
	return s.setAdmin(ctx, actorID, groupID, userID, true)
}

func (s *GroupService) Demote(ctx context.Context, actorID, groupID, userID int64) (*GroupDelivery, error) {
	return s.setAdmin(ctx, actorID, groupID, userID, false)
}

func (s *GroupService) setAdmin(
	ctx context.Context,
	actorID int64,
	groupID int64,
	userID int64,
	isAdmin bool,
) (*GroupDelivery, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txGroupRepo := repository.NewGroupRepository(tx)

	group, err := txGroupRepo.GetByIDForUpdate(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if actorID != group.CreatedBy {
		return nil, ErrForbidden
	}
	if !isAdmin && userID == group.CreatedBy {
		return nil, ErrForbidden
	}

	if err := txGroupRepo.SetAdmin(ctx, groupID, userID, isAdmin); err != nil {
		return nil, err
	}

	recipients, err := memberIDs(ctx, txGroupRepo, groupID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return &GroupDelivery{Group: group, Recipients: recipients}, nil
}

func (s *GroupService) Leave(ctx context.Context, actorID int64, groupID int64) (*GroupDelivery, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txGroupRepo := repository.NewGroupRepository(tx)

	group, err := txGroupRepo.GetByIDForUpdate(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if actorID == group.CreatedBy {
		return nil, ErrForbidden
	}

	if err := txGroupRepo.RemoveMember(ctx, groupID, actorID); err != nil {
		return nil, err
	}

	names, err := s.resolveNames(ctx, []int64{actorID})
	if err != nil {
		return nil, err
	}
	notice, err := s.emitSystemMessage(ctx, tx, groupID, actorID,
		fmt.Sprintf("%s left the group", names[0]))
	if err != nil {
		return nil, err
	}

	recipients, err := memberIDs(ctx, txGroupRepo, groupID)
	if err != nil {
		return nil, err
	}
	recipients = append(recipients, actorID)

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return &GroupDelivery{Group: group, SystemMessage: notice, Recipients: recipients}, nil
}

func (s *GroupService) requireAdmin(
	ctx context.Context,
	repo *repository.GroupRepository,
	groupID int64,
	actorID int64,
) error {
	member, err := repo.GetMember(ctx, groupID, actorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrForbidden
		}
		return err
	}
	if !member.IsAdmin {
		return ErrForbidden
	}
	return nil
}

// emitSystemMessage appends a membership notice to the group log inside the
// caller's transaction. The notice has no sender; the acting user is exempted
// from the unread bump.
func (s *GroupService) emitSystemMessage(
	ctx context.Context,
	tx pgx.Tx,
	groupID int64,
	actorID int64,
	content string,
) (*models.Message, error) {
	message := &models.Message{
		ThreadType: models.ThreadGroup,
		ThreadID:   groupID,
		Kind:       models.MessageKindSystem,
		Content:    content,
	}
	if err := repository.NewMessageRepository(tx).Create(ctx, message); err != nil {
		return nil, err
	}

	err := repository.NewGroupRepository(tx).
		ApplyMessage(ctx, groupID, &actorID, truncatePreview(content), message.CreatedAt)
	if err != nil {
		return nil, err
	}
	return message, nil
}

func (s *GroupService) resolveNames(ctx context.Context, userIDs []int64) ([]string, error) {
	names := make([]string, 0, len(userIDs))
	for _, userID := range userIDs {
		user, err := s.userRepo.GetByID(ctx, userID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrUserNotFound
			}
			return nil, err
		}
		name := user.DisplayName
		if name == "" {
			name = user.Email
		}
		names = append(names, name)
	}
	return names, nil
}

func memberIDs(ctx context.Context, repo *repository.GroupRepository, groupID int64) ([]int64, error) {
	members, err := repo.ListMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(members))
	for _, member := range members {
		ids = append(ids, member.UserID)
	}
	return ids, nil
}

func dedupeIDs(ids []int64, exclude int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 || id == exclude {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
