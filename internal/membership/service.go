package membership

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	"gupshup/internal/database"
	"gupshup/internal/models"
	"gupshup/pkg/logger"

	"github.com/samber/lo"
)

// Notifier is the outbound side of a committed membership change.
// Implemented by the fan-out router.
type Notifier interface {
	Dispatch(event models.FanoutEvent)
}

// Service owns the rules under which a chat's member set may change.
// Every operation validates against the freshly loaded chat, persists the
// mutated copy, and only then notifies members. A save failure leaves the
// stored chat untouched and suppresses all notifications.
type Service struct {
	chats  database.ChatRepository
	users  database.UserDirectory
	notify Notifier

	// Mutations for the same chat id are serialized so that two
	// concurrent removals cannot both observe a stale member count and
	// jointly break the minimum-size rule. Different chats do not
	// contend.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewService(chats database.ChatRepository, users database.UserDirectory, notify Notifier) *Service {
	return &Service{
		chats:  chats,
		users:  users,
		notify: notify,
		locks:  make(map[string]*sync.Mutex),
	}
}

func (s *Service) lockChat(chatID string) func() {
	s.mu.Lock()
	l, ok := s.locks[chatID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[chatID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (s *Service) loadChat(ctx context.Context, chatID string) (*models.Chat, error) {
	chat, err := s.chats.GetChatByID(ctx, chatID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrChatNotFound
		}
		return nil, fmt.Errorf("loading chat: %w", err)
	}
	return chat, nil
}

// CreateGroup seeds a new group chat with the requester as creator. The
// requester is always a member; the seeded set must already satisfy the
// group size bounds.
func (s *Service) CreateGroup(ctx context.Context, creatorID, name string, memberIDs []string) (*models.Chat, error) {
	members := lo.Uniq(append([]string{creatorID}, memberIDs...))
	if len(members) < models.MinGroupMembers {
		return nil, ErrTooFewMembers
	}
	if len(members) > models.MaxGroupMembers {
		return nil, ErrGroupFull
	}

	chat, err := s.chats.CreateChat(ctx, &models.Chat{
		Name:      name,
		GroupChat: true,
		Creator:   creatorID,
		Members:   members,
	})
	if err != nil {
		return nil, fmt.Errorf("creating chat: %w", err)
	}

	s.notify.Dispatch(models.FanoutEvent{
		Kind:    models.EventAlert,
		Targets: chat.Members,
		Payload: models.AlertPayload{ChatID: chat.ID, Message: fmt.Sprintf("Welcome to %s", name)},
	})
	s.notify.Dispatch(models.FanoutEvent{
		Kind:    models.EventRefetchChats,
		Targets: chat.Members,
	})
	return chat, nil
}

// CreateDirect seeds a two-member direct chat. Direct chats are immutable
// after creation.
func (s *Service) CreateDirect(ctx context.Context, requesterID, otherID string) (*models.Chat, error) {
	if requesterID == otherID {
		return nil, ErrNotMember
	}

	chat, err := s.chats.CreateChat(ctx, &models.Chat{
		GroupChat: false,
		Creator:   requesterID,
		Members:   []string{requesterID, otherID},
	})
	if err != nil {
		return nil, fmt.Errorf("creating chat: %w", err)
	}

	s.notify.Dispatch(models.FanoutEvent{
		Kind:    models.EventRefetchChats,
		Targets: chat.Members,
	})
	return chat, nil
}

// AddMembers appends the given users to a group chat. Only the creator
// may add; identities already present are skipped; the result may not
// exceed the member limit.
func (s *Service) AddMembers(ctx context.Context, chatID, requesterID string, newIDs []string) error {
	unlock := s.lockChat(chatID)
	defer unlock()

	chat, err := s.loadChat(ctx, chatID)
	if err != nil {
		return err
	}
	if !chat.GroupChat {
		return ErrNotGroupChat
	}
	if chat.Creator != requesterID {
		return ErrNotAuthorized
	}

	added := lo.Filter(lo.Uniq(newIDs), func(id string, _ int) bool {
		return !lo.Contains(chat.Members, id)
	})
	if len(added) == 0 {
		return nil
	}
	if len(chat.Members)+len(added) > models.MaxGroupMembers {
		return ErrGroupFull
	}

	updated := chat.Clone()
	updated.Members = append(updated.Members, added...)
	if err := s.chats.SaveChat(ctx, updated); err != nil {
		return fmt.Errorf("saving chat: %w", err)
	}

	s.notify.Dispatch(models.FanoutEvent{
		Kind:    models.EventAlert,
		Targets: updated.Members,
		Payload: models.AlertPayload{
			ChatID:  chatID,
			Message: fmt.Sprintf("%s has been added to the group", s.displayNames(ctx, added)),
		},
	})
	s.notify.Dispatch(models.FanoutEvent{
		Kind:    models.EventRefetchChats,
		Targets: updated.Members,
	})
	return nil
}

// RemoveMember deletes targetID from a group chat. Only the creator may
// remove, the creator itself cannot be removed, and the group must keep
// at least the minimum member count afterwards.
func (s *Service) RemoveMember(ctx context.Context, chatID, requesterID, targetID string) error {
	unlock := s.lockChat(chatID)
	defer unlock()

	chat, err := s.loadChat(ctx, chatID)
	if err != nil {
		return err
	}
	if !chat.GroupChat {
		return ErrNotGroupChat
	}
	if chat.Creator != requesterID {
		return ErrNotAuthorized
	}
	if targetID == chat.Creator {
		return ErrRemoveCreator
	}
	if !lo.Contains(chat.Members, targetID) {
		return ErrNotMember
	}

	remaining := lo.Without(chat.Members, targetID)
	if len(remaining) < models.MinGroupMembers {
		return ErrTooFewMembers
	}

	updated := chat.Clone()
	updated.Members = remaining
	if err := s.chats.SaveChat(ctx, updated); err != nil {
		return fmt.Errorf("saving chat: %w", err)
	}

	s.notify.Dispatch(models.FanoutEvent{
		Kind:    models.EventAlert,
		Targets: remaining,
		Payload: models.AlertPayload{
			ChatID:  chatID,
			Message: fmt.Sprintf("%s has been removed from the group", s.displayNames(ctx, []string{targetID})),
		},
	})
	// The removed member also learns their chat list changed.
	s.notify.Dispatch(models.FanoutEvent{
		Kind:    models.EventRefetchChats,
		Targets: chat.Members,
	})
	return nil
}

// Leave removes the requester from a group chat. If the creator leaves, a
// replacement creator is picked uniformly at random from the remaining
// members before the change is committed.
func (s *Service) Leave(ctx context.Context, chatID, requesterID string) error {
	unlock := s.lockChat(chatID)
	defer unlock()

	chat, err := s.loadChat(ctx, chatID)
	if err != nil {
		return err
	}
	if !chat.GroupChat {
		return ErrNotGroupChat
	}
	if !lo.Contains(chat.Members, requesterID) {
		return ErrNotMember
	}

	remaining := lo.Without(chat.Members, requesterID)
	if len(remaining) < models.MinGroupMembers {
		return ErrTooFewMembers
	}

	updated := chat.Clone()
	updated.Members = remaining
	if requesterID == chat.Creator {
		updated.Creator = remaining[rand.IntN(len(remaining))]
	}
	if err := s.chats.SaveChat(ctx, updated); err != nil {
		return fmt.Errorf("saving chat: %w", err)
	}

	s.notify.Dispatch(models.FanoutEvent{
		Kind:    models.EventAlert,
		Targets: remaining,
		Payload: models.AlertPayload{
			ChatID:  chatID,
			Message: fmt.Sprintf("%s left the group", s.displayNames(ctx, []string{requesterID})),
		},
	})
	s.notify.Dispatch(models.FanoutEvent{
		Kind:    models.EventRefetchChats,
		Targets: chat.Members,
	})
	return nil
}

// Rename sets a group chat's name. Creator only.
func (s *Service) Rename(ctx context.Context, chatID, requesterID, newName string) error {
	unlock := s.lockChat(chatID)
	defer unlock()

	chat, err := s.loadChat(ctx, chatID)
	if err != nil {
		return err
	}
	if !chat.GroupChat {
		return ErrNotGroupChat
	}
	if chat.Creator != requesterID {
		return ErrNotAuthorized
	}

	updated := chat.Clone()
	updated.Name = newName
	if err := s.chats.SaveChat(ctx, updated); err != nil {
		return fmt.Errorf("saving chat: %w", err)
	}

	s.notify.Dispatch(models.FanoutEvent{
		Kind:    models.EventAlert,
		Targets: updated.Members,
		Payload: models.AlertPayload{
			ChatID:  chatID,
			Message: fmt.Sprintf("group renamed to %s", newName),
		},
	})
	s.notify.Dispatch(models.FanoutEvent{
		Kind:    models.EventRefetchChats,
		Targets: updated.Members,
	})
	return nil
}

// Delete removes a chat and its messages. Groups may only be deleted by
// their creator; either member may delete a direct chat. Former members
// are told to refresh their chat list.
func (s *Service) Delete(ctx context.Context, chatID, requesterID string) error {
	unlock := s.lockChat(chatID)
	defer unlock()

	chat, err := s.loadChat(ctx, chatID)
	if err != nil {
		return err
	}
	if chat.GroupChat && chat.Creator != requesterID {
		return ErrNotAuthorized
	}
	if !chat.GroupChat && !lo.Contains(chat.Members, requesterID) {
		return ErrNotMember
	}

	if err := s.chats.DeleteChat(ctx, chatID); err != nil {
		return fmt.Errorf("deleting chat: %w", err)
	}

	s.notify.Dispatch(models.FanoutEvent{
		Kind:    models.EventRefetchChats,
		Targets: chat.Members,
	})
	return nil
}

// GetChat returns the chat if the requester is a member of it.
func (s *Service) GetChat(ctx context.Context, chatID, requesterID string) (*models.Chat, error) {
	chat, err := s.loadChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !lo.Contains(chat.Members, requesterID) {
		return nil, ErrNotMember
	}
	return chat, nil
}

// displayNames resolves ids to usernames for alert text, falling back to
// the raw ids when the directory is unavailable.
func (s *Service) displayNames(ctx context.Context, ids []string) string {
	users, err := s.users.LookupUsers(ctx, ids)
	if err != nil || len(users) == 0 {
		logger.Warn("Error looking up user names for alert: %v", err)
		return strings.Join(ids, ", ")
	}
	names := lo.Map(users, func(u *models.Member, _ int) string { return u.Username })
	return strings.Join(names, ", ")
}
