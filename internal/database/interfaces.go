package database

import (
	"context"
	"errors"

	"gupshup/internal/models"
)

// ErrNotFound is returned when a row the caller asked for by id does not
// exist.
var ErrNotFound = errors.New("not found")

type UserRepository interface {
	CreateUser(ctx context.Context, req *models.RegisterRequest) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

// UserDirectory resolves user ids to display names for alert text.
type UserDirectory interface {
	LookupUsers(ctx context.Context, ids []string) ([]*models.Member, error)
}

type ChatRepository interface {
	CreateChat(ctx context.Context, chat *models.Chat) (*models.Chat, error)
	GetChatByID(ctx context.Context, id string) (*models.Chat, error)
	SaveChat(ctx context.Context, chat *models.Chat) error
	DeleteChat(ctx context.Context, id string) error
	ListUserChats(ctx context.Context, userID string) ([]*models.Chat, error)
}

type MessageRepository interface {
	SaveMessage(ctx context.Context, msg *models.Message) error
	ListMessages(ctx context.Context, chatID string, page, perPage int) ([]*models.Message, int, error)
}

type Database interface {
	UserRepository
	UserDirectory
	ChatRepository
	MessageRepository
	Close() error
}
