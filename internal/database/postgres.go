package database

import (
	"context"
	"errors"
	"fmt"

	"gupshup/internal/models"
	"gupshup/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

type PostgresDB struct {
	pool *pgxpool.Pool
}

func NewPostgresDB(databaseURL string) (*PostgresDB, error) {
	pool, err := pgxpool.New(context.Background(), databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Connected to database successfully")
	return &PostgresDB{pool: pool}, nil
}

func (db *PostgresDB) Close() error {
	db.pool.Close()
	return nil
}

// User Repository Implementation
func (db *PostgresDB) CreateUser(ctx context.Context, req *models.RegisterRequest) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	query := `
		INSERT INTO users (id, username, email, password_hash, created_at)
		VALUES (gen_random_uuid(), $1, $2, $3, NOW())
		RETURNING id, username, email, created_at`

	user := &models.User{PasswordHash: string(hash)}
	err = db.pool.QueryRow(ctx, query, req.Username, req.Email, string(hash)).Scan(
		&user.ID, &user.Username, &user.Email, &user.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

func (db *PostgresDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT id, username, email, password_hash, created_at FROM users WHERE email = $1`

	user := &models.User{}
	err := db.pool.QueryRow(ctx, query, email).Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return user, nil
}

func (db *PostgresDB) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT id, username, email, created_at FROM users WHERE id = $1`

	user := &models.User{}
	err := db.pool.QueryRow(ctx, query, id).Scan(
		&user.ID, &user.Username, &user.Email, &user.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return user, nil
}

// User Directory Implementation
func (db *PostgresDB) LookupUsers(ctx context.Context, ids []string) ([]*models.Member, error) {
	query := `SELECT id, username FROM users WHERE id = ANY($1)`

	rows, err := db.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*models.Member
	for rows.Next() {
		u := &models.Member{}
		if err := rows.Scan(&u.ID, &u.Username); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Chat Repository Implementation
func (db *PostgresDB) CreateChat(ctx context.Context, chat *models.Chat) (*models.Chat, error) {
	query := `
		INSERT INTO chats (id, name, group_chat, creator, members, created_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, NOW())
		RETURNING id, created_at`

	created := chat.Clone()
	err := db.pool.QueryRow(ctx, query, chat.Name, chat.GroupChat, chat.Creator, chat.Members).Scan(
		&created.ID, &created.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}

	return created, nil
}

func (db *PostgresDB) GetChatByID(ctx context.Context, id string) (*models.Chat, error) {
	query := `SELECT id, name, group_chat, creator, members, created_at FROM chats WHERE id = $1`

	chat := &models.Chat{}
	err := db.pool.QueryRow(ctx, query, id).Scan(
		&chat.ID, &chat.Name, &chat.GroupChat, &chat.Creator, &chat.Members, &chat.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return chat, nil
}

// SaveChat writes the full mutable state of the chat in one statement so
// a concurrent reader never sees a half-applied member change.
func (db *PostgresDB) SaveChat(ctx context.Context, chat *models.Chat) error {
	query := `UPDATE chats SET name = $2, creator = $3, members = $4 WHERE id = $1`

	tag, err := db.pool.Exec(ctx, query, chat.ID, chat.Name, chat.Creator, chat.Members)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *PostgresDB) DeleteChat(ctx context.Context, id string) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM messages WHERE chat_id = $1`, id); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `DELETE FROM chats WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return tx.Commit(ctx)
}

func (db *PostgresDB) ListUserChats(ctx context.Context, userID string) ([]*models.Chat, error) {
	query := `
		SELECT id, name, group_chat, creator, members, created_at
		FROM chats
		WHERE $1 = ANY(members)
		ORDER BY created_at DESC`

	rows, err := db.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chats []*models.Chat
	for rows.Next() {
		chat := &models.Chat{}
		if err := rows.Scan(&chat.ID, &chat.Name, &chat.GroupChat, &chat.Creator, &chat.Members, &chat.CreatedAt); err != nil {
			return nil, err
		}
		chats = append(chats, chat)
	}
	return chats, rows.Err()
}

// Message Repository Implementation
func (db *PostgresDB) SaveMessage(ctx context.Context, msg *models.Message) error {
	query := `
		INSERT INTO messages (id, chat_id, sender_id, content, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := db.pool.Exec(ctx, query, msg.ID, msg.ChatID, msg.SenderID, msg.Content, msg.CreatedAt)
	return err
}

// ListMessages returns one page of a chat's history (newest page first,
// oldest message first within the page) plus the total page count.
func (db *PostgresDB) ListMessages(ctx context.Context, chatID string, page, perPage int) ([]*models.Message, int, error) {
	if page < 1 {
		page = 1
	}

	var total int
	if err := db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM messages WHERE chat_id = $1`, chatID).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT m.id, m.chat_id, m.sender_id, m.content, u.username, m.created_at
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.chat_id = $1
		ORDER BY m.created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := db.pool.Query(ctx, query, chatID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		msg := &models.Message{}
		if err := rows.Scan(&msg.ID, &msg.ChatID, &msg.SenderID, &msg.Content, &msg.Username, &msg.CreatedAt); err != nil {
			return nil, 0, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	// Oldest first within the page, the order clients render in.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	totalPages := (total + perPage - 1) / perPage
	return messages, totalPages, nil
}
