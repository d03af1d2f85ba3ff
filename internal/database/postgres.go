package database

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"chat-delivery/internal/models"
	"chat-delivery/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

//go:embed schema.sql
var schema string

type PostgresDB struct {
	pool *pgxpool.Pool
}

func NewPostgresDB(ctx context.Context, databaseURL string) (*PostgresDB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Connected to database successfully")
	return &PostgresDB{pool: pool}, nil
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (db *PostgresDB) Migrate(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (db *PostgresDB) Close() error {
	db.pool.Close()
	return nil
}

// mapError folds driver errors into the model sentinels. Anything
// unrecognised is reported as transient.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", models.ErrConflict, pgErr.ConstraintName)
		case "22P02", "23503":
			// malformed uuid or dangling reference
			return models.ErrNotFound
		}
	}
	return fmt.Errorf("%w: %v", models.ErrTransient, err)
}

// User Repository Implementation
const userColumns = `id::text, username, email, password_hash, avatar, is_online, last_seen, created_at`

func scanUser(row pgx.Row) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.Avatar,
		&user.IsOnline, &user.LastSeen, &user.CreatedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return user, nil
}

func (db *PostgresDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(db.pool.QueryRow(ctx, query, email))
}

func (db *PostgresDB) CreateUser(ctx context.Context, req *models.RegisterRequest) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	query := `
		INSERT INTO users (username, email, password_hash, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING ` + userColumns

	user, err := scanUser(db.pool.QueryRow(ctx, query, req.Username, req.Email, string(hash)))
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

func (db *PostgresDB) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1::uuid`
	user, err := scanUser(db.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	user.PasswordHash = ""
	return user, nil
}

func (db *PostgresDB) ListUsersExcept(ctx context.Context, userID string) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id <> $1::uuid ORDER BY username`

	rows, err := db.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = ""
		users = append(users, user)
	}
	return users, mapError(rows.Err())
}

func (db *PostgresDB) GetUserSummaries(ctx context.Context, ids []string) (map[string]models.UserSummary, error) {
	query := `SELECT id::text, username, avatar, is_online FROM users WHERE id = ANY($1::uuid[])`

	rows, err := db.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	summaries := make(map[string]models.UserSummary, len(ids))
	for rows.Next() {
		var s models.UserSummary
		if err := rows.Scan(&s.ID, &s.Username, &s.Avatar, &s.IsOnline); err != nil {
			return nil, mapError(err)
		}
		summaries[s.ID] = s
	}
	return summaries, mapError(rows.Err())
}

func (db *PostgresDB) SetUserOnline(ctx context.Context, userID string, online bool, at time.Time) error {
	query := `UPDATE users SET is_online = $2, last_seen = $3 WHERE id = $1::uuid`
	tag, err := db.pool.Exec(ctx, query, userID, online, at)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Conversation Repository Implementation
const conversationColumns = `
	c.id::text, c.name, c.is_group, COALESCE(c.admin_id::text, ''), COALESCE(c.last_message_id::text, ''),
	c.created_at, c.updated_at,
	ARRAY(SELECT p.user_id::text FROM conversation_participants p WHERE p.conversation_id = c.id ORDER BY p.user_id)`

func scanConversation(row pgx.Row) (*models.Conversation, error) {
	conv := &models.Conversation{}
	err := row.Scan(
		&conv.ID, &conv.Name, &conv.IsGroupChat, &conv.AdminID, &conv.LastMessageID,
		&conv.CreatedAt, &conv.UpdatedAt, &conv.Participants,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return conv, nil
}

func (db *PostgresDB) CreateConversation(ctx context.Context, conv *models.Conversation) (*models.Conversation, error) {
	if len(conv.Participants) < 2 {
		return nil, fmt.Errorf("%w: a conversation needs at least two participants", models.ErrValidation)
	}

	var directKey *string
	if !conv.IsGroupChat {
		if len(conv.Participants) != 2 {
			return nil, fmt.Errorf("%w: a direct conversation has exactly two participants", models.ErrValidation)
		}
		key := models.DirectKey(conv.Participants[0], conv.Participants[1])
		directKey = &key
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	defer tx.Rollback(ctx)

	var id string
	insert := `
		INSERT INTO conversations (name, is_group, admin_id, direct_key, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, '')::uuid, $4, NOW(), NOW())
		RETURNING id::text`
	if err := tx.QueryRow(ctx, insert, conv.Name, conv.IsGroupChat, conv.AdminID, directKey).Scan(&id); err != nil {
		return nil, mapError(err)
	}

	for _, userID := range conv.Participants {
		if _, err := tx.Exec(ctx,
			`INSERT INTO conversation_participants (conversation_id, user_id) VALUES ($1::uuid, $2::uuid)
			 ON CONFLICT DO NOTHING`, id, userID); err != nil {
			return nil, mapError(err)
		}
	}

	created, err := scanConversation(tx.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversations c WHERE c.id = $1::uuid`, id))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, mapError(err)
	}
	return created, nil
}

func (db *PostgresDB) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations c WHERE c.id = $1::uuid`
	return scanConversation(db.pool.QueryRow(ctx, query, id))
}

func (db *PostgresDB) FindDirectConversation(ctx context.Context, a, b string) (*models.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations c WHERE c.direct_key = $1 AND NOT c.is_group`
	return scanConversation(db.pool.QueryRow(ctx, query, models.DirectKey(a, b)))
}

func (db *PostgresDB) FindConversationsByParticipant(ctx context.Context, userID string) ([]*models.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations c
		WHERE EXISTS (
			SELECT 1 FROM conversation_participants me
			WHERE me.conversation_id = c.id AND me.user_id = $1::uuid
		)
		ORDER BY c.updated_at DESC`

	rows, err := db.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var convs []*models.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, conv)
	}
	return convs, mapError(rows.Err())
}

func (db *PostgresDB) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM conversation_participants WHERE conversation_id = $1::uuid AND user_id = $2::uuid)`

	var exists bool
	err := db.pool.QueryRow(ctx, query, conversationID, userID).Scan(&exists)
	return exists, mapError(err)
}

func (db *PostgresDB) IncrementUnread(ctx context.Context, conversationID, exceptUserID string) error {
	query := `
		UPDATE conversation_participants SET unread_count = unread_count + 1
		WHERE conversation_id = $1::uuid AND user_id <> $2::uuid`
	_, err := db.pool.Exec(ctx, query, conversationID, exceptUserID)
	return mapError(err)
}

func (db *PostgresDB) ResetUnread(ctx context.Context, conversationID, userID string) error {
	query := `
		UPDATE conversation_participants SET unread_count = 0
		WHERE conversation_id = $1::uuid AND user_id = $2::uuid`
	_, err := db.pool.Exec(ctx, query, conversationID, userID)
	return mapError(err)
}

func (db *PostgresDB) UnreadCounts(ctx context.Context, userID string) (map[string]int, error) {
	query := `SELECT conversation_id::text, unread_count FROM conversation_participants WHERE user_id = $1::uuid`

	rows, err := db.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var convID string
		var count int
		if err := rows.Scan(&convID, &count); err != nil {
			return nil, mapError(err)
		}
		counts[convID] = count
	}
	return counts, mapError(rows.Err())
}

// Message Repository Implementation
const messageColumns = `
	m.id::text, m.conversation_id::text, m.sender_id::text, m.content, m.kind,
	COALESCE(m.reply_to::text, ''), m.status, m.created_at,
	u.username, u.avatar, u.is_online`

func scanMessage(row pgx.Row) (*models.Message, error) {
	msg := &models.Message{ReadBy: []models.ReadRecord{}}
	var kind, status string
	err := row.Scan(
		&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content, &kind,
		&msg.ReplyTo, &status, &msg.CreatedAt,
		&msg.Sender.Username, &msg.Sender.Avatar, &msg.Sender.IsOnline,
	)
	if err != nil {
		return nil, mapError(err)
	}
	msg.Kind = models.MessageKind(kind)
	msg.Status = models.Status(status)
	msg.Sender.ID = msg.SenderID
	return msg, nil
}

func (db *PostgresDB) CreateMessage(ctx context.Context, nm models.NewMessage) (*models.Message, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	defer tx.Rollback(ctx)

	query := `
		WITH m AS (
			INSERT INTO messages (conversation_id, sender_id, content, kind, reply_to, status)
			VALUES ($1::uuid, $2::uuid, $3, $4, NULLIF($5, '')::uuid, 'sent')
			RETURNING *
		)
		SELECT ` + messageColumns + `
		FROM m JOIN users u ON u.id = m.sender_id`

	msg, err := scanMessage(tx.QueryRow(ctx, query,
		nm.ConversationID, nm.SenderID, nm.Content, string(nm.Kind), nm.ReplyTo))
	if err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE conversations SET last_message_id = $2::uuid, updated_at = NOW() WHERE id = $1::uuid`,
		nm.ConversationID, msg.ID)
	if err != nil {
		return nil, mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return nil, models.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, mapError(err)
	}
	return msg, nil
}

func (db *PostgresDB) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages m JOIN users u ON u.id = m.sender_id WHERE m.id = $1::uuid`

	msg, err := scanMessage(db.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}

	rows, err := db.pool.Query(ctx,
		`SELECT user_id::text, read_at FROM message_reads WHERE message_id = $1::uuid ORDER BY read_at`, id)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var r models.ReadRecord
		if err := rows.Scan(&r.UserID, &r.ReadAt); err != nil {
			return nil, mapError(err)
		}
		msg.ReadBy = append(msg.ReadBy, r)
	}
	return msg, mapError(rows.Err())
}

func (db *PostgresDB) ListMessages(ctx context.Context, conversationID string) ([]*models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages m JOIN users u ON u.id = m.sender_id
		WHERE m.conversation_id = $1::uuid
		ORDER BY m.created_at, m.id`

	rows, err := db.pool.Query(ctx, query, conversationID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var messages []*models.Message
	byID := make(map[string]*models.Message)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
		byID[msg.ID] = msg
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}

	reads, err := db.pool.Query(ctx, `
		SELECT r.message_id::text, r.user_id::text, r.read_at
		FROM message_reads r JOIN messages m ON m.id = r.message_id
		WHERE m.conversation_id = $1::uuid
		ORDER BY r.read_at`, conversationID)
	if err != nil {
		return nil, mapError(err)
	}
	defer reads.Close()

	for reads.Next() {
		var msgID string
		var r models.ReadRecord
		if err := reads.Scan(&msgID, &r.UserID, &r.ReadAt); err != nil {
			return nil, mapError(err)
		}
		if msg, ok := byID[msgID]; ok {
			msg.ReadBy = append(msg.ReadBy, r)
		}
	}
	return messages, mapError(reads.Err())
}

func (db *PostgresDB) UpdateMessageStatus(ctx context.Context, messageID string, status models.Status) (bool, error) {
	if !status.Valid() {
		return false, fmt.Errorf("%w: unknown status %q", models.ErrValidation, status)
	}

	// Only forward moves touch the row; seen additionally needs a read record.
	query := `
		UPDATE messages SET status = $2
		WHERE id = $1::uuid
		  AND (CASE status WHEN 'sent' THEN 1 WHEN 'delivered' THEN 2 WHEN 'seen' THEN 3 ELSE 0 END) < $3
		  AND ($2 <> 'seen' OR EXISTS (SELECT 1 FROM message_reads r WHERE r.message_id = messages.id))`

	tag, err := db.pool.Exec(ctx, query, messageID, string(status), status.Rank())
	if err != nil {
		return false, mapError(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (db *PostgresDB) MarkMessageSeen(ctx context.Context, messageID, userID string, at time.Time) (bool, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return false, mapError(err)
	}
	defer tx.Rollback(ctx)

	insert := `
		INSERT INTO message_reads (message_id, user_id, read_at)
		SELECT m.id, $2::uuid, $3 FROM messages m
		WHERE m.id = $1::uuid AND m.sender_id <> $2::uuid
		ON CONFLICT (message_id, user_id) DO NOTHING`

	tag, err := tx.Exec(ctx, insert, messageID, userID, at)
	if err != nil {
		return false, mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if _, err := tx.Exec(ctx,
		`UPDATE messages SET status = 'seen' WHERE id = $1::uuid AND status <> 'seen'`, messageID); err != nil {
		return false, mapError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, mapError(err)
	}
	return true, nil
}
