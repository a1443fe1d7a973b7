package pgx

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/mindloom/backend/internal/util"
	"github.com/mindloom/backend/pkg/store"
)

// ChatDBStorage implements store.ChatStore on a pgx connection pool.
type ChatDBStorage struct {
	conn *pgxpool.Pool
}

// NewChatDBStorage creates a ChatDBStorage backed by the given pool.
func NewChatDBStorage(conn *pgxpool.Pool) *ChatDBStorage {
	return &ChatDBStorage{conn: conn}
}

// GetUser returns one user by id.
func (s *ChatDBStorage) GetUser(ctx context.Context, userID int64) (store.User, error) {
	var user store.User
	err := s.conn.QueryRow(ctx,
		`SELECT id, username, encryption_key FROM users WHERE id = $1`,
		userID,
	).Scan(&user.ID, &user.Username, &user.EncryptionKey)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.User{}, store.ErrNotFound
	}
	if err != nil {
		return store.User{}, fmt.Errorf("failed to get user %d: %w", userID, err)
	}
	return user, nil
}

// CreateUser inserts a user with their encryption key.
func (s *ChatDBStorage) CreateUser(ctx context.Context, username string, encryptionKey string) (store.User, error) {
	user := store.User{
		Username:      util.SanitizePostgresText(username),
		EncryptionKey: encryptionKey,
	}
	err := s.conn.QueryRow(ctx,
		`INSERT INTO users (username, encryption_key) VALUES ($1, $2) RETURNING id`,
		user.Username, user.EncryptionKey,
	).Scan(&user.ID)
	if err != nil {
		return store.User{}, fmt.Errorf("failed to create user %q: %w", username, err)
	}
	return user, nil
}

// CreateSession opens a new therapy session for a user.
func (s *ChatDBStorage) CreateSession(ctx context.Context, userID int64, therapistName string) (store.TherapySession, error) {
	session := store.TherapySession{
		UserID:        userID,
		TherapistName: util.SanitizePostgresText(therapistName),
	}
	err := s.conn.QueryRow(ctx,
		`INSERT INTO therapy_sessions (user_id, therapist_name) VALUES ($1, $2)
		 RETURNING id, created_at`,
		session.UserID, session.TherapistName,
	).Scan(&session.ID, &session.CreatedAt)
	if err != nil {
		return store.TherapySession{}, fmt.Errorf("failed to create session for user %d: %w", userID, err)
	}
	return session, nil
}

// GetSession returns one therapy session by id.
func (s *ChatDBStorage) GetSession(ctx context.Context, sessionID int64) (store.TherapySession, error) {
	var session store.TherapySession
	err := s.conn.QueryRow(ctx,
		`SELECT id, user_id, therapist_name, created_at FROM therapy_sessions WHERE id = $1`,
		sessionID,
	).Scan(&session.ID, &session.UserID, &session.TherapistName, &session.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.TherapySession{}, store.ErrNotFound
	}
	if err != nil {
		return store.TherapySession{}, fmt.Errorf("failed to get session %d: %w", sessionID, err)
	}
	return session, nil
}

// ListUserSessions returns a user's sessions, newest first.
func (s *ChatDBStorage) ListUserSessions(ctx context.Context, userID int64) ([]store.TherapySession, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT id, user_id, therapist_name, created_at
		 FROM therapy_sessions WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions for user %d: %w", userID, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.TherapySession, error) {
		var session store.TherapySession
		err := row.Scan(&session.ID, &session.UserID, &session.TherapistName, &session.CreatedAt)
		return session, err
	})
}

// InsertChat persists one chat turn. Text must already be ciphertext; the
// embedding is attached later via UpdateChatEmbedding.
func (s *ChatDBStorage) InsertChat(ctx context.Context, chat store.Chat) (store.Chat, error) {
	err := s.conn.QueryRow(ctx,
		`INSERT INTO chats (therapy_session_id, user_id, sender, text)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		chat.TherapySessionID, chat.UserID, chat.Sender, chat.Text,
	).Scan(&chat.ID, &chat.CreatedAt)
	if err != nil {
		return store.Chat{}, fmt.Errorf("failed to insert chat for session %d: %w", chat.TherapySessionID, err)
	}
	return chat, nil
}

// UpdateChatEmbedding sets the embedding vector of one chat.
func (s *ChatDBStorage) UpdateChatEmbedding(ctx context.Context, chatID int64, embedding pgvector.Vector) error {
	tag, err := s.conn.Exec(ctx,
		`UPDATE chats SET embedding = $2 WHERE id = $1`,
		chatID, embedding,
	)
	if err != nil {
		return fmt.Errorf("failed to update embedding for chat %d: %w", chatID, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// GetSessionChats returns the chats of one session in conversational order.
func (s *ChatDBStorage) GetSessionChats(ctx context.Context, sessionID int64) ([]store.Chat, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT id, therapy_session_id, user_id, sender, text, created_at
		 FROM chats WHERE therapy_session_id = $1 ORDER BY created_at, id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query chats for session %d: %w", sessionID, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.Chat, error) {
		var chat store.Chat
		err := row.Scan(&chat.ID, &chat.TherapySessionID, &chat.UserID, &chat.Sender, &chat.Text, &chat.CreatedAt)
		return chat, err
	})
}

// FindRelevantChats runs a cosine-similarity search over the user's
// embedded chats. Chats without an embedding never match.
func (s *ChatDBStorage) FindRelevantChats(ctx context.Context, userID int64, query pgvector.Vector, threshold float64, limit int) ([]store.RelevantChat, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT id, therapy_session_id, user_id, sender, text, created_at,
		        1 - (embedding <=> $2) AS score
		 FROM chats
		 WHERE user_id = $1 AND embedding IS NOT NULL AND 1 - (embedding <=> $2) >= $3
		 ORDER BY embedding <=> $2
		 LIMIT $4`,
		userID, query, threshold, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search chats for user %d: %w", userID, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.RelevantChat, error) {
		var hit store.RelevantChat
		err := row.Scan(&hit.Chat.ID, &hit.Chat.TherapySessionID, &hit.Chat.UserID,
			&hit.Chat.Sender, &hit.Chat.Text, &hit.Chat.CreatedAt, &hit.Score)
		return hit, err
	})
}
