package database

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

const (
	defaultMessageLimit = 50
	maxMessageLimit     = 200
)

func (db *PgGoChatRepository) CreateAccount(ctx context.Context, params CreateAccountParams) (User, error) {
	row := db.conn.QueryRowContext(ctx,
		"INSERT INTO users (id, username, password_hash, created_at) "+
			"VALUES ($1, $2, $3, $4) RETURNING id, username, created_at",
		uuid.New(),
		params.Username,
		params.PasswordHash,
		time.Now().UTC(),
	)

	var u User
	if err := row.Scan(&u.Id, &u.Username, &u.CreatedAt); err != nil {
		return User{}, wrapUniqueViolation(err)
	}

	return u, nil
}

func (db *PgGoChatRepository) GetAccountById(ctx context.Context, id uuid.UUID) (User, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT id, username, created_at FROM users WHERE id = $1 LIMIT 1",
		id,
	)

	var u User
	err := row.Scan(&u.Id, &u.Username, &u.CreatedAt)

	return u, err
}

func (db *PgGoChatRepository) GetAccountByUsername(ctx context.Context, username string) (User, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT id, username, password_hash, created_at FROM users WHERE username = $1 LIMIT 1",
		username,
	)

	var u User
	err := row.Scan(&u.Id, &u.Username, &u.PasswordHash, &u.CreatedAt)

	return u, err
}

func (db *PgGoChatRepository) CreateRoom(ctx context.Context, params CreateRoomParams) (Room, error) {
	row := db.conn.QueryRowContext(ctx,
		"INSERT INTO chatrooms (id, name, created_at) VALUES ($1, $2, $3) "+
			"RETURNING id, name, created_at",
		uuid.New(),
		params.Name,
		time.Now().UTC(),
	)

	var room Room
	if err := row.Scan(&room.Id, &room.Name, &room.CreatedAt); err != nil {
		return Room{}, wrapUniqueViolation(err)
	}

	return room, nil
}

func (db *PgGoChatRepository) GetRoomById(ctx context.Context, id uuid.UUID) (Room, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT id, name, created_at FROM chatrooms WHERE id = $1 LIMIT 1",
		id,
	)

	var room Room
	err := row.Scan(&room.Id, &room.Name, &room.CreatedAt)

	return room, err
}

func (db *PgGoChatRepository) ListRooms(ctx context.Context) ([]Room, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT id, name, created_at FROM chatrooms ORDER BY created_at",
	)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	rooms := make([]Room, 0)
	for rows.Next() {
		var room Room
		if err := rows.Scan(&room.Id, &room.Name, &room.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		rooms = append(rooms, room)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return rooms, nil
}

// RoomExists reports false without error when roomId is not a valid room id.
func (db *PgGoChatRepository) RoomExists(ctx context.Context, roomId string) (bool, error) {
	id, err := uuid.Parse(roomId)
	if err != nil {
		return false, nil
	}

	var exists bool
	err = db.conn.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM chatrooms WHERE id = $1)",
		id,
	).Scan(&exists)

	return exists, err
}

// AppendMessage stores a message in a single statement. The id is a
// time-ordered UUIDv7 and created_at is assigned by the database clock.
func (db *PgGoChatRepository) AppendMessage(ctx context.Context, roomId string, userId uuid.UUID, content string) (Message, error) {
	rid, err := uuid.Parse(roomId)
	if err != nil {
		return Message{}, fmt.Errorf("parse room id: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return Message{}, fmt.Errorf("generate message id: %w", err)
	}

	row := db.conn.QueryRowContext(ctx,
		"INSERT INTO messages (id, room_id, user_id, content) VALUES ($1, $2, $3, $4) "+
			"RETURNING id, room_id, user_id, content, created_at",
		id,
		rid,
		userId,
		content,
	)

	var msg Message
	err = row.Scan(&msg.Id, &msg.RoomId, &msg.UserId, &msg.Content, &msg.CreatedAt)
	if err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}

	msg.CreatedAt = msg.CreatedAt.UTC()
	return msg, nil
}

// GetMessages returns up to limit messages created before the given time,
// oldest first. A zero before means "now".
func (db *PgGoChatRepository) GetMessages(ctx context.Context, roomId uuid.UUID, before time.Time, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = defaultMessageLimit
	}
	if limit > maxMessageLimit {
		limit = maxMessageLimit
	}

	if before.IsZero() {
		before = time.Now().UTC().Add(time.Second)
	}

	rows, err := db.conn.QueryContext(ctx,
		"SELECT m.id, m.room_id, m.user_id, u.username, m.content, m.created_at "+
			"FROM messages m JOIN users u ON u.id = m.user_id "+
			"WHERE m.room_id = $1 AND m.created_at < $2 "+
			"ORDER BY m.created_at DESC, m.id DESC LIMIT $3",
		roomId,
		before,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	defer rows.Close()

	messages := make([]Message, 0, limit)
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.Id, &msg.RoomId, &msg.UserId, &msg.Username, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	slices.Reverse(messages)
	return messages, nil
}
