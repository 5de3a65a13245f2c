package database

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type GoChatRepository interface {
	Ping() error
	Close() error
	CreateAccount(ctx context.Context, params CreateAccountParams) (User, error)
	GetAccountById(ctx context.Context, id uuid.UUID) (User, error)
	GetAccountByUsername(ctx context.Context, username string) (User, error)
	CreateRoom(ctx context.Context, params CreateRoomParams) (Room, error)
	GetRoomById(ctx context.Context, id uuid.UUID) (Room, error)
	ListRooms(ctx context.Context) ([]Room, error)
	RoomExists(ctx context.Context, roomId string) (bool, error)
	AppendMessage(ctx context.Context, roomId string, userId uuid.UUID, content string) (Message, error)
	GetMessages(ctx context.Context, roomId uuid.UUID, before time.Time, limit int) ([]Message, error)
}
