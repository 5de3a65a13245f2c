package database

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	Id           uuid.UUID
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

type Room struct {
	Id        uuid.UUID
	Name      string
	CreatedAt time.Time
}

type Message struct {
	Id        uuid.UUID
	RoomId    uuid.UUID
	UserId    uuid.UUID
	Username  string
	Content   string
	CreatedAt time.Time
}

type CreateAccountParams struct {
	Username     string
	PasswordHash string
}

type CreateRoomParams struct {
	Name string
}
