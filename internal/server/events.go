package server

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/npezzotti/go-chatrooms/internal/database"
)

type EventType string

const (
	EventTypeSystem  EventType = "system"
	EventTypeMessage EventType = "message"
	EventTypeError   EventType = "error"
)

// system event kinds
const (
	SystemJoin    = "join"
	SystemLeave   = "leave"
	SystemWelcome = "welcome"
)

// error codes reported to the sender only
const (
	CodeValidationFailed  = "validation_failed"
	CodePersistenceFailed = "persistence_failed"
)

// Event is the outbound envelope written to websocket peers. It is never
// persisted.
type Event struct {
	Type      EventType  `json:"type"`
	Event     string     `json:"event,omitempty"`
	Code      string     `json:"code,omitempty"`
	Id        string     `json:"id,omitempty"`
	RoomId    string     `json:"room_id,omitempty"`
	UserId    string     `json:"user_id,omitempty"`
	Username  string     `json:"username,omitempty"`
	Message   string     `json:"message,omitempty"`
	Content   string     `json:"content,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

func serializeEvent(ev *Event) ([]byte, error) {
	return json.Marshal(ev)
}

func JoinEvent(c *Connection) *Event {
	return &Event{
		Type:      EventTypeSystem,
		Event:     SystemJoin,
		RoomId:    c.roomId,
		UserId:    c.user.Id.String(),
		Username:  c.user.Username,
		Message:   fmt.Sprintf("%s joined the room", c.user.Username),
		Timestamp: Now(),
	}
}

func LeaveEvent(c *Connection) *Event {
	return &Event{
		Type:      EventTypeSystem,
		Event:     SystemLeave,
		RoomId:    c.roomId,
		UserId:    c.user.Id.String(),
		Username:  c.user.Username,
		Message:   fmt.Sprintf("%s left the room", c.user.Username),
		Timestamp: Now(),
	}
}

func WelcomeEvent(c *Connection, present int) *Event {
	return &Event{
		Type:      EventTypeSystem,
		Event:     SystemWelcome,
		RoomId:    c.roomId,
		UserId:    c.user.Id.String(),
		Username:  c.user.Username,
		Message:   fmt.Sprintf("welcome, %s! %d connected", c.user.Username, present),
		Timestamp: Now(),
	}
}

// MessageEvent builds a chat event from the stored record, never from the
// raw client input. The room id is the key the sender was registered under.
func MessageEvent(msg database.Message, sender *Connection) *Event {
	createdAt := msg.CreatedAt.UTC()
	return &Event{
		Type:      EventTypeMessage,
		Id:        msg.Id.String(),
		RoomId:    sender.roomId,
		UserId:    msg.UserId.String(),
		Username:  sender.user.Username,
		Content:   msg.Content,
		CreatedAt: &createdAt,
		Timestamp: createdAt,
	}
}

func ErrorEvent(code, message string) *Event {
	return &Event{
		Type:      EventTypeError,
		Code:      code,
		Message:   message,
		Timestamp: Now(),
	}
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
