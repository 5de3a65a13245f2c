package server

import "errors"

var (
	// ErrUnauthenticated is returned when an identity token is missing or invalid.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrRoomNotFound is returned when a connection targets a room that does not exist.
	ErrRoomNotFound = errors.New("room not found")
	// ErrValidationFailed is returned for empty or oversized message content.
	ErrValidationFailed = errors.New("validation failed")
	// ErrPersistenceFailed is returned when the message store rejects a message.
	ErrPersistenceFailed = errors.New("persistence failed")
	// ErrDeliveryFailed is returned when a frame cannot be queued for a recipient.
	ErrDeliveryFailed = errors.New("delivery failed")
	// ErrTransportClosed is returned when the connection is already closed.
	ErrTransportClosed = errors.New("transport closed")
)
