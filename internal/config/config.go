package config

import (
	"encoding/base64"
	"fmt"
	"time"
)

type Config struct {
	DatabaseDSN    string
	ServerAddr     string
	SigningKey     []byte
	AllowedOrigins []string
	Chat           ChatOptions
}

// ChatOptions tunes the websocket connections of the chat server.
type ChatOptions struct {
	// SendBufferSize is the number of outbound frames queued per connection
	// before the peer is considered too slow and disconnected.
	SendBufferSize int
	WriteWait      time.Duration
	PongWait       time.Duration
	// IdleTimeout closes connections with no inbound frames for this long.
	// Zero disables it.
	IdleTimeout time.Duration
}

func DefaultChatOptions() ChatOptions {
	return ChatOptions{
		SendBufferSize: 256,
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
	}
}

func (o ChatOptions) Validate() error {
	if o.SendBufferSize <= 0 {
		return fmt.Errorf("send buffer size must be positive")
	}
	if o.WriteWait <= 0 {
		return fmt.Errorf("write wait must be positive")
	}
	if o.PongWait <= 0 {
		return fmt.Errorf("pong wait must be positive")
	}
	if o.IdleTimeout < 0 {
		return fmt.Errorf("idle timeout cannot be negative")
	}
	return nil
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(base64Secret)
	if err != nil {
		return nil, err
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("signing secret is empty")
	}
	return key, nil
}

func NewConfig(serverAddr, databaseDSN, base64Secret string, allowedOrigins []string) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if databaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}

	// Decode the base64 encoded signing secret
	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	return &Config{
		DatabaseDSN:    databaseDSN,
		ServerAddr:     serverAddr,
		SigningKey:     signingKey,
		AllowedOrigins: allowedOrigins,
		Chat:           DefaultChatOptions(),
	}, nil
}
