package server

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/npezzotti/go-chatrooms/internal/config"
	"github.com/npezzotti/go-chatrooms/internal/stats"
	"github.com/npezzotti/go-chatrooms/internal/testutil"
	"github.com/npezzotti/go-chatrooms/internal/types"
	"github.com/stretchr/testify/mock"
)

const (
	timeout = 2 * time.Second
	tick    = 10 * time.Millisecond
)

// newStatsMock accepts any counter update.
func newStatsMock() *stats.MockStatsUpdater {
	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Maybe()
	su.On("Incr", mock.Anything).Maybe()
	su.On("Decr", mock.Anything).Maybe()
	return su
}

func newTestUser(username string) types.User {
	return types.User{
		Id:       uuid.New(),
		Username: username,
	}
}

// newTestConnection builds a connection without a transport. Frames queued
// to it stay in its send channel.
func newTestConnection(t *testing.T, roomId string, user types.User, buffer int) *Connection {
	opts := config.DefaultChatOptions()
	opts.SendBufferSize = buffer
	return NewConnection(user, roomId, nil, testutil.TestLogger(t), opts)
}

// drain returns every event queued to c so far.
func drain(t *testing.T, c *Connection) []*Event {
	t.Helper()

	var events []*Event
	for {
		select {
		case frame := <-c.send:
			ev := &Event{}
			if err := json.Unmarshal(frame, ev); err != nil {
				t.Fatalf("unmarshal frame %q: %v", frame, err)
			}
			events = append(events, ev)
		default:
			return events
		}
	}
}

func eventKinds(events []*Event) []string {
	kinds := make([]string, 0, len(events))
	for _, ev := range events {
		if ev.Type == EventTypeSystem {
			kinds = append(kinds, ev.Event)
			continue
		}
		kinds = append(kinds, string(ev.Type))
	}
	return kinds
}
