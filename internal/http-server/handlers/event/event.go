package event

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pusher/pusher-http-go/v5"
	"golang.org/x/exp/slog"

	"go-fairplay/internal/lib/logger/sl"
)

// Notifier pushes server events out to clients. Implementations must be
// safe for concurrent use; ledger listeners and round jobs trigger from
// different goroutines.
type Notifier interface {
	Trigger(channel string, event string, data map[string]interface{}) error
}

type PusherEvent struct {
	log    *slog.Logger
	pusher *pusher.Client
}

func NewPusherEvent(log *slog.Logger, pusherClient *pusher.Client) *PusherEvent {
	return &PusherEvent{
		log:    log,
		pusher: pusherClient,
	}
}

func (p *PusherEvent) Trigger(channel string, event string, data map[string]interface{}) error {
	const op = "event.PusherEvent.Trigger"

	if err := p.pusher.Trigger(channel, event, data); err != nil {
		p.log.Error("failed to trigger pusher event", sl.Err(err))

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

type Message struct {
	Channel string                 `json:"channel"`
	Event   string                 `json:"event"`
	Data    map[string]interface{} `json:"data"`
}

// SocketEvent forwards events to the websocket hub over a single upstream
// connection. Writes are serialized; gorilla conns allow one writer at a
// time.
type SocketEvent struct {
	log  *slog.Logger
	mu   sync.Mutex
	conn *websocket.Conn
}

func NewSocketEvent(log *slog.Logger, conn *websocket.Conn) *SocketEvent {
	return &SocketEvent{
		log:  log,
		conn: conn,
	}
}

func (s *SocketEvent) Trigger(channel string, event string, data map[string]interface{}) error {
	const op = "event.SocketEvent.Trigger"

	msg, err := json.Marshal(Message{
		Channel: channel,
		Event:   event,
		Data:    data,
	})
	if err != nil {
		s.log.Error("failed to marshal message", sl.Err(err))

		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err = s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		s.log.Error("failed to trigger event", sl.Err(err))

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
