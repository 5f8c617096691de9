package handler

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"golang.org/x/exp/slog"

	"go-fairplay/internal/lib/logger/sl"
)

type Message struct {
	Channel string                 `json:"channel"`
	Event   string                 `json:"event"`
	Data    map[string]interface{} `json:"data"`
}

type Subscription struct {
	Conn    *websocket.Conn
	Channel string
}

// Hub fans messages out per channel. The api binary connects as one more
// client and publishes round and balance events; browser clients subscribe
// by sending a message naming the channel they want.
type Hub struct {
	Channels    map[string]map[*websocket.Conn]bool
	Broadcast   chan Message
	Subscribe   chan Subscription
	Unsubscribe chan *websocket.Conn
	log         *slog.Logger
	mutex       sync.RWMutex
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		Channels:    make(map[string]map[*websocket.Conn]bool),
		Broadcast:   make(chan Message),
		Subscribe:   make(chan Subscription),
		Unsubscribe: make(chan *websocket.Conn),
		log:         log,
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

func (hub *Hub) run() {
	for {
		select {
		case sub := <-hub.Subscribe:
			hub.mutex.Lock()
			if hub.Channels[sub.Channel] == nil {
				hub.Channels[sub.Channel] = make(map[*websocket.Conn]bool)
			}
			hub.Channels[sub.Channel][sub.Conn] = true
			hub.mutex.Unlock()
		case conn := <-hub.Unsubscribe:
			hub.mutex.Lock()
			for _, receivers := range hub.Channels {
				delete(receivers, conn)
			}
			hub.mutex.Unlock()
		case message := <-hub.Broadcast:
			data, err := json.Marshal(message)
			if err != nil {
				hub.log.Error("failed to marshal message", sl.Err(err))

				continue
			}

			hub.log.Info("broadcasting message",
				sl.String("channel", message.Channel),
				sl.String("event", message.Event),
			)

			hub.mutex.RLock()
			for conn := range hub.Channels[message.Channel] {
				if err = conn.WriteMessage(websocket.TextMessage, data); err != nil {
					hub.log.Error("failed to write message", sl.Err(err))
				}
			}
			hub.mutex.RUnlock()
		}
	}
}

func (hub *Hub) HandleConnection(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.log.Error("failed to upgrade connection", sl.Err(err))

		return
	}
	defer func() {
		hub.Unsubscribe <- ws

		if err = ws.Close(); err != nil {
			hub.log.Error("failed to close connection", sl.Err(err))
		}
	}()

	for {
		var message Message

		_, p, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				hub.log.Error("failed to read message", sl.Err(err))
			}

			return
		}

		if err = json.Unmarshal(p, &message); err != nil {
			hub.log.Error("failed to unmarshal message", sl.Err(err))

			continue
		}

		hub.log.Info("incoming message",
			sl.String("channel", message.Channel),
			sl.String("event", message.Event),
		)

		hub.Subscribe <- Subscription{Conn: ws, Channel: message.Channel}

		// subscribe-only frames carry no event to relay
		if message.Event == "" {
			continue
		}

		hub.Broadcast <- message
	}
}

func (hub *Hub) RunServer() {
	go hub.run()
}
